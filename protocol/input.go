package protocol

type inputKind int

const (
	inputAck inputKind = iota
	inputNak
	inputRPC
	inputSys
	inputStore
)

// Input is one pending host-to-hub message, as handed to
// OutboundQueue.Enqueue. Construct one with NewRPC, NewSys, NewStore,
// NewAck, or NewNak.
type Input struct {
	kind inputKind

	peerID uint8 // ack/nak
	name   string
	args   []byte
	code   SysCode
	data   []byte
	addr   uint8
	value  uint32

	sim SimulatedError
}

// NewAck builds an Input that acknowledges the peer's frame with the
// given id. ACK inputs never expect a response.
func NewAck(peerID uint8) Input { return Input{kind: inputAck, peerID: peerID} }

// NewNak builds an Input that signals rejection of the peer's frame
// with the given id. NAK inputs never expect a response.
func NewNak(peerID uint8) Input { return Input{kind: inputNak, peerID: peerID} }

// NewRPC builds a call-by-name Input.
func NewRPC(name string, args []byte) Input {
	return Input{kind: inputRPC, name: name, args: args}
}

// NewSys builds a host-to-hub SYS Input.
func NewSys(code SysCode, data []byte) Input {
	return Input{kind: inputSys, code: code, data: data}
}

// NewStore builds a STORE Input writing value at addr.
func NewStore(addr uint8, value uint32) Input {
	return Input{kind: inputStore, addr: addr, value: value}
}

// WithSimulatedError attaches a one-shot perturbation to this input, for
// exercising OutboundQueue's retry and NAK paths in tests.
func (in Input) WithSimulatedError(e SimulatedError) Input {
	in.sim = e
	return in
}

// needsAck reports whether this input is retransmitted until
// acknowledged (everything but ACK/NAK).
func (in Input) needsAck() bool {
	return in.kind != inputAck && in.kind != inputNak
}

// encode produces the wire bytes for this input. id is ignored for
// ACK/NAK, whose target id is carried in peerID.
func (in Input) encode(id uint8) []byte {
	var raw []byte
	switch in.kind {
	case inputAck:
		raw = EncodeAck(in.peerID)
	case inputNak:
		raw = EncodeNak(in.peerID)
	case inputRPC:
		raw = EncodeRPC(in.name, in.args, id)
	case inputSys:
		raw = EncodeSys(in.code, in.data, id)
	case inputStore:
		raw = EncodeStore(in.addr, in.value, id)
	}
	return perturb(raw, in.sim)
}
