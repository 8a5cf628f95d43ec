package protocol

import "fmt"

// End is the single-byte terminator closing every frame.
const End byte = 0x0A

// OutboundType is the type tag of a host-to-hub frame.
type OutboundType uint8

// Outbound frame type tags, host to hub.
const (
	OutboundACK   OutboundType = 0x06
	OutboundRPC   OutboundType = 0x11
	OutboundSYS   OutboundType = 0x12
	OutboundSTORE OutboundType = 0x13
	OutboundNAK   OutboundType = 0x15
)

// expectsAck reports whether frames of this type carry a trailing
// sequence id and XOR digest and are retransmitted until acknowledged.
func (t OutboundType) expectsAck() bool {
	switch t {
	case OutboundACK, OutboundNAK:
		return false
	default:
		return true
	}
}

// InboundType is the type tag of a hub-to-host frame.
type InboundType uint8

// Inbound frame type tags, hub to host.
const (
	InboundACK  InboundType = 0x06
	InboundDATA InboundType = 0x11
	InboundSYS  InboundType = 0x12
	InboundDUMP InboundType = 0x14
	InboundNAK  InboundType = 0x15
)

func (t InboundType) expectsAck() bool {
	switch t {
	case InboundACK, InboundNAK, InboundDUMP:
		return false
	default:
		return true
	}
}

// SysCode is the subcode of a SYS frame.
type SysCode uint8

// SYS frame subcodes, hub to host.
const (
	SysStop    SysCode = 0
	SysReady   SysCode = 1
	SysAlive   SysCode = 2
	SysVersion SysCode = 3
)

// DecodeError describes a framing failure: unknown type, length
// mismatch, missing terminator, or checksum mismatch. It is never
// returned from a public hub operation: Demux drops a frame that fails
// to decode without emitting an event, a NAK, or a log entry.
type DecodeError struct {
	Kind string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode error: %s", e.Kind)
}

// EncodeOutbound builds the wire bytes for a host-to-hub frame of the
// given type and body. For acknowledged types (RPC, SYS, STORE), id is
// appended along with its XOR digest before the frame is length-prefixed
// and terminated; id is ignored for ACK/NAK, where body is expected to
// already be [peerID].
func EncodeOutbound(t OutboundType, body []byte, id uint8) []byte {
	inner := make([]byte, 0, len(body)+2)
	inner = append(inner, byte(t))
	inner = append(inner, body...)

	if t.expectsAck() {
		inner = append(inner, id)
		inner = append(inner, XORChecksum(inner))
	}

	frame := make([]byte, 0, len(inner)+3)
	frame = append(frame, byte(len(inner)))
	frame = append(frame, inner...)
	frame = append(frame, End)
	return frame
}

// EncodeAck builds an ACK(id) frame.
func EncodeAck(id uint8) []byte {
	return EncodeOutbound(OutboundACK, []byte{id}, 0)
}

// EncodeNak builds a NAK(id) frame.
func EncodeNak(id uint8) []byte {
	return EncodeOutbound(OutboundNAK, []byte{id}, 0)
}

// EncodeRPC builds an RPC(name, args...) frame with the given sequence id.
func EncodeRPC(name string, args []byte, id uint8) []byte {
	nameBytes := []byte(name)
	body := make([]byte, 0, 2+len(args))
	body = append(body, XORChecksum(nameBytes), ModChecksum(nameBytes))
	body = append(body, args...)
	return EncodeOutbound(OutboundRPC, body, id)
}

// EncodeStore builds a STORE(addr, value) frame with the given sequence id.
func EncodeStore(addr uint8, value uint32, id uint8) []byte {
	body := []byte{
		addr,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
	return EncodeOutbound(OutboundSTORE, body, id)
}

// EncodeSys builds a host-to-hub SYS(code, data...) frame with the given
// sequence id.
func EncodeSys(code SysCode, data []byte, id uint8) []byte {
	body := make([]byte, 0, 1+len(data))
	body = append(body, byte(code))
	body = append(body, data...)
	return EncodeOutbound(OutboundSYS, body, id)
}

// InboundFrame is a fully decoded hub-to-host frame.
type InboundFrame struct {
	Type InboundType
	Body []byte // payload, excluding any trailing id/xor

	// HasID reports whether ID/XOR below are meaningful. DUMP frames
	// carry no sequence id.
	HasID bool
	ID    uint8
	XOR   uint8
}

// DecodeInbound parses a single frame body as collected by Demux: the
// bytes between the length prefix and the terminator (exclusive of
// both). It does not see the length value read off the wire; Demux has
// already used that to size raw.
func DecodeInbound(raw []byte) (InboundFrame, error) {
	if len(raw) == 0 {
		return InboundFrame{}, &DecodeError{Kind: "empty frame"}
	}

	t := InboundType(raw[0])
	switch t {
	case InboundACK, InboundDATA, InboundSYS, InboundDUMP, InboundNAK:
	default:
		return InboundFrame{}, &DecodeError{Kind: "unknown type"}
	}

	if !t.expectsAck() {
		return InboundFrame{Type: t, Body: raw[1:]}, nil
	}

	if len(raw) < 3 {
		return InboundFrame{}, &DecodeError{Kind: "length mismatch"}
	}

	id := raw[len(raw)-2]
	xor := raw[len(raw)-1]
	body := raw[1 : len(raw)-2]

	return InboundFrame{
		Type:  t,
		Body:  body,
		HasID: true,
		ID:    id,
		XOR:   xor,
	}, nil
}

// Validate reports whether the frame's XOR digest, computed over
// type+body+id, matches the trailing digest byte that was received.
// Frames without a trailing id (ACK, NAK, DUMP) are always valid.
func (f InboundFrame) Validate() bool {
	if !f.HasID {
		return true
	}
	inner := make([]byte, 0, len(f.Body)+2)
	inner = append(inner, byte(f.Type))
	inner = append(inner, f.Body...)
	inner = append(inner, f.ID)
	return XORChecksum(inner) == f.XOR
}
