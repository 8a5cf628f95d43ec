package protocol

// IsResponse reports whether a decoded frame is an ACK or NAK — these
// are routed to the outbound queue as a response signal and never reach
// InboundHandler.Handle.
func (t InboundType) IsResponse() bool {
	return t == InboundACK || t == InboundNAK
}

// MessageKind classifies a delivered application message.
type MessageKind int

const (
	MessageData MessageKind = iota
	MessageDump
	MessageSys
)

// Message is a decoded, accepted application payload handed to
// subscribers (hub.EventBus) after passing the integrity and sequence
// checks below.
type Message struct {
	Kind MessageKind

	// Tag is the application-defined schema selector for Data/Dump
	// payloads (the first byte of the frame body).
	Tag     uint8
	Payload []byte

	// Code is populated for MessageSys.
	Code SysCode
}

// InboundHandler validates decoded frames against the expected sequence
// id, emits ACK/NAK, and classifies accepted frames for delivery. It
// holds no transport handle; Handle returns the bytes to send (if any)
// and lets the caller do the actual write.
type InboundHandler struct {
	nextExpectedInboundID uint8
}

// NewInboundHandler returns a handler with next-expected-id at zero.
func NewInboundHandler() *InboundHandler {
	return &InboundHandler{}
}

// NextExpectedID returns the id this handler currently expects next, for
// diagnostics and tests.
func (h *InboundHandler) NextExpectedID() uint8 {
	return h.nextExpectedInboundID
}

// Handle processes one non-response decoded frame (DATA, SYS, STORE-ack
// machinery does not apply here — STORE is host to hub only). It
// returns the encoded ACK/NAK bytes for the caller to write, and the
// classified message plus whether it should be delivered to subscribers.
//
// DUMP frames carry no sequence id and are never acknowledged; they are
// always delivered.
func (h *InboundHandler) Handle(f InboundFrame) (response []byte, msg Message, deliver bool) {
	if f.Type == InboundDUMP {
		return nil, Message{Kind: MessageDump, Tag: dumpTag(f.Body), Payload: dumpPayload(f.Body)}, true
	}

	if !f.Validate() {
		return EncodeNak(f.ID), Message{}, false
	}

	expected := h.nextExpectedInboundID
	switch {
	case f.ID == expected:
		h.nextExpectedInboundID = expected + 1
		return EncodeAck(f.ID), classify(f), true

	case f.ID == expected-1:
		// Retransmission of the previously accepted frame: re-ACK but
		// do not deliver or advance.
		return EncodeAck(f.ID), Message{}, false

	default:
		return EncodeNak(f.ID), Message{}, false
	}
}

func classify(f InboundFrame) Message {
	switch f.Type {
	case InboundSYS:
		code := SysCode(0)
		var data []byte
		if len(f.Body) > 0 {
			code = SysCode(f.Body[0])
			data = f.Body[1:]
		}
		return Message{Kind: MessageSys, Code: code, Payload: data}
	case InboundDATA:
		return Message{Kind: MessageData, Tag: dumpTag(f.Body), Payload: dumpPayload(f.Body)}
	default:
		return Message{Payload: f.Body}
	}
}

func dumpTag(body []byte) uint8 {
	if len(body) == 0 {
		return 0
	}
	return body[0]
}

func dumpPayload(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	return body[1:]
}

// AliveReading decodes a SYS(ALIVE) payload: voltage_mV and current_mA,
// both big-endian u16, expressed as volts/amps.
type AliveReading struct {
	VoltageV float64
	CurrentA float64
}

// DecodeAlive parses the payload of a SysAlive message.
func DecodeAlive(payload []byte) (AliveReading, error) {
	if len(payload) < 4 {
		return AliveReading{}, &DecodeError{Kind: "short ALIVE payload"}
	}
	voltageMV := uint16(payload[0])<<8 | uint16(payload[1])
	currentMA := uint16(payload[2])<<8 | uint16(payload[3])
	return AliveReading{
		VoltageV: float64(voltageMV) / 1000.0,
		CurrentA: float64(currentMA) / 1000.0,
	}, nil
}
