package protocol

import "testing"

func mustDecode(t *testing.T, frame []byte) InboundFrame {
	t.Helper()
	f, err := DecodeInbound(frame[1 : len(frame)-1])
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	return f
}

// TestInboundHandlerAdvancesOnExpectedID covers the in-order-delivery
// property: frames arriving in sequence are each delivered exactly once
// and the expected id advances by one each time.
func TestInboundHandlerAdvancesOnExpectedID(t *testing.T) {
	h := NewInboundHandler()
	for i := 0; i < 5; i++ {
		f := mustDecode(t, EncodeSys(SysAlive, []byte{0, 0, 0, 0}, uint8(i)))
		resp, msg, deliver := h.Handle(f)
		if !deliver {
			t.Fatalf("frame %d: expected delivery", i)
		}
		if msg.Kind != MessageSys {
			t.Fatalf("frame %d: got kind %v", i, msg.Kind)
		}
		want := EncodeAck(uint8(i))
		if string(resp) != string(want) {
			t.Fatalf("frame %d: resp = %v, want %v", i, resp, want)
		}
		if h.NextExpectedID() != uint8(i+1) {
			t.Fatalf("frame %d: next expected = %d, want %d", i, h.NextExpectedID(), i+1)
		}
	}
}

// TestInboundHandlerDuplicateRetransmission covers at-most-once delivery:
// a retransmitted copy of the last accepted frame (id == expected-1) is
// re-acknowledged but never redelivered, and the expected id does not
// move.
func TestInboundHandlerDuplicateRetransmission(t *testing.T) {
	h := NewInboundHandler()
	first := mustDecode(t, EncodeSys(SysReady, nil, 0))
	if _, _, deliver := h.Handle(first); !deliver {
		t.Fatal("first frame should deliver")
	}

	dup := mustDecode(t, EncodeSys(SysReady, nil, 0)) // same id 0, a retransmit
	resp, _, deliver := h.Handle(dup)
	if deliver {
		t.Fatal("duplicate retransmission must not be redelivered")
	}
	if want := EncodeAck(0); string(resp) != string(want) {
		t.Fatalf("resp = %v, want %v", resp, want)
	}
	if h.NextExpectedID() != 1 {
		t.Fatalf("next expected = %d, want 1 (unchanged)", h.NextExpectedID())
	}
}

// TestInboundHandlerUnexpectedIDNaks covers rejection of an id that is
// neither the expected one nor the one-deep retransmission window.
func TestInboundHandlerUnexpectedIDNaks(t *testing.T) {
	h := NewInboundHandler()
	f := mustDecode(t, EncodeSys(SysReady, nil, 9))
	resp, _, deliver := h.Handle(f)
	if deliver {
		t.Fatal("unexpected id must not be delivered")
	}
	if want := EncodeNak(9); string(resp) != string(want) {
		t.Fatalf("resp = %v, want %v", resp, want)
	}
	if h.NextExpectedID() != 0 {
		t.Fatalf("next expected = %d, want 0 (unchanged)", h.NextExpectedID())
	}
}

// TestInboundHandlerInvalidChecksumNaks covers frames that fail XOR
// validation: they must never be delivered, regardless of id.
func TestInboundHandlerInvalidChecksumNaks(t *testing.T) {
	h := NewInboundHandler()
	f := mustDecode(t, EncodeSys(SysReady, nil, 0))
	f.Body = append([]byte(nil), f.Body...)
	f.XOR ^= 0xFF // corrupt the digest

	resp, _, deliver := h.Handle(f)
	if deliver {
		t.Fatal("corrupted frame must not be delivered")
	}
	if want := EncodeNak(0); string(resp) != string(want) {
		t.Fatalf("resp = %v, want %v", resp, want)
	}
}

func TestInboundHandlerDumpAlwaysDelivered(t *testing.T) {
	h := NewInboundHandler()
	f, err := DecodeInbound([]byte{byte(InboundDUMP), 0x09, 0xCA, 0xFE})
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	resp, msg, deliver := h.Handle(f)
	if resp != nil {
		t.Fatalf("DUMP must never be acknowledged, got %v", resp)
	}
	if !deliver || msg.Kind != MessageDump || msg.Tag != 0x09 {
		t.Fatalf("got msg %+v deliver=%v", msg, deliver)
	}
}

func TestDecodeAliveBigEndian(t *testing.T) {
	reading, err := DecodeAlive([]byte{0x1D, 0x4C, 0x01, 0xF4}) // 7500 mV, 500 mA
	if err != nil {
		t.Fatalf("DecodeAlive: %v", err)
	}
	if reading.VoltageV != 7.5 {
		t.Fatalf("voltage = %v, want 7.5", reading.VoltageV)
	}
	if reading.CurrentA != 0.5 {
		t.Fatalf("current = %v, want 0.5", reading.CurrentA)
	}
}

func TestDecodeAliveShortPayload(t *testing.T) {
	if _, err := DecodeAlive([]byte{0x01}); err == nil {
		t.Fatal("expected error on short ALIVE payload")
	}
}
