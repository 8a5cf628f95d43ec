package protocol

import "testing"

func TestDemuxLineEvent(t *testing.T) {
	d := NewDemux()
	events := d.Feed([]byte("hello\r\n"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventLine || events[0].Line != "hello\r\n" {
		t.Fatalf("got %+v", events[0])
	}
}

func TestDemuxFrameEvent(t *testing.T) {
	d := NewDemux()
	frame := EncodeAck(5)
	body := frame[1 : len(frame)-1] // what the demux hands to DecodeInbound
	_ = body

	events := d.Feed(frame)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventFrame {
		t.Fatalf("got kind %v, want EventFrame", events[0].Kind)
	}
	f := events[0].Frame
	if f.Type != InboundACK || len(f.Body) != 1 || f.Body[0] != 5 {
		t.Fatalf("got frame %+v", f)
	}
}

// TestDemuxAttributionBoundary covers the documented resolution of the
// printable/control boundary: a byte of exactly 32 (space) begins a
// line, while 31 begins a frame.
func TestDemuxAttributionBoundary(t *testing.T) {
	d := NewDemux()
	d.Feed([]byte{32})
	if d.Framing() {
		t.Fatal("byte 32 should start a line, not a frame")
	}

	d2 := NewDemux()
	d2.Feed([]byte{31})
	if !d2.Framing() {
		t.Fatal("byte 31 should start a frame")
	}
}

// TestDemuxControlByteInLineContinuesLine exercises the attribution rule
// directly: once a line has a printable first byte, CR and LF (both <32)
// still belong to that line rather than starting a new frame.
func TestDemuxControlByteInLineContinuesLine(t *testing.T) {
	d := NewDemux()
	events := d.Feed([]byte("hi\r\n"))
	if len(events) != 1 || events[0].Kind != EventLine || events[0].Line != "hi\r\n" {
		t.Fatalf("got %+v", events)
	}
	if d.Framing() {
		t.Fatal("CR/LF inside a started line must not begin a frame")
	}
}

// TestDemuxInterleavedLinesAndFrames is the mixed stdout/frame traffic
// scenario: text lines and a binary frame arriving back to back must be
// separated into distinct, correctly ordered events.
func TestDemuxInterleavedLinesAndFrames(t *testing.T) {
	d := NewDemux()
	var stream []byte
	stream = append(stream, []byte("booting\r\n")...)
	stream = append(stream, EncodeSys(SysReady, nil, 0)...)
	stream = append(stream, []byte("ready\r\n")...)

	events := d.Feed(stream)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Kind != EventLine || events[0].Line != "booting\r\n" {
		t.Fatalf("event 0 = %+v", events[0])
	}
	if events[1].Kind != EventFrame || events[1].Frame.Type != InboundSYS {
		t.Fatalf("event 1 = %+v", events[1])
	}
	if events[2].Kind != EventLine || events[2].Line != "ready\r\n" {
		t.Fatalf("event 2 = %+v", events[2])
	}
}

func TestDemuxOnQuietWithPartialFrame(t *testing.T) {
	d := NewDemux()
	d.Feed([]byte{0x05, byte(InboundDATA)}) // declares a 5-byte frame, only 1 byte of it arrived
	if !d.Framing() {
		t.Fatal("expected a frame in progress")
	}
	nak, ok := d.OnQuiet()
	if !ok {
		t.Fatal("OnQuiet should report a dropped frame")
	}
	if want := EncodeNak(0); string(nak) != string(want) {
		t.Fatalf("OnQuiet nak = %v, want %v", nak, want)
	}
	if d.Framing() {
		t.Fatal("OnQuiet must reset frame state")
	}
}

func TestDemuxOnQuietIdle(t *testing.T) {
	d := NewDemux()
	if _, ok := d.OnQuiet(); ok {
		t.Fatal("OnQuiet on an idle demux should report ok=false")
	}
}

func TestDemuxDumpSixteenBitLength(t *testing.T) {
	d := NewDemux()
	payload := []byte{0x07, 0xAA, 0xBB}
	raw := append([]byte{byte(InboundDUMP)}, payload...) // type + payload, as accumulated in frameBuffer
	n := len(raw)

	// Wire order: lenLow, type, lenHigh, payload..., END — the second
	// length byte only combines once the type byte is already buffered.
	frame := []byte{byte(n & 0xFF), raw[0], byte(n >> 8)}
	frame = append(frame, raw[1:]...)
	frame = append(frame, End)

	events := d.Feed(frame)
	if len(events) != 1 || events[0].Kind != EventFrame {
		t.Fatalf("got %+v", events)
	}
	f := events[0].Frame
	if f.Type != InboundDUMP || f.HasID {
		t.Fatalf("DUMP frame = %+v", f)
	}
	if string(f.Body) != string(payload) {
		t.Fatalf("DUMP body = %v, want %v", f.Body, payload)
	}
}
