// Package transport defines the byte-stream abstraction hub.Session
// drives: something discoverable, connectable, and able to exchange a
// single stdio-like byte stream plus a side command channel. transport/ble
// and transport/serialbridge each implement it against a different wire.
package transport

import (
	"context"
	"io"
	"time"
)

// Capabilities describes a discovered peripheral's declared limits, read
// once at connect time and used to bound and size program uploads. The
// wire record is max_write_size u16_le, flags
// u32_le, max_program_size u32_le; NumSlots/FirmwareVer are decoded from
// whatever a backend appends after that fixed prefix.
type Capabilities struct {
	MaxWriteSize   int
	Flags          uint32
	MaxProgramSize int
	NumSlots       int
	FirmwareVer    string
}

// Command channel opcodes (transport-level, not the reliable protocol):
// a single byte identifying the write, prefixed to whatever payload
// WriteCommand carries. Values match the hub firmware's command enum.
const (
	CmdStopUserProgram      byte = 0
	CmdStartUserProgram     byte = 1
	CmdStartRepl            byte = 2
	CmdWriteUserProgramMeta byte = 3
	CmdWriteUserRam         byte = 4
	CmdRebootToUpdateMode   byte = 5
	CmdWriteSTDIN           byte = 6
)

// Descriptor identifies one discoverable peripheral before a connection
// is attempted.
type Descriptor struct {
	Name    string
	Address string
	RSSI    int
}

// Discoverer finds peripherals advertising the target service. timeout
// bounds a single scan; an implementation may retry scans (the BLE
// backend does, under a bounded backoff) and returns early if ctx is
// cancelled.
type Discoverer interface {
	Discover(ctx context.Context, timeout time.Duration) ([]Descriptor, error)
}

// Dialer connects to a previously discovered peripheral.
type Dialer interface {
	Dial(ctx context.Context, d Descriptor) (Conn, error)
}

// Conn is an open connection to a hub: a duplex byte stream (the stdio
// channel frames and plain-text lines are multiplexed over) plus a
// BLE-acknowledged command channel used for program upload and
// start/stop writes.
type Conn interface {
	io.Reader // raw bytes off the stdio characteristic/serial line

	// WriteFrame writes already-encoded protocol bytes (or raw stdio
	// bytes) to the peer. Implementations serialize concurrent callers
	// internally; see the note on FrameWriter in protocol.OutboundQueue.
	WriteFrame(ctx context.Context, data []byte) error

	// WriteCommand writes an opcode-prefixed command: program upload
	// control writes (META and CHUNK) and program start/stop. The BLE
	// backend sends it to the same characteristic as WriteFrame but as
	// an acknowledged write; on the serial bench backend both funnel
	// into the same stream.
	WriteCommand(ctx context.Context, data []byte) error

	// Capabilities returns the capability block read during Dial.
	Capabilities() Capabilities

	Close() error
}
