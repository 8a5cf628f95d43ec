// Package serialbridge implements transport.Dialer and transport.Conn
// over a plain USB/UART serial connection, for bench testing against a
// hub's debug console without a BLE radio in the loop. It wraps a
// github.com/tarm/serial port directly.
package serialbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/Novakasa/brickrail-go/transport"
)

// Config configures a bench serial connection.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultConfig returns the common USB CDC settings: baud is ignored by
// most CDC devices but tarm/serial requires a value.
func DefaultConfig(device string) Config {
	return Config{Device: device, Baud: 115200, ReadTimeout: 100 * time.Millisecond}
}

// Dialer is a transport.Dialer that ignores the discovered descriptor's
// address and always opens the configured device path. There is no
// meaningful Discover over a wired serial link, so callers typically
// construct a Descriptor by hand.
type Dialer struct {
	cfg Config
}

// NewDialer returns a Dialer for cfg.
func NewDialer(cfg Config) *Dialer { return &Dialer{cfg: cfg} }

// Dial opens the serial port and returns a Conn with fixed conservative
// capability defaults sized for a single BLE write; it does not read
// capabilities from the hub.
func (d *Dialer) Dial(ctx context.Context, desc transport.Descriptor) (transport.Conn, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        d.cfg.Device,
		Baud:        d.cfg.Baud,
		ReadTimeout: d.cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open %s: %w", d.cfg.Device, err)
	}
	return &Conn{
		port: port,
		caps: transport.Capabilities{MaxWriteSize: 20, MaxProgramSize: 32 * 1024, NumSlots: 24},
	}, nil
}

// Conn is a transport.Conn backed by an open serial.Port. There is no
// separate command channel; WriteCommand
// writes to the same stream as WriteFrame, serialized by the same mutex.
type Conn struct {
	mu   sync.Mutex
	port *serial.Port
	caps transport.Capabilities
}

// Read implements io.Reader by reading off the underlying serial port.
func (c *Conn) Read(p []byte) (int, error) {
	return c.port.Read(p)
}

// WriteFrame writes data to the serial port, one caller at a time.
func (c *Conn) WriteFrame(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.port.Write(data)
	return err
}

// WriteCommand writes to the same underlying stream as WriteFrame: a
// bench serial link has no distinct command characteristic.
func (c *Conn) WriteCommand(ctx context.Context, data []byte) error {
	return c.WriteFrame(ctx, data)
}

// Capabilities returns the capability block assumed for a bench
// connection.
func (c *Conn) Capabilities() transport.Capabilities { return c.caps }

// Close closes the serial port.
func (c *Conn) Close() error {
	return c.port.Close()
}
