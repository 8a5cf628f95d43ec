// Package ble implements transport.Discoverer, transport.Dialer and
// transport.Conn against a real BLE radio using github.com/currantlabs/ble,
// a central-role GATT client. Discovery filters on the Pybricks service
// UUID; connect and discovery are wrapped in an exponential backoff.
package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/currantlabs/ble"

	"github.com/Novakasa/brickrail-go/transport"
)

// Pybricks GATT identifiers (Nordic UART-shaped service): one
// command/event characteristic carries the stdio byte stream and the
// command writes; a separate characteristic holds the capability block
// read at connect time.
var (
	ServiceUUID        = ble.MustParse("c5f50001-8280-46da-89f4-6d8051e4aeef")
	CommandEventUUID   = ble.MustParse("c5f50002-8280-46da-89f4-6d8051e4aeef")
	HubCapabilitiesUUID = ble.MustParse("c5f50003-8280-46da-89f4-6d8051e4aeef")
)

// RetryConfig tunes the exponential backoff wrapping Discover and Dial.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig returns a backoff for flaky remote links: fast first
// retry, capped growth, bounded total wait.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

func (c RetryConfig) backOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialInterval,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         c.MaxInterval,
		MaxElapsedTime:      c.MaxElapsedTime,
		Clock:               backoff.SystemClock,
	}
}

// Backend is a transport.Discoverer and transport.Dialer pair backed by
// the host's BLE adapter.
type Backend struct {
	retry RetryConfig
}

// NewBackend returns a Backend using cfg for discovery/connect retries.
func NewBackend(cfg RetryConfig) *Backend {
	return &Backend{retry: cfg}
}

// Discover scans for peripherals advertising the Pybricks service. Each
// scan lasts timeout; a scan that finds no hub is retried under backoff
// until one finds a hub, the retry config's MaxElapsedTime runs out, or
// ctx is cancelled. It does not filter by name.
func (b *Backend) Discover(ctx context.Context, timeout time.Duration) ([]transport.Descriptor, error) {
	var found []transport.Descriptor

	op := func() error {
		scanCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		advs := make(chan ble.Advertisement, 16)
		go func() {
			_ = ble.Scan(ble.WithSigHandler(scanCtx, nil), true, func(a ble.Advertisement) { advs <- a }, nil)
			close(advs)
		}()

		for a := range advs {
			if !hasService(a, ServiceUUID) {
				continue
			}
			found = append(found, transport.Descriptor{
				Name:    a.LocalName(),
				Address: a.Addr().String(),
				RSSI:    a.RSSI(),
			})
		}
		if len(found) == 0 {
			return fmt.Errorf("ble: no Pybricks hub found")
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b.retry.backOff(), ctx)); err != nil {
		return nil, err
	}
	return found, nil
}

func hasService(a ble.Advertisement, want ble.UUID) bool {
	for _, u := range a.Services() {
		if u.Equal(want) {
			return true
		}
	}
	return false
}

// Dial connects to desc, discovers its GATT characteristics, reads the
// capability block, and subscribes to notifications on the
// command/event characteristic.
func (b *Backend) Dial(ctx context.Context, desc transport.Descriptor) (transport.Conn, error) {
	var client ble.Client

	op := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := ble.Dial(ble.WithSigHandler(dialCtx, nil), ble.NewAddr(desc.Address))
		if err != nil {
			return err
		}
		client = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b.retry.backOff(), ctx)); err != nil {
		return nil, fmt.Errorf("ble: dial %s: %w", desc.Address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("ble: discover profile: %w", err)
	}

	cmdChar := findCharacteristic(profile, CommandEventUUID)
	capChar := findCharacteristic(profile, HubCapabilitiesUUID)
	if cmdChar == nil {
		client.CancelConnection()
		return nil, fmt.Errorf("ble: command/event characteristic not found")
	}

	conn := &Conn{
		client:  client,
		cmdChar: cmdChar,
		incoming: make(chan []byte, 64),
	}

	if capChar != nil {
		raw, err := client.ReadCharacteristic(capChar)
		if err == nil {
			conn.caps = decodeCapabilities(raw)
		}
	}

	if err := client.Subscribe(cmdChar, false, conn.onNotify); err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("ble: subscribe: %w", err)
	}

	return conn, nil
}

func findCharacteristic(p *ble.Profile, uuid ble.UUID) *ble.Characteristic {
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			if c.UUID.Equal(uuid) {
				return c
			}
		}
	}
	return nil
}

// decodeCapabilities parses the fixed-layout capability block: 2-byte
// max write size, 4-byte flags, 4-byte max program size, then an
// optional 1-byte slot count and firmware version string this backend
// appends beyond the documented record.
func decodeCapabilities(raw []byte) transport.Capabilities {
	var c transport.Capabilities
	if len(raw) < 10 {
		return c
	}
	c.MaxWriteSize = int(le16(raw[0:2]))
	c.Flags = le32(raw[2:6])
	c.MaxProgramSize = int(le32(raw[6:10]))
	if len(raw) > 10 {
		c.NumSlots = int(raw[10])
	}
	if len(raw) > 11 {
		c.FirmwareVer = string(raw[11:])
	}
	return c
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Conn is a transport.Conn over a single GATT characteristic shared by
// the stdio byte stream and the reliable protocol frames, with BLE
// notifications fed into a buffered channel Read drains from.
type Conn struct {
	client  ble.Client
	cmdChar *ble.Characteristic
	caps    transport.Capabilities

	mu       sync.Mutex
	incoming chan []byte
	pending  []byte
}

func (c *Conn) onNotify(data []byte) {
	buf := append([]byte(nil), data...)
	select {
	case c.incoming <- buf:
	default:
		// Slow reader: the hub event bus further up applies its own
		// bounded-lag drop policy; here we just avoid blocking the BLE
		// stack's notification goroutine.
	}
}

// Read implements io.Reader by draining queued notification payloads.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	for len(c.pending) == 0 {
		c.mu.Unlock()
		buf, ok := <-c.incoming
		if !ok {
			return 0, fmt.Errorf("ble: connection closed")
		}
		c.mu.Lock()
		c.pending = buf
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	c.mu.Unlock()
	return n, nil
}

// WriteFrame writes to the command/event characteristic, which the
// firmware treats as write-without-response for stdio/protocol traffic.
func (c *Conn) WriteFrame(ctx context.Context, data []byte) error {
	return c.client.WriteCharacteristic(c.cmdChar, data, true)
}

// WriteCommand writes to the same characteristic on this backend: the
// Pybricks hub multiplexes program upload control writes over the same
// command/event characteristic as everything else. Unlike WriteFrame it
// uses an acknowledged write (with response).
func (c *Conn) WriteCommand(ctx context.Context, data []byte) error {
	return c.client.WriteCharacteristic(c.cmdChar, data, false)
}

// Capabilities returns the capability block read during Dial.
func (c *Conn) Capabilities() transport.Capabilities { return c.caps }

// Close cancels the BLE connection.
func (c *Conn) Close() error {
	return c.client.CancelConnection()
}
