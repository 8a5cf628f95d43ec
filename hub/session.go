// Package hub ties the protocol and transport layers together into a
// single connected hub: a background read loop demultiplexing stdout
// text from binary frames, an outbound queue for reliable sends, and an
// event bus fanning decoded messages out to any number of subscribers.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Novakasa/brickrail-go/protocol"
	"github.com/Novakasa/brickrail-go/transport"
)

// Session is one connected hub. Callers obtain one from Connect, run it
// with Run, subscribe to its events, enqueue RPC/SYS/STORE inputs, and
// eventually Close it.
type Session struct {
	conn transport.Conn
	log  *slog.Logger

	demux   *protocol.Demux
	inbound *protocol.InboundHandler
	outq    *protocol.OutboundQueue

	bus *EventBus

	mu     sync.Mutex
	status Status

	runCancel context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// frameWriter adapts transport.Conn to protocol.FrameWriter.
type frameWriter struct {
	conn transport.Conn
}

func (w frameWriter) WriteFrame(ctx context.Context, data []byte) error {
	return w.conn.WriteFrame(ctx, data)
}

// Connect dials the hub described by desc through d, then returns a
// Session ready for Run. It does no discovery of its own.
func Connect(ctx context.Context, d transport.Dialer, desc transport.Descriptor, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := d.Dial(ctx, desc)
	if err != nil {
		return nil, fmt.Errorf("hub: connect: %w", err)
	}

	s := &Session{
		conn:    conn,
		log:     log,
		demux:   protocol.NewDemux(),
		inbound: protocol.NewInboundHandler(),
		bus:     NewEventBus(),
		status:  StatusConnected,
		done:    make(chan struct{}),
	}
	s.outq = protocol.NewOutboundQueue(frameWriter{conn}, protocol.DefaultOutboundQueueConfig())
	s.outq.SetLinkBrokenHandler(s.onLinkBroken)
	return s, nil
}

// Events returns a channel of every HubEvent published on this session,
// plus an unsubscribe function the caller must eventually call.
func (s *Session) Events() (<-chan HubEvent, func()) {
	return s.bus.Subscribe()
}

// Status reports the session's current coarse lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.bus.Publish(HubEvent{Kind: EventStatus, Status: st})
}

// Capabilities returns the capability block read at connect time.
func (s *Session) Capabilities() transport.Capabilities {
	return s.conn.Capabilities()
}

// Run drives the session's background work — the outbound queue and the
// inbound read loop — until ctx is cancelled or the link breaks. It
// blocks until both have stopped; call it in its own goroutine.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCancel = cancel
	s.mu.Unlock()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.outq.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		s.readLoop(runCtx, cancel)
	}()
	wg.Wait()
}

func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	buf := make([]byte, 512)
	idle := time.NewTimer(time.Duration(protocol.DefaultResyncTimeout) * time.Millisecond)
	defer idle.Stop()

	reads := make(chan []byte)
	readErrs := make(chan error, 1)
	go func() {
		for {
			n, err := s.conn.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case reads <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErrs <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErrs:
			s.log.Error("hub: transport read failed", "err", err)
			s.onLinkBroken(err)
			cancel()
			return

		case chunk := <-reads:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(time.Duration(protocol.DefaultResyncTimeout) * time.Millisecond)
			s.handleBytes(ctx, chunk)

		case <-idle.C:
			if nak, ok := s.demux.OnQuiet(); ok {
				_ = s.conn.WriteFrame(ctx, nak)
			}
			idle.Reset(time.Duration(protocol.DefaultResyncTimeout) * time.Millisecond)
		}
	}
}

func (s *Session) handleBytes(ctx context.Context, chunk []byte) {
	for _, ev := range s.demux.Feed(chunk) {
		switch ev.Kind {
		case protocol.EventLine:
			s.bus.Publish(HubEvent{Kind: EventStdout, Line: ev.Line})

		case protocol.EventFrame:
			if ev.Frame.Type.IsResponse() {
				s.outq.DeliverResponse(ev.Frame)
				continue
			}
			resp, msg, deliver := s.inbound.Handle(ev.Frame)
			if resp != nil {
				_ = s.conn.WriteFrame(ctx, resp)
			}
			if deliver {
				s.bus.Publish(HubEvent{Kind: EventMessage, Message: msg})
			}
		}
	}
}

func (s *Session) onLinkBroken(err error) {
	s.setStatus(StatusDisconnected)
	s.bus.Publish(HubEvent{Kind: EventLinkBroken, Err: err})
}

// SendRPC enqueues a call-by-name message and returns once it is queued
// (not once it is acknowledged).
func (s *Session) SendRPC(ctx context.Context, name string, args []byte) error {
	return s.outq.Enqueue(ctx, protocol.NewRPC(name, args))
}

// SendSys enqueues a host-to-hub SYS message.
func (s *Session) SendSys(ctx context.Context, code protocol.SysCode, data []byte) error {
	return s.outq.Enqueue(ctx, protocol.NewSys(code, data))
}

// SendStore enqueues a STORE(addr, value) message.
func (s *Session) SendStore(ctx context.Context, addr uint8, value uint32) error {
	return s.outq.Enqueue(ctx, protocol.NewStore(addr, value))
}

// StartProgram issues a single StartUserProgram command-channel write.
// This is a fixed-opcode BLE-acknowledged write, not a reliable-protocol
// message: it is not retried at that layer, and is distinct from the
// SYS(Ready) handshake the orchestrator waits on after start.
func (s *Session) StartProgram(ctx context.Context) error {
	s.setStatus(StatusRunning)
	return s.conn.WriteCommand(ctx, []byte{transport.CmdStartUserProgram})
}

// StopProgram issues a single StopUserProgram command-channel write.
func (s *Session) StopProgram(ctx context.Context) error {
	s.setStatus(StatusConnected)
	return s.conn.WriteCommand(ctx, []byte{transport.CmdStopUserProgram})
}

// Close stops the outbound queue, waits for Run to return, closes the
// transport, and shuts down the event bus. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.outq.Stop()
		s.mu.Lock()
		cancel := s.runCancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		err = s.conn.Close() // unblocks the read-loop's blocking Read
		<-s.done
		s.bus.Close()
	})
	return err
}
