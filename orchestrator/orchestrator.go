// Package orchestrator sequences the steps needed to bring a hub from
// "discovered" to "running a known-good program with known
// configuration", skipping redundant BLE traffic when the persisted
// cache shows the hub already has what it needs.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Novakasa/brickrail-go/cache"
	"github.com/Novakasa/brickrail-go/hub"
	"github.com/Novakasa/brickrail-go/protocol"
	"github.com/Novakasa/brickrail-go/transport"
)

// Configuration maps a STORE address to the value it should hold.
type Configuration map[uint8]uint32

// Target describes what a hub should end up running.
type Target struct {
	Program       []byte
	Configuration Configuration
}

// Bring connects to desc, uploads the program only if its hash differs
// from the cached one, writes only the STORE entries that differ from
// the cached configuration, sends SYS(Ready) and waits for the hub's
// SYS(Ready) reply, starts the program, and persists the new cache
// state. It returns the running Session for the caller to manage
// further (subscribe to events, stop it later).
func Bring(ctx context.Context, d transport.Dialer, desc transport.Descriptor, target Target, store *cache.Store, log *slog.Logger) (*hub.Session, error) {
	if log == nil {
		log = slog.Default()
	}

	s, err := hub.Connect(ctx, d, desc, log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: connect: %w", err)
	}

	// Session.Close cancels Run's internal context; the background
	// context here just needs to outlive the orchestration itself.
	go s.Run(context.Background())

	hash := hashProgram(target.Program)
	if cached, ok := store.ProgramHash(desc.Address); !ok || cached != hash {
		log.Info("orchestrator: uploading program", "hub", desc.Address, "bytes", len(target.Program))
		if err := s.UploadProgram(ctx, target.Program); err != nil {
			s.Close()
			return nil, fmt.Errorf("orchestrator: upload: %w", err)
		}
		store.SetProgramHash(desc.Address, hash)
	} else {
		log.Info("orchestrator: program unchanged, skipping upload", "hub", desc.Address)
	}

	diff := diffConfiguration(store.Configuration(desc.Address), target.Configuration)
	for addr, value := range diff {
		if err := s.SendStore(ctx, addr, value); err != nil {
			s.Close()
			return nil, fmt.Errorf("orchestrator: store addr %d: %w", addr, err)
		}
	}
	store.SetConfiguration(desc.Address, encodeConfiguration(target.Configuration))

	if err := s.SendSys(ctx, protocol.SysReady, nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("orchestrator: send ready: %w", err)
	}
	if err := waitForReady(ctx, s); err != nil {
		s.Close()
		return nil, fmt.Errorf("orchestrator: ready handshake: %w", err)
	}

	if err := s.StartProgram(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("orchestrator: start: %w", err)
	}

	if err := store.Save(); err != nil {
		log.Warn("orchestrator: cache save failed", "err", err)
	}

	return s, nil
}

func hashProgram(program []byte) string {
	sum := sha256.Sum256(program)
	return hex.EncodeToString(sum[:])
}

// diffConfiguration returns only the addr/value pairs in want that are
// absent from or different in cached, keyed by the same string encoding
// the cache package uses.
func diffConfiguration(cached map[string]uint32, want Configuration) map[uint8]uint32 {
	out := make(map[uint8]uint32)
	for addr, value := range want {
		key := strconv.Itoa(int(addr))
		if cv, ok := cached[key]; !ok || cv != value {
			out[addr] = value
		}
	}
	return out
}

func encodeConfiguration(cfg Configuration) map[string]uint32 {
	out := make(map[string]uint32, len(cfg))
	for addr, value := range cfg {
		out[strconv.Itoa(int(addr))] = value
	}
	return out
}

// waitForReady blocks until the hub publishes SYS(Ready), the transport
// link breaks, or ctx is cancelled.
func waitForReady(ctx context.Context, s *hub.Session) error {
	events, unsubscribe := s.Events()
	defer unsubscribe()

	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("orchestrator: event bus closed before ready")
			}
			if ev.Kind == hub.EventLinkBroken {
				return fmt.Errorf("orchestrator: link broken waiting for ready: %w", ev.Err)
			}
			if ev.Kind == hub.EventMessage && ev.Message.Kind == protocol.MessageSys && ev.Message.Code == protocol.SysReady {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("orchestrator: timed out waiting for ready handshake")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
