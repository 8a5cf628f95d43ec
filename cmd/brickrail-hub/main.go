// Command brickrail-hub discovers, connects to, and controls
// Pybricks-compatible BLE hubs from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/Novakasa/brickrail-go/cache"
	"github.com/Novakasa/brickrail-go/hub"
	"github.com/Novakasa/brickrail-go/orchestrator"
	"github.com/Novakasa/brickrail-go/protocol"
	"github.com/Novakasa/brickrail-go/transport"
	bleadapter "github.com/Novakasa/brickrail-go/transport/ble"
)

var (
	verbose   = flag.Bool("verbose", false, "Enable debug-level logging")
	cachePath = flag.String("cache", "brickrail-hubs.yaml", "Path to the persisted hub cache")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "discover":
		err = runDiscover(log)
	case "connect":
		err = runConnect(log, args[1:])
	case "send-rpc":
		err = runSendRPC(log, args[1:])
	case "stdout":
		err = runStdout(log, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: brickrail-hub [-verbose] [-cache path] <subcommand> [args]

subcommands:
  discover                          scan for Pybricks hubs
  connect -address ADDR [-upload FILE] [-start]
                                    connect to a hub, optionally upload and start a program
  send-rpc -address ADDR NAME [ARGBYTES...]
                                    connect and send a single RPC call
  stdout -address ADDR              connect and print the hub's stdout stream`)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runDiscover(log *slog.Logger) error {
	ctx, cancel := signalContext()
	defer cancel()

	backend := bleadapter.NewBackend(bleadapter.DefaultRetryConfig())
	found, err := backend.Discover(ctx, 5*time.Second)
	if err != nil {
		return err
	}
	for _, d := range found {
		fmt.Printf("%s\t%s\trssi=%d\n", d.Address, d.Name, d.RSSI)
	}
	return nil
}

func runConnect(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	address := fs.String("address", "", "Hub BLE address")
	upload := fs.String("upload", "", "Path to a compiled program to upload before starting")
	start := fs.Bool("start", false, "Start the program once connected")
	fs.Parse(args)

	if *address == "" {
		return fmt.Errorf("connect: -address is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend := bleadapter.NewBackend(bleadapter.DefaultRetryConfig())
	store := cache.Open(*cachePath)

	target := orchestrator.Target{}
	if *upload != "" {
		program, err := os.ReadFile(*upload)
		if err != nil {
			return fmt.Errorf("connect: read program: %w", err)
		}
		target.Program = program
	}

	desc := descriptorFor(*address)

	if target.Program == nil {
		// No program to bring up: connect directly rather than running
		// the full orchestration sequence.
		s, err := hub.Connect(ctx, backend, desc, log)
		if err != nil {
			return err
		}
		go s.Run(ctx)
		defer s.Close()
		if *start {
			if err := s.StartProgram(ctx); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return nil
	}

	s, err := orchestrator.Bring(ctx, backend, desc, target, store, log)
	if err != nil {
		return err
	}
	defer s.Close()
	if !*start {
		return s.StopProgram(ctx)
	}
	<-ctx.Done()
	return nil
}

func runSendRPC(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("send-rpc", flag.ExitOnError)
	address := fs.String("address", "", "Hub BLE address")
	fs.Parse(args)
	rest := fs.Args()
	if *address == "" || len(rest) == 0 {
		return fmt.Errorf("send-rpc: -address and a function name are required")
	}

	name := rest[0]
	argBytes := make([]byte, 0, len(rest)-1)
	for _, a := range rest[1:] {
		var b int
		if _, err := fmt.Sscanf(a, "%d", &b); err != nil {
			return fmt.Errorf("send-rpc: arg %q is not a byte: %w", a, err)
		}
		argBytes = append(argBytes, byte(b))
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend := bleadapter.NewBackend(bleadapter.DefaultRetryConfig())
	s, err := hub.Connect(ctx, backend, descriptorFor(*address), log)
	if err != nil {
		return err
	}
	defer s.Close()
	go s.Run(ctx)

	return s.SendRPC(ctx, name, argBytes)
}

func runStdout(log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("stdout", flag.ExitOnError)
	address := fs.String("address", "", "Hub BLE address")
	fs.Parse(args)
	if *address == "" {
		return fmt.Errorf("stdout: -address is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend := bleadapter.NewBackend(bleadapter.DefaultRetryConfig())
	s, err := hub.Connect(ctx, backend, descriptorFor(*address), log)
	if err != nil {
		return err
	}
	defer s.Close()
	go s.Run(ctx)

	events, unsubscribe := s.Events()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case hub.EventStdout:
				fmt.Print(ev.Line)
			case hub.EventMessage:
				if ev.Message.Kind == protocol.MessageSys {
					fmt.Printf("[sys %d] % x\n", ev.Message.Code, ev.Message.Payload)
				}
			case hub.EventLinkBroken:
				return ev.Err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func descriptorFor(address string) transport.Descriptor {
	return transport.Descriptor{Address: address}
}
