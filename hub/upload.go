package hub

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/Novakasa/brickrail-go/protocol"
	"github.com/Novakasa/brickrail-go/transport"
)

// metaPayloadSize is the length of a WriteUserProgramMeta payload: a
// 4-byte little-endian program size.
const metaPayloadSize = 4

// ramHeaderSize is the WriteUserRam payload prefix: a 4-byte
// little-endian offset ahead of the chunk bytes.
const ramHeaderSize = 4

// commandHeaderSize is the full per-chunk overhead charged against
// MaxWriteSize: one opcode byte plus ramHeaderSize.
const commandHeaderSize = 1 + ramHeaderSize

// UploadProgram writes program bytecode to the hub as a sequence of
// opcode-prefixed command-channel writes: a leading WriteUserProgramMeta
// of size 0 opens the transfer, one WriteUserRam write per
// capability-sized chunk carries its offset and bytecode, and a trailing
// WriteUserProgramMeta of the real size commits it atomically. Progress
// is published as EventDownloadProgress after every chunk.
func (s *Session) UploadProgram(ctx context.Context, program []byte) error {
	caps := s.conn.Capabilities()
	if caps.MaxProgramSize > 0 && len(program) > caps.MaxProgramSize {
		return protocol.ProgramTooLargeError{Size: len(program), MaxSize: caps.MaxProgramSize}
	}

	s.setStatus(StatusUploading)

	chunkSize := caps.MaxWriteSize - commandHeaderSize
	if chunkSize <= 0 {
		chunkSize = 20 - commandHeaderSize // conservative default: smallest common BLE MTU payload
	}

	if err := s.writeMeta(ctx, 0); err != nil {
		return fmt.Errorf("hub: upload meta open: %w", err)
	}

	sent := 0
	for sent < len(program) {
		end := sent + chunkSize
		if end > len(program) {
			end = len(program)
		}
		chunk := program[sent:end]
		data := make([]byte, commandHeaderSize+len(chunk))
		data[0] = transport.CmdWriteUserRam
		binary.LittleEndian.PutUint32(data[1:1+ramHeaderSize], uint32(sent))
		copy(data[commandHeaderSize:], chunk)
		if err := s.conn.WriteCommand(ctx, data); err != nil {
			return fmt.Errorf("hub: upload chunk at %d: %w", sent, err)
		}
		sent = end
		s.bus.Publish(HubEvent{Kind: EventDownloadProgress, Sent: sent, Total: len(program)})
	}

	if err := s.writeMeta(ctx, uint32(len(program))); err != nil {
		return fmt.Errorf("hub: upload meta close: %w", err)
	}

	s.setStatus(StatusConnected)
	return nil
}

func (s *Session) writeMeta(ctx context.Context, size uint32) error {
	meta := make([]byte, 1+metaPayloadSize)
	meta[0] = transport.CmdWriteUserProgramMeta
	binary.LittleEndian.PutUint32(meta[1:], size)
	return s.conn.WriteCommand(ctx, meta)
}
