package protocol

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned from Enqueue when the outbound queue has been
// stopped while the call was in flight.
var ErrCancelled = errors.New("protocol: outbound queue cancelled")

// AckTimeoutError is returned from OutboundQueue.Run's write path (and
// surfaced to the link-broken handler) when an input exhausts its
// retransmit budget without a matching ACK.
type AckTimeoutError struct {
	ID       uint8
	Attempts int
}

func (e AckTimeoutError) Error() string {
	return fmt.Sprintf("protocol: ack timeout for id %d after %d attempts", e.ID, e.Attempts)
}

// ProgramTooLargeError is returned by UploadProgram when a program
// exceeds the hub's declared max_program_size capability; the upload is
// rejected before any command-channel write is made.
type ProgramTooLargeError struct {
	Size    int
	MaxSize int
}

func (e ProgramTooLargeError) Error() string {
	return fmt.Sprintf("protocol: program size %d exceeds max_program_size %d", e.Size, e.MaxSize)
}

// SequenceError reports an inbound frame whose id was neither the
// expected id nor a retransmission of the previous one. It is never
// returned from a public operation: InboundHandler answers such a frame
// with a NAK and does not construct this type.
type SequenceError struct {
	Expected uint8
	Got      uint8
}

func (e SequenceError) Error() string {
	return fmt.Sprintf("protocol: unexpected sequence id: expected %d, got %d", e.Expected, e.Got)
}
