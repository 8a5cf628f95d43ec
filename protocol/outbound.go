package protocol

import (
	"context"
	"sync"
	"time"
)

// FrameWriter is the single write surface the outbound queue needs from
// a transport: send already-encoded frame bytes. hub.Session supplies
// an implementation backed by the mutex-guarded transport connection
// (see §5: a single mutex arbitrates writes from the queue and the
// command channel).
type FrameWriter interface {
	WriteFrame(ctx context.Context, data []byte) error
}

// OutboundQueueConfig holds the two tunables of the outbound queue.
type OutboundQueueConfig struct {
	AckTimeout time.Duration
	MaxRetries int
}

// DefaultOutboundQueueConfig returns the spec's defaults: a 500ms ack
// deadline and five transmission attempts in all (MaxRetries counts the
// first send) before surfacing AckTimeoutError.
func DefaultOutboundQueueConfig() OutboundQueueConfig {
	return OutboundQueueConfig{
		AckTimeout: 500 * time.Millisecond,
		MaxRetries: 5,
	}
}

type responseKind int

const (
	respAck responseKind = iota
	respNak
)

type response struct {
	kind responseKind
	id   uint8
}

// OutboundQueue serializes host inputs onto a single transport
// connection: exactly one input may be awaiting acknowledgement at a
// time. It assigns monotonically wrapping ids, retransmits identical
// bytes on NAK or timeout, and surfaces a link-broken error once an
// input exhausts its retry budget.
type OutboundQueue struct {
	writer FrameWriter
	cfg    OutboundQueueConfig

	mu             sync.Mutex
	nextOutboundID uint8

	items     chan Input
	responses chan response

	stopped  chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	onLinkBroken func(error)
}

// NewOutboundQueue constructs a queue writing through writer. Call Run
// in its own goroutine before enqueuing anything.
func NewOutboundQueue(writer FrameWriter, cfg OutboundQueueConfig) *OutboundQueue {
	return &OutboundQueue{
		writer:    writer,
		cfg:       cfg,
		items:     make(chan Input, 64),
		responses: make(chan response, 1),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// SetLinkBrokenHandler registers the callback invoked once, from Run's
// goroutine, when an input exhausts its retransmit budget or a frame
// write fails. Cancellation of Run's context does not invoke it.
func (q *OutboundQueue) SetLinkBrokenHandler(f func(error)) {
	q.onLinkBroken = f
}

// NextOutboundID reports the id that will be assigned to the next
// acknowledged input, for diagnostics and tests.
func (q *OutboundQueue) NextOutboundID() uint8 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextOutboundID
}

// Enqueue pushes in onto the FIFO. It returns once the input is queued,
// not once it is acknowledged; it returns ErrCancelled if the queue has
// already been stopped or is stopped while the call is blocked waiting
// for room.
func (q *OutboundQueue) Enqueue(ctx context.Context, in Input) error {
	select {
	case <-q.stopped:
		return ErrCancelled
	default:
	}
	select {
	case q.items <- in:
		return nil
	case <-q.stopped:
		return ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverResponse routes a decoded ACK/NAK frame from the inbound
// handler to the Run loop iteration currently awaiting one. At most one
// response is held: one that arrives with nothing awaiting it
// (a duplicate, a straggler after a timeout already fired) replaces any
// older unread response and is read by the next wait, where a
// mismatched id counts as a failed attempt.
func (q *OutboundQueue) DeliverResponse(f InboundFrame) {
	if !f.Type.IsResponse() {
		return
	}
	var id uint8
	if len(f.Body) > 0 {
		id = f.Body[0]
	}
	kind := respAck
	if f.Type == InboundNAK {
		kind = respNak
	}
	resp := response{kind: kind, id: id}

	select {
	case q.responses <- resp:
		return
	default:
	}
	select {
	case <-q.responses:
	default:
	}
	select {
	case q.responses <- resp:
	default:
	}
}

// Run drains the FIFO until ctx is cancelled or Stop is called. It is
// the session's single background outbound task; exactly one Input is
// ever in flight at a time.
func (q *OutboundQueue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case <-q.stopped:
			q.drain()
			return
		case in := <-q.items:
			if err := q.send(ctx, in); err != nil {
				if q.onLinkBroken != nil && ctx.Err() == nil {
					q.onLinkBroken(err)
				}
				q.drain()
				return
			}
		}
	}
}

func (q *OutboundQueue) send(ctx context.Context, in Input) error {
	if !in.needsAck() {
		return q.writer.WriteFrame(ctx, in.encode(0))
	}

	id := q.NextOutboundID()

	for attempts := 0; ; attempts++ {
		if err := q.writer.WriteFrame(ctx, in.encode(id)); err != nil {
			return err
		}

		ok, err := q.awaitAck(ctx, id, in.sim.Kind == SimSkipAcknowledge)
		in.sim = NoSimulatedError // one-shot: perturb/skip only the first transmission
		if err != nil {
			return err
		}
		if ok {
			q.mu.Lock()
			q.nextOutboundID = id + 1
			q.mu.Unlock()
			return nil
		}

		if attempts+1 >= q.cfg.MaxRetries {
			return AckTimeoutError{ID: id, Attempts: attempts + 1}
		}
	}
}

// awaitAck waits for a response matching id, the ack deadline, or
// context cancellation. Only a matching ACK returns ok=true; a NAK, a
// mismatched ACK, or a timeout all mean "retransmit".
func (q *OutboundQueue) awaitAck(ctx context.Context, id uint8, skipped bool) (ok bool, err error) {
	if skipped {
		select {
		case <-time.After(q.cfg.AckTimeout):
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	select {
	case resp := <-q.responses:
		return resp.kind == respAck && resp.id == id, nil
	case <-time.After(q.cfg.AckTimeout):
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (q *OutboundQueue) drain() {
	for {
		select {
		case <-q.items:
		default:
			return
		}
	}
}

// Stop signals Run to drain its FIFO and return, releasing anything
// blocked in Enqueue with ErrCancelled. It blocks until Run has
// returned.
func (q *OutboundQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stopped) })
	<-q.done
}
