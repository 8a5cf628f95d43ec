package hub

import (
	"sync"

	"github.com/Novakasa/brickrail-go/protocol"
)

// EventKind classifies a HubEvent.
type EventKind int

const (
	EventNameDiscovered EventKind = iota
	EventStatus
	EventDownloadProgress
	EventMessage
	EventStdout
	EventLinkBroken
)

// Status is the coarse lifecycle state of a Session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusDiscovering
	StatusConnecting
	StatusConnected
	StatusUploading
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusDiscovering:
		return "discovering"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusUploading:
		return "uploading"
	case StatusRunning:
		return "running"
	default:
		return "unknown"
	}
}

// HubEvent is one item broadcast to every subscriber of a Session's
// EventBus.
type HubEvent struct {
	Kind EventKind

	Name string // EventNameDiscovered

	Status Status // EventStatus

	Sent, Total int // EventDownloadProgress

	Message protocol.Message // EventMessage

	Line string // EventStdout, includes trailing CR LF

	Err error // EventLinkBroken
}

// subscriberQueueDepth bounds how far a subscriber may lag before events
// are dropped for it rather than blocking the publisher.
const subscriberQueueDepth = 32

// EventBus fans a stream of HubEvents out to any number of subscribers.
// A slow subscriber never blocks the publisher or other subscribers: its
// own channel fills and further events are dropped for it alone.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan HubEvent
	next int
}

// NewEventBus returns an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan HubEvent)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel is closed once unsubscribe is
// called; callers must keep draining it until then.
func (b *EventBus) Subscribe() (<-chan HubEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan HubEvent, subscriberQueueDepth)
	b.subs[id] = ch
	return ch, func() { b.unsubscribe(id) }
}

func (b *EventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish broadcasts ev to every current subscriber. A subscriber whose
// queue is full has this event dropped for it; the publisher never
// blocks.
func (b *EventBus) Publish(ev HubEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts down every subscriber channel. Used when a Session tears
// down for good.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
