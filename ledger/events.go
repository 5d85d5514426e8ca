/*
events.go - Domain events for dependent views

PURPOSE:
  After a successful link/unlink the engine emits an event so dependent
  views (trip roster, financial summary) can refresh. This replaces a
  page-level reload callback and a polled timestamp flag with an explicit
  publish/subscribe seam: the core only EMITS, it never holds references
  to UI code.

DELIVERY:
  The in-process EventBus below is one implementation choice; the
  Publisher interface is the contract. Publishing never blocks the
  orchestrator: slow subscribers drop events rather than stall a
  booking.
*/
package ledger

import (
	"sync"
	"time"
)

// Action identifies what happened to a credit.
type Action string

const (
	ActionLinked   Action = "linked"
	ActionUnlinked Action = "unlinked"
	ActionCreated  Action = "created"
	ActionAdjusted Action = "adjusted"
	ActionDeleted  Action = "deleted"
)

// Event is emitted after a successful state change.
type Event struct {
	TripID   TripID
	CreditID CreditID
	Action   Action
	At       time.Time
}

// Publisher is the seam the orchestrators emit through.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards events. Useful in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// =============================================================================
// IN-PROCESS BUS
// =============================================================================

// EventBus is a non-blocking in-process Publisher with buffered
// subscribers.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	last   *Event
	buffer int
}

// NewEventBus creates a bus whose subscribers get channels with the
// given buffer. A non-positive buffer falls back to 16.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventBus{subs: make(map[int]chan Event), buffer: buffer}
}

// Publish delivers the event to every subscriber without blocking.
// A subscriber whose buffer is full misses the event. Sends happen
// under the same lock that guards cancel's close, so a publish can
// never race a subscriber's channel being closed.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &e
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a buffered listener. The returned cancel func must
// be called to release it.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Last returns the most recently published event, if any.
func (b *EventBus) Last() (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Event{}, false
	}
	return *b.last, true
}
