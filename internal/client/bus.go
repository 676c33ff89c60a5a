package client

import (
	"sync"

	"github.com/motionforge/renderline/internal/wire"
)

// EventBus is the hand-off point between the Manager and its consumers. It
// holds only the most recent job event and the current connection state:
// there is no queue, no replay, and no backpressure. A consumer that
// subscribes late observes the latest values and nothing older.
//
// The bus is constructed once per session and passed by reference to every
// consumer; nothing in this package reaches for ambient shared state.
type EventBus struct {
	mu         sync.RWMutex
	lastEvent  wire.JobEvent
	hasEvent   bool
	state      ConnectionState
	nextID     int64
	eventSubs  map[int64]func(wire.JobEvent)
	stateSubs  map[int64]func(ConnectionState)
}

// NewEventBus constructs an empty bus in the closed state.
func NewEventBus() *EventBus {
	return &EventBus{
		state:     StateClosed,
		eventSubs: make(map[int64]func(wire.JobEvent)),
		stateSubs: make(map[int64]func(ConnectionState)),
	}
}

// SubscribeEvents registers a handler invoked for every published job event.
// The returned cancel function removes the subscription and is idempotent.
func (b *EventBus) SubscribeEvents(handler func(wire.JobEvent)) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.eventSubs[id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.eventSubs, id)
		b.mu.Unlock()
	}
}

// SubscribeState registers a handler invoked on connection state transitions.
func (b *EventBus) SubscribeState(handler func(ConnectionState)) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.stateSubs[id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.stateSubs, id)
		b.mu.Unlock()
	}
}

// PublishEvent stores the event as the latest and notifies subscribers.
func (b *EventBus) PublishEvent(event wire.JobEvent) {
	b.mu.Lock()
	b.lastEvent = event
	b.hasEvent = true
	handlers := make([]func(wire.JobEvent), 0, len(b.eventSubs))
	for _, handler := range b.eventSubs {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

// PublishState stores the connection state and notifies subscribers.
func (b *EventBus) PublishState(state ConnectionState) {
	b.mu.Lock()
	b.state = state
	handlers := make([]func(ConnectionState), 0, len(b.stateSubs))
	for _, handler := range b.stateSubs {
		handlers = append(handlers, handler)
	}
	b.mu.Unlock()
	for _, handler := range handlers {
		handler(state)
	}
}

// LastEvent returns the most recently published job event, if any.
func (b *EventBus) LastEvent() (wire.JobEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastEvent, b.hasEvent
}

// State returns the current connection state.
func (b *EventBus) State() ConnectionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}
