package hub

import (
	"context"
	"sync"

	"github.com/motionforge/renderline/internal/wire"
)

const subscriberBufferSize = 16

// Dispatcher fans job events out to every live channel a user holds. Sends
// never block: a subscriber that cannot keep up loses events, which is
// acceptable because the client treats the channel as latest-value-only.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
}

type subscriber struct {
	id     int64
	stream chan wire.JobEvent
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
	}
}

// Subscribe registers a stream for one user's events. The stream is closed by
// neither side; cancel the context or call the returned cleanup to detach.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan wire.JobEvent, func()) {
	if userID == "" {
		ch := make(chan wire.JobEvent)
		close(ch)
		return ch, func() {}
	}
	entry := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan wire.JobEvent, subscriberBufferSize),
	}
	d.register(userID, entry)
	cleanup := func() {
		d.unregister(userID, entry.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return entry.stream, cleanup
}

// Publish delivers one event to every live subscriber of the user.
func (d *Dispatcher) Publish(userID string, event wire.JobEvent) {
	if userID == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[userID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, entry := range subscribers {
		copies = append(copies, entry)
	}
	d.mu.RUnlock()
	for _, entry := range copies {
		select {
		case entry.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports how many streams a user currently holds.
func (d *Dispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(userID string, entry *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*subscriber)
	}
	d.subscribers[userID][entry.id] = entry
}

func (d *Dispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
