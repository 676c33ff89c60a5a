package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/wire"
)

// DefaultDisplayWindow is how long a toast stays in the feed before it
// expires on its own.
const DefaultDisplayWindow = 8 * time.Second

// NotificationRecord is one entry in the transient feed. The id is minted
// locally: the wire protocol carries no server-assigned event identifier, so
// two identical frames intentionally produce two records.
type NotificationRecord struct {
	ID        string
	Event     wire.JobEvent
	Read      bool
	ArrivedAt time.Time
}

// IDProvider issues feed record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// NotificationCenterConfig configures the feed.
type NotificationCenterConfig struct {
	Bus *EventBus
	// DisplayWindow overrides the auto-expiry window; zero takes the default.
	DisplayWindow time.Duration
	IDProvider    IDProvider
	Clock         func() time.Time
	Logger        *zap.Logger
}

// NotificationCenter fans every channel event into a time-bounded,
// most-recent-first feed. The display policy is the toast variant: records
// expire after the display window or on manual dismissal, whichever comes
// first. The unread flag is set on arrival and cleared only when the feed
// is explicitly opened. It never consults document state: a bound document
// and the feed both process the same event on purpose.
type NotificationCenter struct {
	cfg    NotificationCenterConfig
	window time.Duration
	ids    IDProvider
	clock  func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	feed      []NotificationRecord
	hasUnread bool
	timers    map[string]*time.Timer
	closed    bool
	cancelSub func()
}

// NewNotificationCenter subscribes the feed to the bus.
func NewNotificationCenter(cfg NotificationCenterConfig) (*NotificationCenter, error) {
	if cfg.Bus == nil {
		return nil, errMissingBus
	}
	window := cfg.DisplayWindow
	if window <= 0 {
		window = DefaultDisplayWindow
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	center := &NotificationCenter{
		cfg:    cfg,
		window: window,
		ids:    ids,
		clock:  clock,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
	center.cancelSub = cfg.Bus.SubscribeEvents(center.record)
	return center, nil
}

// record mints a local id, prepends the entry, and schedules its expiry.
func (c *NotificationCenter) record(event wire.JobEvent) {
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Error("notification id generation failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	entry := NotificationRecord{
		ID:        id,
		Event:     event,
		ArrivedAt: c.clock(),
	}
	c.feed = append([]NotificationRecord{entry}, c.feed...)
	c.hasUnread = true
	c.timers[id] = time.AfterFunc(c.window, func() {
		c.Dismiss(id)
	})
	c.mu.Unlock()
}

// Records returns the feed, most recent first.
func (c *NotificationCenter) Records() []NotificationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]NotificationRecord, len(c.feed))
	copy(out, c.feed)
	return out
}

// HasUnread reports whether any event arrived since the feed was last opened.
func (c *NotificationCenter) HasUnread() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasUnread
}

// MarkAllRead records that the user opened the feed panel.
func (c *NotificationCenter) MarkAllRead() {
	c.mu.Lock()
	c.hasUnread = false
	for i := range c.feed {
		c.feed[i].Read = true
	}
	c.mu.Unlock()
}

// Dismiss removes one record, whether by user action or expiry.
func (c *NotificationCenter) Dismiss(id string) {
	c.mu.Lock()
	if timer, ok := c.timers[id]; ok {
		timer.Stop()
		delete(c.timers, id)
	}
	for i, entry := range c.feed {
		if entry.ID == id {
			c.feed = append(c.feed[:i], c.feed[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Clear empties the feed.
func (c *NotificationCenter) Clear() {
	c.mu.Lock()
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.feed = nil
	c.mu.Unlock()
}

// Close detaches the feed from the bus and stops pending expiries.
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancelSub
	c.cancelSub = nil
	for id, timer := range c.timers {
		timer.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
