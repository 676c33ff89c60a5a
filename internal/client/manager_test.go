package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/motionforge/renderline/internal/wire"
)

type fakeTransport struct {
	mu      sync.Mutex
	inbound chan []byte
	writes  [][]byte
	done    chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.inbound:
		return data, nil
	case <-t.done:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}
	t.mu.Lock()
	t.writes = append(t.writes, append([]byte(nil), data...))
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *fakeTransport) closedSignal() <-chan struct{} {
	return t.done
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	transports []*fakeTransport
	fail       bool
	opened     chan *fakeTransport
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{opened: make(chan *fakeTransport, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	d.dials++
	if d.fail {
		d.mu.Unlock()
		return nil, errors.New("dial refused")
	}
	transport := newFakeTransport()
	d.transports = append(d.transports, transport)
	d.mu.Unlock()
	d.opened <- transport
	return transport, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *fakeDialer) waitForTransport(t *testing.T) *fakeTransport {
	t.Helper()
	select {
	case transport := <-d.opened:
		return transport
	case <-time.After(2 * time.Second):
		t.Fatal("expected a transport to open within deadline")
		return nil
	}
}

type countingPrincipal struct {
	mu      sync.Mutex
	fetches int
	forced  int
	err     error
}

func (p *countingPrincipal) UserID() string { return "user-1" }

func (p *countingPrincipal) Token(_ context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if forceRefresh {
		p.forced++
	}
	if p.err != nil {
		return "", p.err
	}
	return "fresh-token", nil
}

func newTestManagerWith(t *testing.T, dialer Dialer, bus *EventBus) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{
		Endpoint:  "ws://hub.test/ws",
		Dialer:    dialer,
		Bus:       bus,
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return manager
}

func waitForState(t *testing.T, manager *Manager, want ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if manager.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected state %s within deadline, got %s", want, manager.State())
}

func TestReconnectDelaySchedule(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second
	expected := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, want := range expected {
		if got := reconnectDelay(attempt, base, max); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestConnectSendsFreshCredentialAuthFrame(t *testing.T) {
	dialer := newFakeDialer()
	bus := NewEventBus()
	manager := newTestManagerWith(t, dialer, bus)
	principal := &countingPrincipal{}

	manager.SetPrincipal(principal)
	transport := dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)

	frames := transport.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("expected exactly one outbound frame, got %d", len(frames))
	}
	frame, err := wire.DecodeAuthFrame(frames[0])
	if err != nil {
		t.Fatalf("unexpected auth frame decode error: %v", err)
	}
	if frame.Token != "fresh-token" {
		t.Fatalf("unexpected token %q", frame.Token)
	}
	principal.mu.Lock()
	forced := principal.forced
	principal.mu.Unlock()
	if forced != 1 {
		t.Fatalf("expected one forced credential refresh, got %d", forced)
	}

	manager.ClearPrincipal()
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	dialer := newFakeDialer()
	manager := newTestManagerWith(t, dialer, NewEventBus())

	manager.SetPrincipal(&countingPrincipal{})
	dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)

	manager.Connect()
	manager.Connect()
	time.Sleep(20 * time.Millisecond)

	if got := dialer.dialCount(); got != 1 {
		t.Fatalf("expected a single transport, got %d dials", got)
	}

	manager.ClearPrincipal()
}

func TestReconnectAfterTransportLoss(t *testing.T) {
	dialer := newFakeDialer()
	manager := newTestManagerWith(t, dialer, NewEventBus())

	manager.SetPrincipal(&countingPrincipal{})
	first := dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)

	_ = first.Close()

	second := dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)
	if second == first {
		t.Fatal("expected a new transport after loss")
	}

	manager.ClearPrincipal()
}

func TestTeardownCancelsPendingReconnect(t *testing.T) {
	dialer := newFakeDialer()
	dialer.setFail(true)
	manager := newTestManagerWith(t, dialer, NewEventBus())

	manager.SetPrincipal(&countingPrincipal{})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && dialer.dialCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if dialer.dialCount() == 0 {
		t.Fatal("expected at least one dial attempt")
	}

	manager.ClearPrincipal()
	settled := dialer.dialCount()
	time.Sleep(100 * time.Millisecond)
	if got := dialer.dialCount(); got != settled {
		t.Fatalf("reconnect fired after teardown: %d -> %d dials", settled, got)
	}
	if manager.State() != StateClosed {
		t.Fatalf("expected closed state after teardown, got %s", manager.State())
	}
}

func TestSuccessfulOpenResetsBackoffAttempts(t *testing.T) {
	dialer := newFakeDialer()
	dialer.setFail(true)
	manager := newTestManagerWith(t, dialer, NewEventBus())

	manager.SetPrincipal(&countingPrincipal{})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && dialer.dialCount() < 3 {
		time.Sleep(time.Millisecond)
	}
	if dialer.dialCount() < 3 {
		t.Fatal("expected repeated dial attempts under failure")
	}

	dialer.setFail(false)
	dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)

	manager.mu.Lock()
	attempt := manager.attempt
	manager.mu.Unlock()
	if attempt != 0 {
		t.Fatalf("expected attempt counter reset on open, got %d", attempt)
	}

	manager.ClearPrincipal()
}

func TestCredentialFailureClosesTransportAndRetries(t *testing.T) {
	dialer := newFakeDialer()
	manager := newTestManagerWith(t, dialer, NewEventBus())
	principal := &countingPrincipal{err: errors.New("token service down")}

	manager.SetPrincipal(principal)
	first := dialer.waitForTransport(t)

	select {
	case <-first.closedSignal():
	case <-time.After(2 * time.Second):
		t.Fatal("expected transport to close after credential failure")
	}
	if frames := first.sentFrames(); len(frames) != 0 {
		t.Fatalf("no frame may be sent on an unauthenticated channel, got %d", len(frames))
	}

	// The retry must re-attempt the credential fetch, not reuse a stale one.
	dialer.waitForTransport(t)
	principal.mu.Lock()
	fetches := principal.fetches
	principal.mu.Unlock()
	if fetches < 2 {
		t.Fatalf("expected a fresh credential fetch per attempt, got %d", fetches)
	}

	manager.ClearPrincipal()
}

func TestMalformedFramesAreDroppedWithoutClosing(t *testing.T) {
	dialer := newFakeDialer()
	bus := NewEventBus()
	manager := newTestManagerWith(t, dialer, bus)

	received := make(chan wire.JobEvent, 4)
	bus.SubscribeEvents(func(event wire.JobEvent) { received <- event })

	manager.SetPrincipal(&countingPrincipal{})
	transport := dialer.waitForTransport(t)
	waitForState(t, manager, StateOpen)

	transport.inbound <- []byte(`not json at all`)
	transport.inbound <- []byte(`{"message":"done","video_url":"https://x/a.mp4","source_id":"c1","source_type":"canvas","status":"success"}`)

	select {
	case event := <-received:
		if event.SourceID != "c1" {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the valid frame to reach the bus")
	}
	if manager.State() != StateOpen {
		t.Fatalf("malformed frame must not close the channel, state %s", manager.State())
	}

	manager.ClearPrincipal()
}

func TestMissingEndpointNeverConnects(t *testing.T) {
	dialer := newFakeDialer()
	manager, err := NewManager(ManagerConfig{Endpoint: "", Dialer: dialer, Bus: NewEventBus()})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	manager.SetPrincipal(&countingPrincipal{})
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dialCount(); got != 0 {
		t.Fatalf("expected no dials without an endpoint, got %d", got)
	}
}
