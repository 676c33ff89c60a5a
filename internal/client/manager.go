package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/wire"
)

const (
	// DefaultBaseDelay is the first reconnect delay.
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxDelay caps the exponential reconnect backoff.
	DefaultMaxDelay = 30 * time.Second
)

var (
	errMissingDialer = errors.New("client: dialer is required")
	errMissingBus    = errors.New("client: event bus is required")
)

// Principal is the authenticated user identity borrowed by the Manager for
// the post-connect handshake. The Manager never retains the token it fetches.
type Principal interface {
	UserID() string
	// Token returns a credential for the handshake. forceRefresh demands a
	// fresh token rather than a cached one; the handshake always forces.
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// Transport is one open bidirectional channel. ReadMessage blocks until a
// frame arrives or the transport fails.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports to the channel endpoint. A successful return means
// the transport is open.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// ManagerConfig configures a connection Manager.
type ManagerConfig struct {
	// Endpoint is the channel URL. Empty means the Manager never connects.
	Endpoint string
	Dialer   Dialer
	Bus      *EventBus
	// BaseDelay and MaxDelay tune the reconnect backoff; zero values take
	// the defaults.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Logger    *zap.Logger
}

// Manager owns the single persistent channel for a session. It is an
// explicit reconnect state machine: closed until a principal is supplied,
// then connecting, then open once the transport is up and the auth frame is
// sent. Transport failures schedule a reconnect with exponential backoff;
// clearing the principal tears everything down, including pending timers.
type Manager struct {
	cfg    ManagerConfig
	logger *zap.Logger

	mu         sync.Mutex
	state      ConnectionState
	attempt    int
	timer      *time.Timer
	transport  Transport
	principal  Principal
	generation uint64
	cancelDial context.CancelFunc
}

// NewManager constructs a Manager in the closed state.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errMissingDialer
	}
	if cfg.Bus == nil {
		return nil, errMissingBus
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetPrincipal installs the authenticated principal and starts connecting.
func (m *Manager) SetPrincipal(principal Principal) {
	if principal == nil {
		m.ClearPrincipal()
		return
	}
	m.mu.Lock()
	m.principal = principal
	m.mu.Unlock()
	m.Connect()
}

// ClearPrincipal tears the channel down and prevents reconnects until a
// principal is installed again. Pending reconnect timers and in-flight dials
// are cancelled: teardown always wins that race.
func (m *Manager) ClearPrincipal() {
	m.mu.Lock()
	m.principal = nil
	m.generation++
	m.stopTimerLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	transport := m.transport
	m.transport = nil
	closing := transport != nil && m.setStateLocked(StateClosing)
	m.mu.Unlock()

	if closing {
		m.cfg.Bus.PublishState(StateClosing)
	}
	if transport != nil {
		_ = transport.Close()
	}

	m.mu.Lock()
	closed := m.setStateLocked(StateClosed)
	m.mu.Unlock()
	if closed {
		m.cfg.Bus.PublishState(StateClosed)
	}
}

// Connect opens the channel if it is not already open or opening. It is safe
// to call from any goroutine and never creates a second transport.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.cfg.Endpoint == "" || m.principal == nil {
		m.mu.Unlock()
		return
	}
	if m.state == StateConnecting || m.state == StateOpen {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()
	m.generation++
	generation := m.generation
	principal := m.principal
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	changed := m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	if changed {
		m.cfg.Bus.PublishState(StateConnecting)
	}

	go m.dial(ctx, generation, principal)
}

func (m *Manager) dial(ctx context.Context, generation uint64, principal Principal) {
	transport, err := m.cfg.Dialer.Dial(ctx, m.cfg.Endpoint)
	if err != nil {
		m.logger.Debug("channel dial failed", zap.Error(err))
		m.handleFailure(generation)
		return
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		_ = transport.Close()
		return
	}
	m.transport = transport
	m.attempt = 0
	m.mu.Unlock()

	// The credential must not be stale: force a refresh for every handshake.
	token, err := principal.Token(ctx, true)
	if err != nil {
		m.logger.Warn("credential fetch for handshake failed", zap.Error(err))
		m.failTransport(generation, transport)
		return
	}
	frame, err := wire.NewAuthFrame(token).Encode()
	if err != nil {
		m.failTransport(generation, transport)
		return
	}
	if err := transport.WriteMessage(frame); err != nil {
		m.logger.Debug("auth frame send failed", zap.Error(err))
		m.failTransport(generation, transport)
		return
	}

	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		_ = transport.Close()
		return
	}
	m.cancelDial = nil
	opened := m.setStateLocked(StateOpen)
	m.mu.Unlock()
	if opened {
		m.cfg.Bus.PublishState(StateOpen)
	}
	m.logger.Info("channel open", zap.String("user_id", principal.UserID()))

	m.readLoop(generation, transport)
}

// readLoop consumes inbound frames until the transport fails. Malformed
// frames are dropped without closing the connection.
func (m *Manager) readLoop(generation uint64, transport Transport) {
	for {
		data, err := transport.ReadMessage()
		if err != nil {
			m.logger.Debug("channel closed", zap.Error(err))
			m.handleFailure(generation)
			return
		}
		event, err := wire.DecodeJobEvent(data)
		if err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		m.cfg.Bus.PublishEvent(event)
	}
}

// failTransport closes a transport that never reached the open state and
// schedules a retry.
func (m *Manager) failTransport(generation uint64, transport Transport) {
	_ = transport.Close()
	m.handleFailure(generation)
}

// handleFailure records the loss of the transport and, while a principal is
// still present, schedules the next attempt at min(MaxDelay, 2^attempt*BaseDelay).
func (m *Manager) handleFailure(generation uint64) {
	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		return
	}
	m.transport = nil
	m.cancelDial = nil
	closed := m.setStateLocked(StateClosed)
	if m.principal == nil {
		m.mu.Unlock()
		if closed {
			m.cfg.Bus.PublishState(StateClosed)
		}
		return
	}
	delay := reconnectDelay(m.attempt, m.cfg.BaseDelay, m.cfg.MaxDelay)
	m.attempt++
	m.stopTimerLocked()
	m.timer = time.AfterFunc(delay, m.Connect)
	m.mu.Unlock()
	if closed {
		m.cfg.Bus.PublishState(StateClosed)
	}
	m.logger.Debug("reconnect scheduled", zap.Duration("delay", delay))
}

// setStateLocked records the transition; the caller must publish it to the
// bus after releasing the lock so subscribers observe transitions in order.
func (m *Manager) setStateLocked(state ConnectionState) bool {
	if m.state == state {
		return false
	}
	m.state = state
	return true
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// reconnectDelay implements the capped exponential backoff schedule. The
// sequence for base 2s, cap 30s is 2s, 4s, 8s, 16s, 30s, 30s, ...
func reconnectDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
