package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/wire"
)

// staleVideoAfter is the domain policy for rendered artifacts: after 48
// hours a cached video URL must not be played.
const staleVideoAfter = 48 * time.Hour

const defaultFailureMessage = "job failed"

var (
	// ErrSubmissionDisabled indicates the daily quota for the binder's
	// counter is exhausted.
	ErrSubmissionDisabled = errors.New("client: daily quota exhausted")

	errMissingSourceID  = errors.New("client: source id is required")
	errMissingSubmitter = errors.New("client: submitter is required")
	errMissingQuota     = errors.New("client: quota tracker is required")
)

// DocumentJobState is the per-view render/job state a binder maintains.
type DocumentJobState struct {
	VideoURL       string
	LatestRenderAt time.Time
	JobInFlight    bool
	LastError      string
}

// Submitter is the external REST boundary that accepts job submissions. The
// response reports acceptance only; completion arrives later on the channel.
type Submitter interface {
	Submit(ctx context.Context, sourceID string, sourceType wire.SourceType) error
}

// BinderConfig configures a DocumentBinder.
type BinderConfig struct {
	SourceID   string
	SourceType wire.SourceType
	// Counter selects which quota counter submissions consume; defaults to
	// the render counter.
	Counter   QuotaCounter
	Bus       *EventBus
	Quota     *QuotaTracker
	Submitter Submitter
	// Initial seeds the state from the page-load payload.
	Initial DocumentJobState
	Clock   func() time.Time
	Logger  *zap.Logger
}

// DocumentBinder applies channel events to one open canvas or prompt view.
// It filters the bus by document identity, tracks the local job-in-flight
// flag, and owns a cancellation token: once closed, no pending callback may
// mutate its state, while jobs already running server-side keep going and
// surface only through the notification feed.
type DocumentBinder struct {
	cfg    BinderConfig
	clock  func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	state     DocumentJobState
	closed    bool
	cancelSub func()
}

// NewDocumentBinder validates the configuration and subscribes to the bus.
func NewDocumentBinder(cfg BinderConfig) (*DocumentBinder, error) {
	if strings.TrimSpace(cfg.SourceID) == "" {
		return nil, errMissingSourceID
	}
	if cfg.Bus == nil {
		return nil, errMissingBus
	}
	if cfg.Quota == nil {
		return nil, errMissingQuota
	}
	if cfg.Submitter == nil {
		return nil, errMissingSubmitter
	}
	if cfg.Counter == "" {
		cfg.Counter = CounterRender
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	binder := &DocumentBinder{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		state:  cfg.Initial,
	}
	binder.cancelSub = cfg.Bus.SubscribeEvents(binder.apply)
	return binder, nil
}

// Close invalidates the binder's cancellation token and detaches it from the
// bus. A job already in flight server-side is not cancelled; its eventual
// event is simply not applied here.
func (b *DocumentBinder) Close() {
	b.mu.Lock()
	b.closed = true
	cancel := b.cancelSub
	b.cancelSub = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns a copy of the current document job state.
func (b *DocumentBinder) State() DocumentJobState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// apply handles one bus event. Events for other documents are ignored; a
// terminal event may arrive while JobInFlight is still false (the completion
// can beat the submission response) and is applied regardless.
func (b *DocumentBinder) apply(event wire.JobEvent) {
	if event.SourceID != b.cfg.SourceID {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.state.JobInFlight = false
	if event.Failed() {
		detail := event.Detail
		if strings.TrimSpace(detail) == "" {
			detail = defaultFailureMessage
		}
		b.state.LastError = detail
		return
	}
	b.state.VideoURL = event.VideoURL
	b.state.LatestRenderAt = b.clock()
	b.state.LastError = ""
}

// Submit sends the document to the external job endpoint. On acceptance it
// sets the in-flight flag and optimistically bumps the quota counter; on
// rejection it surfaces the error and leaves both untouched.
func (b *DocumentBinder) Submit(ctx context.Context) error {
	if b.SubmissionDisabled() {
		return ErrSubmissionDisabled
	}
	if err := b.cfg.Submitter.Submit(ctx, b.cfg.SourceID, b.cfg.SourceType); err != nil {
		b.logger.Debug("job submission rejected",
			zap.String("source_id", b.cfg.SourceID),
			zap.Error(err))
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.state.JobInFlight = true
	b.state.LastError = ""
	b.mu.Unlock()

	b.cfg.Quota.Increment(b.cfg.Counter)
	return nil
}

// ClearError dismisses the surfaced job failure.
func (b *DocumentBinder) ClearError() {
	b.mu.Lock()
	if !b.closed {
		b.state.LastError = ""
	}
	b.mu.Unlock()
}

// VideoExpired reports whether the cached render is older than the 48 hour
// display policy and must not be played.
func (b *DocumentBinder) VideoExpired() bool {
	b.mu.Lock()
	latest := b.state.LatestRenderAt
	b.mu.Unlock()
	if latest.IsZero() {
		return false
	}
	return b.clock().Sub(latest) > staleVideoAfter
}

// SubmissionDisabled reports whether today's quota for the binder's counter
// is exhausted. Counters dated before today never disable submission.
func (b *DocumentBinder) SubmissionDisabled() bool {
	snapshot := b.cfg.Quota.Snapshot()
	return snapshot.Exhausted(b.cfg.Counter, CivilDate(b.clock()))
}
