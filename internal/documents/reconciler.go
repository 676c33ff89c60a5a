package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/wire"
)

const (
	successMessage = "video render complete"
	failureMessage = "video render failed"
)

var (
	// ErrStaleOutcome indicates the document was re-rendered after this job
	// was requested; the outcome must not be delivered.
	ErrStaleOutcome = errors.New("documents: stale outcome")
	// ErrMalformedOutcome indicates a worker payload that cannot be decoded.
	ErrMalformedOutcome = errors.New("documents: malformed outcome")
	errMissingUserID    = errors.New("documents: user id required")
	errMissingVideoURL  = errors.New("documents: successful outcome requires a video url")
	errMissingStore     = errors.New("documents: store is required")
)

// Outcome is the render-worker payload published on the job results channel.
// RequestTimestamp is unix seconds at submission time and drives staleness.
type Outcome struct {
	UserID           string          `json:"user_id"`
	SourceID         string          `json:"source_id"`
	SourceType       wire.SourceType `json:"source_type"`
	Status           wire.JobStatus  `json:"status"`
	VideoURL         string          `json:"video_url,omitempty"`
	RequestTimestamp float64         `json:"request_timestamp"`
	Error            string          `json:"error,omitempty"`
}

// Validate checks the fields every outcome must carry.
func (o Outcome) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errMissingUserID
	}
	if strings.TrimSpace(o.SourceID) == "" {
		return wire.ErrMissingSourceID
	}
	switch o.SourceType {
	case wire.SourceTypeCanvas, wire.SourceTypePrompt:
	default:
		return fmt.Errorf("%w: %q", wire.ErrUnknownSourceType, o.SourceType)
	}
	switch o.Status {
	case wire.JobStatusSuccess:
		if strings.TrimSpace(o.VideoURL) == "" {
			return errMissingVideoURL
		}
	case wire.JobStatusFailure:
	default:
		return fmt.Errorf("%w: %q", wire.ErrUnknownStatus, o.Status)
	}
	return nil
}

// RequestedAt converts the submission timestamp to a time.Time.
func (o Outcome) RequestedAt() time.Time {
	seconds, fraction := math.Modf(o.RequestTimestamp)
	return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC()
}

// DecodeOutcome parses and validates one worker payload.
func DecodeOutcome(data []byte) (Outcome, error) {
	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedOutcome, err)
	}
	if err := outcome.Validate(); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// ReconcilerConfig configures an outcome Reconciler.
type ReconcilerConfig struct {
	Store  *Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Reconciler checks worker outcomes against stored document state before
// fan-out. An outcome older than the document's latest render is stale and
// dropped; a successful outcome updates the stored video url.
type Reconciler struct {
	store  *Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: cfg.Store, clock: clock, logger: logger}, nil
}

// Reconcile validates one outcome against storage and returns the event to
// deliver. ErrStaleOutcome means the outcome was superseded and nothing may
// be sent.
func (r *Reconciler) Reconcile(ctx context.Context, outcome Outcome) (wire.JobEvent, error) {
	if err := outcome.Validate(); err != nil {
		return wire.JobEvent{}, err
	}

	record, err := r.store.Lookup(ctx, outcome.SourceType, outcome.UserID, outcome.SourceID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return wire.JobEvent{}, err
	}
	if err == nil && !record.LatestRenderAt.IsZero() && record.LatestRenderAt.After(outcome.RequestedAt()) {
		r.logger.Debug("dropping superseded outcome",
			zap.String("user_id", outcome.UserID),
			zap.String("source_id", outcome.SourceID),
			zap.Time("latest_render_at", record.LatestRenderAt),
			zap.Time("requested_at", outcome.RequestedAt()))
		return wire.JobEvent{}, ErrStaleOutcome
	}

	if outcome.Status == wire.JobStatusFailure {
		return wire.JobEvent{
			Message:    failureMessage,
			SourceID:   outcome.SourceID,
			SourceType: outcome.SourceType,
			Status:     wire.JobStatusFailure,
			Detail:     outcome.Error,
		}, nil
	}

	if err := r.store.RecordRender(ctx, outcome.SourceType, outcome.UserID, outcome.SourceID, outcome.VideoURL, r.clock()); err != nil {
		return wire.JobEvent{}, err
	}
	return wire.JobEvent{
		Message:    successMessage,
		VideoURL:   outcome.VideoURL,
		SourceID:   outcome.SourceID,
		SourceType: outcome.SourceType,
		Status:     wire.JobStatusSuccess,
	}, nil
}
