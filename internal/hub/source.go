package hub

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/motionforge/renderline/internal/documents"
)

// DefaultSourceRetryDelay spaces out resubscription attempts after a Redis
// failure.
const DefaultSourceRetryDelay = 2 * time.Second

var (
	errMissingRedisClient = errors.New("hub: redis client is required")
	errMissingReconciler  = errors.New("hub: reconciler is required")
	errMissingChannel     = errors.New("hub: redis channel name is required")
)

// SourceConfig configures the worker outcome subscriber.
type SourceConfig struct {
	Client     *redis.Client
	Channel    string
	Reconciler *documents.Reconciler
	Dispatcher *Dispatcher
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Source consumes render worker outcomes from a Redis pub/sub channel,
// reconciles them against document storage, and fans the surviving events out
// to the owning user's channels.
type Source struct {
	client     *redis.Client
	channel    string
	reconciler *documents.Reconciler
	dispatcher *Dispatcher
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewSource constructs a Source.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	if cfg.Channel == "" {
		return nil, errMissingChannel
	}
	if cfg.Reconciler == nil {
		return nil, errMissingReconciler
	}
	if cfg.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultSourceRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		client:     cfg.Client,
		channel:    cfg.Channel,
		reconciler: cfg.Reconciler,
		dispatcher: cfg.Dispatcher,
		retryDelay: retryDelay,
		logger:     logger,
	}, nil
}

// Run consumes outcomes until the context ends, resubscribing with a delay
// whenever the subscription fails.
func (s *Source) Run(ctx context.Context) {
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("job result subscription lost", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Source) consume(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	s.logger.Info("subscribed to job results", zap.String("channel", s.channel))
	for {
		message, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		s.handle(ctx, []byte(message.Payload))
	}
}

func (s *Source) handle(ctx context.Context, payload []byte) {
	outcome, err := documents.DecodeOutcome(payload)
	if err != nil {
		OutcomesDropped.Inc()
		s.logger.Warn("dropping malformed outcome", zap.Error(err))
		return
	}
	event, err := s.reconciler.Reconcile(ctx, outcome)
	if errors.Is(err, documents.ErrStaleOutcome) {
		OutcomesStale.Inc()
		return
	}
	if err != nil {
		s.logger.Error("outcome reconciliation failed",
			zap.String("user_id", outcome.UserID),
			zap.String("source_id", outcome.SourceID),
			zap.Error(err))
		return
	}
	s.dispatcher.Publish(outcome.UserID, event)
}
