package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/observability"
	"github.com/cassiomorais/taskboard/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Bus is the publish side used for re-injection.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte, eventType, traceID string) error
}

// TopicResolver maps an event type to its configured topic.
type TopicResolver func(eventType string) string

// Locker serializes batch replay across API instances.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns a fresh lock for one batch replay run. May be nil,
// in which case batches are not serialized.
type LockFactory func() Locker

// Summary reports the outcome of a batch replay.
type Summary struct {
	Replayed int `json:"replayed"`
	Failed   int `json:"failed"`
}

// Config holds replay throttling knobs.
type Config struct {
	RatePerSec float64
	BatchLimit int
}

// Service re-injects dead-lettered payloads onto the bus. Replay bypasses
// the outbox: it is a direct republish of the original payload, not a new
// transactional enqueue.
type Service struct {
	repo    deadletter.Repository
	bus     Bus
	topics  TopicResolver
	locks   LockFactory
	limiter *rate.Limiter
	cfg     Config
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewService(
	repo deadletter.Repository,
	bus Bus,
	topics TopicResolver,
	locks LockFactory,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if topics == nil {
		topics = func(eventType string) string { return eventType }
	}
	return &Service{
		repo:    repo,
		bus:     bus,
		topics:  topics,
		locks:   locks,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "replay-service").Logger(),
	}
}

// ReplaySingle republishes one dead letter and marks it replayed. Returns
// ErrDeadLetterNotFound when id does not exist.
func (s *Service) ReplaySingle(ctx context.Context, id uuid.UUID) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.replay(ctx, rec)
}

// ReplayBatch replays up to the configured limit of matching records,
// throttled so a burst of replays does not re-trigger the failure storm that
// dead-lettered them. Partial failures do not abort the rest of the batch.
func (s *Service) ReplayBatch(ctx context.Context, filter deadletter.Filter) (Summary, error) {
	if s.locks != nil {
		lock := s.locks()
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("acquire replay lock: %w", err)
		}
		if !acquired {
			return Summary{}, domainErrors.ErrReplayInProgress
		}
		defer lock.Release(ctx)
	}

	recs, err := s.repo.List(ctx, filter, s.cfg.BatchLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("list dead letters: %w", err)
	}

	var summary Summary
	for _, rec := range recs {
		if err := s.limiter.Wait(ctx); err != nil {
			// Shutdown mid-batch: report what was done so far.
			return summary, err
		}

		if err := s.replay(ctx, rec); err != nil {
			summary.Failed++
			s.logger.Error().
				Err(err).
				Stringer("dead_letter_id", rec.ID).
				Str("event_type", rec.EventType).
				Msg("Replay failed")
			continue
		}
		summary.Replayed++
	}

	s.logger.Info().
		Int("replayed", summary.Replayed).
		Int("failed", summary.Failed).
		Msg("Batch replay finished")
	return summary, nil
}

func (s *Service) replay(ctx context.Context, rec *deadletter.Record) error {
	topic := s.topics(rec.EventType)

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		return s.bus.Publish(ctx, topic, rec.Payload, rec.EventType, rec.TraceID)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ReplaysTotal.WithLabelValues("failed").Inc()
		}
		return fmt.Errorf("republish dead letter: %w", err)
	}

	if err := s.repo.MarkReplayed(ctx, rec.ID); err != nil {
		// The payload is back on the bus; an unset flag only risks a second
		// replay, which downstream idempotency already has to absorb.
		s.logger.Warn().Err(err).Stringer("dead_letter_id", rec.ID).Msg("Replayed but failed to mark record")
	}

	if s.metrics != nil {
		s.metrics.ReplaysTotal.WithLabelValues("replayed").Inc()
	}
	s.logger.Info().
		Stringer("dead_letter_id", rec.ID).
		Str("event_type", rec.EventType).
		Str("topic", topic).
		Msg("Dead letter replayed")
	return nil
}
