package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/observability"
	"github.com/cassiomorais/taskboard/pkg/backoff"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
)

// Bus is the publish side of the message bus.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte, eventType, traceID string) error
}

// DeadLetterSink persists terminally failed messages.
type DeadLetterSink interface {
	Save(ctx context.Context, rec *deadletter.Record) error
}

// TxManager runs a function inside a database transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TopicResolver maps an event type to its configured topic.
type TopicResolver func(eventType string) string

// Config holds the publisher's operational knobs.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	Backoff      backoff.Config
}

// Publisher is the background loop that moves claimed outbox rows onto the
// bus. Several instances may run concurrently: skip-locked claiming
// partitions the pending set between them.
type Publisher struct {
	store       outbox.Store
	tx          TxManager
	bus         Bus
	deadLetters DeadLetterSink
	topics      TopicResolver
	cfg         Config
	breaker     *gobreaker.CircuitBreaker[struct{}]
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func New(
	store outbox.Store,
	tx TxManager,
	bus Bus,
	deadLetters DeadLetterSink,
	topics TopicResolver,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if topics == nil {
		topics = func(eventType string) string { return eventType }
	}

	p := &Publisher{
		store:       store,
		tx:          tx,
		bus:         bus,
		deadLetters: deadLetters,
		topics:      topics,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger.With().Str("component", "outbox-publisher").Logger(),
	}

	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name: "bus-publish",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Publish breaker state changed")
			if p.metrics != nil {
				p.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return p
}

// Run polls the outbox until ctx is cancelled. Cancellation is observed
// between cycles only, never mid-claim, so no row is left claimed but
// unresolved past the lock lifetime.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info().
		Int("batch_size", p.cfg.BatchSize).
		Dur("poll_interval", p.cfg.PollInterval).
		Msg("Outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Outbox publisher stopped")
			return nil
		case <-ticker.C:
		}

		if err := p.Cycle(ctx); err != nil {
			p.logger.Error().Err(err).Msg("Outbox polling cycle failed")
		}
	}
}

// Cycle runs one polling pass: claim a batch under row locks and resolve
// every claimed row before committing. A crash mid-batch rolls the marks
// back and releases the locks, leaving the rows pending for the next claim.
func (p *Publisher) Cycle(ctx context.Context) error {
	return p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		recs, err := p.store.ClaimPending(txCtx, p.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("claim pending: %w", err)
		}
		if p.metrics != nil {
			p.metrics.OutboxClaimed.Add(float64(len(recs)))
		}

		for _, rec := range recs {
			// Bus I/O deliberately runs on the outer ctx: the row lock is
			// transactional, the publish is not.
			p.process(ctx, txCtx, rec)
		}
		return nil
	})
}

func (p *Publisher) process(ctx, txCtx context.Context, rec *outbox.Record) {
	logger := p.logger.With().
		Stringer("outbox_id", rec.ID).
		Str("event_type", rec.EventType).
		Int("attempts", rec.Attempts).
		Logger()

	topic := p.resolveTopic(rec)
	start := time.Now()
	err := p.publish(ctx, topic, rec)
	if p.metrics != nil {
		p.metrics.OutboxPublishLatency.WithLabelValues(rec.EventType).Observe(time.Since(start).Seconds())
	}

	switch {
	case err == nil:
		if mErr := p.store.MarkSent(txCtx, rec.ID); mErr != nil {
			logger.Error().Err(mErr).Msg("Failed to mark outbox row sent")
			return
		}
		if p.metrics != nil {
			p.metrics.OutboxPublished.WithLabelValues(rec.EventType).Inc()
		}
		logger.Debug().Str("topic", topic).Msg("Outbox row published")

	case domainErrors.IsPermanent(err) || rec.Attempts >= p.cfg.MaxAttempts:
		p.deadLetter(txCtx, rec, err)
		if p.metrics != nil {
			p.metrics.OutboxDeadLettered.WithLabelValues(rec.EventType).Inc()
		}
		logger.Error().Err(err).Msg("Outbox row dead-lettered")

	default:
		delay := p.cfg.Backoff.Delay(rec.Attempts + 1)
		next := time.Now().UTC().Add(delay)
		if rErr := p.store.Reschedule(txCtx, rec.ID, next); rErr != nil {
			logger.Error().Err(rErr).Msg("Failed to reschedule outbox row")
			return
		}
		if p.metrics != nil {
			p.metrics.OutboxRescheduled.WithLabelValues(rec.EventType).Inc()
		}
		logger.Warn().Err(err).Dur("delay", delay).Msg("Publish failed, rescheduled")
	}
}

func (p *Publisher) publish(ctx context.Context, topic string, rec *outbox.Record) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.bus.Publish(ctx, topic, rec.Payload, rec.EventType, traceIDFrom(ctx))
	})
	return err
}

func (p *Publisher) deadLetter(txCtx context.Context, rec *outbox.Record, cause error) {
	reason := fmt.Sprintf("publish failed after %d attempts: %v", rec.Attempts+1, cause)
	if err := p.store.MarkDeadLetter(txCtx, rec.ID, reason); err != nil {
		p.logger.Error().Err(err).Stringer("outbox_id", rec.ID).Msg("Failed to mark outbox row dead-lettered")
		return
	}

	dl := deadletter.NewRecord(rec.EventType, rec.Payload, reason, rec.OccurredAt, traceIDFrom(txCtx))
	if err := p.deadLetters.Save(txCtx, dl); err != nil {
		p.logger.Error().Err(err).Stringer("outbox_id", rec.ID).Msg("Failed to save dead letter record")
	}
}

func (p *Publisher) resolveTopic(rec *outbox.Record) string {
	if rec.RoutingKey != "" {
		return rec.RoutingKey
	}
	return p.topics(rec.EventType)
}

func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
