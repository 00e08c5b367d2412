package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/taskboard/internal/dispatch"
	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	"github.com/cassiomorais/taskboard/internal/event"
	busredis "github.com/cassiomorais/taskboard/internal/infrastructure/redis"
	"github.com/cassiomorais/taskboard/internal/observability"
	"github.com/cassiomorais/taskboard/pkg/backoff"
	"github.com/rs/zerolog"
)

// Stream is the consume side of the message bus: a single subscribed topic
// read through a consumer group. Ack is the offset commit.
type Stream interface {
	Stream() string
	Read(ctx context.Context) ([]busredis.Message, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]busredis.Message, error)
}

// Dispatcher fans a decoded event out to its handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, evt any) dispatch.Outcome
}

// DeadLetterSink persists terminally failed messages.
type DeadLetterSink interface {
	Save(ctx context.Context, rec *deadletter.Record) error
}

// DeadLetterMirror forwards dead letters to the {eventType}-dlq topic for
// operational visibility. The database record stays authoritative; the
// mirror is best-effort and may be nil.
type DeadLetterMirror interface {
	PublishDeadLetter(ctx context.Context, eventType string, payload []byte, reason, traceID string) error
}

// Config holds the consumer's retry budget, backoff shape and the cadence
// of the stale-entry recovery sweep.
type Config struct {
	MaxRetries int
	Backoff    backoff.Config

	// ReclaimInterval is how often the consumer sweeps the group's pending
	// entries list for messages another instance read but never acked.
	// ReclaimMinIdle is how long an entry must sit unacked before the sweep
	// takes it over; it must comfortably exceed the worst-case retry backoff,
	// or a sweep could steal a message another instance is still retrying.
	ReclaimInterval time.Duration
	ReclaimMinIdle  time.Duration
}

// Consumer pulls messages from one stream and drives each to a terminal
// outcome before acknowledging. Messages are processed strictly one at a
// time: a retry sleep stalls everything behind it on this stream, which is
// what preserves per-partition ordering.
type Consumer struct {
	stream      Stream
	registry    *event.Registry
	dispatcher  Dispatcher
	deadLetters DeadLetterSink
	mirror      DeadLetterMirror
	cfg         Config
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

func New(
	stream Stream,
	registry *event.Registry,
	dispatcher Dispatcher,
	deadLetters DeadLetterSink,
	mirror DeadLetterMirror,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Consumer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = 30 * time.Second
	}
	if cfg.ReclaimMinIdle <= 0 {
		cfg.ReclaimMinIdle = time.Minute
	}
	return &Consumer{
		stream:      stream,
		registry:    registry,
		dispatcher:  dispatcher,
		deadLetters: deadLetters,
		mirror:      mirror,
		cfg:         cfg,
		metrics:     metrics,
		logger: logger.With().
			Str("component", "bus-consumer").
			Str("stream", stream.Stream()).
			Logger(),
	}
}

// Run consumes until ctx is cancelled. Cancellation is observed between
// messages, never between a terminal decision and its ack. The first loop
// iteration runs a recovery sweep, so entries orphaned by a previous
// incarnation of this consumer are drained before new ones.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Int("max_retries", c.cfg.MaxRetries).Msg("Consumer started")

	var nextReclaim time.Time
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Consumer stopped")
			return nil
		default:
		}

		if !time.Now().Before(nextReclaim) {
			c.reclaim(ctx)
			nextReclaim = time.Now().Add(c.cfg.ReclaimInterval)
		}

		msgs, err := c.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error().Err(err).Msg("Failed to read from stream")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
}

// reclaim takes over entries a consumer read but never acked and drives
// them through the normal processing path. Without this sweep a message
// orphaned by a crash would sit in the pending entries list forever:
// group reads only return never-delivered entries.
func (c *Consumer) reclaim(ctx context.Context) {
	msgs, err := c.stream.ClaimStale(ctx, c.cfg.ReclaimMinIdle)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("Failed to claim stale messages")
		}
		return
	}
	if len(msgs) == 0 {
		return
	}

	c.logger.Info().Int("count", len(msgs)).Msg("Reclaimed unacked messages")
	if c.metrics != nil {
		c.metrics.ConsumerReclaims.WithLabelValues(c.stream.Stream()).Add(float64(len(msgs)))
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
}

// process drives one message to a terminal outcome and commits it. Failing
// to ack a dead-lettered message would redeliver it forever, so the ack
// always follows the terminal decision, even when persisting the dead
// letter failed.
func (c *Consumer) process(ctx context.Context, msg busredis.Message) {
	logger := c.logger.With().
		Str("message_id", msg.ID).
		Str("event_type", msg.EventType).
		Logger()
	start := time.Now()

	outcome, reason, aborted := c.decide(ctx, msg, logger)
	if aborted {
		// Shutdown mid-retry: leave the message unacked so a live
		// instance's recovery sweep takes it over.
		logger.Info().Msg("Shutdown during retry, message left for redelivery")
		return
	}

	if outcome == dispatch.DeadLetter {
		c.deadLetter(ctx, msg, reason, logger)
	}

	if err := c.stream.Ack(ctx, msg.ID); err != nil {
		// The bus will redeliver; handlers must tolerate the duplicate.
		logger.Error().Err(err).Msg("Failed to ack message")
	}

	if c.metrics != nil {
		c.metrics.ConsumerOutcomes.WithLabelValues(c.stream.Stream(), outcome.String()).Inc()
		c.metrics.ConsumerProcessingDuration.WithLabelValues(c.stream.Stream()).Observe(time.Since(start).Seconds())
	}
	logger.Debug().Str("outcome", outcome.String()).Msg("Message processed")
}

// decide resolves, decodes and dispatches the message, returning the
// terminal outcome and, for dead letters, the reason. The aborted flag is
// set when shutdown interrupted the retry loop before a terminal decision.
func (c *Consumer) decide(ctx context.Context, msg busredis.Message, logger zerolog.Logger) (outcome dispatch.Outcome, reason string, aborted bool) {
	if msg.EventType == "" {
		logger.Error().Msg("Message has no event type header")
		return dispatch.DeadLetter, "missing eventType header", false
	}

	evt, err := c.registry.Decode(msg.EventType, msg.Payload)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve message")
		return dispatch.DeadLetter, err.Error(), false
	}

	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		outcome := c.dispatcher.Dispatch(ctx, msg.EventType, evt)
		if outcome.Terminal() {
			if outcome == dispatch.DeadLetter {
				return outcome, fmt.Sprintf("handlers dead-lettered on attempt %d", attempt), false
			}
			return outcome, "", false
		}

		if attempt > c.cfg.MaxRetries {
			// Retry on the final attempt converts to DeadLetter.
			return dispatch.DeadLetter, fmt.Sprintf("handlers still retrying after %d attempts", attempt), false
		}

		delay := c.cfg.Backoff.Delay(attempt)
		logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Handlers requested retry")
		if c.metrics != nil {
			c.metrics.ConsumerRetries.WithLabelValues(c.stream.Stream()).Inc()
		}

		// This sleep intentionally stalls the stream: ordering over
		// throughput.
		select {
		case <-ctx.Done():
			return dispatch.Retry, "", true
		case <-time.After(delay):
		}
	}

	return dispatch.DeadLetter, "retry budget exhausted", false
}

func (c *Consumer) deadLetter(ctx context.Context, msg busredis.Message, reason string, logger zerolog.Logger) {
	rec := deadletter.NewRecord(msg.EventType, msg.Payload, reason, time.Now().UTC(), msg.TraceID)
	if err := c.deadLetters.Save(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("Failed to persist dead letter")
	}

	if c.mirror != nil && msg.EventType != "" {
		if err := c.mirror.PublishDeadLetter(ctx, msg.EventType, msg.Payload, reason, msg.TraceID); err != nil {
			logger.Warn().Err(err).Msg("Failed to mirror dead letter to dlq topic")
		}
	}
}
