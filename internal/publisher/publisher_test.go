package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/testutil"
	"github.com/cassiomorais/taskboard/pkg/backoff"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		BatchSize:    10,
		PollInterval: time.Millisecond,
		MaxAttempts:  3,
		Backoff: backoff.Config{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     time.Minute,
		},
	}
}

func newPublisher(
	store outbox.Store,
	bus Bus,
	sink DeadLetterSink,
	topics TopicResolver,
	cfg Config,
) *Publisher {
	return New(store, testutil.NewMockTransactionManager(), bus, sink, topics, cfg, nil, zerolog.Nop())
}

func enqueue(t *testing.T, store *testutil.MockOutboxStore, eventType string) *outbox.Record {
	t.Helper()
	rec, err := store.Enqueue(context.Background(), outbox.Event{
		EventType: eventType,
		Payload:   []byte(`{"k":"v"}`),
	})
	require.NoError(t, err)
	return rec
}

func TestCycle_PublishesAndMarksSent(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()
	sink := testutil.NewMockDeadLetterRepository()
	topics := func(eventType string) string { return "stream-" + eventType }

	rec := enqueue(t, store, "task.created")

	p := newPublisher(store, bus, sink, topics, testConfig())
	require.NoError(t, p.Cycle(context.Background()))

	msgs := bus.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "stream-task.created", msgs[0].Topic)
	assert.Equal(t, "task.created", msgs[0].EventType)

	stored := store.Get(rec.ID)
	assert.Equal(t, outbox.StateSent, stored.State)
	require.NotNil(t, stored.SentAt)
	assert.Zero(t, sink.Count())
}

func TestCycle_EmptyOutboxIsQuiet(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()

	p := newPublisher(store, bus, testutil.NewMockDeadLetterRepository(), nil, testConfig())
	require.NoError(t, p.Cycle(context.Background()))
	assert.Empty(t, bus.Messages())
}

func TestCycle_TransientFailureReschedulesWithBackoff(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()
	bus.PublishFunc = func(ctx context.Context, topic string, payload []byte, eventType, traceID string) error {
		return errors.New("broker unavailable")
	}

	rec := enqueue(t, store, "task.created")

	p := newPublisher(store, bus, testutil.NewMockDeadLetterRepository(), nil, testConfig())
	before := time.Now().UTC()
	require.NoError(t, p.Cycle(context.Background()))

	stored := store.Get(rec.ID)
	assert.Equal(t, outbox.StatePending, stored.State)
	assert.Equal(t, 1, stored.Attempts)
	assert.True(t, stored.AvailableAt.After(before), "next attempt must be in the future")

	// Still backing off: a second cycle must not touch the row.
	require.NoError(t, p.Cycle(context.Background()))
	assert.Equal(t, 1, store.Get(rec.ID).Attempts)
}

func TestCycle_PermanentErrorDeadLettersImmediately(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()
	bus.PublishFunc = func(ctx context.Context, topic string, payload []byte, eventType, traceID string) error {
		return domainErrors.Permanent(errors.New("payload rejected"))
	}
	sink := testutil.NewMockDeadLetterRepository()

	rec := enqueue(t, store, "task.created")

	p := newPublisher(store, bus, sink, nil, testConfig())
	require.NoError(t, p.Cycle(context.Background()))

	stored := store.Get(rec.ID)
	assert.Equal(t, outbox.StateDeadLetter, stored.State)
	assert.Contains(t, stored.LastError, "payload rejected")

	require.Equal(t, 1, sink.Count())
	dls, err := sink.List(context.Background(), deadletter.Filter{}, 10)
	require.NoError(t, err)
	assert.Equal(t, "task.created", dls[0].EventType)
	assert.False(t, dls[0].IsReplayed)
}

func TestCycle_ExhaustedAttemptsDeadLetter(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()
	bus.PublishFunc = func(ctx context.Context, topic string, payload []byte, eventType, traceID string) error {
		return errors.New("broker unavailable")
	}
	sink := testutil.NewMockDeadLetterRepository()

	rec := enqueue(t, store, "task.created")
	cfg := testConfig()
	cfg.MaxAttempts = 3

	// The row has already burned its allowed attempts; the next failure is
	// terminal.
	stored := store.Get(rec.ID)
	stored.Attempts = 3

	p := newPublisher(store, bus, sink, nil, cfg)
	require.NoError(t, p.Cycle(context.Background()))

	assert.Equal(t, outbox.StateDeadLetter, store.Get(rec.ID).State)
	assert.Equal(t, 1, sink.Count())
}

func TestCycle_RoutingKeyOverridesTopicResolver(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()

	_, err := store.Enqueue(context.Background(), outbox.Event{
		EventType:  "task.created",
		Payload:    []byte(`{}`),
		RoutingKey: "priority-stream",
	})
	require.NoError(t, err)

	topics := func(eventType string) string { return "default-stream" }
	p := newPublisher(store, bus, testutil.NewMockDeadLetterRepository(), topics, testConfig())
	require.NoError(t, p.Cycle(context.Background()))

	msgs := bus.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "priority-stream", msgs[0].Topic)
}

func TestCycle_ProcessesOldestFirst(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()

	first := enqueue(t, store, "task.created")
	second := enqueue(t, store, "task.completed")
	store.Get(first.ID).OccurredAt = time.Now().UTC().Add(-time.Hour)
	store.Get(second.ID).OccurredAt = time.Now().UTC().Add(-time.Minute)

	cfg := testConfig()
	cfg.BatchSize = 1

	p := newPublisher(store, bus, testutil.NewMockDeadLetterRepository(), nil, cfg)
	require.NoError(t, p.Cycle(context.Background()))

	msgs := bus.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "task.created", msgs[0].EventType)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := testutil.NewMockOutboxStore()
	bus := testutil.NewMockBus()

	p := newPublisher(store, bus, testutil.NewMockDeadLetterRepository(), nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancellation")
	}
}
