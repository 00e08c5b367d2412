package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderPlaced(dedupKey string) outbox.Event {
	return outbox.Event{
		EventType: "order.placed",
		Payload:   json.RawMessage(`{"orderId":"o-1"}`),
		DedupKey:  dedupKey,
	}
}

func TestOutboxStore_DedupKeyRejectsSecondEnqueue(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	first, err := store.Enqueue(ctx, orderPlaced("order-o-1-placed"))
	require.NoError(t, err)

	_, err = store.Enqueue(ctx, orderPlaced("order-o-1-placed"))
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateEvent)

	recs := store.All()
	require.Len(t, recs, 1, "the losing enqueue must not leave a row behind")
	assert.Equal(t, first.ID, recs[0].ID)

	// A different key is not a duplicate.
	_, err = store.Enqueue(ctx, orderPlaced("order-o-2-placed"))
	require.NoError(t, err)
	assert.Len(t, store.All(), 2)
}

func TestOutboxStore_EnqueueBatchIsAllOrNothing(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	_, err := store.Enqueue(ctx, orderPlaced("taken"))
	require.NoError(t, err)

	// One conflicting key fails the whole batch.
	_, err = store.EnqueueBatch(ctx, []outbox.Event{
		orderPlaced("fresh-1"),
		orderPlaced("taken"),
	})
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateEvent)
	assert.Len(t, store.All(), 1, "a failed batch must not insert any of its rows")

	// A duplicate inside the batch itself also fails it.
	_, err = store.EnqueueBatch(ctx, []outbox.Event{
		orderPlaced("fresh-1"),
		orderPlaced("fresh-1"),
	})
	assert.ErrorIs(t, err, domainErrors.ErrDuplicateEvent)
	assert.Len(t, store.All(), 1)

	recs, err := store.EnqueueBatch(ctx, []outbox.Event{
		orderPlaced("fresh-1"),
		orderPlaced("fresh-2"),
	})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Len(t, store.All(), 3)
}

func TestOutboxStore_MarkSentIsIdempotent(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	rec, err := store.Enqueue(ctx, orderPlaced(""))
	require.NoError(t, err)

	require.NoError(t, store.MarkSent(ctx, rec.ID))
	got := store.Get(rec.ID)
	require.NotNil(t, got.SentAt)
	firstSentAt := *got.SentAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.MarkSent(ctx, rec.ID))

	got = store.Get(rec.ID)
	assert.Equal(t, outbox.StateSent, got.State)
	assert.Equal(t, firstSentAt, *got.SentAt, "a repeated mark must not move the sent timestamp")
}

func TestOutboxStore_MarkSentLeavesDeadLetteredRowAlone(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	rec, err := store.Enqueue(ctx, orderPlaced(""))
	require.NoError(t, err)

	require.NoError(t, store.MarkDeadLetter(ctx, rec.ID, "broker unreachable"))
	require.NoError(t, store.MarkSent(ctx, rec.ID))

	got := store.Get(rec.ID)
	assert.Equal(t, outbox.StateDeadLetter, got.State)
	assert.Nil(t, got.SentAt)
	assert.Equal(t, "broker unreachable", got.LastError)
}

func TestOutboxStore_ClaimedRowsAreInvisibleToFurtherClaims(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := store.Enqueue(ctx, outbox.Event{
			EventType: "order.placed",
			Payload:   json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	first, err := store.ClaimPending(ctx, 2)
	require.NoError(t, err)
	second, err := store.ClaimPending(ctx, 10)
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	for _, a := range first {
		for _, b := range second {
			assert.NotEqual(t, a.ID, b.ID, "a row must never be claimed twice")
		}
	}

	// Resolving a claim makes the row claimable again only via its state:
	// a rescheduled row that is still available can be picked up anew.
	require.NoError(t, store.Reschedule(ctx, first[0].ID, time.Now().UTC().Add(-time.Second)))
	third, err := store.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, first[0].ID, third[0].ID)
}

func TestOutboxStore_ConcurrentClaimersNeverOverlap(t *testing.T) {
	store := NewMockOutboxStore()
	ctx := context.Background()

	const rows = 40
	for i := 0; i < rows; i++ {
		_, err := store.Enqueue(ctx, outbox.Event{
			EventType: "order.placed",
			Payload:   json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	const claimers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		seen   = make(map[uuid.UUID]int, rows)
		claims = 0
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				recs, err := store.ClaimPending(ctx, 3)
				assert.NoError(t, err)
				if len(recs) == 0 {
					return
				}
				mu.Lock()
				claims += len(recs)
				for _, rec := range recs {
					seen[rec.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, rows, claims, "every row claimed exactly once")
	assert.Len(t, seen, rows)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "row %s claimed %d times", id, n)
	}
}
