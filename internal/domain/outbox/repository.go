package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persisted outbox queue. Enqueue and EnqueueBatch run on the
// caller's transaction when one is carried in ctx and never commit
// themselves; the caller's commit is what makes the enqueue atomic with the
// business mutation.
type Store interface {
	// Enqueue inserts a pending record. Returns ErrDuplicateEvent when the
	// deduplication key is already in use.
	Enqueue(ctx context.Context, e Event) (*Record, error)

	// EnqueueBatch validates all dedup keys with one query and inserts all
	// rows in one round trip; any duplicate fails the whole batch.
	EnqueueBatch(ctx context.Context, events []Event) ([]*Record, error)

	// ClaimPending selects up to batchSize eligible rows ordered by
	// OccurredAt, locking them so concurrent publishers skip claimed rows.
	ClaimPending(ctx context.Context, batchSize int) ([]*Record, error)

	// MarkSent transitions a row to sent. Idempotent: marking an
	// already-sent row is a no-op.
	MarkSent(ctx context.Context, id uuid.UUID) error

	// MarkDeadLetter terminally fails a row and records the reason.
	MarkDeadLetter(ctx context.Context, id uuid.UUID, reason string) error

	// Reschedule increments the attempt counter and defers the row until
	// nextAvailableAt; the row stays pending.
	Reschedule(ctx context.Context, id uuid.UUID, nextAvailableAt time.Time) error
}
