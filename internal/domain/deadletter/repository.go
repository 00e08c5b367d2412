package deadletter

import (
	"context"

	"github.com/google/uuid"
)

// Repository owns DeadLetterRecord persistence. Publisher and consumer both
// produce records; only the replay service updates them afterwards.
type Repository interface {
	// Save persists a new record.
	Save(ctx context.Context, rec *Record) error

	// GetByID loads a record, returning ErrDeadLetterNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)

	// List returns up to limit records matching the filter, oldest first.
	List(ctx context.Context, filter Filter, limit int) ([]*Record, error)

	// MarkReplayed flips the replay flag and stamps the replay time.
	// IsReplayed is monotone: it never goes back to false.
	MarkReplayed(ctx context.Context, id uuid.UUID) error
}
