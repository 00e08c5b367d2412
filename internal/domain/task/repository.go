package task

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts a new task (typically inside a transaction).
	Create(ctx context.Context, t *Task) error

	// GetByID loads a task, returning ErrTaskNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)

	// Update persists a task mutation.
	Update(ctx context.Context, t *Task) error
}
