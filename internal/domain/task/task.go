package task

import (
	"time"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// Task is the minimal slice of the workspace domain carried here: enough to
// exercise the transactional enqueue path end to end.
type Task struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	ListID      uuid.UUID
	Title       string
	Status      Status
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(workspaceID, listID uuid.UUID, title, createdBy string) (*Task, error) {
	if workspaceID == uuid.Nil {
		return nil, domainErrors.ErrWorkspaceRequired
	}
	if title == "" {
		return nil, domainErrors.ErrInvalidInput
	}

	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ListID:      listID,
		Title:       title,
		Status:      StatusOpen,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Complete transitions the task to completed. Completing an already
// completed task is a no-op.
func (t *Task) Complete() {
	if t.Status == StatusCompleted {
		return
	}
	t.Status = StatusCompleted
	t.UpdatedAt = time.Now().UTC()
}
