package event

import (
	"time"

	"github.com/google/uuid"
)

// Event type names carried on the bus. Topic routing and dead-letter
// stream names derive from these.
const (
	TaskCreated   = "task.created"
	TaskCompleted = "task.completed"
)

type TaskCreatedEvent struct {
	TaskID      uuid.UUID `json:"taskId"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	ListID      uuid.UUID `json:"listId"`
	Title       string    `json:"title"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type TaskCompletedEvent struct {
	TaskID      uuid.UUID `json:"taskId"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	CompletedAt time.Time `json:"completedAt"`
}

// RegisterAll installs decoders for every event type the service emits.
// Called once at startup, before any consumer starts reading.
func RegisterAll(r *Registry) {
	RegisterJSON[TaskCreatedEvent](r, TaskCreated)
	RegisterJSON[TaskCompletedEvent](r, TaskCompleted)
}
