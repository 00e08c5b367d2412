package controller

import (
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	"github.com/cassiomorais/taskboard/internal/domain/task"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string IDs, validation tags).
// Controllers convert these to service layer DTOs before calling business logic.

// CreateTaskRequest holds the input for creating a task.
type CreateTaskRequest struct {
	WorkspaceID string `json:"workspace_id" validate:"required,uuid"`
	ListID      string `json:"list_id" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,max=500"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// ReplayBatchRequest filters which dead letters a batch replay targets.
// All fields are optional; an empty body replays everything up to the
// configured batch limit.
type ReplayBatchRequest struct {
	EventType string     `json:"event_type,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// --- Response DTOs ---

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ListID      string    `json:"list_id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeadLetterResponse represents a dead letter in API responses. The payload
// is returned verbatim so operators can inspect what failed.
type DeadLetterResponse struct {
	ID             string     `json:"id"`
	EventType      string     `json:"event_type"`
	Payload        any        `json:"payload"`
	Reason         string     `json:"reason"`
	OccurredAt     time.Time  `json:"occurred_at"`
	DeadLetteredAt time.Time  `json:"dead_lettered_at"`
	IsReplayed     bool       `json:"is_replayed"`
	ReplayedAt     *time.Time `json:"replayed_at,omitempty"`
	TraceID        string     `json:"trace_id,omitempty"`
}

// DeadLetterListResponse wraps a page of dead letters.
type DeadLetterListResponse struct {
	DeadLetters []*DeadLetterResponse `json:"dead_letters"`
	Count       int                   `json:"count"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromTask converts a domain task to API response.
func FromTask(t *task.Task) *TaskResponse {
	return &TaskResponse{
		ID:          t.ID.String(),
		WorkspaceID: t.WorkspaceID.String(),
		ListID:      t.ListID.String(),
		Title:       t.Title,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// FromDeadLetter converts a dead letter record to API response.
func FromDeadLetter(rec *deadletter.Record) *DeadLetterResponse {
	return &DeadLetterResponse{
		ID:             rec.ID.String(),
		EventType:      rec.EventType,
		Payload:        rec.Payload,
		Reason:         rec.Reason,
		OccurredAt:     rec.OccurredAt,
		DeadLetteredAt: rec.DeadLetteredAt,
		IsReplayed:     rec.IsReplayed,
		ReplayedAt:     rec.ReplayedAt,
		TraceID:        rec.TraceID,
	}
}
