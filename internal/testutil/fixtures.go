package testutil

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	"github.com/cassiomorais/taskboard/internal/domain/outbox"
	"github.com/cassiomorais/taskboard/internal/domain/task"
	busredis "github.com/cassiomorais/taskboard/internal/infrastructure/redis"
	"github.com/google/uuid"
)

func NewTestOutboxRecord(eventType string, payload any) *outbox.Record {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	now := time.Now().UTC()
	return &outbox.Record{
		ID:          uuid.New(),
		OccurredAt:  now,
		EventType:   eventType,
		Payload:     raw,
		Attempts:    0,
		AvailableAt: now,
		State:       outbox.StatePending,
	}
}

func NewTestDeadLetter(eventType, reason string) *deadletter.Record {
	now := time.Now().UTC()
	return &deadletter.Record{
		ID:             uuid.New(),
		EventType:      eventType,
		Payload:        json.RawMessage(`{"id":"` + uuid.NewString() + `"}`),
		Reason:         reason,
		OccurredAt:     now.Add(-time.Minute),
		DeadLetteredAt: now,
	}
}

func NewTestTask(workspaceID, listID uuid.UUID, title string) *task.Task {
	now := time.Now().UTC()
	return &task.Task{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ListID:      listID,
		Title:       title,
		Status:      task.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func NewTestMessage(id, eventType string, payload any) busredis.Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return busredis.Message{
		ID:        id,
		EventType: eventType,
		Payload:   raw,
	}
}
