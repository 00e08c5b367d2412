package deadletter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is the durable trace of a terminally failed message. It is created
// once, by either the publisher or the consumer, and afterwards mutated only
// by the replay service. Payload and Reason are forensic: replay never
// touches them.
type Record struct {
	ID             uuid.UUID
	EventType      string
	Payload        json.RawMessage
	Reason         string
	OccurredAt     time.Time
	DeadLetteredAt time.Time
	IsReplayed     bool
	ReplayedAt     *time.Time
	TraceID        string
}

// NewRecord builds a dead-letter record for an event that failed terminally.
func NewRecord(eventType string, payload json.RawMessage, reason string, occurredAt time.Time, traceID string) *Record {
	return &Record{
		ID:             uuid.New(),
		EventType:      eventType,
		Payload:        payload,
		Reason:         reason,
		OccurredAt:     occurredAt,
		DeadLetteredAt: time.Now().UTC(),
		IsReplayed:     false,
		TraceID:        traceID,
	}
}

// Filter narrows batch replay and listing queries.
type Filter struct {
	EventType      string
	Reason         string
	From           *time.Time
	To             *time.Time
	OnlyUnreplayed bool
}
