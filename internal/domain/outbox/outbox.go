package outbox

import (
	"encoding/json"
	"time"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
	"github.com/google/uuid"
)

// Event is the enqueue input provided by business-logic callers.
type Event struct {
	EventType  string
	Payload    json.RawMessage
	RoutingKey string
	DedupKey   string
	CreatedBy  string
}

// Record is one outbox row awaiting publish. Rows are created inside the
// caller's business transaction, mutated only by the publisher, and never
// deleted.
type Record struct {
	ID          uuid.UUID
	OccurredAt  time.Time
	EventType   string
	Payload     json.RawMessage
	RoutingKey  string
	DedupKey    string
	CreatedBy   string
	Attempts    int
	AvailableAt time.Time
	SentAt      *time.Time
	ProcessedAt *time.Time
	LastError   string
	State       State
}

type State string

const (
	StatePending    State = "pending"
	StateSent       State = "sent"
	StateDeadLetter State = "dead_letter"
)

// NewRecord builds a pending record for the given event. Validation failures
// are permanent: retrying the same input can never succeed.
func NewRecord(e Event) (*Record, error) {
	if e.EventType == "" {
		return nil, domainErrors.ErrEmptyEventType
	}
	if len(e.Payload) == 0 {
		return nil, domainErrors.ErrEmptyPayload
	}

	now := time.Now().UTC()
	return &Record{
		ID:          uuid.New(),
		OccurredAt:  now,
		EventType:   e.EventType,
		Payload:     e.Payload,
		RoutingKey:  e.RoutingKey,
		DedupKey:    e.DedupKey,
		CreatedBy:   e.CreatedBy,
		Attempts:    0,
		AvailableAt: now,
		State:       StatePending,
	}, nil
}

// Topic resolves the wire topic for the record: the routing key when set,
// otherwise the event type.
func (r *Record) Topic() string {
	if r.RoutingKey != "" {
		return r.RoutingKey
	}
	return r.EventType
}

// Eligible reports whether the record may be claimed for publishing.
func (r *Record) Eligible(now time.Time) bool {
	return r.State == StatePending && !r.AvailableAt.After(now)
}
