package replay

import (
	"context"

	"github.com/cassiomorais/taskboard/internal/domain/deadletter"
	"github.com/rs/zerolog"
)

// Mirror forwards a dead letter to its {eventType}-dlq topic.
type Mirror interface {
	PublishDeadLetter(ctx context.Context, eventType string, payload []byte, reason, traceID string) error
}

// Recorder is the dead-letter write path shared by publisher and consumer:
// the database record is authoritative, the topic mirror is best-effort
// visibility for operations tooling.
type Recorder struct {
	repo   deadletter.Repository
	mirror Mirror
	logger zerolog.Logger
}

func NewRecorder(repo deadletter.Repository, mirror Mirror, logger zerolog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		mirror: mirror,
		logger: logger.With().Str("component", "dead-letter-recorder").Logger(),
	}
}

// Save persists the record and mirrors it. A mirror failure is logged, not
// returned: losing the ops copy must not fail the pipeline's terminal path.
func (r *Recorder) Save(ctx context.Context, rec *deadletter.Record) error {
	if err := r.repo.Save(ctx, rec); err != nil {
		return err
	}

	if r.mirror != nil && rec.EventType != "" {
		if err := r.mirror.PublishDeadLetter(ctx, rec.EventType, rec.Payload, rec.Reason, rec.TraceID); err != nil {
			r.logger.Warn().
				Err(err).
				Stringer("dead_letter_id", rec.ID).
				Str("event_type", rec.EventType).
				Msg("Failed to mirror dead letter to dlq topic")
		}
	}
	return nil
}
