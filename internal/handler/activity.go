package handler

import (
	"context"
	"fmt"

	"github.com/cassiomorais/taskboard/internal/dispatch"
	"github.com/cassiomorais/taskboard/internal/event"
	"github.com/rs/zerolog"
)

// ActivityHandler turns task lifecycle events into workspace activity log
// lines. It is the built-in consumer of the task streams; external
// integrations register alongside it on the same dispatcher.
type ActivityHandler struct {
	logger zerolog.Logger
}

func NewActivityHandler(logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		logger: logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register binds the handler to every event type it understands.
func (h *ActivityHandler) Register(d *dispatch.Dispatcher) {
	d.Register(event.TaskCreated, dispatch.HandlerFunc(h.onTaskCreated))
	d.Register(event.TaskCompleted, dispatch.HandlerFunc(h.onTaskCompleted))
}

func (h *ActivityHandler) onTaskCreated(ctx context.Context, evt any) (dispatch.Outcome, error) {
	e, ok := evt.(*event.TaskCreatedEvent)
	if !ok {
		return dispatch.DeadLetter, fmt.Errorf("unexpected payload type %T for %s", evt, event.TaskCreated)
	}

	h.logger.Info().
		Str("task_id", e.TaskID.String()).
		Str("workspace_id", e.WorkspaceID.String()).
		Str("list_id", e.ListID.String()).
		Str("created_by", e.CreatedBy).
		Msg("activity: task created")
	return dispatch.Success, nil
}

func (h *ActivityHandler) onTaskCompleted(ctx context.Context, evt any) (dispatch.Outcome, error) {
	e, ok := evt.(*event.TaskCompletedEvent)
	if !ok {
		return dispatch.DeadLetter, fmt.Errorf("unexpected payload type %T for %s", evt, event.TaskCompleted)
	}

	h.logger.Info().
		Str("task_id", e.TaskID.String()).
		Str("workspace_id", e.WorkspaceID.String()).
		Time("completed_at", e.CompletedAt).
		Msg("activity: task completed")
	return dispatch.Success, nil
}
