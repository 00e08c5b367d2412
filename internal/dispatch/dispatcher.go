package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Handler processes one decoded integration event. A non-nil error counts as
// DeadLetter for that handler regardless of the returned outcome.
type Handler interface {
	Handle(ctx context.Context, evt any) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt any) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, evt any) (Outcome, error) {
	return f(ctx, evt)
}

// Dispatcher fans one consumed message out to every handler registered for
// its event type and aggregates their outcomes. It holds no persisted state;
// the handler table is populated at startup and read-only afterwards.
type Dispatcher struct {
	handlers map[string][]Handler
	logger   zerolog.Logger
}

func New(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register appends handlers to the ordered list for eventType.
func (d *Dispatcher) Register(eventType string, hs ...Handler) {
	if eventType == "" {
		panic("dispatch: empty event type")
	}
	for _, h := range hs {
		if h == nil {
			panic(fmt.Sprintf("dispatch: nil handler for %q", eventType))
		}
	}
	d.handlers[eventType] = append(d.handlers[eventType], hs...)
}

// Dispatch invokes every handler for eventType and returns the aggregate
// decision. Zero registered handlers is a Skip, logged so silently dropped
// event types are visible in operations.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, evt any) Outcome {
	hs := d.handlers[eventType]
	if len(hs) == 0 {
		d.logger.Warn().Str("event_type", eventType).Msg("No handlers registered, skipping")
		return Skip
	}

	outcomes := make([]Outcome, 0, len(hs))
	for i, h := range hs {
		outcome := d.invoke(ctx, eventType, i, h, evt)
		outcomes = append(outcomes, outcome)
	}
	return Aggregate(outcomes)
}

// invoke runs a single handler with panic recovery. A panic or error is that
// handler's failure, not the dispatcher's: it becomes a DeadLetter vote.
func (d *Dispatcher) invoke(ctx context.Context, eventType string, idx int, h Handler, evt any) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("event_type", eventType).
				Int("handler", idx).
				Interface("panic", r).
				Msg("Handler panicked")
			outcome = DeadLetter
		}
	}()

	outcome, err := h.Handle(ctx, evt)
	if err != nil {
		d.logger.Error().
			Err(err).
			Str("event_type", eventType).
			Int("handler", idx).
			Str("outcome", outcome.String()).
			Msg("Handler failed")
		return DeadLetter
	}
	return outcome
}
