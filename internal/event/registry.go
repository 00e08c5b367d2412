package event

import (
	"encoding/json"
	"fmt"

	domainErrors "github.com/cassiomorais/taskboard/internal/domain/errors"
)

// Decoder turns a raw payload into the concrete event value for one public
// event type.
type Decoder func(payload []byte) (any, error)

// Registry maps public event names to decoders. It is populated by explicit
// Register calls during startup and read-only afterwards; there is no
// per-message type inspection.
type Registry struct {
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register binds a decoder to an event type. Registering the same type twice
// is a programming error and panics at startup rather than silently
// shadowing the first decoder.
func (r *Registry) Register(eventType string, dec Decoder) {
	if eventType == "" {
		panic("event: empty event type")
	}
	if dec == nil {
		panic(fmt.Sprintf("event: nil decoder for %q", eventType))
	}
	if _, exists := r.decoders[eventType]; exists {
		panic(fmt.Sprintf("event: decoder for %q already registered", eventType))
	}
	r.decoders[eventType] = dec
}

// RegisterJSON binds a decoder that unmarshals the payload into a fresh T.
func RegisterJSON[T any](r *Registry, eventType string) {
	r.Register(eventType, func(payload []byte) (any, error) {
		var evt T
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domainErrors.ErrMalformedPayload, eventType, err)
		}
		return &evt, nil
	})
}

// Known reports whether a decoder is registered for the event type.
func (r *Registry) Known(eventType string) bool {
	_, ok := r.decoders[eventType]
	return ok
}

// Decode resolves the decoder for eventType and runs it.
func (r *Registry) Decode(eventType string, payload []byte) (any, error) {
	dec, ok := r.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrUnknownEventType, eventType)
	}
	return dec(payload)
}

// Types returns the registered event type names.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		types = append(types, name)
	}
	return types
}
