package errors

import (
	"errors"
	"fmt"
)

var (
	// Outbox errors
	ErrDuplicateEvent = errors.New("duplicate event: deduplication key already used")
	ErrOutboxNotFound = errors.New("outbox record not found")
	ErrEmptyEventType = errors.New("event type must not be empty")
	ErrEmptyPayload   = errors.New("event payload must not be empty")

	// Consumer errors
	ErrMissingEventType = errors.New("message has no event type header")
	ErrUnknownEventType = errors.New("no decoder registered for event type")
	ErrMalformedPayload = errors.New("event payload could not be decoded")

	// Dead-letter errors
	ErrDeadLetterNotFound = errors.New("dead letter record not found")
	ErrReplayInProgress   = errors.New("a batch replay is already running")

	// Task errors
	ErrTaskNotFound      = errors.New("task not found")
	ErrWorkspaceRequired = errors.New("workspace id is required")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// PermanentError marks a failure that must not be retried: the publisher and
// consumer dead-letter these immediately instead of rescheduling.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err must bypass the retry/backoff path.
// Unresolvable event types and malformed payloads are permanent regardless
// of wrapping; everything else is treated as transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrMissingEventType) ||
		errors.Is(err, ErrMalformedPayload)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
