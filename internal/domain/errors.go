package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinalized is returned when a terminal job is asked to change state again
	ErrJobFinalized = errors.New("job already finalized")

	// ErrJobClaimed is returned when another execution holds a live lease on the job
	ErrJobClaimed = errors.New("job claimed by another execution")

	// ErrDuplicateIdempotencyKey is returned when an insert loses the idempotency-key race
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")

	// ErrInvalidPayload is returned when a job payload does not match its event type
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrUnsupportedEventType is returned for event types with no transaction sequence
	ErrUnsupportedEventType = errors.New("unsupported event type")
)

// ValidationError describes why a payload was rejected for its event type
type ValidationError struct {
	EventType EventType
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.EventType, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidPayload) match validation failures
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// RetryableError wraps infrastructure failures that should trigger a queue redelivery
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
