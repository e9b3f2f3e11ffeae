package domain

import "errors"

var (
	// ErrDuplicateEvent is returned when a conversion has already been recorded
	ErrDuplicateEvent = errors.New("conversion already recorded")

	// ErrInvalidPayload is returned when an event body is malformed
	ErrInvalidPayload = errors.New("invalid event payload")
)

// RetryableError wraps transient errors that should trigger a requeue
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
