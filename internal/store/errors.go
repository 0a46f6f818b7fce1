package store

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
)

// TransientError marks store failures that are worth retrying, such as
// connection resets and timeouts.
type TransientError struct {
	error
}

func NewTransientError(err error) *TransientError {
	return &TransientError{fmt.Errorf("transient store error: %w", err)}
}

func (e *TransientError) Unwrap() error {
	return e.error
}

// PermanentError marks store failures that retries cannot recover.
type PermanentError struct {
	error
}

func NewPermanentError(err error) *PermanentError {
	return &PermanentError{fmt.Errorf("permanent store error: %w", err)}
}

func (e *PermanentError) Unwrap() error {
	return e.error
}

// CircuitOpenError is returned without touching the backend while the breaker
// is open.
type CircuitOpenError struct {
	error
}

func NewCircuitOpenError() *CircuitOpenError {
	return &CircuitOpenError{errors.New("circuit breaker is open")}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsCircuitOpen reports whether err is a breaker fast-fail.
func IsCircuitOpen(err error) bool {
	var c *CircuitOpenError
	return errors.As(err, &c)
}
