package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a micro-action does not exist or belongs to another user.
	ErrNotFound = errors.New("micro-action not found")
	// ErrConflict signals a lost uniqueness race on the completion ledger.
	ErrConflict = errors.New("completion already recorded")
	// ErrTransport marks failures reaching the persistence backend.
	ErrTransport = errors.New("persistence unavailable")
	// ErrUnauthenticated is returned when no user id is available for the call.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError describes which field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError wraps a backend failure with the operation that hit it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
