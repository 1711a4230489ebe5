package domain

import (
	"fmt"
)

// -----------------------------
// NotFoundError
// -----------------------------

type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// -----------------------------
// FetchError
// -----------------------------

// FetchError is a typed failure surfaced to collaborators when the
// repository cannot deliver a catalog or segment payload. Cached state
// stays untouched when one occurs.
type FetchError struct {
	Resource string
	Err      error
}

func NewFetchError(resource string, err error) *FetchError {
	return &FetchError{Resource: resource, Err: err}
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func IsFetchError(err error) bool {
	_, ok := err.(*FetchError)
	return ok
}

// -----------------------------
// ValidationError
// -----------------------------

type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func IsValidationError(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}

// -----------------------------
// StoppedError
// -----------------------------

// StoppedError marks an operation short-circuited by the integration
// gate. Error-returning entry points surface it so callers can tell a
// skipped operation from a failed one; fire-and-forget paths just log.
type StoppedError struct {
	Operation string
}

func NewStoppedError(operation string) *StoppedError {
	return &StoppedError{Operation: operation}
}

func (e *StoppedError) Error() string {
	return fmt.Sprintf("integration stopped, %s skipped", e.Operation)
}

func IsStopped(err error) bool {
	_, ok := err.(*StoppedError)
	return ok
}
