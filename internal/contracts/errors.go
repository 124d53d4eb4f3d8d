package contracts

import (
	"errors"
	"fmt"
)

// ⭐ SSOT: 엔진 에러 분류는 여기서만 정의
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateSnapshot = errors.New("snapshot already exists for date")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
)

// ValidationError is a precondition failure on a single field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid builds a ValidationError
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing resource
type NotFoundError struct {
	Resource string
	ID       string
	Hint     string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound builds a NotFoundError
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}
