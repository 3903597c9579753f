package calendar

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("invalid calendar input")
	ErrNotFound     = errors.New("event not found")
	ErrStaleVersion = errors.New("event version is stale")
	ErrDuplicate    = errors.New("event already exists")
)

// ValidationError describes malformed input. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
