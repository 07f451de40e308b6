package script

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition is returned for definitions that fail validation.
var ErrInvalidDefinition = errors.New("invalid definition")

// ValidationError names the field that made a definition invalid.
type ValidationError struct {
	ID      string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s", e.Field, e.Message)
	}
	return fmt.Sprintf("definition %q: %s %s", e.ID, e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidDefinition.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}

func invalid(id, field, msg string) error {
	return &ValidationError{ID: id, Field: field, Message: msg}
}
