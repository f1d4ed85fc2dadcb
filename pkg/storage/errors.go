package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrCollision if an item already exists within the store.
	ErrCollision = errors.New("item already exists")

	// ErrInvalidFilter if a NodeFilter cannot be executed.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnknownField if an update targets a field that cannot be updated in place.
	ErrUnknownField = errors.New("unknown field")

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
)

func InvalidFilterError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidFilter, reason)
}

func UnknownFieldError(field Field) error {
	return fmt.Errorf("%w: '%s'", ErrUnknownField, field)
}

// ValidateField returns ErrUnknownField unless field can be updated with UpdateNodeField.
func ValidateField(field Field) error {
	switch field {
	case FieldParent, FieldPath:
		return nil
	default:
		return UnknownFieldError(field)
	}
}
