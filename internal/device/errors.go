package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a camera or gate ID does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrValidation is returned when a device fails field validation.
	ErrValidation = errors.New("device: validation failed")

	// ErrReference is returned when a gate references a camera that does not
	// exist, or a camera still referenced by a gate is deleted.
	ErrReference = errors.New("device: invalid reference")

	// ErrDuplicateName is returned when a name is already used by another
	// device of the same class. It matches ErrValidation.
	ErrDuplicateName = fmt.Errorf("%w: duplicate name", ErrValidation)
)

// invalid builds a validation error naming the offending field.
func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, fmt.Sprintf(format, args...))
}
