package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrFieldNotFound is matched by errors for watched fields absent from the input
	ErrFieldNotFound = errors.New("watched field not found in input")

	// ErrFieldTypeUnresolved is matched by errors for watched columns without a type
	ErrFieldTypeUnresolved = errors.New("watched field has no resolvable type")

	// ErrRowShape is matched by errors for rows whose arity differs from the
	// established input schema
	ErrRowShape = errors.New("row does not match established schema")
)

// FieldNotFoundError is a configuration error raised on the first row
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("unable to find field %q in the input row", e.Field)
}

func (e *FieldNotFoundError) Is(target error) bool {
	return target == ErrFieldNotFound
}

// FieldTypeUnresolvedError is a configuration error raised on the first row
type FieldTypeUnresolvedError struct {
	Field string
}

func (e *FieldTypeUnresolvedError) Error() string {
	return fmt.Sprintf("unable to determine the type of field %q", e.Field)
}

func (e *FieldTypeUnresolvedError) Is(target error) bool {
	return target == ErrFieldTypeUnresolved
}

// RowShapeError is a processing error for malformed rows
type RowShapeError struct {
	Want int
	Got  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("row has %d values, established schema has %d columns", e.Got, e.Want)
}

func (e *RowShapeError) Is(target error) bool {
	return target == ErrRowShape
}
