package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks a failed schema script (DDL).
	ErrSchema = errors.New("schema error")

	// ErrConstraint marks rows rejected by a store constraint (not-null,
	// unique, foreign key, check).
	ErrConstraint = errors.New("constraint violation")
)

// SchemaErr wraps err so that errors.Is(err, ErrSchema) holds while keeping
// the driver error reachable.
func SchemaErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSchema, err)
}

// ConstraintErr is the ErrConstraint counterpart of SchemaErr.
func ConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConstraint, err)
}
