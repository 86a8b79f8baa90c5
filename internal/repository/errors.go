package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate reports a unique constraint violation.
	ErrDuplicate = errors.New("duplicate key")
	// ErrSerialization reports a serialization failure or deadlock; the
	// whole transaction may be retried.
	ErrSerialization = errors.New("serialization failure")
)

const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqInvalidTextRepr      = "22P02"
)

// ConstraintError carries the name of the violated constraint.
type ConstraintError struct {
	Constraint string
	kind       error
	err        error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%v (constraint %s): %v", e.kind, e.Constraint, e.err)
}

func (e *ConstraintError) Unwrap() []error { return []error{e.kind, e.err} }

// Constraint returns the violated constraint name carried by err, if any.
func Constraint(err error) string {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint
	}
	return ""
}

// translate maps driver errors onto repository sentinels and adds op context.
// A key Postgres cannot parse (a malformed uuid) matches no row.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, &ConstraintError{Constraint: pqErr.Constraint, kind: ErrDuplicate, err: err})
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%s: %w", op, &ConstraintError{Constraint: pqErr.Constraint, kind: ErrSerialization, err: err})
		case pqInvalidTextRepr:
			return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
