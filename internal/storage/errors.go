package storage

import (
	"errors"
	"fmt"
)

// Error wraps a failure from the underlying database with the context
// the engine needs: which category, which entity, which statement. Raw
// driver error strings never reach callers unwrapped.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Entity names the entity the statement targeted, when known.
	Entity string

	// Statement is the SQL text that failed.
	Statement string

	// Err is the underlying driver error.
	Err error
}

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// ErrCodeConstraint indicates a constraint violation (uniqueness,
	// foreign key, not-null). Not retryable.
	ErrCodeConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// ErrCodeDeadlock indicates lock contention detected by the
	// database. The enclosing transaction is rolled back; the caller may
	// retry the whole unit of work.
	ErrCodeDeadlock ErrorCode = "DEADLOCK_DETECTED"

	// ErrCodeGeneric covers all other storage failures.
	ErrCodeGeneric ErrorCode = "STORAGE_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s: %v (entity=%s)", e.Code, e.Err, e.Entity)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap exposes the driver error for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the whole unit of work may be retried by the
// caller. Only deadlocks qualify; the coordinator itself never retries.
func (e *Error) Retryable() bool { return e.Code == ErrCodeDeadlock }

// IsConstraintViolation reports whether err is a constraint violation.
// Uses errors.As to handle wrapped errors.
func IsConstraintViolation(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeConstraint
}

// IsDeadlock reports whether err is retryable lock contention.
func IsDeadlock(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == ErrCodeDeadlock
}
