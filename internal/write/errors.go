package write

import (
	"errors"
	"fmt"
)

// Error reports a write request that cannot be compiled. Like predicate
// compile errors, these are detected before any statement is built.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity the write targeted.
	Entity string

	// Field or relation name involved, when known.
	Field string
}

// ErrorCode categorizes write compile errors.
type ErrorCode string

const (
	// ErrCodeUnknownField indicates a value keyed by an undeclared field.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnknownRelation indicates a nested create under an
	// undeclared or non-to-many relation.
	ErrCodeUnknownRelation ErrorCode = "UNKNOWN_RELATION"

	// ErrCodeTypeMismatch indicates a value incompatible with the
	// field's scalar type, or a relative increment on a non-numeric
	// field.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeNonUniquePredicate indicates an update/delete whose
	// predicate does not pin a unique field and that did not set the
	// explicit multi flag, or an upsert without a unique predicate.
	ErrCodeNonUniquePredicate ErrorCode = "NON_UNIQUE_PREDICATE"

	// ErrCodeUnknownEntity indicates the write names an entity absent
	// from the registry.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeMissingKey indicates a create that produced no primary key
	// value (no literal, no default policy, not auto-generated).
	ErrCodeMissingKey ErrorCode = "MISSING_KEY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (entity=%s, field=%s)", e.Code, e.Message, e.Entity, e.Field)
	}
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
}

// IsNonUniquePredicate reports whether err is a missing-multi-flag
// violation. Uses errors.As to handle wrapped errors.
func IsNonUniquePredicate(err error) bool {
	var we *Error
	return errors.As(err, &we) && we.Code == ErrCodeNonUniquePredicate
}

func newError(code ErrorCode, entity, field, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Entity: entity, Field: field}
}
