package filter

import (
	"errors"
	"fmt"
)

// CompileError reports a predicate that references undeclared schema
// elements or carries incompatible values. Compile errors are detected
// before any storage call and are never retried.
type CompileError struct {
	// Code identifies the error category.
	Code CompileErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity the predicate was compiled against.
	Entity string

	// Field or relation name involved, when known.
	Field string
}

// CompileErrorCode categorizes predicate compile errors.
type CompileErrorCode string

const (
	// ErrCodeUnknownField indicates a predicate references a field not
	// declared on the entity.
	ErrCodeUnknownField CompileErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnknownRelation indicates a predicate references a relation
	// not declared on the entity.
	ErrCodeUnknownRelation CompileErrorCode = "UNKNOWN_RELATION"

	// ErrCodeTypeMismatch indicates a value incompatible with the field's
	// scalar type.
	ErrCodeTypeMismatch CompileErrorCode = "TYPE_MISMATCH"

	// ErrCodeInvalidQuantifier indicates an unknown relation quantifier.
	ErrCodeInvalidQuantifier CompileErrorCode = "INVALID_QUANTIFIER"

	// ErrCodeInvalidFilter indicates a malformed raw filter shape.
	ErrCodeInvalidFilter CompileErrorCode = "INVALID_FILTER"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (entity=%s, field=%s)", e.Code, e.Message, e.Entity, e.Field)
	}
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
}

// IsUnknownField reports whether err is an unknown-field compile error.
// Uses errors.As to handle wrapped errors.
func IsUnknownField(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == ErrCodeUnknownField
}

// IsTypeMismatch reports whether err is a type-mismatch compile error.
func IsTypeMismatch(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == ErrCodeTypeMismatch
}

func newError(code CompileErrorCode, entity, field, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Entity:  entity,
		Field:   field,
	}
}
