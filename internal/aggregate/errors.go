package aggregate

import (
	"errors"
	"fmt"
)

// Error reports an aggregation spec that cannot be compiled. Detected
// before any storage call; an unsupported reducer fails loudly rather
// than being silently ignored.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity being aggregated.
	Entity string

	// Field is the field involved, when known.
	Field string
}

// ErrorCode categorizes aggregation errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedReducer indicates a reducer/type combination the
	// engine cannot compute (e.g. avg over a non-numeric field).
	ErrCodeUnsupportedReducer ErrorCode = "UNSUPPORTED_REDUCER"

	// ErrCodeUnknownField indicates a reducer or group key referencing
	// an undeclared field.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeGroupFieldsRequired indicates a groupBy with an empty group
	// field list.
	ErrCodeGroupFieldsRequired ErrorCode = "GROUP_FIELDS_REQUIRED"

	// ErrCodeUnknownEntity indicates the request names an entity absent
	// from the registry.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeEmptySpec indicates a request with no reducers at all; it
	// would otherwise render an empty SELECT list.
	ErrCodeEmptySpec ErrorCode = "EMPTY_SPEC"

	// ErrCodeInvalidOrder indicates an orderBy term referencing neither a
	// group key nor a requested reducer.
	ErrCodeInvalidOrder ErrorCode = "INVALID_ORDER"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (entity=%s, field=%s)", e.Code, e.Message, e.Entity, e.Field)
	}
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
}

// IsUnsupportedReducer reports whether err is a reducer/type mismatch.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedReducer(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == ErrCodeUnsupportedReducer
}

func newError(code ErrorCode, entity, field, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Entity: entity, Field: field}
}
