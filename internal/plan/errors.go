package plan

import (
	"errors"
	"fmt"
)

// Error reports a request that cannot be planned. Plan errors are
// detected before any storage call and are never retried.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity the request targeted.
	Entity string
}

// ErrorCode categorizes planning errors.
type ErrorCode string

const (
	// ErrCodeAmbiguousUniqueFilter indicates a findUnique-style request
	// whose predicate does not pin a unique field.
	ErrCodeAmbiguousUniqueFilter ErrorCode = "AMBIGUOUS_UNIQUE_FILTER"

	// ErrCodeConflictingProjection indicates an explicit field set and an
	// include set requested on overlapping paths.
	ErrCodeConflictingProjection ErrorCode = "CONFLICTING_PROJECTION"

	// ErrCodeInvalidPagination indicates negative skip or otherwise
	// malformed pagination bounds.
	ErrCodeInvalidPagination ErrorCode = "INVALID_PAGINATION"

	// ErrCodeUnknownField indicates a projection, ordering, or distinct
	// term referencing an undeclared field.
	ErrCodeUnknownField ErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnknownRelation indicates an include referencing an
	// undeclared relation.
	ErrCodeUnknownRelation ErrorCode = "UNKNOWN_RELATION"

	// ErrCodeUnknownEntity indicates the request names an entity absent
	// from the registry.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
}

// IsAmbiguousUniqueFilter reports whether err is an ambiguous unique
// filter error. Uses errors.As to handle wrapped errors.
func IsAmbiguousUniqueFilter(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeAmbiguousUniqueFilter
}

// IsInvalidPagination reports whether err is a pagination error.
func IsInvalidPagination(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeInvalidPagination
}

func newError(code ErrorCode, entity, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Entity: entity}
}
