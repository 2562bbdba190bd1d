package exec

import (
	"errors"
	"fmt"
)

// Error reports an execution-time contract violation or scan failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Entity is the entity being read.
	Entity string
}

// ErrorCode categorizes execution errors.
type ErrorCode string

const (
	// ErrCodeMultipleRecords indicates a cardinality ONE plan matched
	// more than one row. This is a logical contract breach and is never
	// silently resolved to an arbitrary row.
	ErrCodeMultipleRecords ErrorCode = "MULTIPLE_RECORDS_FOUND"

	// ErrCodeScan indicates a row could not be decoded into a record.
	ErrCodeScan ErrorCode = "SCAN_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
}

// IsMultipleRecords reports whether err is a MultipleRecordsFound
// violation. Uses errors.As to handle wrapped errors.
func IsMultipleRecords(err error) bool {
	var ee *Error
	return errors.As(err, &ee) && ee.Code == ErrCodeMultipleRecords
}
