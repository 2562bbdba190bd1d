package txn

import (
	"errors"
	"fmt"
)

// Error reports a transaction-state violation. These are programming
// errors: they surface immediately and are never retried.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// State is the handle state at the time of the violation.
	State State

	// TxID identifies the handle.
	TxID string
}

// ErrorCode categorizes transaction-state errors.
type ErrorCode string

const (
	// ErrCodeAlreadyClosed indicates an operation attempted after the
	// handle was committed or rolled back.
	ErrCodeAlreadyClosed ErrorCode = "TX_ALREADY_CLOSED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: transaction is %s (tx=%s)", e.Code, e.State, e.TxID)
}

// IsAlreadyClosed reports whether err is a use-after-close violation.
// Uses errors.As to handle wrapped errors.
func IsAlreadyClosed(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Code == ErrCodeAlreadyClosed
}
