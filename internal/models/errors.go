package models

import (
	"errors"
	"fmt"
)

var (
	// ErrSubscriberNotFound is returned by the ledger when no record matches.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrSessionNotFound is returned by session stores for unknown or expired ids.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrAlreadySubscribed is returned when a paid e-mail tries to buy again.
	ErrAlreadySubscribed = errors.New("email already has an active subscription")
	// ErrTransactionClaimed is returned when a transaction is presented for an
	// e-mail other than the one it was issued to.
	ErrTransactionClaimed = errors.New("transaction belongs to another subscriber")
)

// ValidationError reports bad buyer input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
