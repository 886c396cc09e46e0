package models

import (
	"context"
	"time"
)

// CheckoutState is a step of the checkout state machine.
type CheckoutState string

const (
	StateForm          CheckoutState = "form"
	StateAwaitingCode  CheckoutState = "awaiting_code"
	StateCodeDisplayed CheckoutState = "code_displayed"
	StateConfirming    CheckoutState = "confirming"
	StateSettled       CheckoutState = "settled"
)

// CheckoutSnapshot is the persisted view of a checkout session.
type CheckoutSnapshot struct {
	ID        string        `json:"id"`
	State     CheckoutState `json:"state"`
	Error     string        `json:"error,omitempty"`
	Buyer     Buyer         `json:"buyer"`
	Charge    *ChargeResult `json:"charge,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SessionStore keeps checkout snapshots across page reloads.
type SessionStore interface {
	Save(ctx context.Context, snapshot *CheckoutSnapshot) error
	// Load returns ErrSessionNotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (*CheckoutSnapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
