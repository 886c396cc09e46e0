package models

import (
	"context"
	"time"
)

// CheckoutI is the checkout business logic consumed by the HTTP API and the
// checkout state machine.
type CheckoutI interface {
	// Start runs the background reconciliation sweeper until ctx is done.
	Start(ctx context.Context)

	// IssueCharge creates (or reuses) a Pix charge for the buyer.
	IssueCharge(ctx context.Context, buyer *Buyer) (*ChargeResult, error)
	// CheckStatus polls the gateway once.
	CheckStatus(ctx context.Context, transactionID string) (*ChargeStatus, error)
	// ConfirmPayment marks the buyer paid and fires delivery on first confirmation.
	ConfirmPayment(ctx context.Context, email, transactionID string, paidAt time.Time) error
	// RecordSubscriber persists a buyer after verifying the transaction with the gateway.
	RecordSubscriber(ctx context.Context, buyer *Buyer, transactionID string) (*Subscriber, error)
	// IsSubscriber answers the returning-subscriber check.
	IsSubscriber(ctx context.Context, email string) (*SubscriberLookup, error)

	// Quote prices a checkout from the catalog.
	Quote(orderBump bool) Cents
	// DeliveryURL is the redirect destination after settlement.
	DeliveryURL(orderBump bool) string
}

// Buyer is the checkout form input.
type Buyer struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Amount    Cents  `json:"amount"`
	OrderBump bool   `json:"orderBump"`
}

// SubscriberLookup is the result of the returning-subscriber check.
type SubscriberLookup struct {
	Found  bool
	Name   string
	Email  string
	PaidAt *time.Time
}

// APIServer is the HTTP surface of the service.
type APIServer interface {
	Start()
	Shutdown() error
}
