package models

import (
	"context"
	"time"
)

// Repository is the subscriber ledger.
type Repository interface {
	// UpsertPending inserts or refreshes a pending record keyed by e-mail.
	// A paid record is left untouched.
	UpsertPending(ctx context.Context, subscriber *Subscriber) error
	// RecordPaid inserts or updates a record directly to paid.
	RecordPaid(ctx context.Context, subscriber *Subscriber, paidAt time.Time) error
	// MarkPaidByEmail flips the record to paid. The bool reports whether a
	// pending→paid transition happened.
	MarkPaidByEmail(ctx context.Context, email string, paidAt time.Time) (bool, error)
	// MarkPaidByTransaction is the reconciliation path keyed by gateway id.
	MarkPaidByTransaction(ctx context.Context, transactionID string, paidAt time.Time) (bool, error)

	GetByEmail(ctx context.Context, email string) (*Subscriber, error)
	GetByTransaction(ctx context.Context, transactionID string) (*Subscriber, error)
	// ListPendingSince returns pending records with a charge refreshed after since.
	ListPendingSince(ctx context.Context, since time.Time, limit int) ([]*Subscriber, error)

	Close() error
}
