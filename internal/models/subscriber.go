package models

import "time"

type SubscriberStatus string

const (
	SubscriberPending SubscriberStatus = "pending"
	SubscriberPaid    SubscriberStatus = "paid"
)

// Subscriber is a buyer of the VIP content, keyed by normalized e-mail.
// Once Status is paid, PaidAt is set and the record never goes back to pending.
type Subscriber struct {
	// ID is the surrogate primary key.
	ID int64 `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	// Email is the trimmed, lower-cased e-mail of the buyer. Natural key.
	Email string `json:"email" gorm:"column:email;size:254;uniqueIndex;not null"`
	// Name is the name typed in the checkout form.
	Name *string `json:"name" gorm:"column:name;size:120"`
	// TransactionID is the gateway id of the latest charge.
	TransactionID *string `json:"transaction_id" gorm:"column:transaction_id;size:128;index"`
	// ExternalReference is the correlation id we sent along with the latest charge.
	ExternalReference *string `json:"external_reference" gorm:"column:external_reference;size:64;index"`
	// PaymentCode is the Pix copy-and-paste code of the latest charge, kept so a
	// repeated submission can be answered without issuing a second live charge.
	PaymentCode string `json:"-" gorm:"column:payment_code;type:text"`
	// AmountCents is the charged amount in centavos.
	AmountCents int64 `json:"amount_cents" gorm:"column:amount_cents;not null;default:0"`
	// Status is pending until the gateway confirms the payment.
	Status SubscriberStatus `json:"status" gorm:"column:status;size:16;not null;index;default:pending"`
	// PaidAt is when the payment was confirmed.
	PaidAt *time.Time `json:"paid_at" gorm:"column:paid_at"`
	// OrderBump is set when the buyer took the add-on offer.
	OrderBump bool      `json:"order_bump" gorm:"column:order_bump;not null;default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (Subscriber) TableName() string {
	return "subscribers"
}

// IsPaid reports whether the subscriber has a confirmed payment.
func (s *Subscriber) IsPaid() bool {
	return s.Status == SubscriberPaid && s.PaidAt != nil
}

// DisplayName returns the buyer name or an empty string.
func (s *Subscriber) DisplayName() string {
	if s.Name == nil {
		return ""
	}
	return *s.Name
}

// StringPtr returns nil for empty strings, used for nullable columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
