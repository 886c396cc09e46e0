package models

import "time"

// ChargeRequest is built fresh for every checkout attempt and never persisted.
type ChargeRequest struct {
	BuyerName  string
	BuyerEmail string
	Amount     Cents
	// ExternalReference is the client-side correlation id sent to the gateway.
	ExternalReference string
}

// ChargeResult is a successfully issued Pix charge.
type ChargeResult struct {
	TransactionID     string `json:"transactionId"`
	ExternalReference string `json:"externalId"`
	// PaymentCodeText is the Pix copy-and-paste payload, also rendered as a QR image.
	PaymentCodeText string `json:"qrCodeText"`
	Amount          Cents  `json:"amount"`
}

// SettlementStatus is the normalized gateway state of a charge.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementPaid      SettlementStatus = "paid"
	SettlementExpired   SettlementStatus = "expired"
	SettlementCancelled SettlementStatus = "cancelled"
	SettlementUnknown   SettlementStatus = "unknown"
)

// IsPaid reports whether funds have moved.
func (s SettlementStatus) IsPaid() bool {
	return s == SettlementPaid
}

// IsFinal reports whether the charge can no longer become paid.
func (s SettlementStatus) IsFinal() bool {
	return s == SettlementPaid || s == SettlementExpired || s == SettlementCancelled
}

// ChargeStatus is the answer of a single status poll.
type ChargeStatus struct {
	TransactionID string
	Status        SettlementStatus
	// RawStatus is the gateway's own vocabulary, kept for logs and the status endpoint.
	RawStatus string
	PaidAt    *time.Time
}
