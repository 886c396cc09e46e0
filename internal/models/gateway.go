package models

import "context"

// Gateway is one Pix payment provider contract.
type Gateway interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	ChargeStatus(ctx context.Context, transactionID string) (*ChargeStatus, error)
}
