package models

import (
	"fmt"
	"time"
)

// PaidNotification describes a confirmed purchase.
type PaidNotification struct {
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	TransactionID string    `json:"transaction_id"`
	Amount        Cents     `json:"amount_cents"`
	OrderBump     bool      `json:"order_bump"`
	PaidAt        time.Time `json:"paid_at"`
	// DeliveryURLs are the links the buyer gets access to.
	DeliveryURLs []string `json:"delivery_urls"`
	SupportURL   string   `json:"support_url,omitempty"`
}

// NewPaidNotification builds the notification from a paid subscriber record.
func NewPaidNotification(s *Subscriber, deliveryURLs []string) *PaidNotification {
	n := &PaidNotification{
		Email:        s.Email,
		Name:         s.DisplayName(),
		Amount:       Cents(s.AmountCents),
		OrderBump:    s.OrderBump,
		DeliveryURLs: deliveryURLs,
	}
	if s.TransactionID != nil {
		n.TransactionID = *s.TransactionID
	}
	if s.PaidAt != nil {
		n.PaidAt = *s.PaidAt
	}
	return n
}

// SellerMessage is the sale alert sent to the seller.
func (n *PaidNotification) SellerMessage() string {
	msg := fmt.Sprintf("New VIP subscriber: %s <%s>\nAmount: %s\nTransaction: %s", n.Name, n.Email, n.Amount, n.TransactionID)
	if n.OrderBump {
		msg += "\nOrder bump: yes"
	}
	return msg
}

// BuyerMessage is the access e-mail body sent to the buyer.
func (n *PaidNotification) BuyerMessage() string {
	msg := fmt.Sprintf("Olá %s,\r\n\r\nSeu pagamento de %s foi confirmado. Acesse seus conteúdos VIP:\r\n", n.Name, n.Amount)
	for _, url := range n.DeliveryURLs {
		msg += "\r\n" + url
	}
	if n.SupportURL != "" {
		msg += "\r\n\r\nDúvidas? Fale com o suporte: " + n.SupportURL
	}
	return msg + "\r\n"
}
