package notificator

import (
	"runtime/debug"

	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

// Notificator fans a paid notification out to the configured channels.
// Either channel may be nil.
type Notificator struct {
	logger *logger.Logger

	TelegramNotificator *TelegramNotificator
	EmailNotificator    *EmailNotificator
	Publisher           models.EventPublisher
}

func NewNotificator(logger *logger.Logger, telNotif *TelegramNotificator, emailNotif *EmailNotificator, publisher models.EventPublisher) *Notificator {
	return &Notificator{logger: logger, TelegramNotificator: telNotif, EmailNotificator: emailNotif, Publisher: publisher}
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (n *Notificator) NotifyPaid(notification *models.PaidNotification) {
	if n.TelegramNotificator != nil {
		message := notification.SellerMessage()
		n.safeCall(func() { n.TelegramNotificator.SendNotification(message) }, "telegramNotification")
	}
	if n.EmailNotificator != nil && notification.Email != "" {
		email := notification.Email
		message := notification.BuyerMessage()
		n.safeCall(func() {
			if err := n.EmailNotificator.SendNotification(email, message); err != nil {
				n.logger.Error("Failed to send access email", "email", email, "error", err)
			}
		}, "emailNotification")
	}
	if n.Publisher != nil {
		n.safeCall(func() {
			if err := n.Publisher.PublishPaid(notification); err != nil {
				n.logger.Error("Failed to publish paid event", "transaction_id", notification.TransactionID, "error", err)
			}
		}, "paidEvent")
	}
}
