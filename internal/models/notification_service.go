package models

// NotificationService delivers access once a subscriber is confirmed.
type NotificationService interface {
	NotifyPaid(notification *PaidNotification)
}

// EventPublisher emits settlement events to downstream consumers.
type EventPublisher interface {
	PublishPaid(notification *PaidNotification) error
	Close() error
}
