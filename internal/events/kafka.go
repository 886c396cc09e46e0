package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vipcontent/vipcheckout/internal/models"
)

const (
	EventSubscriberPaid = "subscriber.paid"

	publishTimeout = 10 * time.Second
)

// PaidEvent is the payload published when a subscriber is confirmed.
type PaidEvent struct {
	Type string `json:"type"`
	*models.PaidNotification
}

// messageWriter is the part of kafka.Writer we use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes settlement events keyed by buyer e-mail.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (k *KafkaPublisher) PublishPaid(notification *models.PaidNotification) error {
	v, err := json.Marshal(PaidEvent{Type: EventSubscriberPaid, PaidNotification: notification})
	if err != nil {
		return fmt.Errorf("failed to encode paid event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(notification.Email),
		Value: v,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write paid event to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
