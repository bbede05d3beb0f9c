package notify

import (
	"context"
	"log"

	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/rabbitmq"
)

// Notification is the human-readable part of a push.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Sink delivers push notifications keyed by device token. Delivery is
// fire-and-forget: failures are logged, never propagated to the message
// path.
type Sink interface {
	Send(ctx context.Context, tokens []string, note Notification, data map[string]string) error
	SendSilent(ctx context.Context, tokens []string, data map[string]string) error
}

type pushPayload struct {
	Tokens       []string          `json:"tokens"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// AMQPSink queues pushes on the notification exchange; a downstream
// worker owns the actual FCM/APNs delivery.
type AMQPSink struct {
	publisher rabbitmq.Publisher
}

// NewAMQPSink constructs an AMQPSink.
func NewAMQPSink(publisher rabbitmq.Publisher) *AMQPSink {
	return &AMQPSink{publisher: publisher}
}

// Send queues a visible notification.
func (s *AMQPSink) Send(ctx context.Context, tokens []string, note Notification, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := s.publisher.Publish(ctx, "push.send", pushPayload{Tokens: tokens, Notification: &note, Data: data})
	if err != nil {
		log.Printf("notification publish failed: %v", err)
		observability.IncNotification("error")
		return err
	}
	observability.IncNotification("sent")
	return nil
}

// SendSilent queues a data-only notification, e.g. a local retraction
// after a delete.
func (s *AMQPSink) SendSilent(ctx context.Context, tokens []string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := s.publisher.Publish(ctx, "push.silent", pushPayload{Tokens: tokens, Data: data})
	if err != nil {
		log.Printf("silent notification publish failed: %v", err)
		observability.IncNotification("error")
		return err
	}
	observability.IncNotification("silent")
	return nil
}
