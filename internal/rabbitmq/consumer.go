package rabbitmq

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/observability"
)

// Consumer receives group lifecycle events from the group-management
// service's topic exchange.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares the exchange and a durable queue bound to every
// group.* routing key.
func NewConsumer(amqpURL, exchange, queue string) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.QueueBind(queue, "group.*", exchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch, queue: queue}, nil
}

// Start consumes lifecycle events until the context is cancelled. Each
// delivery is dispatched on its own goroutine; malformed payloads are
// rejected without requeue.
func (c *Consumer) Start(ctx context.Context, handle func(context.Context, models.LifecycleEvent)) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				var event models.LifecycleEvent
				if err := json.Unmarshal(delivery.Body, &event); err != nil {
					log.Printf("lifecycle event decode failed: %v", err)
					observability.IncLifecycleEvent("unknown", "malformed")
					_ = delivery.Nack(false, false)
					continue
				}
				go func(d amqp.Delivery, ev models.LifecycleEvent) {
					handle(ctx, ev)
					_ = d.Ack(false)
				}(delivery, event)
			}
		}
	}()
	return nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
