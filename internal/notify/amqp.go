package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// EventsExchange is the topic exchange escalations and events go to.
	EventsExchange = "storefront.events"

	publishTimeout = 3 * time.Second
)

// RoutingKey derives the routing key for a topic, e.g. "checkout.confirmed.v1".
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "-", "_") + ".v1"
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends escalations and lifecycle events to RabbitMQ.
// Visitor-facing notifications are ignored.
type Publisher struct {
	ch     channel
	logger *slog.Logger
}

// Dial connects to url and declares the events exchange.
func Dial(url string, logger *slog.Logger) (*Publisher, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	p, err := NewPublisher(conn, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return p, conn, nil
}

// NewPublisher opens a channel on conn and declares the events exchange so
// publishing never fails on missing infrastructure.
func NewPublisher(conn *amqp.Connection, logger *slog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare %s: %w", EventsExchange, err)
	}
	return &Publisher{ch: ch, logger: logger}, nil
}

// Close closes the channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}

// Notify publishes escalations and events. Failures are logged.
func (p *Publisher) Notify(ctx context.Context, n Notification) {
	if n.Kind != KindEscalation && n.Kind != KindEvent {
		return
	}
	if err := p.Publish(ctx, n); err != nil {
		p.logger.Error("failed to publish notification",
			slog.String("topic", n.Topic),
			slog.String("order_id", n.OrderID),
			slog.String("error", err.Error()))
	}
}

// Publish sends n as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", n.Topic, err)
	}

	// A cancelled request must not lose an escalation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		RoutingKey(n.Topic),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    n.Time,
			Body:         body,
		},
	)
}
