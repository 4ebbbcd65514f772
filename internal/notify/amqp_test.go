package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{TopicCheckoutConfirmed, "checkout.confirmed.v1"},
		{TopicPaymentUnconfirmed, "support.payment_unconfirmed.v1"},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.topic); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestPublisher_Notify(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // escalations survive a cancelled caller

	p.Notify(ctx, Notification{Kind: KindInfo, Topic: TopicCartSync})
	p.Notify(ctx, Notification{Kind: KindEscalation, Topic: TopicPaymentUnconfirmed, OrderID: "ord-9"})

	if len(ch.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.sent))
	}
	got := ch.sent[0]
	if got.exchange != EventsExchange {
		t.Errorf("exchange = %q, want %q", got.exchange, EventsExchange)
	}
	if got.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("DeliveryMode = %d, want persistent", got.msg.DeliveryMode)
	}

	var body Notification
	if err := json.Unmarshal(got.msg.Body, &body); err != nil {
		t.Fatalf("body decode error = %v", err)
	}
	if body.OrderID != "ord-9" || body.Time.IsZero() {
		t.Errorf("body = %+v", body)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := &Publisher{ch: ch, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := p.Publish(context.Background(), Notification{Kind: KindEvent, Topic: TopicCheckoutFailed})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
}
