// Package notify delivers visitor-facing notifications, support escalations
// and checkout lifecycle events.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	KindInfo       Kind = "info"
	KindWarning    Kind = "warning"
	KindError      Kind = "error"
	KindEscalation Kind = "escalation" // needs human follow-up
	KindEvent      Kind = "event"      // machine-facing lifecycle event
)

// Topics used by the engine.
const (
	TopicCartMerge          = "cart.merge"
	TopicCartSync           = "cart.sync"
	TopicCheckoutConfirmed  = "checkout.confirmed"
	TopicCheckoutCancelled  = "checkout.cancelled"
	TopicCheckoutFailed     = "checkout.failed"
	TopicPaymentUnconfirmed = "support.payment-unconfirmed"
)

// Notification is one message.
type Notification struct {
	Kind      Kind      `json:"kind"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	OrderID   string    `json:"orderId,omitempty"`
	PaymentID string    `json:"paymentId,omitempty"`
	Time      time.Time `json:"time"`
}

// VisitorFacing reports whether the visitor should see n.
func (n Notification) VisitorFacing() bool {
	switch n.Kind {
	case KindInfo, KindWarning, KindError:
		return true
	}
	return false
}

// Notifier accepts notifications. Implementations never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now().UTC()
	}
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	switch n.Kind {
	case KindWarning:
		level = slog.LevelWarn
	case KindError, KindEscalation:
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, n.Message,
		slog.String("kind", string(n.Kind)),
		slog.String("topic", n.Topic),
		slog.String("session", n.SessionID),
		slog.String("user_id", n.UserID),
		slog.String("order_id", n.OrderID))
}

// DefaultInboxSize bounds an Inbox.
const DefaultInboxSize = 32

// Inbox keeps the most recent visitor-facing notifications until drained.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	size  int
}

// NewInbox creates an Inbox holding at most size notifications.
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size}
}

// Notify stores visitor-facing notifications, dropping the oldest when full.
func (b *Inbox) Notify(_ context.Context, n Notification) {
	if !n.VisitorFacing() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.size; over > 0 {
		b.items = append([]Notification(nil), b.items[over:]...)
	}
}

// Drain returns and removes every stored notification, oldest first.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Len returns the number of stored notifications.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
