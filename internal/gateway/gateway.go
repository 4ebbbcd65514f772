// Package gateway bridges the checkout flow and the browser-hosted payment
// widget. The flow awaits one outcome; the browser posts the widget event.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/model"
)

// Status is the widget outcome.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Outcome is what the widget reported. Result is set only on success.
type Outcome struct {
	Status Status
	Result model.PaymentResult
	Reason string
}

// Widget opens the payment widget for a handle and waits for the visitor.
type Widget interface {
	Await(ctx context.Context, handle model.PaymentOrderHandle) Outcome
}

// Widget event names posted by the browser.
const (
	EventSuccess = "payment.success"
	EventDismiss = "modal.dismiss"
	EventFailed  = "payment.failed"
)

// Event is a widget callback relayed by the browser.
type Event struct {
	Type           string `json:"event"`
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId,omitempty"`
	Signature      string `json:"signature,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Options is what the browser needs to open the widget.
type Options struct {
	Key            string `json:"key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	DisplayName    string `json:"name"`
	Theme          string `json:"theme,omitempty"`
}

// DefaultTimeout bounds the wait for a widget event.
const DefaultTimeout = 15 * time.Minute

var (
	ErrNotAwaiting      = errors.New("no payment awaiting a widget event")
	ErrAlreadyDelivered = errors.New("widget event already delivered")
)

// Relay is the production Widget. Await publishes Options and blocks until
// Deliver hands over the browser's event, the timeout fires or ctx ends.
type Relay struct {
	config  *ConfigLoader
	timeout time.Duration
	secret  string
	logger  *slog.Logger

	mu      sync.Mutex
	current *waiter
}

type waiter struct {
	handle    model.PaymentOrderHandle
	opts      Options
	ch        chan Outcome
	delivered bool
}

// RelayConfig wires a Relay.
type RelayConfig struct {
	Config  *ConfigLoader
	Timeout time.Duration // 0 = DefaultTimeout
	Secret  string        // optional; enables signature verification
	Logger  *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(cfg RelayConfig) *Relay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Relay{
		config:  cfg.Config,
		timeout: cfg.Timeout,
		secret:  cfg.Secret,
		logger:  cfg.Logger,
	}
}

var _ Widget = (*Relay)(nil)

// Await blocks for exactly one outcome.
// A timeout is a failure; cancelling ctx is a visitor cancellation.
func (r *Relay) Await(ctx context.Context, handle model.PaymentOrderHandle) Outcome {
	cfg, err := r.config.Get(ctx)
	if err != nil {
		r.logger.Warn("payment widget unavailable", slog.String("error", err.Error()))
		return Outcome{Status: StatusFailed, Reason: "payment widget unavailable"}
	}

	w := &waiter{
		handle: handle,
		ch:     make(chan Outcome, 1),
		opts: Options{
			Key:            cfg.GatewayKey,
			Amount:         handle.Amount,
			Currency:       handle.Currency,
			OrderID:        handle.OrderID,
			GatewayOrderID: handle.GatewayOrderID,
			DisplayName:    cfg.DisplayName,
			Theme:          cfg.Theme,
		},
	}
	r.mu.Lock()
	r.current = w
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.current == w {
			r.current = nil
		}
		r.mu.Unlock()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case out := <-w.ch:
		return out
	case <-timer.C:
		return Outcome{Status: StatusFailed, Reason: "payment timed out"}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome{Status: StatusFailed, Reason: "payment timed out"}
		}
		return Outcome{Status: StatusCancelled, Reason: "cancelled"}
	}
}

// Options returns the widget options while a payment is awaited.
func (r *Relay) Options() (Options, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Options{}, false
	}
	return r.current.opts, true
}

// Deliver hands a browser event to the waiting flow. The event must name the
// pending gateway order; only the first event for a handle is accepted.
func (r *Relay) Deliver(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.current
	if w == nil {
		return ErrNotAwaiting
	}
	switch ev.GatewayOrderID {
	case "":
		return model.NewValidationError("gatewayOrderId", "is required")
	case w.handle.GatewayOrderID:
	default:
		return model.NewValidationError("gatewayOrderId", "does not match the pending payment")
	}
	if w.delivered {
		return ErrAlreadyDelivered
	}

	out, err := r.outcome(w.handle, ev)
	if err != nil {
		return err
	}
	w.delivered = true
	w.ch <- out
	r.logger.Info("widget event delivered",
		slog.String("order_id", w.handle.OrderID),
		slog.String("event", ev.Type),
		slog.String("status", string(out.Status)))
	return nil
}

func (r *Relay) outcome(handle model.PaymentOrderHandle, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventSuccess:
		if ev.PaymentID == "" || ev.Signature == "" {
			return Outcome{}, model.NewFieldErrors(map[string]string{
				"paymentId": "is required",
				"signature": "is required",
			})
		}
		if r.secret != "" && !VerifySignature(r.secret, handle.GatewayOrderID, ev.PaymentID, ev.Signature) {
			return Outcome{Status: StatusFailed, Reason: "payment signature mismatch"}, nil
		}
		return Outcome{
			Status: StatusSucceeded,
			Result: model.PaymentResult{
				OrderID:        handle.OrderID,
				PaymentID:      ev.PaymentID,
				GatewayOrderID: handle.GatewayOrderID,
				Signature:      ev.Signature,
			},
		}, nil
	case EventDismiss:
		return Outcome{Status: StatusCancelled, Reason: "cancelled"}, nil
	case EventFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return Outcome{Status: StatusFailed, Reason: reason}, nil
	default:
		return Outcome{}, model.NewValidationError("event", "unknown widget event "+ev.Type)
	}
}

// VerifySignature checks the gateway's HMAC-SHA256 over "gatewayOrderId|paymentId".
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, Sign(secret, gatewayOrderID, paymentID))
}

// Sign computes the raw signature VerifySignature expects (hex-encode to send).
func Sign(secret, gatewayOrderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return mac.Sum(nil)
}
