// Package merge transplants a guest cart into the server cart after sign-in.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"storefront/internal/batch"
	"storefront/internal/guestcart"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/session"
	"storefront/internal/storeapi"
)

// API is the server operation the merge needs.
type API interface {
	AddLine(ctx context.Context, userID, productID string, qty int, size string) error
}

// Reloader refreshes the unified cart after a merge.
type Reloader interface {
	Load(ctx context.Context) (model.CartView, error)
}

// DefaultConcurrency bounds concurrent AddLine calls.
const DefaultConcurrency = 4

// Config wires a Coordinator.
type Config struct {
	Session     *session.Session
	Local       *guestcart.Store
	API         API
	Cart        Reloader
	Notifier    notify.Notifier
	Logger      *slog.Logger
	Concurrency int
}

// Coordinator runs the merge at most once per session.
type Coordinator struct {
	sess        *session.Session
	local       *guestcart.Store
	api         API
	cart        Reloader
	notifier    notify.Notifier
	logger      *slog.Logger
	concurrency int

	group singleflight.Group
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Multi{}
	}
	return &Coordinator{
		sess:        cfg.Session,
		local:       cfg.Local,
		api:         cfg.API,
		cart:        cfg.Cart,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Result describes what a merge call did.
type Result struct {
	Skipped bool            `json:"skipped"`
	Reason  string          `json:"reason,omitempty"` // why it was skipped
	Merged  int             `json:"merged"`
	Failed  []model.LineKey `json:"failed,omitempty"`
}

// Skip reasons.
const (
	ReasonGuest     = "not authenticated"
	ReasonDone      = "already merged"
	ReasonEmptyCart = "guest cart empty"
)

// Merge sends every guest line to the server cart. Concurrent callers share
// one run.
//
// On success the guest cart is cleared, the merge flag set and the cart
// reloaded. On any failure the flag stays unset and the guest cart keeps only
// the lines that failed, so the next attempt re-sends just those.
func (c *Coordinator) Merge(ctx context.Context) (Result, error) {
	v, err, shared := c.group.Do("merge", func() (any, error) {
		return c.merge(ctx)
	})
	if shared {
		c.logger.Debug("merge joined in-flight run")
	}
	res, _ := v.(Result)
	return res, err
}

func (c *Coordinator) merge(ctx context.Context) (Result, error) {
	userID := c.sess.CurrentUserID()
	if userID == "" {
		return Result{Skipped: true, Reason: ReasonGuest}, nil
	}
	if c.sess.Merged(ctx) {
		return Result{Skipped: true, Reason: ReasonDone}, nil
	}
	lines := c.local.Load(ctx)
	if len(lines) == 0 {
		return Result{Skipped: true, Reason: ReasonEmptyCart}, nil
	}

	c.logger.Info("merging guest cart",
		slog.String("user_id", userID),
		slog.Int("lines", len(lines)))

	apiCtx := storeapi.WithAccessToken(ctx, c.sess.AccessToken())
	report := batch.Run(apiCtx, lines, c.concurrency, func(ctx context.Context, l model.GuestLine) error {
		return c.api.AddLine(ctx, userID, l.ProductID, l.Quantity, l.SelectedSize)
	})

	if report.OK() {
		c.local.Clear(ctx)
		c.sess.MarkMerged(ctx)
		if _, err := c.cart.Load(ctx); err != nil {
			c.logger.Warn("cart reload after merge failed", slog.String("error", err.Error()))
		}
		c.notifier.Notify(ctx, notify.Notification{
			Kind:      notify.KindInfo,
			Topic:     notify.TopicCartMerge,
			Message:   fmt.Sprintf("%d item(s) from your guest cart were added to your cart", len(lines)),
			SessionID: c.sess.ID(),
			UserID:    userID,
		})
		c.logger.Info("guest cart merged", slog.Int("lines", len(lines)))
		return Result{Merged: len(lines)}, nil
	}

	failed := report.Failed()
	keys := make([]model.LineKey, 0, len(failed))
	names := make([]string, 0, len(failed))
	for _, f := range failed {
		keys = append(keys, f.Item.Key())
		names = append(names, f.Item.Key().String())
		c.logger.Warn("guest line merge failed",
			slog.String("line", f.Item.Key().String()),
			slog.String("error", f.Err.Error()))
	}
	c.local.Keep(ctx, keys)

	// The merged lines are on the server now; refresh so they show up.
	if len(failed) < len(lines) {
		if _, err := c.cart.Load(ctx); err != nil {
			c.logger.Warn("cart reload after partial merge failed", slog.String("error", err.Error()))
		}
	}

	c.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindWarning,
		Topic:     notify.TopicCartMerge,
		Message:   fmt.Sprintf("%d of %d item(s) from your guest cart could not be added; we will try again", len(failed), len(lines)),
		SessionID: c.sess.ID(),
		UserID:    userID,
	})

	return Result{Merged: len(lines) - len(failed), Failed: keys},
		model.NewPartialFailureError("cart merge", names, len(lines))
}
