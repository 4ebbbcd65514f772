// Package cart presents one unified cart view regardless of auth state and
// mediates every cart mutation.
//
// Guest carts write through to the local store. Authenticated quantity edits
// only touch the pending-edit cache; they reach the server on Sync.
package cart

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storefront/internal/batch"
	"storefront/internal/guestcart"
	"storefront/internal/model"
	"storefront/internal/pending"
	"storefront/internal/reconcile"
	"storefront/internal/session"
	"storefront/internal/storeapi"
)

// API is the subset of the commerce API the reconciler needs.
type API interface {
	Fetch(ctx context.Context, userID string) ([]model.AuthLine, error)
	AddLine(ctx context.Context, userID, productID string, qty int, size string) error
	RemoveLine(ctx context.Context, cartItemID string) error
	ClearAll(ctx context.Context, userID string) error
}

// DefaultSyncConcurrency bounds in-flight line replacements during Sync.
const DefaultSyncConcurrency = 4

// Config wires a Reconciler.
type Config struct {
	Session     *session.Session
	Local       *guestcart.Store
	Pending     *pending.Cache
	API         API
	Logger      *slog.Logger
	Concurrency int // max concurrent line replacements in Sync (0 = default)
}

// Reconciler owns the unified cart view. All mutations are serialized.
type Reconciler struct {
	sess        *session.Session
	local       *guestcart.Store
	pending     *pending.Cache
	api         API
	logger      *slog.Logger
	concurrency int

	mu       sync.Mutex
	view     model.CartView
	loaded   bool
	loadedAs string // user id the view was loaded for; "" for guest
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSyncConcurrency
	}
	return &Reconciler{
		sess:        cfg.Session,
		local:       cfg.Local,
		pending:     cfg.Pending,
		api:         cfg.API,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		view:        model.CartView{Lines: []model.ViewLine{}},
	}
}

// View returns a copy of the current view without loading.
func (r *Reconciler) View() model.CartView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Clone()
}

// Load refreshes the view from the local store (guest) or the server (authenticated).
// On a server failure the previous view is kept and the error returned.
func (r *Reconciler) Load(ctx context.Context) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.loadLocked(ctx)
	return r.view.Clone(), err
}

func (r *Reconciler) loadLocked(ctx context.Context) error {
	userID := r.sess.CurrentUserID()
	if userID == "" {
		r.setView(guestView(r.local.Load(ctx)), "")
		return nil
	}

	server, err := r.api.Fetch(r.apiContext(ctx), userID)
	if err != nil {
		r.logger.Warn("cart fetch failed, keeping previous view",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return err
	}
	r.applyServer(ctx, userID, server)
	return nil
}

// applyServer overlays pending edits on a fresh server cart and prunes edits
// that no longer describe a delta.
func (r *Reconciler) applyServer(ctx context.Context, userID string, server []model.AuthLine) {
	edits := r.pending.Load(ctx)
	if len(edits) > 0 {
		edits = r.pruneEdits(ctx, server, edits)
	}

	lines, unsynced := reconcile.Overlay(server, edits)
	r.setView(model.CartView{
		Authenticated:      true,
		Lines:              lines,
		Subtotal:           reconcile.Subtotal(lines),
		HasUnsyncedChanges: unsynced,
	}, userID)
}

// pruneEdits rekeys size-less edits to the line they resolve to and drops
// edits that are stale or already equal to the server quantity.
func (r *Reconciler) pruneEdits(ctx context.Context, server []model.AuthLine, edits pending.Edits) pending.Edits {
	plan := reconcile.PlanSync(server, edits)
	pruned := make(pending.Edits, len(plan.Replace))
	for _, rep := range plan.Replace {
		pruned[rep.Key] = rep.NewQuantity
	}
	if !sameEdits(pruned, edits) {
		r.pending.Save(ctx, pruned)
	}
	return pruned
}

func sameEdits(a, b pending.Edits) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func (r *Reconciler) setView(v model.CartView, userID string) {
	r.view = v
	r.loaded = true
	r.loadedAs = userID
}

// ensureLoaded loads when the view is missing or belongs to another auth state.
func (r *Reconciler) ensureLoaded(ctx context.Context) error {
	if r.loaded && r.loadedAs == r.sess.CurrentUserID() {
		return nil
	}
	return r.loadLocked(ctx)
}

func (r *Reconciler) apiContext(ctx context.Context) context.Context {
	return storeapi.WithAccessToken(ctx, r.sess.AccessToken())
}

// === Mutations ===

// Add puts a product variant in the cart, incrementing an existing line.
func (r *Reconciler) Add(ctx context.Context, line model.CartLine) (model.CartView, error) {
	if line.ProductID == "" {
		return r.View(), model.NewValidationError("productId", "is required")
	}
	line.Quantity = model.ClampQuantity(line.Quantity)

	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.sess.CurrentUserID()
	if userID == "" {
		r.local.AddOrIncrement(ctx, line)
		r.setView(guestView(r.local.Load(ctx)), "")
		return r.view.Clone(), nil
	}

	if err := r.api.AddLine(r.apiContext(ctx), userID, line.ProductID, line.Quantity, line.SelectedSize); err != nil {
		r.logger.Warn("add line failed",
			slog.String("line", line.Key().String()),
			slog.String("error", err.Error()))
		r.loadLocked(ctx)
		return r.view.Clone(), err
	}
	// The server quantity moved; an older target for this line is meaningless now.
	r.pending.Drop(ctx, line.Key())
	err := r.loadLocked(ctx)
	return r.view.Clone(), err
}

// Increment adds one to a line's quantity.
func (r *Reconciler) Increment(ctx context.Context, key model.LineKey) (model.CartView, error) {
	return r.mutateQuantity(ctx, key, func(q int) int { return q + 1 })
}

// Decrement removes one from a line's quantity, never below 1.
func (r *Reconciler) Decrement(ctx context.Context, key model.LineKey) (model.CartView, error) {
	return r.mutateQuantity(ctx, key, func(q int) int { return q - 1 })
}

// SetQuantity sets a line's quantity, clamped to at least 1.
func (r *Reconciler) SetQuantity(ctx context.Context, key model.LineKey, qty int) (model.CartView, error) {
	return r.mutateQuantity(ctx, key, func(int) int { return qty })
}

func (r *Reconciler) mutateQuantity(ctx context.Context, key model.LineKey, next func(int) int) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return r.view.Clone(), err
	}

	idx := r.indexOf(key)
	if idx < 0 {
		return r.view.Clone(), model.NewNotFoundError("cart line " + key.String())
	}
	qty := model.ClampQuantity(next(r.view.Lines[idx].Quantity))

	if !r.view.Authenticated {
		r.local.UpdateQuantity(ctx, key, qty)
		r.setView(guestView(r.local.Load(ctx)), "")
		return r.view.Clone(), nil
	}

	// Authenticated: local view and pending cache only.
	line := &r.view.Lines[idx]
	line.Quantity = qty
	line.Total = line.LineTotal()
	if qty == line.OriginalQuantity {
		r.pending.Drop(ctx, key)
	} else {
		r.pending.Put(ctx, key, qty)
	}
	r.refreshDerived()
	return r.view.Clone(), nil
}

// Remove deletes a line.
func (r *Reconciler) Remove(ctx context.Context, key model.LineKey) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return r.view.Clone(), err
	}

	if !r.view.Authenticated {
		r.local.Remove(ctx, key)
		r.setView(guestView(r.local.Load(ctx)), "")
		return r.view.Clone(), nil
	}

	idx := r.indexOf(key)
	if idx < 0 {
		return r.view.Clone(), model.NewNotFoundError("cart line " + key.String())
	}
	if err := r.api.RemoveLine(r.apiContext(ctx), r.view.Lines[idx].CartItemID); err != nil {
		r.logger.Warn("remove line failed",
			slog.String("line", key.String()),
			slog.String("error", err.Error()))
		r.loadLocked(ctx)
		return r.view.Clone(), err
	}
	r.pending.Drop(ctx, key)
	err := r.loadLocked(ctx)
	return r.view.Clone(), err
}

// Clear empties the cart.
func (r *Reconciler) Clear(ctx context.Context) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.sess.CurrentUserID()
	if userID == "" {
		r.local.Clear(ctx)
		r.setView(guestView(nil), "")
		return r.view.Clone(), nil
	}

	if err := r.api.ClearAll(r.apiContext(ctx), userID); err != nil {
		r.logger.Warn("clear cart failed", slog.String("error", err.Error()))
		r.loadLocked(ctx)
		return r.view.Clone(), err
	}
	r.pending.Clear(ctx)
	err := r.loadLocked(ctx)
	return r.view.Clone(), err
}

// ClearPending drops every unsynced edit and reloads.
// Used after a confirmed order, when the server cart is already empty, and
// on sign-out.
func (r *Reconciler) ClearPending(ctx context.Context) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Clear(ctx)
	err := r.loadLocked(ctx)
	return r.view.Clone(), err
}

// Sync pushes pending edits to the server by replacing each changed line
// (remove, then add with the new quantity). Lines run concurrently.
//
// On full success the pending cache is cleared. On any failure the server
// state is reloaded, the edits of the failed lines are discarded, and a
// PARTIAL_FAILURE error naming them is returned. There is no retry.
func (r *Reconciler) Sync(ctx context.Context) (model.CartView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := r.sess.CurrentUserID()
	if userID == "" {
		if err := r.ensureLoaded(ctx); err != nil {
			return r.view.Clone(), err
		}
		return r.view.Clone(), nil
	}

	apiCtx := r.apiContext(ctx)
	server, err := r.api.Fetch(apiCtx, userID)
	if err != nil {
		return r.view.Clone(), err
	}

	plan := reconcile.PlanSync(server, r.pending.Load(ctx))
	if plan.IsEmpty() {
		r.pending.Clear(ctx)
		r.applyServer(ctx, userID, server)
		return r.view.Clone(), nil
	}

	r.logger.Info("syncing cart", slog.Int("lines", len(plan.Replace)))
	report := batch.Run(apiCtx, plan.Replace, r.concurrency, func(ctx context.Context, rep reconcile.Replacement) error {
		if err := r.api.RemoveLine(ctx, rep.CartItemID); err != nil {
			return err
		}
		return r.api.AddLine(ctx, userID, rep.Key.ProductID, rep.NewQuantity, rep.Key.Size)
	})

	if report.OK() {
		r.pending.Clear(ctx)
		err := r.loadLocked(ctx)
		return r.view.Clone(), err
	}

	failed := make([]string, 0, len(report.Failed()))
	for _, f := range report.Failed() {
		failed = append(failed, f.Item.Key.String())
		r.logger.Warn("cart line sync failed",
			slog.String("line", f.Item.Key.String()),
			slog.String("error", f.Err.Error()))
	}
	// Succeeded lines now match the server; failed lines revert to it.
	r.pending.Clear(ctx)
	if err := r.loadLocked(ctx); err != nil {
		r.logger.Warn("reload after partial sync failed", slog.String("error", err.Error()))
	}
	return r.view.Clone(), model.NewPartialFailureError("cart sync", failed, len(plan.Replace))
}

// === Helpers ===

func (r *Reconciler) indexOf(key model.LineKey) int {
	for i, l := range r.view.Lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func (r *Reconciler) refreshDerived() {
	r.view.Subtotal = reconcile.Subtotal(r.view.Lines)
	r.view.HasUnsyncedChanges = false
	for _, l := range r.view.Lines {
		if l.Quantity != l.OriginalQuantity {
			r.view.HasUnsyncedChanges = true
			break
		}
	}
}

func guestView(lines []model.GuestLine) model.CartView {
	view := model.CartView{Lines: make([]model.ViewLine, 0, len(lines))}
	for _, l := range lines {
		view.Lines = append(view.Lines, model.ViewLine{
			CartLine:         l.CartLine,
			OriginalQuantity: l.Quantity,
			Total:            l.LineTotal(),
		})
	}
	view.Subtotal = reconcile.Subtotal(view.Lines)
	return view
}

// IsPartialFailure reports whether err is a PARTIAL_FAILURE from Sync.
func IsPartialFailure(err error) bool {
	return errors.Is(err, model.ErrPartialFailure)
}
