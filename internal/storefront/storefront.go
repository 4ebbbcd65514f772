// Package storefront bundles the per-visitor cart and checkout engine and
// keeps a bounded registry of active visitors.
package storefront

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/gateway"
	"storefront/internal/guestcart"
	"storefront/internal/kvstore"
	"storefront/internal/merge"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/pending"
	"storefront/internal/session"
	"storefront/internal/storeapi"
)

// DefaultMaxVisitors bounds the registry (LRU eviction).
const DefaultMaxVisitors = 10000

// Config is shared by every engine the registry creates.
type Config struct {
	Store            kvstore.Store // visitor keys are namespaced by session id
	API              storeapi.API
	PaymentConfig    *gateway.ConfigLoader
	Notifier         notify.Notifier // process-wide sinks (log, AMQP)
	Logger           *slog.Logger
	MaxVisitors      int
	MergeConcurrency int
	SyncConcurrency  int
	GatewayTimeout   time.Duration
	GatewaySecret    string
}

// Engine is one visitor's cart, merge and checkout components.
type Engine struct {
	Session  *session.Session
	Cart     *cart.Reconciler
	Merge    *merge.Coordinator
	Checkout *checkout.Orchestrator
	Relay    *gateway.Relay
	Inbox    *notify.Inbox
}

// NewEngine wires an engine for sessionID.
//
// A new engine starts signed out, so state that only holds for a signed-in
// user is dropped from the store: the merge flag and pending edits left
// behind by an evicted engine.
func NewEngine(sessionID string, cfg Config) *Engine {
	logger := cfg.Logger.With(slog.String("session", sessionID))
	kv := kvstore.Namespaced(cfg.Store, "visitor:"+sessionID)
	sess := session.New(sessionID, kv, cfg.Logger)
	inbox := notify.NewInbox(notify.DefaultInboxSize)
	notifier := notify.Multi{inbox, cfg.Notifier}

	edits := pending.New(kv, logger)
	sess.ResetMerged(context.Background())
	edits.Clear(context.Background())

	local := guestcart.New(kv, logger)
	reconciler := cart.New(cart.Config{
		Session:     sess,
		Local:       local,
		Pending:     edits,
		API:         cfg.API,
		Logger:      logger,
		Concurrency: cfg.SyncConcurrency,
	})
	relay := gateway.NewRelay(gateway.RelayConfig{
		Config:  cfg.PaymentConfig,
		Timeout: cfg.GatewayTimeout,
		Secret:  cfg.GatewaySecret,
		Logger:  logger,
	})

	return &Engine{
		Session: sess,
		Cart:    reconciler,
		Merge: merge.New(merge.Config{
			Session:     sess,
			Local:       local,
			API:         cfg.API,
			Cart:        reconciler,
			Notifier:    notifier,
			Logger:      logger,
			Concurrency: cfg.MergeConcurrency,
		}),
		Checkout: checkout.New(checkout.Config{
			Session:  sess,
			Cart:     reconciler,
			API:      cfg.API,
			Widget:   relay,
			Notifier: notifier,
			Logger:   logger,
		}),
		Relay: relay,
		Inbox: inbox,
	}
}

// SignIn begins the authenticated session, merges the guest cart and
// returns the refreshed cart. A merge partial failure is returned alongside
// the view; the session stays signed in.
func (e *Engine) SignIn(ctx context.Context, userID, accessToken string) (merge.Result, model.CartView, error) {
	if err := e.Session.Begin(userID, accessToken); err != nil {
		return merge.Result{}, e.Cart.View(), err
	}
	res, mergeErr := e.Merge.Merge(ctx)
	view, loadErr := e.Cart.Load(ctx)
	if mergeErr != nil {
		return res, view, mergeErr
	}
	return res, view, loadErr
}

// SignOut returns the visitor to guest mode. Unsynced edits belong to the
// signed-out user's server cart and are discarded.
func (e *Engine) SignOut(ctx context.Context) model.CartView {
	e.Session.End(ctx)
	view, _ := e.Cart.ClearPending(ctx)
	return view
}

// Busy reports whether a checkout is in flight.
func (e *Engine) Busy() bool {
	st := e.Checkout.Snapshot().State
	return st != checkout.StateIdle && !st.Terminal()
}

// Registry hands out one Engine per session id.
type Registry struct {
	cfg Config

	mu         sync.Mutex
	engines    map[string]*Engine
	accessList []string // LRU tracking: most recent at end
}

// NewRegistry creates a Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.MaxVisitors <= 0 {
		cfg.MaxVisitors = DefaultMaxVisitors
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Multi{}
	}
	return &Registry{
		cfg:     cfg,
		engines: make(map[string]*Engine),
	}
}

// Get returns the engine for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[sessionID]; ok {
		r.recordAccessLocked(sessionID)
		return e
	}

	if len(r.engines) >= r.cfg.MaxVisitors {
		r.evictOldestLocked()
	}
	e := NewEngine(sessionID, r.cfg)
	r.engines[sessionID] = e
	r.recordAccessLocked(sessionID)
	return e
}

// Lookup returns the engine for sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[sessionID]
	return e, ok
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

func (r *Registry) recordAccessLocked(id string) {
	for i, v := range r.accessList {
		if v == id {
			r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
			break
		}
	}
	r.accessList = append(r.accessList, id)
}

// evictOldestLocked drops the least recently used engine that is not in
// checkout. Persisted cart state survives; the sign-in does not.
func (r *Registry) evictOldestLocked() {
	for i, id := range r.accessList {
		if r.engines[id].Busy() {
			continue
		}
		r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
		delete(r.engines, id)
		r.cfg.Logger.Debug("visitor evicted", slog.String("session", id))
		return
	}
}
