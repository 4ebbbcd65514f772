// Package checkout drives an order from draft to a verified payment.
//
// The flow is strictly sequential:
//
//	IDLE → CREATING_DRAFT → CREATING_PAYMENT_ORDER → AWAITING_GATEWAY → CONFIRMING → DONE
//
// Any phase may end in FAILED. Only AWAITING_GATEWAY can be cancelled, and
// CONFIRMING runs to completion even if the caller goes away.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/session"
	"storefront/internal/storeapi"
)

// API is the set of server operations checkout uses.
type API interface {
	ApplyOffer(ctx context.Context, userID, code string) (*model.AppliedOffer, error)
	CreateDraftOrder(ctx context.Context, userID string, address model.Address, offerCode string) (*model.DraftOrder, error)
	CreatePaymentOrder(ctx context.Context, orderID string) (*model.PaymentOrderHandle, error)
	ConfirmPayment(ctx context.Context, result model.PaymentResult) error
}

// Cart is the reconciler surface checkout needs.
type Cart interface {
	Load(ctx context.Context) (model.CartView, error)
	Sync(ctx context.Context) (model.CartView, error)
	ClearPending(ctx context.Context) (model.CartView, error)
}

// OptionsSource exposes the widget options while a payment is awaited.
// gateway.Relay implements it.
type OptionsSource interface {
	Options() (gateway.Options, bool)
}

// ErrNotCancellable is returned by Cancel outside AWAITING_GATEWAY.
var ErrNotCancellable = errors.New("checkout not cancellable")

// Config wires an Orchestrator.
type Config struct {
	Session  *session.Session
	Cart     Cart
	API      API
	Widget   gateway.Widget
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Snapshot is a point-in-time copy of the checkout for polling clients.
type Snapshot struct {
	State     State                     `json:"state"`
	Reason    string                    `json:"reason,omitempty"`
	Error     *model.APIError           `json:"error,omitempty"`
	Draft     *model.DraftOrder         `json:"draft,omitempty"`
	Handle    *model.PaymentOrderHandle `json:"paymentOrder,omitempty"`
	Widget    *gateway.Options          `json:"widget,omitempty"`
	Offer     *model.AppliedOffer       `json:"offer,omitempty"`
	PaymentID string                    `json:"paymentId,omitempty"`
}

// Orchestrator runs one checkout at a time for a session.
type Orchestrator struct {
	sess     *session.Session
	cart     Cart
	api      API
	widget   gateway.Widget
	notifier notify.Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	running   bool // between Start and the terminal state, preconditions included
	reason    string
	err       *model.APIError
	draft     *model.DraftOrder
	handle    *model.PaymentOrderHandle
	offer     *model.AppliedOffer
	paymentID string
	cancel    context.CancelFunc // set only in AWAITING_GATEWAY
	done      chan struct{}
}

// New creates an Orchestrator in IDLE.
func New(cfg Config) *Orchestrator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Multi{}
	}
	done := make(chan struct{})
	close(done)
	return &Orchestrator{
		sess:     cfg.Session,
		cart:     cfg.Cart,
		api:      cfg.API,
		widget:   cfg.Widget,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		state:    StateIdle,
		done:     done,
	}
}

// Snapshot returns the current checkout state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:     o.state,
		Reason:    o.reason,
		Error:     o.err,
		PaymentID: o.paymentID,
	}
	if o.draft != nil {
		d := *o.draft
		s.Draft = &d
	}
	if o.handle != nil {
		h := *o.handle
		s.Handle = &h
	}
	if o.offer != nil {
		off := *o.offer
		s.Offer = &off
	}
	if o.state == StateAwaitingGateway {
		if src, ok := o.widget.(OptionsSource); ok {
			if opts, ok := src.Options(); ok {
				s.Widget = &opts
			}
		}
	}
	return s
}

// Start validates and prepares the checkout, then runs the rest of the flow
// in the background. Poll Snapshot or call Wait for the result.
func (o *Orchestrator) Start(ctx context.Context, address model.Address) (Snapshot, error) {
	userID, err := o.begin(ctx, address)
	if err != nil {
		return o.Snapshot(), err
	}
	go o.flow(context.WithoutCancel(ctx), userID, address)
	return o.Snapshot(), nil
}

// Run is the synchronous form of Start. Cancelling ctx while awaiting the
// gateway cancels the payment.
func (o *Orchestrator) Run(ctx context.Context, address model.Address) (Snapshot, error) {
	userID, err := o.begin(ctx, address)
	if err != nil {
		return o.Snapshot(), err
	}
	err = o.flow(ctx, userID, address)
	return o.Snapshot(), err
}

// Wait blocks until the current flow reaches a terminal state.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return o.Snapshot(), ctx.Err()
	}
	snap := o.Snapshot()
	if snap.Error != nil {
		return snap, snap.Error
	}
	return snap, nil
}

// Cancel aborts a payment awaiting the gateway.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAwaitingGateway || o.cancel == nil {
		return &model.APIError{
			Code:       "NOT_CANCELLABLE",
			Message:    fmt.Sprintf("checkout cannot be cancelled in state %s", o.state),
			StatusCode: 409,
			Err:        ErrNotCancellable,
		}
	}
	o.cancel()
	return nil
}

// === Offers ===

// ApplyOffer asks the server to validate and price code. On success it
// replaces any applied offer; on rejection the previous offer stays.
func (o *Orchestrator) ApplyOffer(ctx context.Context, code string) (*model.AppliedOffer, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("offerCode", "is required")
	}
	userID := o.sess.CurrentUserID()
	if userID == "" {
		return nil, model.NewNotAuthenticatedError("applying an offer")
	}
	if err := o.guardIdle(); err != nil {
		return nil, err
	}

	offer, err := o.api.ApplyOffer(storeapi.WithAccessToken(ctx, o.sess.AccessToken()), userID, code)
	if err != nil {
		o.logger.Info("offer rejected", slog.String("code", code), slog.String("error", err.Error()))
		return nil, err
	}

	o.mu.Lock()
	if o.running {
		// A checkout started while the server priced the code.
		state := o.state
		o.mu.Unlock()
		return nil, model.NewCheckoutInProgressError(string(state))
	}
	o.offer = offer
	o.mu.Unlock()
	o.logger.Info("offer applied",
		slog.String("code", offer.OfferCode),
		slog.Int64("discount", offer.DiscountAmount))
	out := *offer
	return &out, nil
}

// RemoveOffer clears the applied offer.
func (o *Orchestrator) RemoveOffer() error {
	if err := o.guardIdle(); err != nil {
		return err
	}
	o.mu.Lock()
	o.offer = nil
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) guardIdle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return model.NewCheckoutInProgressError(string(o.state))
	}
	return nil
}

// === Flow ===

// begin checks the preconditions in IDLE and moves to CREATING_DRAFT.
// Any failure here leaves the checkout in IDLE.
func (o *Orchestrator) begin(ctx context.Context, address model.Address) (string, error) {
	o.mu.Lock()
	if o.running {
		st := o.state
		o.mu.Unlock()
		return "", model.NewCheckoutInProgressError(string(st))
	}
	if o.state.Terminal() {
		o.resetLocked()
	}
	o.running = true
	o.mu.Unlock()

	userID, err := o.precheck(ctx, address)
	if err != nil {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return "", err
	}

	o.mu.Lock()
	o.done = make(chan struct{})
	o.mu.Unlock()
	o.transition(StateCreatingDraft)
	return userID, nil
}

func (o *Orchestrator) precheck(ctx context.Context, address model.Address) (string, error) {
	userID := o.sess.CurrentUserID()
	if userID == "" {
		return "", model.NewNotAuthenticatedError("checkout")
	}
	if verr := address.Validate(); verr != nil {
		return "", verr
	}

	view, err := o.cart.Load(ctx)
	if err != nil {
		return "", err
	}
	if view.HasUnsyncedChanges {
		o.logger.Info("syncing cart before checkout")
		if view, err = o.cart.Sync(ctx); err != nil {
			return "", err
		}
	}
	if view.IsEmpty() {
		return "", model.NewValidationError("cart", "is empty")
	}
	return userID, nil
}

func (o *Orchestrator) flow(ctx context.Context, userID string, address model.Address) error {
	apiCtx := storeapi.WithAccessToken(ctx, o.sess.AccessToken())

	o.mu.Lock()
	offerCode := ""
	if o.offer != nil {
		offerCode = o.offer.OfferCode
	}
	o.mu.Unlock()

	draft, err := o.api.CreateDraftOrder(apiCtx, userID, address, offerCode)
	if err != nil {
		return o.fail(ctx, ReasonDraftFailed, asAPIError(err), "")
	}
	o.mu.Lock()
	o.draft = draft
	o.mu.Unlock()
	o.transition(StateCreatingPaymentOrder)

	handle, err := o.api.CreatePaymentOrder(apiCtx, draft.OrderID)
	if err != nil {
		return o.fail(ctx, ReasonPaymentOrderFailed, asAPIError(err), draft.OrderID)
	}

	awaitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.handle = handle
	o.cancel = cancel
	o.mu.Unlock()
	o.transition(StateAwaitingGateway)

	out := o.widget.Await(awaitCtx, *handle)

	o.mu.Lock()
	o.cancel = nil
	o.mu.Unlock()

	switch out.Status {
	case gateway.StatusSucceeded:
	case gateway.StatusCancelled:
		return o.fail(ctx, ReasonCancelled, model.NewPaymentCancelledError(), draft.OrderID)
	default:
		reason := out.Reason
		if reason == "" {
			reason = "payment failed"
		}
		return o.fail(ctx, reason, model.NewPaymentError(reason), draft.OrderID)
	}

	o.mu.Lock()
	o.paymentID = out.Result.PaymentID
	o.mu.Unlock()
	o.transition(StateConfirming)
	return o.confirm(context.WithoutCancel(ctx), draft.OrderID, out.Result)
}

// confirm verifies the payment. It is never retried: a failure here may
// mean money moved without an order, so it is escalated instead.
func (o *Orchestrator) confirm(ctx context.Context, orderID string, result model.PaymentResult) error {
	err := o.api.ConfirmPayment(storeapi.WithAccessToken(ctx, o.sess.AccessToken()), result)
	if err != nil {
		amb := model.NewConfirmationAmbiguousError(orderID, err)
		o.notifier.Notify(ctx, notify.Notification{
			Kind:      notify.KindEscalation,
			Topic:     notify.TopicPaymentUnconfirmed,
			Message:   fmt.Sprintf("payment %s for order %s could not be confirmed: %v", result.PaymentID, orderID, err),
			SessionID: o.sess.ID(),
			UserID:    o.sess.CurrentUserID(),
			OrderID:   orderID,
			PaymentID: result.PaymentID,
		})
		return o.fail(ctx, ReasonAmbiguous, amb, orderID)
	}

	if _, err := o.cart.ClearPending(ctx); err != nil {
		o.logger.Warn("cart reload after order failed", slog.String("error", err.Error()))
	}

	o.mu.Lock()
	o.offer = nil
	o.mu.Unlock()
	o.finish(StateDone, "", nil)

	o.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindInfo,
		Topic:     notify.TopicCheckoutConfirmed,
		Message:   fmt.Sprintf("Order %s is confirmed", orderID),
		SessionID: o.sess.ID(),
		UserID:    o.sess.CurrentUserID(),
		OrderID:   orderID,
	})
	o.notifier.Notify(ctx, notify.Notification{
		Kind:      notify.KindEvent,
		Topic:     notify.TopicCheckoutConfirmed,
		Message:   "order confirmed",
		SessionID: o.sess.ID(),
		UserID:    o.sess.CurrentUserID(),
		OrderID:   orderID,
		PaymentID: result.PaymentID,
	})
	return nil
}

// fail moves to FAILED and tells the visitor.
func (o *Orchestrator) fail(ctx context.Context, reason string, err *model.APIError, orderID string) error {
	o.finish(StateFailed, reason, err)

	topic := notify.TopicCheckoutFailed
	if errors.Is(err, model.ErrPaymentCancelled) {
		topic = notify.TopicCheckoutCancelled
	}
	kind := notify.KindError
	if topic == notify.TopicCheckoutCancelled {
		kind = notify.KindInfo
	}
	base := notify.Notification{
		Topic:     topic,
		SessionID: o.sess.ID(),
		UserID:    o.sess.CurrentUserID(),
		OrderID:   orderID,
	}
	visitor := base
	visitor.Kind = kind
	visitor.Message = "Checkout did not complete: " + reason
	event := base
	event.Kind = notify.KindEvent
	event.Message = reason
	o.notifier.Notify(ctx, visitor)
	o.notifier.Notify(ctx, event)
	return err
}

func (o *Orchestrator) finish(state State, reason string, err *model.APIError) {
	o.transition(state)
	o.mu.Lock()
	o.reason = reason
	o.err = err
	o.running = false
	close(o.done)
	o.mu.Unlock()
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	from := o.state
	if !CanTransition(from, to) {
		o.mu.Unlock()
		o.logger.Error("illegal checkout transition", slog.String("from", string(from)), slog.String("to", string(to)))
		return
	}
	o.state = to
	orderID := ""
	if o.draft != nil {
		orderID = o.draft.OrderID
	}
	o.mu.Unlock()

	o.logger.Info("checkout transition",
		slog.String("session", o.sess.ID()),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("order_id", orderID))
}

func (o *Orchestrator) resetLocked() {
	o.state = StateIdle
	o.reason = ""
	o.err = nil
	o.draft = nil
	o.handle = nil
	o.paymentID = ""
}

func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewInternalError(err)
}
