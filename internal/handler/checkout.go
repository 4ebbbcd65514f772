package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/gateway"
	"storefront/internal/model"
)

// handleApplyOffer validates and applies an offer code.
// POST /offers
func (h *Handler) handleApplyOffer(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)

	var req offerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	offer, err := e.Checkout.ApplyOffer(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, offer)
}

// handleRemoveOffer clears the applied offer.
// DELETE /offers
func (h *Handler) handleRemoveOffer(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	if err := e.Checkout.RemoveOffer(); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStartCheckout validates the address and starts the payment flow.
// POST /checkout
func (h *Handler) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.visitor(w, r)

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "starting checkout",
		slog.String("session", e.Session.ID()),
		slog.String("user_id", e.Session.CurrentUserID()),
	)

	snap, err := e.Checkout.Start(ctx, req.Address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, snap)
}

// handleGetCheckout returns the checkout snapshot, including the widget
// options while the payment is awaited.
// GET /checkout
func (h *Handler) handleGetCheckout(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	h.writeJSON(w, http.StatusOK, e.Checkout.Snapshot())
}

// handleGatewayEvent relays the payment widget's callback to the flow.
// POST /checkout/gateway
func (h *Handler) handleGatewayEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.visitor(w, r)

	var ev gateway.Event
	if err := decodeJSON(r, &ev); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "widget event",
		slog.String("event", ev.Type),
		slog.String("gateway_order_id", ev.GatewayOrderID),
	)

	if err := e.Relay.Deliver(ev); err != nil {
		if errors.Is(err, gateway.ErrNotAwaiting) || errors.Is(err, gateway.ErrAlreadyDelivered) {
			err = &model.APIError{Code: "NOT_AWAITING_PAYMENT", Message: err.Error(), StatusCode: http.StatusConflict, Err: err}
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, e.Checkout.Snapshot())
}

// handleCancelCheckout cancels a payment awaiting the widget.
// DELETE /checkout
func (h *Handler) handleCancelCheckout(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	if err := e.Checkout.Cancel(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, e.Checkout.Snapshot())
}
