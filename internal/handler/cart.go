package handler

import (
	"log/slog"
	"net/http"

	"storefront/internal/model"
)

// handleGetCart returns the unified cart view.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	view, err := e.Cart.Load(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleAddItem adds a product variant to the cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.visitor(w, r)

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding cart item",
		slog.String("product_id", req.ProductID),
		slog.String("size", req.Size),
		slog.Int("quantity", req.Quantity),
	)

	view, err := e.Cart.Add(ctx, req.toLine())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

// handleUpdateItem changes a line's quantity.
// PATCH /cart/items/{productId}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.visitor(w, r)

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	key := model.LineKey{ProductID: r.PathValue("productId"), Size: req.Size}

	var (
		view model.CartView
		err  error
	)
	switch {
	case req.Quantity != nil:
		view, err = e.Cart.SetQuantity(ctx, key, *req.Quantity)
	case req.Delta == 1:
		view, err = e.Cart.Increment(ctx, key)
	case req.Delta == -1:
		view, err = e.Cart.Decrement(ctx, key)
	default:
		err = model.NewValidationError("delta", "must be 1 or -1 when quantity is absent")
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleRemoveItem deletes a line.
// DELETE /cart/items/{productId}?size=
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	key := model.LineKey{ProductID: r.PathValue("productId"), Size: r.URL.Query().Get("size")}

	view, err := e.Cart.Remove(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleClearCart empties the cart.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	view, err := e.Cart.Clear(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleSyncCart pushes pending quantity edits to the server.
// POST /cart/sync
func (h *Handler) handleSyncCart(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	view, err := e.Cart.Sync(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// handleNotifications drains the visitor's inbox.
// GET /notifications
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	h.writeJSON(w, http.StatusOK, map[string]any{"notifications": e.Inbox.Drain()})
}
