package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/model"
)

// handleSignIn starts the authenticated session and merges the guest cart.
// POST /session
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e := h.visitor(w, r)

	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	res, view, err := e.SignIn(ctx, req.UserID, req.AccessToken)
	if err != nil && !errors.Is(err, model.ErrPartialFailure) {
		if e.Session.IsAuthenticated() {
			// Signed in but the cart could not be loaded; report the view we have.
			h.logger.WarnContext(ctx, "cart load after sign-in failed", slog.String("error", err.Error()))
		} else {
			h.writeError(w, err)
			return
		}
	}

	resp := signInResponse{Merge: res, Cart: view}
	if err != nil {
		apiErr := h.toAPIError(err)
		resp.Error = &errorBody{Code: apiErr.Code, Message: apiErr.Message, Failed: apiErr.Failed}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleSignOut returns the visitor to guest mode.
// DELETE /session
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	e := h.visitor(w, r)
	h.writeJSON(w, http.StatusOK, e.SignOut(r.Context()))
}
