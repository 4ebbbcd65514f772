// Package handler provides the HTTP and MCP surfaces of the storefront BFF.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry      *storefront.Registry
	logger        *slog.Logger
	secureCookies bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithSecureCookies marks the session cookie Secure (HTTPS deployments).
func WithSecureCookies(secure bool) Option {
	return func(h *Handler) { h.secureCookies = secure }
}

// New creates a Handler over the visitor registry.
func New(registry *storefront.Registry, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry: registry,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items/{productId}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/items/{productId}", h.handleRemoveItem)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/sync", h.handleSyncCart)

	// Session
	mux.HandleFunc("POST /session", h.handleSignIn)
	mux.HandleFunc("DELETE /session", h.handleSignOut)

	// Offers and checkout
	mux.HandleFunc("POST /offers", h.handleApplyOffer)
	mux.HandleFunc("DELETE /offers", h.handleRemoveOffer)
	mux.HandleFunc("POST /checkout", h.handleStartCheckout)
	mux.HandleFunc("GET /checkout", h.handleGetCheckout)
	mux.HandleFunc("POST /checkout/gateway", h.handleGatewayEvent)
	mux.HandleFunc("DELETE /checkout", h.handleCancelCheckout)

	mux.HandleFunc("GET /notifications", h.handleNotifications)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// visitor resolves the caller's engine, minting a session when needed.
// The session id is echoed in the Storefront-Session response header.
func (h *Handler) visitor(w http.ResponseWriter, r *http.Request) *storefront.Engine {
	id, fresh := session.IDFromRequest(r)
	if fresh {
		session.SetCookie(w, id, h.secureCookies)
	}
	if v, err := session.FormatHeader(id); err == nil {
		w.Header().Set(session.HeaderName, v)
	}
	return h.registry.Get(id)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Fields:  apiErr.Fields,
			Failed:  apiErr.Failed,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Failed  []string          `json:"failed,omitempty"`
}

// toAPIError finds the APIError in err's chain or wraps err as INTERNAL_ERROR.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Visitors: h.registry.Len()})
}

type healthResponse struct {
	Status   string `json:"status"`
	Visitors int    `json:"visitors"`
}
