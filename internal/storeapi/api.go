// Package storeapi is the client for the remote commerce API.
//
// Every call is a single HTTP request with no retries. Expected failures come
// back as *model.APIError values wrapping the model sentinels; transport
// failures wrap model.ErrUpstreamError.
package storeapi

import (
	"context"

	"storefront/internal/model"
)

// API abstracts the commerce API operations the engine consumes.
type API interface {
	// Fetch returns the authoritative cart lines for userID.
	Fetch(ctx context.Context, userID string) ([]model.AuthLine, error)

	// AddLine adds qty of a product variant. The server merges duplicate (productId, size) lines.
	AddLine(ctx context.Context, userID, productID string, qty int, size string) error

	// RemoveLine deletes one cart line by its server identifier.
	RemoveLine(ctx context.Context, cartItemID string) error

	// ClearAll empties the user's cart.
	ClearAll(ctx context.Context, userID string) error

	// ApplyOffer validates and prices an offer code against the user's current cart.
	ApplyOffer(ctx context.Context, userID, code string) (*model.AppliedOffer, error)

	// GetPaymentConfig returns the payment widget configuration.
	GetPaymentConfig(ctx context.Context) (*model.PaymentConfig, error)

	// CreateDraftOrder creates an order from the cart, address and optional offer code.
	CreateDraftOrder(ctx context.Context, userID string, address model.Address, offerCode string) (*model.DraftOrder, error)

	// CreatePaymentOrder obtains the gateway handle for a draft order.
	CreatePaymentOrder(ctx context.Context, orderID string) (*model.PaymentOrderHandle, error)

	// ConfirmPayment submits the signed gateway result for verification.
	ConfirmPayment(ctx context.Context, result model.PaymentResult) error
}

type contextKey string

const accessTokenKey contextKey = "storeapi.accessToken"

// WithAccessToken attaches the visitor's bearer token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the bearer token carried by ctx, or "".
func AccessToken(ctx context.Context) string {
	v, _ := ctx.Value(accessTokenKey).(string)
	return v
}
