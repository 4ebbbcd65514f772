// Package model defines the cart, order and payment types shared by the engine.
package model

import (
	"time"
)

// === Cart Lines ===

// LineKey identifies a cart line. Within one cart no two lines share a key.
type LineKey struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
}

// String renders the key as "productId:size" for logs and partial-failure reports.
func (k LineKey) String() string {
	return k.ProductID + ":" + k.Size
}

// CartLine is the state shared by guest and authenticated lines.
// All amounts are in minor currency units (paise).
type CartLine struct {
	ProductID           string   `json:"productId"`
	ProductName         string   `json:"productName"`
	UnitPrice           int64    `json:"unitPrice"`
	DiscountedUnitPrice int64    `json:"discountedUnitPrice,omitempty"` // 0 when not discounted
	Quantity            int      `json:"quantity"`                      // >= 1
	SelectedSize        string   `json:"selectedSize"`
	Images              []string `json:"images"`
}

// Key returns the line's (productId, size) identity.
func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Size: l.SelectedSize}
}

// EffectiveUnitPrice is the discounted price when one is set, else the base price.
func (l CartLine) EffectiveUnitPrice() int64 {
	if l.DiscountedUnitPrice > 0 {
		return l.DiscountedUnitPrice
	}
	return l.UnitPrice
}

// LineTotal is EffectiveUnitPrice × Quantity.
func (l CartLine) LineTotal() int64 {
	return l.EffectiveUnitPrice() * int64(l.Quantity)
}

// GuestLine is a line of an unauthenticated visitor's cart. It has no server identity.
type GuestLine struct {
	CartLine
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthLine is a line of the server-authoritative cart.
type AuthLine struct {
	CartLine
	CartItemID string `json:"cartItemId"` // server-assigned line identifier
}

// ClampQuantity enforces the quantity >= 1 floor.
func ClampQuantity(qty int) int {
	if qty < 1 {
		return 1
	}
	return qty
}

// === Unified View ===

// ViewLine is a line as presented by the cart view.
// OriginalQuantity is what the server (or guest store) holds; Quantity includes pending edits.
type ViewLine struct {
	CartLine
	CartItemID       string `json:"cartItemId,omitempty"`
	OriginalQuantity int    `json:"originalQuantity"`
	Total            int64  `json:"lineTotal"`
}

// CartView is the unified cart regardless of auth state.
type CartView struct {
	Authenticated      bool       `json:"authenticated"`
	Lines              []ViewLine `json:"lines"`
	Subtotal           int64      `json:"subtotal"`
	HasUnsyncedChanges bool       `json:"hasUnsyncedChanges"`
}

// IsEmpty reports whether the view has no lines.
func (v CartView) IsEmpty() bool {
	return len(v.Lines) == 0
}

// Line returns the view line for key, or false.
func (v CartView) Line(key LineKey) (ViewLine, bool) {
	for _, l := range v.Lines {
		if l.Key() == key {
			return l, true
		}
	}
	return ViewLine{}, false
}

// Clone returns a deep copy safe to hand to callers.
func (v CartView) Clone() CartView {
	out := v
	out.Lines = make([]ViewLine, len(v.Lines))
	for i, l := range v.Lines {
		l.Images = append([]string(nil), l.Images...)
		out.Lines[i] = l
	}
	return out
}

// === Offers ===

// AppliedOffer is the single discount code active for a checkout session.
type AppliedOffer struct {
	OfferCode          string  `json:"offerCode"`
	DiscountAmount     int64   `json:"discountAmount"`               // paise
	DiscountPercentage float64 `json:"discountPercentage,omitempty"` // 0 when the offer is a flat amount
}

// === Orders & Payment ===

// OrderStatus is the server-side state of a draft order.
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "DRAFT"
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
)

// DraftOrder is created from the cart snapshot, shipping address and optional offer code.
type DraftOrder struct {
	OrderID  string      `json:"orderId"`
	Amount   int64       `json:"amount"` // paise
	Currency string      `json:"currency"`
	Status   OrderStatus `json:"status"`
}

// PaymentOrderHandle is the gateway-side transaction handle for a draft order.
// Single-use: a new checkout attempt obtains a new handle.
type PaymentOrderHandle struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"` // paise
	Currency       string `json:"currency"`
}

// PaymentConfig configures the browser payment widget.
type PaymentConfig struct {
	GatewayKey  string `json:"gatewayKey"`
	DisplayName string `json:"displayName"`
	Theme       string `json:"theme,omitempty"`
}

// PaymentResult is the signed gateway callback submitted for server verification.
type PaymentResult struct {
	OrderID        string `json:"orderId"`
	PaymentID      string `json:"paymentId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Signature      string `json:"signature"`
}
