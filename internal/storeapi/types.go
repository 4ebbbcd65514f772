package storeapi

import (
	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

// === Commerce API wire types ===
// Prices are decimal rupees on the wire; gateway amounts are integral paise.

// cartResponse is returned by GET /api/cart/{userId}.
type cartResponse struct {
	UserID model.FlexID `json:"userId"`
	Items  []cartItem   `json:"items"`
}

type cartItem struct {
	CartItemID      model.FlexID     `json:"cartItemId"`
	ProductID       model.FlexID     `json:"productId"`
	ProductName     string           `json:"productName"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	Quantity        int              `json:"quantity"`
	Size            string           `json:"size"`
	Images          []string         `json:"images"`
}

func (i cartItem) toAuthLine() model.AuthLine {
	line := model.AuthLine{
		CartItemID: string(i.CartItemID),
		CartLine: model.CartLine{
			ProductID:    string(i.ProductID),
			ProductName:  i.ProductName,
			UnitPrice:    model.MinorFromDecimal(i.Price),
			Quantity:     i.Quantity,
			SelectedSize: i.Size,
			Images:       i.Images,
		},
	}
	if i.DiscountedPrice != nil {
		line.DiscountedUnitPrice = model.MinorFromDecimal(*i.DiscountedPrice)
	}
	if line.Images == nil {
		line.Images = []string{}
	}
	return line
}

// addItemRequest is the body of POST /api/cart/{userId}/items.
type addItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type applyOfferRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type applyOfferResponse struct {
	Code               string          `json:"code"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountPercentage float64         `json:"discountPercentage"`
}

type paymentConfigResponse struct {
	GatewayKey  string `json:"gatewayKey"`
	DisplayName string `json:"displayName"`
	Theme       string `json:"theme"`
}

type draftOrderRequest struct {
	UserID    string        `json:"userId"`
	Address   model.Address `json:"address"`
	OfferCode string        `json:"offerCode,omitempty"`
}

type draftOrderResponse struct {
	OrderID  model.FlexID    `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

type paymentOrderResponse struct {
	OrderID        model.FlexID `json:"orderId"`
	GatewayOrderID string       `json:"gatewayOrderId"`
	Amount         int64        `json:"amount"` // paise
	Currency       string       `json:"currency"`
}

type confirmPaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// errorResponse is the commerce API error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field"`
}
