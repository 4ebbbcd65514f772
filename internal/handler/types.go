package handler

import (
	"github.com/shopspring/decimal"

	"storefront/internal/merge"
	"storefront/internal/model"
)

// addItemRequest is the body of POST /cart/items.
// Prices are decimal rupees as shown on the product page.
type addItemRequest struct {
	ProductID           string           `json:"productId"`
	ProductName         string           `json:"productName"`
	UnitPrice           decimal.Decimal  `json:"unitPrice"`
	DiscountedUnitPrice *decimal.Decimal `json:"discountedUnitPrice,omitempty"`
	Quantity            int              `json:"quantity"`
	Size                string           `json:"size"`
	Images              []string         `json:"images"`
}

func (r addItemRequest) toLine() model.CartLine {
	line := model.CartLine{
		ProductID:    r.ProductID,
		ProductName:  r.ProductName,
		UnitPrice:    model.MinorFromDecimal(r.UnitPrice),
		Quantity:     r.Quantity,
		SelectedSize: r.Size,
		Images:       r.Images,
	}
	if r.DiscountedUnitPrice != nil {
		line.DiscountedUnitPrice = model.MinorFromDecimal(*r.DiscountedUnitPrice)
	}
	if line.Quantity == 0 {
		line.Quantity = 1
	}
	return line
}

// updateItemRequest is the body of PATCH /cart/items/{productId}.
// Exactly one of Delta (+1/-1) or Quantity is set.
type updateItemRequest struct {
	Size     string `json:"size"`
	Delta    int    `json:"delta,omitempty"`
	Quantity *int   `json:"quantity,omitempty"`
}

// signInRequest is the body of POST /session. The token was issued by the
// auth service; the BFF only forwards it.
type signInRequest struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

type signInResponse struct {
	Merge merge.Result   `json:"merge"`
	Cart  model.CartView `json:"cart"`
	Error *errorBody     `json:"error,omitempty"` // set when the merge partially failed
}

type offerRequest struct {
	Code string `json:"code"`
}

type checkoutRequest struct {
	Address model.Address `json:"address"`
}
