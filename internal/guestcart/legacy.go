package guestcart

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

// record is the union of every guest-cart entry shape ever written.
//
// Canonical entries use productId/productName/unitPrice (paise)/images.
// The transient-id scheme keyed entries by a client id (id, tempId), named the
// product "name" and stored rupee prices under "price". The single-image scheme
// stored one "image" string instead of the "images" list.
type record struct {
	ProductID           model.FlexID     `json:"productId"`
	ProductName         string           `json:"productName"`
	UnitPrice           *int64           `json:"unitPrice"`
	DiscountedUnitPrice int64            `json:"discountedUnitPrice"`
	Quantity            int              `json:"quantity"`
	SelectedSize        string           `json:"selectedSize"`
	Images              []string         `json:"images"`
	UpdatedAt           time.Time        `json:"updatedAt"`
	ID                  model.FlexID     `json:"id"`
	TempID              model.FlexID     `json:"tempId"`
	Name                string           `json:"name"`
	Price               *decimal.Decimal `json:"price"`
	DiscountedPrice     *decimal.Decimal `json:"discountedPrice"`
	Size                string           `json:"size"`
	Image               string           `json:"image"`
}

// canonical maps a decoded record to a GuestLine. ok is false when the record
// carries no usable product identity.
func (r record) canonical() (model.GuestLine, bool) {
	productID := string(r.ProductID)
	if productID == "" {
		// Transient-id entries stored the product id under "id"; tempId is never a product.
		productID = string(r.ID)
	}
	if productID == "" {
		return model.GuestLine{}, false
	}

	line := model.GuestLine{
		CartLine: model.CartLine{
			ProductID:           productID,
			ProductName:         firstNonEmpty(r.ProductName, r.Name),
			DiscountedUnitPrice: r.DiscountedUnitPrice,
			Quantity:            model.ClampQuantity(r.Quantity),
			SelectedSize:        firstNonEmpty(r.SelectedSize, r.Size),
			Images:              r.Images,
		},
		UpdatedAt: r.UpdatedAt,
	}

	switch {
	case r.UnitPrice != nil:
		line.UnitPrice = *r.UnitPrice
	case r.Price != nil:
		line.UnitPrice = model.MinorFromDecimal(*r.Price)
	}
	if line.DiscountedUnitPrice == 0 && r.DiscountedPrice != nil {
		line.DiscountedUnitPrice = model.MinorFromDecimal(*r.DiscountedPrice)
	}

	if len(line.Images) == 0 && r.Image != "" {
		line.Images = []string{r.Image}
	}
	if line.Images == nil {
		line.Images = []string{}
	}
	return line, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
