package storeapi

import (
	"context"

	"storefront/internal/model"
)

// Mock implements API for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchFunc              func(ctx context.Context, userID string) ([]model.AuthLine, error)
	AddLineFunc            func(ctx context.Context, userID, productID string, qty int, size string) error
	RemoveLineFunc         func(ctx context.Context, cartItemID string) error
	ClearAllFunc           func(ctx context.Context, userID string) error
	ApplyOfferFunc         func(ctx context.Context, userID, code string) (*model.AppliedOffer, error)
	GetPaymentConfigFunc   func(ctx context.Context) (*model.PaymentConfig, error)
	CreateDraftOrderFunc   func(ctx context.Context, userID string, address model.Address, offerCode string) (*model.DraftOrder, error)
	CreatePaymentOrderFunc func(ctx context.Context, orderID string) (*model.PaymentOrderHandle, error)
	ConfirmPaymentFunc     func(ctx context.Context, result model.PaymentResult) error
}

var _ API = (*Mock)(nil)

// Fetch calls the configured FetchFunc or returns an empty cart.
func (m *Mock) Fetch(ctx context.Context, userID string) ([]model.AuthLine, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, userID)
	}
	return []model.AuthLine{}, nil
}

// AddLine calls the configured AddLineFunc or succeeds.
func (m *Mock) AddLine(ctx context.Context, userID, productID string, qty int, size string) error {
	if m.AddLineFunc != nil {
		return m.AddLineFunc(ctx, userID, productID, qty, size)
	}
	return nil
}

// RemoveLine calls the configured RemoveLineFunc or succeeds.
func (m *Mock) RemoveLine(ctx context.Context, cartItemID string) error {
	if m.RemoveLineFunc != nil {
		return m.RemoveLineFunc(ctx, cartItemID)
	}
	return nil
}

// ClearAll calls the configured ClearAllFunc or succeeds.
func (m *Mock) ClearAll(ctx context.Context, userID string) error {
	if m.ClearAllFunc != nil {
		return m.ClearAllFunc(ctx, userID)
	}
	return nil
}

// ApplyOffer calls the configured ApplyOfferFunc or rejects the code.
func (m *Mock) ApplyOffer(ctx context.Context, userID, code string) (*model.AppliedOffer, error) {
	if m.ApplyOfferFunc != nil {
		return m.ApplyOfferFunc(ctx, userID, code)
	}
	return nil, model.NewValidationError("offerCode", "offer not found")
}

// GetPaymentConfig calls the configured GetPaymentConfigFunc or returns a test key.
func (m *Mock) GetPaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	if m.GetPaymentConfigFunc != nil {
		return m.GetPaymentConfigFunc(ctx)
	}
	return &model.PaymentConfig{GatewayKey: "rzp_test_key", DisplayName: "Storefront"}, nil
}

// CreateDraftOrder calls the configured CreateDraftOrderFunc or returns an error.
func (m *Mock) CreateDraftOrder(ctx context.Context, userID string, address model.Address, offerCode string) (*model.DraftOrder, error) {
	if m.CreateDraftOrderFunc != nil {
		return m.CreateDraftOrderFunc(ctx, userID, address, offerCode)
	}
	return nil, model.NewInternalError(nil)
}

// CreatePaymentOrder calls the configured CreatePaymentOrderFunc or returns an error.
func (m *Mock) CreatePaymentOrder(ctx context.Context, orderID string) (*model.PaymentOrderHandle, error) {
	if m.CreatePaymentOrderFunc != nil {
		return m.CreatePaymentOrderFunc(ctx, orderID)
	}
	return nil, model.NewInternalError(nil)
}

// ConfirmPayment calls the configured ConfirmPaymentFunc or returns an error.
func (m *Mock) ConfirmPayment(ctx context.Context, result model.PaymentResult) error {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, result)
	}
	return model.NewInternalError(nil)
}
