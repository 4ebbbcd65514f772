package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/model"
	"storefront/internal/transport"
)

const (
	pathCart          = "/api/cart/%s"
	pathCartItems     = "/api/cart/%s/items"
	pathCartItem      = "/api/cart/items/%s"
	pathApplyOffer    = "/api/offers/apply"
	pathPaymentConfig = "/api/payments/config"
	pathOrders        = "/api/orders"
	pathPaymentOrder  = "/api/orders/%s/payment-order"
	pathConfirm       = "/api/payments/confirm"
	pathVersion       = "/api/version"

	serviceName = "commerce API"
	userAgent   = "Storefront/1.0"
)

// Config holds commerce API client configuration.
type Config struct {
	BaseURL    string
	APIKey     string       // sent as X-Api-Key on every request
	HTTPClient *http.Client // optional; defaults to the transport stack without breaker
}

var _ API = (*Client)(nil)

// Client is the commerce API HTTP client. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a commerce API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport.New(transport.Options{Name: "commerce-api"}),
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

// === Cart Operations ===

// Fetch retrieves the user's server cart.
func (c *Client) Fetch(ctx context.Context, userID string) ([]model.AuthLine, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf(pathCart, url.PathEscape(userID)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating cart request: %w", err)
	}

	var resp cartResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	lines := make([]model.AuthLine, 0, len(resp.Items))
	for _, item := range resp.Items {
		lines = append(lines, item.toAuthLine())
	}
	return lines, nil
}

// AddLine adds a product variant to the user's cart.
func (c *Client) AddLine(ctx context.Context, userID, productID string, qty int, size string) error {
	body := &addItemRequest{ProductID: productID, Quantity: qty, Size: size}
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf(pathCartItems, url.PathEscape(userID)), body)
	if err != nil {
		return fmt.Errorf("creating add-line request: %w", err)
	}
	return c.do(req, nil)
}

// RemoveLine deletes a cart line.
func (c *Client) RemoveLine(ctx context.Context, cartItemID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf(pathCartItem, url.PathEscape(cartItemID)), nil)
	if err != nil {
		return fmt.Errorf("creating remove-line request: %w", err)
	}
	return c.do(req, nil)
}

// ClearAll empties the user's cart.
func (c *Client) ClearAll(ctx context.Context, userID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf(pathCart, url.PathEscape(userID)), nil)
	if err != nil {
		return fmt.Errorf("creating clear-cart request: %w", err)
	}
	return c.do(req, nil)
}

// === Offers ===

// ApplyOffer prices an offer code. A rejected code is a validation error on "offerCode".
func (c *Client) ApplyOffer(ctx context.Context, userID, code string) (*model.AppliedOffer, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathApplyOffer, &applyOfferRequest{UserID: userID, Code: code})
	if err != nil {
		return nil, fmt.Errorf("creating apply-offer request: %w", err)
	}

	var resp applyOfferResponse
	if err := c.do(req, &resp); err != nil {
		// Unknown and ineligible codes are both input errors on the code.
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewValidationError("offerCode", "offer not found")
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && errors.Is(err, model.ErrInvalidRequest) {
			for _, reason := range apiErr.Fields {
				return nil, model.NewValidationError("offerCode", reason)
			}
		}
		return nil, err
	}

	if resp.Code == "" {
		resp.Code = code
	}
	discount := model.MinorFromDecimal(resp.Discount)
	if discount <= 0 {
		return nil, model.NewValidationError("offerCode", "offer gives no discount on this cart")
	}
	return &model.AppliedOffer{
		OfferCode:          resp.Code,
		DiscountAmount:     discount,
		DiscountPercentage: resp.DiscountPercentage,
	}, nil
}

// === Orders & Payment ===

// GetPaymentConfig fetches the payment widget configuration.
func (c *Client) GetPaymentConfig(ctx context.Context) (*model.PaymentConfig, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathPaymentConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("creating payment-config request: %w", err)
	}

	var resp paymentConfigResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.GatewayKey == "" {
		return nil, model.NewUpstreamError(serviceName, errors.New("payment config has no gateway key"))
	}
	return &model.PaymentConfig{
		GatewayKey:  resp.GatewayKey,
		DisplayName: resp.DisplayName,
		Theme:       resp.Theme,
	}, nil
}

// CreateDraftOrder creates a draft order.
func (c *Client) CreateDraftOrder(ctx context.Context, userID string, address model.Address, offerCode string) (*model.DraftOrder, error) {
	body := &draftOrderRequest{UserID: userID, Address: address, OfferCode: offerCode}
	req, err := c.newRequest(ctx, http.MethodPost, pathOrders, body)
	if err != nil {
		return nil, fmt.Errorf("creating draft-order request: %w", err)
	}

	var resp draftOrderResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, model.NewUpstreamError(serviceName, errors.New("draft order has no id"))
	}

	status := model.OrderStatus(resp.Status)
	if status == "" {
		status = model.OrderStatusDraft
	}
	return &model.DraftOrder{
		OrderID:  string(resp.OrderID),
		Amount:   model.MinorFromDecimal(resp.Amount),
		Currency: resp.Currency,
		Status:   status,
	}, nil
}

// CreatePaymentOrder obtains a gateway order handle.
func (c *Client) CreatePaymentOrder(ctx context.Context, orderID string) (*model.PaymentOrderHandle, error) {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf(pathPaymentOrder, url.PathEscape(orderID)), nil)
	if err != nil {
		return nil, fmt.Errorf("creating payment-order request: %w", err)
	}

	var resp paymentOrderResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.GatewayOrderID == "" {
		return nil, model.NewUpstreamError(serviceName, errors.New("payment order has no gateway order id"))
	}

	handle := &model.PaymentOrderHandle{
		OrderID:        string(resp.OrderID),
		GatewayOrderID: resp.GatewayOrderID,
		Amount:         resp.Amount,
		Currency:       resp.Currency,
	}
	if handle.OrderID == "" {
		handle.OrderID = orderID
	}
	return handle, nil
}

// ConfirmPayment asks the server to verify the gateway signature.
// success=false in a 2xx response is a payment error.
func (c *Client) ConfirmPayment(ctx context.Context, result model.PaymentResult) error {
	req, err := c.newRequest(ctx, http.MethodPost, pathConfirm, &result)
	if err != nil {
		return fmt.Errorf("creating confirm request: %w", err)
	}

	var resp confirmPaymentResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "payment verification failed"
		}
		return model.NewPaymentError(msg)
	}
	return nil
}

// === HTTP Helpers ===

// newRequest creates a JSON request. The bearer token comes from ctx (WithAccessToken).
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if token := AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body)
	}

	if result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
		}
	}

	return nil
}

// parseError converts commerce API errors to model.APIError.
func parseError(statusCode int, body []byte) error {
	var apiErr errorResponse
	json.Unmarshal(body, &apiErr) // Best effort parse

	switch statusCode {
	case 400, 422:
		msg := apiErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		field := apiErr.Field
		if field == "" {
			field = "request"
		}
		return model.NewValidationError(field, msg)
	case 401:
		return model.NewUnauthorizedError("commerce API authentication failed")
	case 403:
		return model.NewUnauthorizedError("commerce API access denied")
	case 404:
		return model.NewNotFoundError("resource")
	case 429:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s - %s", statusCode, apiErr.Code, apiErr.Message))
	}
}
