// MCP transport for the storefront engine using the official MCP Go SDK.
// Exposes the cart, session and checkout operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/checkout"
	"storefront/internal/gateway"
	"storefront/internal/merge"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

// === MCP Meta Types ===

// MCPMeta identifies the visitor session a tool call acts on.
// An empty session starts a new one; its id is returned in every result.
type MCPMeta struct {
	Session string `json:"session,omitempty" jsonschema:"storefront session id returned by a previous call"`
}

// === MCP Tool Input Types ===

// SessionInput is the input of tools that need no arguments.
type SessionInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata"`
}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	Meta        MCPMeta  `json:"meta" jsonschema:"request metadata"`
	ProductID   string   `json:"product_id" jsonschema:"product ID"`
	ProductName string   `json:"product_name,omitempty" jsonschema:"display name"`
	UnitPrice   string   `json:"unit_price,omitempty" jsonschema:"unit price in rupees, e.g. 499.50"`
	Quantity    int      `json:"quantity,omitempty" jsonschema:"quantity, default 1"`
	Size        string   `json:"size,omitempty" jsonschema:"selected size"`
	Images      []string `json:"images,omitempty" jsonschema:"image URLs"`
}

// UpdateCartItemInput is the input schema for update_cart_item.
type UpdateCartItemInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata"`
	ProductID string  `json:"product_id" jsonschema:"product ID"`
	Size      string  `json:"size,omitempty" jsonschema:"selected size"`
	Quantity  int     `json:"quantity" jsonschema:"new quantity (values below 1 become 1)"`
}

// RemoveCartItemInput is the input schema for remove_cart_item.
type RemoveCartItemInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata"`
	ProductID string  `json:"product_id" jsonschema:"product ID"`
	Size      string  `json:"size,omitempty" jsonschema:"selected size"`
}

// SignInInput is the input schema for sign_in.
type SignInInput struct {
	Meta        MCPMeta `json:"meta" jsonschema:"request metadata"`
	UserID      string  `json:"user_id" jsonschema:"authenticated user ID"`
	AccessToken string  `json:"access_token,omitempty" jsonschema:"bearer token issued by the auth service"`
}

// ApplyOfferInput is the input schema for apply_offer.
type ApplyOfferInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata"`
	Code string  `json:"code" jsonschema:"offer code"`
}

// StartCheckoutInput is the input schema for start_checkout.
type StartCheckoutInput struct {
	Meta    MCPMeta       `json:"meta" jsonschema:"request metadata"`
	Address AddressOutput `json:"address" jsonschema:"shipping address"`
}

// PaymentEventInput is the input schema for report_payment_event.
type PaymentEventInput struct {
	Meta           MCPMeta `json:"meta" jsonschema:"request metadata"`
	Event          string  `json:"event" jsonschema:"payment.success, modal.dismiss or payment.failed"`
	GatewayOrderID string  `json:"gateway_order_id" jsonschema:"gateway order id from the widget options"`
	PaymentID      string  `json:"payment_id,omitempty" jsonschema:"gateway payment id (success only)"`
	Signature      string  `json:"signature,omitempty" jsonschema:"gateway signature (success only)"`
	Reason         string  `json:"reason,omitempty" jsonschema:"failure reason"`
}

// === MCP Tool Output Types ===
// Flat mirrors of the engine types so the SDK can infer output schemas.

// ToolOutput is the result of every tool. Only the relevant parts are set.
type ToolOutput struct {
	Session       string               `json:"session"`
	Cart          *CartOutput          `json:"cart,omitempty"`
	Merge         *MergeOutput         `json:"merge,omitempty"`
	Offer         *OfferOutput         `json:"offer,omitempty"`
	Checkout      *CheckoutOutput      `json:"checkout,omitempty"`
	Notifications []NotificationOutput `json:"notifications,omitempty"`
}

type CartOutput struct {
	Authenticated      bool             `json:"authenticated"`
	Lines              []CartLineOutput `json:"lines"`
	Subtotal           int64            `json:"subtotal"`
	HasUnsyncedChanges bool             `json:"has_unsynced_changes"`
}

type CartLineOutput struct {
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	Size             string `json:"size"`
	UnitPrice        int64  `json:"unit_price"`
	Quantity         int    `json:"quantity"`
	OriginalQuantity int    `json:"original_quantity"`
	LineTotal        int64  `json:"line_total"`
}

type MergeOutput struct {
	Skipped bool     `json:"skipped"`
	Reason  string   `json:"reason,omitempty"`
	Merged  int      `json:"merged"`
	Failed  []string `json:"failed,omitempty"`
}

type OfferOutput struct {
	Code               string  `json:"code"`
	DiscountAmount     int64   `json:"discount_amount"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
}

type CheckoutOutput struct {
	State     string        `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	OrderID   string        `json:"order_id,omitempty"`
	Amount    int64         `json:"amount,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	PaymentID string        `json:"payment_id,omitempty"`
	Widget    *WidgetOutput `json:"widget,omitempty"`
	Offer     *OfferOutput  `json:"offer,omitempty"`
}

type WidgetOutput struct {
	Key            string `json:"key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	GatewayOrderID string `json:"gateway_order_id"`
	DisplayName    string `json:"name"`
}

type NotificationOutput struct {
	Kind    string `json:"kind"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// AddressOutput mirrors model.Address with MCP-style field names.
type AddressOutput struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Landmark   string `json:"landmark,omitempty"`
	Remark     string `json:"remark,omitempty"`
}

func (a AddressOutput) toModel() model.Address {
	return model.Address{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Landmark:   a.Landmark,
		Remark:     a.Remark,
	}
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart and checkout. Pass meta.session from the previous result " +
				"to keep acting on the same visitor.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{Name: "get_cart", Description: "Get the visitor's cart."}, h.mcpGetCart)
	mcp.AddTool(server, &mcp.Tool{Name: "add_to_cart", Description: "Add a product variant to the cart."}, h.mcpAddToCart)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set a line's quantity. For signed-in visitors the change is saved with save_cart or at checkout.",
	}, h.mcpUpdateCartItem)
	mcp.AddTool(server, &mcp.Tool{Name: "remove_cart_item", Description: "Remove a line from the cart."}, h.mcpRemoveCartItem)
	mcp.AddTool(server, &mcp.Tool{Name: "clear_cart", Description: "Remove every line from the cart."}, h.mcpClearCart)
	mcp.AddTool(server, &mcp.Tool{Name: "save_cart", Description: "Push unsaved quantity changes to the server cart."}, h.mcpSaveCart)
	mcp.AddTool(server, &mcp.Tool{Name: "sign_in", Description: "Sign the visitor in and merge the guest cart."}, h.mcpSignIn)
	mcp.AddTool(server, &mcp.Tool{Name: "sign_out", Description: "Sign the visitor out."}, h.mcpSignOut)
	mcp.AddTool(server, &mcp.Tool{Name: "apply_offer", Description: "Apply an offer code."}, h.mcpApplyOffer)
	mcp.AddTool(server, &mcp.Tool{Name: "remove_offer", Description: "Remove the applied offer."}, h.mcpRemoveOffer)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_checkout",
		Description: "Start checkout with a shipping address. Poll get_checkout for the payment widget options.",
	}, h.mcpStartCheckout)
	mcp.AddTool(server, &mcp.Tool{Name: "get_checkout", Description: "Get the checkout state."}, h.mcpGetCheckout)
	mcp.AddTool(server, &mcp.Tool{Name: "cancel_checkout", Description: "Cancel a payment awaiting the widget."}, h.mcpCancelCheckout)
	mcp.AddTool(server, &mcp.Tool{Name: "report_payment_event", Description: "Report the payment widget's outcome."}, h.mcpPaymentEvent)
	mcp.AddTool(server, &mcp.Tool{Name: "get_notifications", Description: "Drain the visitor's notifications."}, h.mcpNotifications)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	view, err := e.Cart.Load(ctx)
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpAddToCart(ctx context.Context, req *mcp.CallToolRequest, input AddToCartInput) (*mcp.CallToolResult, ToolOutput, error) {
	if input.ProductID == "" {
		return nil, ToolOutput{}, fmt.Errorf("product_id is required")
	}
	id, e := h.mcpVisitor(input.Meta)
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	view, err := e.Cart.Add(ctx, model.CartLine{
		ProductID:    input.ProductID,
		ProductName:  input.ProductName,
		UnitPrice:    model.ParseMinor(input.UnitPrice),
		Quantity:     qty,
		SelectedSize: input.Size,
		Images:       input.Images,
	})
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpUpdateCartItem(ctx context.Context, req *mcp.CallToolRequest, input UpdateCartItemInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	view, err := e.Cart.SetQuantity(ctx, model.LineKey{ProductID: input.ProductID, Size: input.Size}, input.Quantity)
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpRemoveCartItem(ctx context.Context, req *mcp.CallToolRequest, input RemoveCartItemInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	view, err := e.Cart.Remove(ctx, model.LineKey{ProductID: input.ProductID, Size: input.Size})
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpClearCart(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	view, err := e.Cart.Clear(ctx)
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpSaveCart(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	view, err := e.Cart.Sync(ctx)
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Cart: cartOutput(view)}, nil
}

func (h *Handler) mcpSignIn(ctx context.Context, req *mcp.CallToolRequest, input SignInInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	res, view, err := e.SignIn(ctx, input.UserID, input.AccessToken)
	if err != nil && !errors.Is(err, model.ErrPartialFailure) {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	// A partial merge is reported through merge.failed; the visitor is signed in.
	return nil, ToolOutput{Session: id, Cart: cartOutput(view), Merge: mergeOutput(res)}, nil
}

func (h *Handler) mcpSignOut(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	return nil, ToolOutput{Session: id, Cart: cartOutput(e.SignOut(ctx))}, nil
}

func (h *Handler) mcpApplyOffer(ctx context.Context, req *mcp.CallToolRequest, input ApplyOfferInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	offer, err := e.Checkout.ApplyOffer(ctx, input.Code)
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Offer: offerOutput(offer)}, nil
}

func (h *Handler) mcpRemoveOffer(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	if err := e.Checkout.RemoveOffer(); err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Checkout: checkoutOutput(e.Checkout.Snapshot())}, nil
}

func (h *Handler) mcpStartCheckout(ctx context.Context, req *mcp.CallToolRequest, input StartCheckoutInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	snap, err := e.Checkout.Start(ctx, input.Address.toModel())
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Checkout: checkoutOutput(snap)}, nil
}

func (h *Handler) mcpGetCheckout(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	return nil, ToolOutput{Session: id, Checkout: checkoutOutput(e.Checkout.Snapshot())}, nil
}

func (h *Handler) mcpCancelCheckout(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	if err := e.Checkout.Cancel(); err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Checkout: checkoutOutput(e.Checkout.Snapshot())}, nil
}

func (h *Handler) mcpPaymentEvent(ctx context.Context, req *mcp.CallToolRequest, input PaymentEventInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	err := e.Relay.Deliver(gateway.Event{
		Type:           input.Event,
		GatewayOrderID: input.GatewayOrderID,
		PaymentID:      input.PaymentID,
		Signature:      input.Signature,
		Reason:         input.Reason,
	})
	if err != nil {
		return nil, ToolOutput{}, h.mcpError(err)
	}
	return nil, ToolOutput{Session: id, Checkout: checkoutOutput(e.Checkout.Snapshot())}, nil
}

func (h *Handler) mcpNotifications(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, ToolOutput, error) {
	id, e := h.mcpVisitor(input.Meta)
	out := ToolOutput{Session: id, Notifications: []NotificationOutput{}}
	for _, n := range e.Inbox.Drain() {
		out.Notifications = append(out.Notifications, NotificationOutput{
			Kind:    string(n.Kind),
			Topic:   n.Topic,
			Message: n.Message,
			Time:    n.Time.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// mcpVisitor resolves the session named in meta, minting one when empty.
func (h *Handler) mcpVisitor(meta MCPMeta) (string, *storefront.Engine) {
	id := meta.Session
	if id == "" {
		id = session.NewID()
	}
	return id, h.registry.Get(id)
}

// mcpError converts engine errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Failed) > 0 {
			return fmt.Errorf("%s: %s %v", apiErr.Code, apiErr.Message, apiErr.Failed)
		}
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, gateway.ErrNotAwaiting) || errors.Is(err, gateway.ErrAlreadyDelivered) {
		return err
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

// === Output mapping ===

func cartOutput(v model.CartView) *CartOutput {
	out := &CartOutput{
		Authenticated:      v.Authenticated,
		Lines:              make([]CartLineOutput, 0, len(v.Lines)),
		Subtotal:           v.Subtotal,
		HasUnsyncedChanges: v.HasUnsyncedChanges,
	}
	for _, l := range v.Lines {
		out.Lines = append(out.Lines, CartLineOutput{
			ProductID:        l.ProductID,
			ProductName:      l.ProductName,
			Size:             l.SelectedSize,
			UnitPrice:        l.EffectiveUnitPrice(),
			Quantity:         l.Quantity,
			OriginalQuantity: l.OriginalQuantity,
			LineTotal:        l.Total,
		})
	}
	return out
}

func mergeOutput(r merge.Result) *MergeOutput {
	out := &MergeOutput{Skipped: r.Skipped, Reason: r.Reason, Merged: r.Merged}
	for _, k := range r.Failed {
		out.Failed = append(out.Failed, k.String())
	}
	return out
}

func offerOutput(o *model.AppliedOffer) *OfferOutput {
	if o == nil {
		return nil
	}
	return &OfferOutput{Code: o.OfferCode, DiscountAmount: o.DiscountAmount, DiscountPercentage: o.DiscountPercentage}
}

func checkoutOutput(s checkout.Snapshot) *CheckoutOutput {
	out := &CheckoutOutput{
		State:     string(s.State),
		Reason:    s.Reason,
		PaymentID: s.PaymentID,
		Offer:     offerOutput(s.Offer),
	}
	if s.Error != nil {
		out.ErrorCode = s.Error.Code
	}
	if s.Draft != nil {
		out.OrderID = s.Draft.OrderID
		out.Amount = s.Draft.Amount
		out.Currency = s.Draft.Currency
	}
	if s.Widget != nil {
		out.Widget = &WidgetOutput{
			Key:            s.Widget.Key,
			Amount:         s.Widget.Amount,
			Currency:       s.Widget.Currency,
			GatewayOrderID: s.Widget.GatewayOrderID,
			DisplayName:    s.Widget.DisplayName,
		}
	}
	return out
}
