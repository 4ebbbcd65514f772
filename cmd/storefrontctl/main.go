// storefrontctl is a CLI tool for driving storefront cart and checkout flows.
// Each command performs a single operation, making it composable for scripts.
// The visitor is identified by -session; the first call without one prints
// the minted id.
//
// Commands:
//
//	storefrontctl cart     -session SID
//	storefrontctl add      -session SID -product ID -price 499.50 [-size M] [-qty N]
//	storefrontctl update   -session SID -product ID [-size M] (-qty N | -delta ±1)
//	storefrontctl remove   -session SID -product ID [-size M]
//	storefrontctl sync     -session SID
//	storefrontctl signin   -session SID -user ID [-token T]
//	storefrontctl signout  -session SID
//	storefrontctl offer    -session SID -code CODE
//	storefrontctl checkout -session SID [-wait]
//	storefrontctl pay      -session SID -event success|dismiss|failed [-secret S]
//	storefrontctl status   -session SID
//	storefrontctl inbox    -session SID
//
// Examples:
//
//	SID=$(storefrontctl add -product 60 -price 499 -size M -q)
//	storefrontctl signin -session $SID -user u1 -token $TOKEN
//	storefrontctl checkout -session $SID -wait
//	storefrontctl pay -session $SID -event success -secret $WEBHOOK_SECRET
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"storefront/internal/gateway"
	"storefront/internal/model"
	"storefront/internal/session"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	baseURL   string
	sessionID string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "sync":
		runSync(args)
	case "signin":
		runSignIn(args)
	case "signout":
		runSignOut(args)
	case "offer":
		runOffer(args)
	case "checkout":
		runCheckout(args)
	case "pay":
		runPay(args)
	case "status":
		runStatus(args)
	case "inbox":
		runInbox(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `storefrontctl - storefront cart and checkout test tool

Usage:
  storefrontctl <command> [options]

Commands:
  cart      Show the cart
  add       Add a product variant
  update    Change a line's quantity
  remove    Remove a line
  sync      Save pending quantity edits
  signin    Sign in and merge the guest cart
  signout   Sign out
  offer     Apply an offer code
  checkout  Start checkout with a test address
  pay       Report the payment widget's outcome
  status    Show the checkout state
  inbox     Drain notifications

Run 'storefrontctl <command> -h' for command-specific options.
`)
}

// newFlags registers the flags every command shares.
func newFlags(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&baseURL, "url", "http://localhost:8080", "storefront base URL")
	fs.StringVar(&sessionID, "session", os.Getenv("STOREFRONT_SESSION"), "visitor session id")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the session id or state")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefrontctl %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlags("cart", "[options]")
	parse(fs, args)
	view := cartRequest("GET", "/cart", nil)
	printCart(view)
}

func runAdd(args []string) {
	fs := newFlags("add", "-product ID -price AMOUNT [options]")
	var productID, name, price, size string
	var qty int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&name, "name", "", "Product name")
	fs.StringVar(&price, "price", "", "Unit price in rupees, e.g. 499.50 (required)")
	fs.StringVar(&size, "size", "", "Size")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	parse(fs, args)

	if productID == "" || price == "" {
		fs.Usage()
		os.Exit(1)
	}
	body := map[string]interface{}{
		"productId":   productID,
		"productName": name,
		"unitPrice":   price,
		"quantity":    qty,
		"size":        size,
	}
	view := cartRequest("POST", "/cart/items", body)
	if quiet {
		fmt.Println(sessionID)
		return
	}
	printSuccess("Added %s", productID)
	printCart(view)
}

func runUpdate(args []string) {
	fs := newFlags("update", "-product ID (-qty N | -delta 1|-1) [options]")
	var productID, size string
	var qty, delta int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size")
	fs.IntVar(&qty, "qty", 0, "New quantity")
	fs.IntVar(&delta, "delta", 0, "Step by +1 or -1")
	parse(fs, args)

	if productID == "" || (qty == 0 && delta == 0) {
		fs.Usage()
		os.Exit(1)
	}
	body := map[string]interface{}{"size": size}
	if qty != 0 {
		body["quantity"] = qty
	} else {
		body["delta"] = delta
	}
	view := cartRequest("PATCH", "/cart/items/"+url.PathEscape(productID), body)
	printCart(view)
}

func runRemove(args []string) {
	fs := newFlags("remove", "-product ID [-size S] [options]")
	var productID, size string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&size, "size", "", "Size")
	parse(fs, args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}
	path := "/cart/items/" + url.PathEscape(productID) + "?size=" + url.QueryEscape(size)
	printCart(cartRequest("DELETE", path, nil))
}

func runSync(args []string) {
	fs := newFlags("sync", "[options]")
	parse(fs, args)
	view := cartRequest("POST", "/cart/sync", nil)
	printSuccess("Cart saved")
	printCart(view)
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runSignIn(args []string) {
	fs := newFlags("signin", "-user ID [-token T] [options]")
	var userID, token string
	fs.StringVar(&userID, "user", "", "User ID (required)")
	fs.StringVar(&token, "token", os.Getenv("STOREFRONT_TOKEN"), "Access token issued by the auth service")
	parse(fs, args)

	if userID == "" {
		fs.Usage()
		os.Exit(1)
	}
	var resp struct {
		Merge struct {
			Skipped bool            `json:"skipped"`
			Reason  string          `json:"reason"`
			Merged  int             `json:"merged"`
			Failed  []model.LineKey `json:"failed"`
		} `json:"merge"`
		Cart  model.CartView `json:"cart"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := doRequest("POST", "/session", map[string]string{"userId": userID, "accessToken": token}, &resp); err != nil {
		fatal("Failed to sign in: %v", err)
	}
	if quiet {
		fmt.Println(sessionID)
		return
	}
	printSuccess("Signed in as %s", userID)
	switch {
	case resp.Merge.Skipped:
		printInfo("Merge skipped: %s", resp.Merge.Reason)
	case len(resp.Merge.Failed) > 0:
		printWarning("Merged %d lines; %d failed and stay in the guest cart", resp.Merge.Merged, len(resp.Merge.Failed))
	default:
		printInfo("Merged %d lines", resp.Merge.Merged)
	}
	if resp.Error != nil {
		printError("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	printCart(resp.Cart)
}

func runSignOut(args []string) {
	fs := newFlags("signout", "[options]")
	parse(fs, args)
	view := cartRequest("DELETE", "/session", nil)
	printSuccess("Signed out")
	printCart(view)
}

func runOffer(args []string) {
	fs := newFlags("offer", "-code CODE [options]")
	var code string
	fs.StringVar(&code, "code", "", "Offer code (required)")
	parse(fs, args)

	if code == "" {
		fs.Usage()
		os.Exit(1)
	}
	var offer model.AppliedOffer
	if err := doRequest("POST", "/offers", map[string]string{"code": code}, &offer); err != nil {
		fatal("Offer rejected: %v", err)
	}
	printSuccess("Offer %s applied: -%s", offer.OfferCode, formatMinor(offer.DiscountAmount))
}

// =============================================================================
// CHECKOUT COMMANDS
// =============================================================================

// snapshot mirrors the fields of GET /checkout the CLI prints.
type snapshot struct {
	State  string `json:"state"`
	Reason string `json:"reason"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Draft *struct {
		OrderID string `json:"orderId"`
		Amount  int64  `json:"amount"`
	} `json:"draft"`
	Widget    *gateway.Options `json:"widget"`
	PaymentID string           `json:"paymentId"`
}

func runCheckout(args []string) {
	fs := newFlags("checkout", "[-wait] [options]")
	var wait bool
	fs.BoolVar(&wait, "wait", false, "Wait until the payment widget is ready")
	parse(fs, args)

	body := map[string]interface{}{
		"address": model.Address{
			FullName:   "Test Buyer",
			Phone:      "9876543210",
			Line1:      "12 MG Road",
			Line2:      "Indiranagar",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560038",
			Country:    "IN",
		},
	}
	var snap snapshot
	if err := doRequest("POST", "/checkout", body, &snap); err != nil {
		fatal("Failed to start checkout: %v", err)
	}
	if wait {
		snap = poll(func(s snapshot) bool { return s.Widget != nil || isTerminal(s.State) })
	}
	printSnapshot(snap)
}

func runPay(args []string) {
	fs := newFlags("pay", "-event success|dismiss|failed [options]")
	var event, paymentID, secret, reason string
	var wait bool
	fs.StringVar(&event, "event", "success", "Widget outcome: success, dismiss or failed")
	fs.StringVar(&paymentID, "payment-id", "pay_test_1", "Gateway payment id (success)")
	fs.StringVar(&secret, "secret", os.Getenv("GATEWAY_WEBHOOK_SECRET"), "Webhook secret used to sign the success event")
	fs.StringVar(&reason, "reason", "", "Failure reason (failed)")
	fs.BoolVar(&wait, "wait", true, "Wait for the checkout to finish")
	parse(fs, args)

	var snap snapshot
	if err := doRequest("GET", "/checkout", nil, &snap); err != nil {
		fatal("Failed to read checkout: %v", err)
	}
	if snap.Widget == nil {
		fatal("No payment is awaiting the widget (state %s)", snap.State)
	}

	ev := gateway.Event{GatewayOrderID: snap.Widget.GatewayOrderID}
	switch event {
	case "success":
		ev.Type = gateway.EventSuccess
		ev.PaymentID = paymentID
		ev.Signature = "unsigned"
		if secret != "" {
			ev.Signature = hex.EncodeToString(gateway.Sign(secret, ev.GatewayOrderID, paymentID))
		}
	case "dismiss":
		ev.Type = gateway.EventDismiss
	case "failed":
		ev.Type = gateway.EventFailed
		ev.Reason = reason
	default:
		fatal("Unknown event: %s (use: success, dismiss, failed)", event)
	}

	if err := doRequest("POST", "/checkout/gateway", ev, &snap); err != nil {
		fatal("Failed to deliver event: %v", err)
	}
	if wait {
		snap = poll(func(s snapshot) bool { return isTerminal(s.State) })
	}
	printSnapshot(snap)
}

func runStatus(args []string) {
	fs := newFlags("status", "[options]")
	parse(fs, args)
	var snap snapshot
	if err := doRequest("GET", "/checkout", nil, &snap); err != nil {
		fatal("Failed to read checkout: %v", err)
	}
	printSnapshot(snap)
}

func runInbox(args []string) {
	fs := newFlags("inbox", "[options]")
	parse(fs, args)
	var resp struct {
		Notifications []struct {
			Kind    string    `json:"kind"`
			Topic   string    `json:"topic"`
			Message string    `json:"message"`
			Time    time.Time `json:"time"`
		} `json:"notifications"`
	}
	if err := doRequest("GET", "/notifications", nil, &resp); err != nil {
		fatal("Failed to read notifications: %v", err)
	}
	if len(resp.Notifications) == 0 {
		printInfo("No notifications")
	}
	for _, n := range resp.Notifications {
		line := fmt.Sprintf("[%s] %s: %s", n.Time.Format(time.Kitchen), n.Topic, n.Message)
		switch n.Kind {
		case "error", "escalation":
			printError("%s", line)
		case "warning":
			printWarning("%s", line)
		default:
			fmt.Printf("  %s\n", line)
		}
	}
}

func poll(done func(snapshot) bool) snapshot {
	deadline := time.Now().Add(2 * time.Minute)
	for {
		var snap snapshot
		if err := doRequest("GET", "/checkout", nil, &snap); err != nil {
			fatal("Failed to read checkout: %v", err)
		}
		if done(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			fatal("Timed out in state %s", snap.State)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func isTerminal(state string) bool {
	return state == "DONE" || state == "FAILED"
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func cartRequest(method, path string, body interface{}) model.CartView {
	var view model.CartView
	if err := doRequest(method, path, body, &view); err != nil {
		fatal("%s %s failed: %v", method, path, err)
	}
	return view
}

// doRequest sends body as JSON and decodes the response into out.
// The session id minted by the server is remembered for the rest of the run.
func doRequest(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(baseURL, "/")+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		h, err := session.FormatHeader(sessionID)
		if err != nil {
			return fmt.Errorf("formatting session header: %w", err)
		}
		req.Header.Set(session.HeaderName, h)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid, err := session.ParseHeader(resp.Header.Get(session.HeaderName)); err == nil {
		sessionID = sid
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if !quiet && verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(view model.CartView) {
	if quiet {
		return
	}
	mode := "guest"
	if view.Authenticated {
		mode = "signed in"
	}
	fmt.Printf("\n%sCart%s (%s, session %s%s%s)\n", colorBold, colorReset, mode, colorCyan, sessionID, colorReset)
	if view.IsEmpty() {
		fmt.Printf("  %s(empty)%s\n", colorGray, colorReset)
	}
	for _, l := range view.Lines {
		marker := ""
		if l.Quantity != l.OriginalQuantity {
			marker = fmt.Sprintf(" %s(unsaved, was %d)%s", colorYellow, l.OriginalQuantity, colorReset)
		}
		size := l.SelectedSize
		if size == "" {
			size = "-"
		}
		fmt.Printf("  %-10s %-4s x%-3d %10s%s\n", l.ProductID, size, l.Quantity, formatMinor(l.Total), marker)
	}
	fmt.Printf("  %sSubtotal%s %s\n", colorBold, colorReset, formatMinor(view.Subtotal))
	if view.HasUnsyncedChanges {
		printWarning("Unsaved changes; run 'storefrontctl sync' to save them")
	}
}

func printSnapshot(snap snapshot) {
	if quiet {
		fmt.Println(snap.State)
		return
	}
	switch snap.State {
	case "DONE":
		printSuccess("Payment confirmed")
	case "FAILED":
		printError("Checkout failed: %s", snap.Reason)
	default:
		fmt.Printf("%s→ State: %s%s\n", colorGray, snap.State, colorReset)
	}
	if snap.Draft != nil {
		fmt.Printf("  Order: %s%s%s (%s)\n", colorCyan, snap.Draft.OrderID, colorReset, formatMinor(snap.Draft.Amount))
	}
	if snap.Widget != nil {
		fmt.Printf("  Widget: key=%s gateway order=%s amount=%s\n",
			snap.Widget.Key, snap.Widget.GatewayOrderID, formatMinor(snap.Widget.Amount))
	}
	if snap.PaymentID != "" {
		fmt.Printf("  Payment: %s\n", snap.PaymentID)
	}
	if snap.Error != nil {
		fmt.Printf("  %s%s: %s%s\n", colorRed, snap.Error.Code, snap.Error.Message, colorReset)
	}
}

func printRequest(method, path string, body []byte) {
	if !verbose {
		return
	}
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func formatMinor(paise int64) string {
	return "₹" + model.FormatMinor(paise)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
