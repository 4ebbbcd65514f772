// Package transport builds the outbound HTTP stack used to reach the commerce API.
package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options selects the layers of the outbound transport.
type Options struct {
	Name      string        // breaker and span name, e.g. "commerce-api"
	Timeout   time.Duration // dial timeout for the Chrome transport
	ChromeTLS bool          // present a Chrome TLS fingerprint
	Breaker   bool          // fail fast while the upstream is unhealthy
	Logger    *slog.Logger
}

// New builds the transport stack, outermost first:
// otelhttp instrumentation → circuit breaker → base transport.
func New(opts Options) http.RoundTripper {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	var rt http.RoundTripper
	if opts.ChromeTLS {
		rt = NewChromeTransport(opts.Timeout)
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	if opts.Breaker {
		rt = NewBreakerTransport(opts.Name, rt, opts.Logger)
	}

	return otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return opts.Name + " " + r.Method + " " + r.URL.Path
		}),
	)
}

// =============================================================================
// CIRCUIT BREAKER
// =============================================================================
//
// Transport errors and 5xx responses count as failures. After five consecutive
// failures the breaker opens for 30s and every request fails immediately with
// gobreaker.ErrOpenState; callers surface that as an upstream error.
// 4xx responses are the caller's problem and never trip the breaker.
// =============================================================================

var errServerStatus = errors.New("upstream server error")

// BreakerTransport wraps a RoundTripper with a circuit breaker.
type BreakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerTransport wraps base. logger may be nil.
func NewBreakerTransport(name string, base http.RoundTripper, logger *slog.Logger) *BreakerTransport {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			}
		},
	}
	return &BreakerTransport{
		base: base,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := t.cb.Execute(func() (struct{}, error) {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return struct{}{}, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return struct{}{}, errServerStatus
		}
		return struct{}{}, nil
	})
	if errors.Is(err, errServerStatus) {
		// The failure is recorded; the caller still gets the response to parse.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// State reports the breaker state (closed, half-open, open).
func (t *BreakerTransport) State() gobreaker.State {
	return t.cb.State()
}
