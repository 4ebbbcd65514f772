package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Some commerce backends sit behind CDNs that rate-limit clients by JA3
// fingerprint, and Go's crypto/tls hello is easy to spot. The Chrome
// transport dials with a uTLS Chrome hello and lets ALPN pick h2 or http/1.1.
// Hosts that do not negotiate h2 are remembered and go straight to HTTP/1.1.

var errNoH2 = errors.New("server did not negotiate h2")

// NewChromeTransport returns a RoundTripper that presents Chrome's TLS fingerprint.
func NewChromeTransport(dialTimeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}

	h2 := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, proto, err := dialChrome(ctx, dialer, network, addr)
			if err != nil {
				return nil, err
			}
			if proto != "h2" {
				conn.Close()
				return nil, errNoH2
			}
			return conn, nil
		},
	}
	h1 := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, _, err := dialChrome(ctx, dialer, network, addr)
			return conn, err
		},
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &chromeTransport{h2: h2, h1: h1}
}

type chromeTransport struct {
	h2 http.RoundTripper
	h1 http.RoundTripper

	h1Only sync.Map // host → struct{}
}

func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	if _, ok := t.h1Only.Load(req.URL.Host); ok {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, errNoH2) {
		return nil, err
	}
	t.h1Only.Store(req.URL.Host, struct{}{})

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	return t.h1.RoundTrip(retry)
}

// rewind returns a request whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("%w: request body cannot be replayed over http/1.1", errNoH2)
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewinding body: %w", err)
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, nil
}

func dialChrome(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	raw, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, "", fmt.Errorf("dial %s: %w", addr, err)
	}

	conn := utls.UClient(raw, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, "", fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return conn, conn.ConnectionState().NegotiatedProtocol, nil
}
