package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dunglas/httpsfv"
)

const (
	// CookieName carries the session id for browsers.
	CookieName = "sf_session"
	// HeaderName carries the session id for scripted clients.
	HeaderName = "Storefront-Session"
)

// ParseHeader extracts the session id from a Storefront-Session header.
// Format: sid="..." (RFC 8941 Dictionary). Parameters are ignored.
func ParseHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("empty Storefront-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Storefront-Session header: %w", err)
	}

	member, ok := dict.Get("sid")
	if !ok {
		return "", errors.New("sid key not found in Storefront-Session header")
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("sid value must be an item")
	}

	sid, ok := item.Value.(string)
	if !ok || sid == "" {
		return "", errors.New("sid value must be a non-empty string")
	}

	return sid, nil
}

// FormatHeader renders a Storefront-Session header value for sid.
func FormatHeader(sid string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("sid", httpsfv.NewItem(sid))
	return httpsfv.Marshal(dict)
}

// IDFromRequest returns the session id carried by r.
// The header wins over the cookie. fresh is true when a new id was minted.
func IDFromRequest(r *http.Request) (id string, fresh bool) {
	if h := r.Header.Get(HeaderName); h != "" {
		if sid, err := ParseHeader(h); err == nil {
			return sid, false
		}
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, false
	}
	return NewID(), true
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
