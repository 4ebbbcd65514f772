package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "simple", header: `sid="abc-123"`, want: "abc-123"},
		{name: "whitespace", header: `  sid="abc"  `, want: "abc"},
		{name: "with params", header: `sid="abc";v=1`, want: "abc"},
		{name: "other members", header: `x="y", sid="abc"`, want: "abc"},
		{name: "empty", header: "", wantErr: true},
		{name: "missing sid", header: `other="x"`, wantErr: true},
		{name: "token not string", header: `sid=abc`, wantErr: true},
		{name: "inner list", header: `sid=("a" "b")`, wantErr: true},
		{name: "empty string", header: `sid=""`, wantErr: true},
		{name: "malformed", header: `sid="unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHeader() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatHeader_RoundTrip(t *testing.T) {
	h, err := FormatHeader("sess-9")
	if err != nil {
		t.Fatalf("FormatHeader: %v", err)
	}
	if h != `sid="sess-9"` {
		t.Errorf("FormatHeader = %q", h)
	}
	got, err := ParseHeader(h)
	if err != nil || got != "sess-9" {
		t.Errorf("ParseHeader(FormatHeader) = %q, %v", got, err)
	}
}

func TestIDFromRequest(t *testing.T) {
	t.Run("header wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/cart", nil)
		r.Header.Set(HeaderName, `sid="from-header"`)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		id, fresh := IDFromRequest(r)
		if id != "from-header" || fresh {
			t.Errorf("IDFromRequest = %q, %v", id, fresh)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/cart", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		id, fresh := IDFromRequest(r)
		if id != "from-cookie" || fresh {
			t.Errorf("IDFromRequest = %q, %v", id, fresh)
		}
	})

	t.Run("bad header falls back to cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/cart", nil)
		r.Header.Set(HeaderName, `nonsense`)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})

		id, _ := IDFromRequest(r)
		if id != "from-cookie" {
			t.Errorf("IDFromRequest = %q, want from-cookie", id)
		}
	})

	t.Run("mints fresh id", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/cart", nil)
		id, fresh := IDFromRequest(r)
		if id == "" || !fresh {
			t.Errorf("IDFromRequest = %q, %v; want fresh id", id, fresh)
		}
	})
}
