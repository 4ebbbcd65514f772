package storeapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestCompatible(t *testing.T) {
	tests := []struct {
		server, min string
		want        bool
	}{
		{"1.4.0", "v1.4.0", true},
		{"v1.5.2", "v1.4.0", true},
		{"v2.0.0", "v1.4.0", true},
		{"1.3.9", "v1.4.0", false},
		{"v0.9.0", "v1.4.0", false},
		{"2026-01-11", "v1.4.0", true},
		{"", "v1.4.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			if got := Compatible(tt.server, tt.min); got != tt.want {
				t.Errorf("Compatible(%q, %q) = %v, want %v", tt.server, tt.min, got, tt.want)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	version := "1.6.0"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"version":"` + version + `"}`))
	})

	got, err := c.CheckVersion(context.Background(), MinServerVersion)
	if err != nil || got != "1.6.0" {
		t.Errorf("CheckVersion = %q, %v", got, err)
	}

	version = "1.2.0"
	_, err = c.CheckVersion(context.Background(), MinServerVersion)
	var verErr *VersionError
	if !errors.As(err, &verErr) {
		t.Fatalf("error = %v, want *VersionError", err)
	}
	if verErr.Server != "1.2.0" {
		t.Errorf("Server = %q", verErr.Server)
	}
}
