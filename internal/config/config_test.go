package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so tests start from defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "SECURE_COOKIES", "GCP_PROJECT",
		"STOREFRONT_ID", "AMQP_URL", "STORE_BACKEND", "SQLITE_PATH", "REDIS_ADDR", "REDIS_TTL",
		"BREAKER_ENABLED", "TLS_FINGERPRINT", "GATEWAY_TIMEOUT", "MAX_VISITORS",
		"MERGE_CONCURRENCY", "SYNC_CONCURRENCY", "API_BASE_URL", "API_KEY", "GATEWAY_WEBHOOK_SECRET",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("API_BASE_URL", "https://api.shop.example.com")
	t.Setenv("API_KEY", "key-123")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TTL", "72h")
	t.Setenv("GATEWAY_TIMEOUT", "10m")
	t.Setenv("MAX_VISITORS", "500")
	t.Setenv("BREAKER_ENABLED", "false")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.API.BaseURL != "https://api.shop.example.com" || cfg.API.APIKey != "key-123" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.API.GatewayWebhookSecret != "whsec" {
		t.Errorf("GatewayWebhookSecret = %s, want whsec", cfg.API.GatewayWebhookSecret)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Store.RedisTTL != 72*time.Hour {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.GatewayTimeout != 10*time.Minute {
		t.Errorf("GatewayTimeout = %v, want 10m", cfg.GatewayTimeout)
	}
	if cfg.MaxVisitors != 500 {
		t.Errorf("MaxVisitors = %d, want 500", cfg.MaxVisitors)
	}
	if cfg.BreakerEnabled {
		t.Error("BreakerEnabled = true, want false")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "http://localhost:9000")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" || cfg.Environment != "development" || cfg.LogLevel != "info" {
		t.Errorf("server defaults = %s/%s/%s", cfg.Port, cfg.Environment, cfg.LogLevel)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Errorf("Backend = %s, want memory", cfg.Store.Backend)
	}
	if !cfg.BreakerEnabled {
		t.Error("BreakerEnabled = false, want true by default")
	}
	if cfg.StorefrontID != "storefront" {
		t.Errorf("StorefrontID = %s, want storefront", cfg.StorefrontID)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing api_base_url",
			env:     map[string]string{},
			wantErr: "api_base_url is required",
		},
		{
			name:    "relative api_base_url",
			env:     map[string]string{"API_BASE_URL": "/api"},
			wantErr: "invalid api_base_url",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"API_BASE_URL": "http://x", "STORE_BACKEND": "etcd"},
			wantErr: "unknown store backend",
		},
		{
			name:    "redis without address",
			env:     map[string]string{"API_BASE_URL": "http://x", "STORE_BACKEND": "redis"},
			wantErr: "redis_addr is required",
		},
		{
			name:    "bad duration",
			env:     map[string]string{"API_BASE_URL": "http://x", "GATEWAY_TIMEOUT": "soon"},
			wantErr: "invalid GATEWAY_TIMEOUT",
		},
		{
			name:    "bad integer",
			env:     map[string]string{"API_BASE_URL": "http://x", "MAX_VISITORS": "many"},
			wantErr: "invalid MAX_VISITORS",
		},
		{
			name:    "negative concurrency",
			env:     map[string]string{"API_BASE_URL": "http://x", "MERGE_CONCURRENCY": "-1"},
			wantErr: "merge_concurrency must not be negative",
		},
		{
			name:    "production without project",
			env:     map[string]string{"ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSQLiteDefaultPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_BASE_URL", "http://x")
	t.Setenv("STORE_BACKEND", "sqlite")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Store.SQLitePath != "storefront.db" {
		t.Errorf("SQLitePath = %s, want storefront.db", cfg.Store.SQLitePath)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault with set var = %q, want custom", got)
	}

	t.Setenv("TEST_ENV_VAR_UNSET", "")
	if got := envOrDefault("TEST_ENV_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault with unset var = %q, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value, default) = %q, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', default) = %q, want default", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"port": "9090",
		"environment": "test",
		"log_level": "debug",
		"storefront_id": "shop-1",
		"api": {
			"api_base_url": "https://api.file-shop.com",
			"api_key": "file-key"
		},
		"store": {"backend": "sqlite", "sqlite_path": "/tmp/visitors.db"},
		"gateway_timeout": "5m",
		"merge_concurrency": 8,
		"breaker_enabled": false
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	clearEnv(t)
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.StorefrontID != "shop-1" {
		t.Errorf("StorefrontID = %s, want shop-1", cfg.StorefrontID)
	}
	if cfg.API.BaseURL != "https://api.file-shop.com" {
		t.Errorf("BaseURL = %s, want https://api.file-shop.com", cfg.API.BaseURL)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLitePath != "/tmp/visitors.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.GatewayTimeout != 5*time.Minute {
		t.Errorf("GatewayTimeout = %v, want 5m", cfg.GatewayTimeout)
	}
	if cfg.MergeConcurrency != 8 {
		t.Errorf("MergeConcurrency = %d, want 8", cfg.MergeConcurrency)
	}
	if cfg.BreakerEnabled {
		t.Error("BreakerEnabled = true, want false")
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	clearEnv(t)

	t.Run("file not found", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		_, err := Load(context.Background())
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		os.WriteFile(path, []byte("{invalid json"), 0o600)

		t.Setenv("CONFIG_FILE", path)
		_, err := Load(context.Background())
		if err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("missing api_base_url", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		os.WriteFile(path, []byte(`{"storefront_id": "test"}`), 0o600)

		t.Setenv("CONFIG_FILE", path)
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "api_base_url is required") {
			t.Errorf("expected api_base_url error, got: %v", err)
		}
	})
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"production", true},
		{"PRODUCTION", true},
		{"development", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (&Config{Environment: tt.env}).IsProduction(); got != tt.want {
			t.Errorf("IsProduction(%q) = %v, want %v", tt.env, got, tt.want)
		}
	}
}
