// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all service configuration.
// Environment determines whether API credentials load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port          string
	Environment   string // "development" or "production"
	LogLevel      string // "debug", "info", "warn", "error"
	SecureCookies bool

	// GCP settings (required in production)
	GCPProject   string
	StorefrontID string // names the secret holding the API credentials

	// Commerce API credentials (loaded from secrets in production)
	API APIConfig

	// Visitor state backend
	Store StoreConfig

	AMQPURL          string // optional; enables the event publisher
	GatewayTimeout   time.Duration
	MaxVisitors      int
	MergeConcurrency int
	SyncConcurrency  int
	BreakerEnabled   bool
	TLSFingerprint   bool // present a Chrome TLS fingerprint upstream
}

// APIConfig contains the commerce API credentials.
// In production, this is loaded from Secret Manager as JSON.
type APIConfig struct {
	BaseURL              string `json:"api_base_url"`
	APIKey               string `json:"api_key"`
	GatewayWebhookSecret string `json:"gateway_webhook_secret,omitempty"`
}

// StoreConfig selects the key-value backend for visitor state.
type StoreConfig struct {
	Backend    string        `json:"backend"`
	SQLitePath string        `json:"sqlite_path,omitempty"`
	RedisAddr  string        `json:"redis_addr,omitempty"`
	RedisTTL   time.Duration `json:"-"`
}

// fileConfig matches the CONFIG_FILE JSON structure.
type fileConfig struct {
	Port             string      `json:"port"`
	Environment      string      `json:"environment"`
	LogLevel         string      `json:"log_level"`
	SecureCookies    bool        `json:"secure_cookies"`
	StorefrontID     string      `json:"storefront_id"`
	API              APIConfig   `json:"api"`
	Store            StoreConfig `json:"store"`
	RedisTTL         string      `json:"redis_ttl"`
	AMQPURL          string      `json:"amqp_url"`
	GatewayTimeout   string      `json:"gateway_timeout"`
	MaxVisitors      int         `json:"max_visitors"`
	MergeConcurrency int         `json:"merge_concurrency"`
	SyncConcurrency  int         `json:"sync_concurrency"`
	BreakerEnabled   *bool       `json:"breaker_enabled"`
	TLSFingerprint   bool        `json:"tls_fingerprint"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:          envOrDefault("PORT", "8080"),
		Environment:   envOrDefault("ENVIRONMENT", "development"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		SecureCookies: os.Getenv("SECURE_COOKIES") == "true",
		GCPProject:    os.Getenv("GCP_PROJECT"),
		StorefrontID:  envOrDefault("STOREFRONT_ID", "storefront"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		Store: StoreConfig{
			Backend:    envOrDefault("STORE_BACKEND", BackendMemory),
			SQLitePath: os.Getenv("SQLITE_PATH"),
			RedisAddr:  os.Getenv("REDIS_ADDR"),
		},
		BreakerEnabled: envOrDefault("BREAKER_ENABLED", "true") == "true",
		TLSFingerprint: os.Getenv("TLS_FINGERPRINT") == "true",
	}

	var err error
	if cfg.Store.RedisTTL, err = parseDuration("REDIS_TTL", os.Getenv("REDIS_TTL"), 0); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = parseDuration("GATEWAY_TIMEOUT", os.Getenv("GATEWAY_TIMEOUT"), 0); err != nil {
		return nil, err
	}
	if cfg.MaxVisitors, err = parseInt("MAX_VISITORS", os.Getenv("MAX_VISITORS")); err != nil {
		return nil, err
	}
	if cfg.MergeConcurrency, err = parseInt("MERGE_CONCURRENCY", os.Getenv("MERGE_CONCURRENCY")); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = parseInt("SYNC_CONCURRENCY", os.Getenv("SYNC_CONCURRENCY")); err != nil {
		return nil, err
	}

	// Load API credentials based on environment
	if cfg.IsProduction() {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading API credentials: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fc.Port, "8080"),
		Environment:      withDefault(fc.Environment, "development"),
		LogLevel:         withDefault(fc.LogLevel, "info"),
		SecureCookies:    fc.SecureCookies,
		StorefrontID:     withDefault(fc.StorefrontID, "storefront"),
		API:              fc.API,
		Store:            fc.Store,
		AMQPURL:          fc.AMQPURL,
		MaxVisitors:      fc.MaxVisitors,
		MergeConcurrency: fc.MergeConcurrency,
		SyncConcurrency:  fc.SyncConcurrency,
		BreakerEnabled:   fc.BreakerEnabled == nil || *fc.BreakerEnabled,
		TLSFingerprint:   fc.TLSFingerprint,
	}
	cfg.Store.Backend = withDefault(cfg.Store.Backend, BackendMemory)

	if cfg.Store.RedisTTL, err = parseDuration("redis_ttl", fc.RedisTTL, 0); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = parseDuration("gateway_timeout", fc.GatewayTimeout, 0); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches API credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{storefront_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StorefrontID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.API); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads API credentials from individual environment variables.
func (c *Config) loadFromEnv() {
	c.API = APIConfig{
		BaseURL:              os.Getenv("API_BASE_URL"),
		APIKey:               os.Getenv("API_KEY"),
		GatewayWebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api_base_url %q", c.API.BaseURL)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		c.Store.SQLitePath = withDefault(c.Store.SQLitePath, "storefront.db")
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis store backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (memory, sqlite or redis)", c.Store.Backend)
	}

	for name, n := range map[string]int{
		"max_visitors":      c.MaxVisitors,
		"merge_concurrency": c.MergeConcurrency,
		"sync_concurrency":  c.SyncConcurrency,
	} {
		if n < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(name, val string, def time.Duration) (time.Duration, error) {
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	return d, nil
}

func parseInt(name, val string) (int, error) {
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	return n, nil
}
