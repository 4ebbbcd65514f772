package gateway

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/model"
)

// ConfigSource fetches the payment widget configuration.
type ConfigSource interface {
	GetPaymentConfig(ctx context.Context) (*model.PaymentConfig, error)
}

// ConfigLoader loads the widget configuration on first use and caches it.
// A failed load is not cached; the next caller retries.
type ConfigLoader struct {
	src ConfigSource

	mu  sync.Mutex
	cfg *model.PaymentConfig
}

// NewConfigLoader creates a loader over src.
func NewConfigLoader(src ConfigSource) *ConfigLoader {
	return &ConfigLoader{src: src}
}

// Get returns the cached configuration, loading it if needed.
// Concurrent callers wait for a single load.
func (l *ConfigLoader) Get(ctx context.Context) (model.PaymentConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg != nil {
		return *l.cfg, nil
	}
	cfg, err := l.src.GetPaymentConfig(ctx)
	if err != nil {
		return model.PaymentConfig{}, fmt.Errorf("load payment config: %w", err)
	}
	if cfg == nil || cfg.GatewayKey == "" {
		return model.PaymentConfig{}, model.NewUpstreamError("payment config", fmt.Errorf("missing gateway key"))
	}
	l.cfg = cfg
	return *cfg, nil
}

// Loaded reports whether a configuration is cached.
func (l *ConfigLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg != nil
}
