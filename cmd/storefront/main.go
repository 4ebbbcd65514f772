// Storefront - cart-sync and checkout BFF in front of the commerce API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/internal/config"
	"storefront/internal/gateway"
	"storefront/internal/handler"
	"storefront/internal/kvstore"
	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/storeapi"
	"storefront/internal/storefront"
	"storefront/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("storefront_id", cfg.StorefrontID),
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.String("store_backend", cfg.Store.Backend),
	)

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	defer closeStore.Close()

	api, err := storeapi.New(storeapi.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.APIKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: transport.New(transport.Options{
				Name:      "commerce-api",
				ChromeTLS: cfg.TLSFingerprint,
				Breaker:   cfg.BreakerEnabled,
				Logger:    logger,
			}),
		},
	})
	if err != nil {
		return fmt.Errorf("creating commerce API client: %w", err)
	}

	// Refuse to start against a server without the payment-order endpoint
	versionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	version, err := api.CheckVersion(versionCtx, storeapi.MinServerVersion)
	cancel()
	var verr *storeapi.VersionError
	switch {
	case errors.As(err, &verr):
		return err
	case err != nil:
		// Unreachable at boot is not fatal; the breaker handles a flapping upstream.
		logger.Warn("commerce API version check failed", slog.String("error", err.Error()))
	default:
		logger.Info("commerce API reachable", slog.String("version", version))
	}

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if cfg.AMQPURL != "" {
		publisher, conn, err := notify.Dial(cfg.AMQPURL, logger)
		if err != nil {
			return fmt.Errorf("connecting to AMQP: %w", err)
		}
		defer conn.Close()
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		logger.Info("event publisher enabled", slog.String("exchange", notify.EventsExchange))
	}

	registry := storefront.NewRegistry(storefront.Config{
		Store:            store,
		API:              api,
		PaymentConfig:    gateway.NewConfigLoader(api),
		Notifier:         notifiers,
		Logger:           logger,
		MaxVisitors:      cfg.MaxVisitors,
		MergeConcurrency: cfg.MergeConcurrency,
		SyncConcurrency:  cfg.SyncConcurrency,
		GatewayTimeout:   cfg.GatewayTimeout,
		GatewaySecret:    cfg.API.GatewayWebhookSecret,
	})

	h := handler.New(registry, logger, handler.WithSecureCookies(cfg.SecureCookies))

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpHandler, "storefront"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore creates the visitor state backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (kvstore.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := kvstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("pinging redis at %s: %w", cfg.RedisAddr, err)
		}
		s := kvstore.NewRedis(client, cfg.RedisTTL)
		return s, s, nil
	default:
		return kvstore.NewMemory(), nopCloser{}, nil
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production, text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
