// Package main is the entry point for the eyezen entitlement API server.
//
// It loads configuration, opens the configured key-value store, builds the
// plan registry and product mapping, selects a purchase backend, starts the
// entitlement engine, and serves the HTTP surface on the core chassis.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"eyezen/internal/api/handlers"
	"eyezen/internal/config"
	"eyezen/internal/core"
	"eyezen/internal/entitlement"
	"eyezen/internal/iap"
	"eyezen/internal/kvstore"
	"eyezen/internal/plan"
	"eyezen/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("eyezen entitlement API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"storage_driver", cfg.Storage.Driver,
		"iap_backend", cfg.IAP.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening key-value store: %w", err)
	}
	defer func() {
		if cerr := kv.Close(); cerr != nil {
			logger.Warn("closing key-value store", "error", cerr)
		}
	}()

	limits, err := cfg.Plans.PlanLimits()
	if err != nil {
		return err
	}
	registry, err := plan.NewRegistry(limits)
	if err != nil {
		return fmt.Errorf("building plan registry: %w", err)
	}
	mapping, err := cfg.Plans.ProductPlans()
	if err != nil {
		return err
	}
	products, err := plan.NewProductMap(registry, mapping)
	if err != nil {
		return fmt.Errorf("building product map: %w", err)
	}

	backend, err := newBackend(cfg, products, logger)
	if err != nil {
		return fmt.Errorf("building purchase backend: %w", err)
	}

	store := entitlement.NewStore(kv, registry, logger)
	engine := entitlement.NewEngine(store, backend, registry, products, logger,
		entitlement.WithCatalogTimeout(cfg.IAP.CatalogTimeout),
		entitlement.WithRolloverInterval(cfg.IAP.RolloverInterval),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting entitlement engine: %w", err)
	}
	defer engine.Close()

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	entHandler := handlers.NewEntitlementHandler(engine, logger)
	srv.Router().Route("/v1", func(r chi.Router) {
		entHandler.RegisterRoutes(r)
	})

	return serveHTTP(ctx, srv, cfg, logger)
}

// serveHTTP runs the HTTP server until the context is cancelled, then
// drains in-flight requests within the configured shutdown timeout.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, draining requests",
			"timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openStore constructs the key-value store named by the storage config.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (kvstore.Store, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return kvstore.NewMemoryStore(), nil
	case "sqlite":
		return kvstore.NewSQLiteStore(cfg.Storage.SQLitePath)
	case "redis":
		return kvstore.NewRedisStore(ctx, cfg.Storage.RedisURL)
	case "postgres":
		return kvstore.NewPostgresStore(ctx, cfg.Storage.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newBackend constructs the purchase backend named by the IAP config. The
// stub backend advertises every configured product so that the full
// purchase flow is exercisable locally.
func newBackend(cfg *config.Config, products *plan.ProductMap, logger *slog.Logger) (iap.Backend, error) {
	switch cfg.IAP.Backend {
	case "bridge":
		return iap.NewHTTPBackend(iap.HTTPBackendConfig{
			BaseURL:      cfg.IAP.BridgeURL,
			Retry:        iap.DefaultRetryPolicy(),
			PollInterval: cfg.IAP.EventPollEvery,
			Logger:       logger,
		}), nil
	case "stub":
		return iap.NewStubBackend(logger, stubCatalog(products)), nil
	case "unsupported":
		return iap.NewUnsupportedBackend(), nil
	default:
		return nil, fmt.Errorf("unknown iap backend %q", cfg.IAP.Backend)
	}
}

// stubCatalog derives a local development catalog from the configured
// product identifiers.
func stubCatalog(products *plan.ProductMap) []types.Product {
	ids := products.ProductIDs()
	catalog := make([]types.Product, 0, len(ids))
	for _, id := range ids {
		catalog = append(catalog, types.Product{
			ID:             id,
			Title:          id,
			Description:    "Local development product",
			LocalizedPrice: "$0.00",
		})
	}
	return catalog
}

// newLogger builds the structured JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
