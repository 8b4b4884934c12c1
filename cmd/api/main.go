// Package main is the entry point for the StudyPal API server.
//
// It loads configuration, connects the database pool and the quota store,
// wires the metering, billing, and chat components into the core chassis,
// and serves HTTP until a shutdown signal arrives.
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

	"github.com/jackc/pgx/v5/pgxpool"

	"studypal/internal/api/handlers"
	"studypal/internal/billing"
	"studypal/internal/config"
	"studypal/internal/core"
	"studypal/internal/db"
	"studypal/internal/external"
	"studypal/internal/metering"
	"studypal/internal/quota"
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
	logger.Info("studypal API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newDBPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	store, err := newQuotaStore(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connecting quota store: %w", err)
	}

	// Repositories.
	subscriptions := db.NewSubscriptionRepo(pool, logger)
	payments := db.NewPaymentRepo(pool)
	accounts := db.NewAccountRepo(pool)
	sessions := db.NewSessionRepo(pool)
	chats := db.NewChatRepo(pool)

	// Domain services.
	limiter := metering.NewLimiter(store, subscriptions, metering.Policy{
		AnonymousLimit: cfg.Quota.AnonymousLimit,
		FreeTierLimit:  cfg.Quota.FreeTierLimit,
		FailOpen:       cfg.Quota.FailOpen,
	}, logger)
	lifecycle := billing.NewLifecycle(subscriptions, payments, logger)
	catalog := billing.NewStaticPlanCatalog()

	// Outbound clients.
	completion := external.NewGeminiClient(
		cfg.Completion.BaseURL,
		cfg.Completion.Model,
		cfg.Completion.APIKey,
		cfg.Completion.Timeout,
	)
	dodo := external.NewDodoClient(cfg.Billing.BaseURL, cfg.Billing.DodoAPIKey)
	verifier := external.NewDodoVerifier(cfg.Billing.WebhookSecret, logger)

	// HTTP surface.
	srv, err := core.NewServer(cfg, sessions, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.DB = pool

	chatHandler := handlers.NewChatHandler(limiter, completion, chats, cfg.Quota.RefundOnFailure, logger)
	userHandler := handlers.NewUserHandler(accounts, subscriptions, logger)
	billingHandler := handlers.NewBillingHandler(catalog, dodo, payments, cfg.Server.AppURL, logger)
	webhookHandler := handlers.NewWebhookHandler(verifier, lifecycle, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		chatHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)
	srv.WebhookRegistrars = append(srv.WebhookRegistrars, webhookHandler.RegisterRoutes)

	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

// newDBPool builds the pgx connection pool from the database configuration.
func newDBPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// newQuotaStore selects the shared Redis counter store when configured, or
// the in-process store for single-instance deployments.
func newQuotaStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (quota.Store, error) {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not set; using in-process quota store (single instance only)")
		return quota.NewMemoryStore(), nil
	}
	return quota.NewRedisStore(ctx, cfg.Addr, cfg.Password.Unmask(), cfg.DB, logger)
}

// serveHTTP runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
