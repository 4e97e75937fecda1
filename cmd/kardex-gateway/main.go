package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardexsoft/kardex-gateway/internal/config"
	"github.com/kardexsoft/kardex-gateway/internal/handler"
	"github.com/kardexsoft/kardex-gateway/internal/infra/kardex"
	"github.com/kardexsoft/kardex-gateway/internal/infra/observability"
	"github.com/kardexsoft/kardex-gateway/internal/infra/resilience"
	"github.com/kardexsoft/kardex-gateway/internal/infra/sessionstore"
	"github.com/kardexsoft/kardex-gateway/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("kardex_api_url", cfg.KardexAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.String("snapshot_path", cfg.SnapshotPath),
		zap.Duration("restore_grace", cfg.RestoreGrace),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "kardex-gateway")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("kardex-api")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	apiClient := kardex.NewClient(httpClient, cfg.KardexAPIURL, cfg.KardexAPIKey, cb, resilienceCfg, logger)

	// --- Session storage ---
	storage := sessionstore.New(cfg.SessionTTL, cfg.SnapshotPath, logger)

	// --- Services ---
	sessionSvc := service.NewSessionService(storage, apiClient, service.Config{
		JWTSecret:            cfg.JWTSecret,
		RestoreGrace:         cfg.RestoreGrace,
		SuccessRedirectDelay: cfg.SuccessRedirectDelay,
		ErrorRedirectDelay:   cfg.ErrorRedirectDelay,
		LandingRoute:         cfg.LandingRoute,
		PortalRoute:          cfg.PortalRoute,
		DashboardRoute:       cfg.DashboardRoute,
	}, metrics, logger)

	// --- Cookie sealing ---
	sealer, err := handler.NewSealer(cfg.CookieSealKey)
	if err != nil {
		logger.Fatal("failed to build cookie sealer", zap.Error(err))
	}
	if cfg.CookieSealKey == "" {
		logger.Warn("COOKIE_SEAL_KEY not set, sessions will not survive a restart on the client side")
	}

	// --- Router ---
	router := handler.NewRouter(sessionSvc, sealer, cfg.SessionTTL, cfg.AllowedOrigins, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
