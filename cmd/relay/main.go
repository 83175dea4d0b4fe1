package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/user/conversion-relay/internal/adapter/api"
	"github.com/user/conversion-relay/internal/adapter/api/middleware"
	"github.com/user/conversion-relay/internal/adapter/capi"
	"github.com/user/conversion-relay/internal/adapter/geo"
	"github.com/user/conversion-relay/internal/adapter/identity"
	"github.com/user/conversion-relay/internal/adapter/metrics"
	"github.com/user/conversion-relay/internal/adapter/repository/postgres"
	"github.com/user/conversion-relay/internal/adapter/repository/redisaudit"
	"github.com/user/conversion-relay/internal/adapter/tenant"
	"github.com/user/conversion-relay/internal/domain"
	"github.com/user/conversion-relay/internal/pkg/config"
	"github.com/user/conversion-relay/internal/pkg/logger"
	"github.com/user/conversion-relay/internal/usecase"

	_ "github.com/lib/pq" // Keep for postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewRelayMetrics()

	// --- Start Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())

	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// --- Audit Stream (optional) ---
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, audit trail starts degraded", "error", err)
		}
	} else {
		logger.Info("no redis configured, audit trail disabled")
	}
	auditRepo := redisaudit.NewAuditRepository(redisClient, cfg.AuditStream, logger, m)
	go auditRepo.StartHealthCheck(ctx, 5*time.Second)

	// --- Tenant Configuration ---
	tenants, err := tenant.LoadFile(cfg.TenantConfigPath)
	if err != nil {
		logger.Error("failed to load tenant configuration", "error", err)
		os.Exit(1)
	}
	tenantResolver := tenant.NewResolver(tenants, logger, m)
	defaults := domain.TenantConfig{
		PixelID:     cfg.PixelID,
		AccessToken: cfg.AccessToken,
		TestCode:    cfg.TestCode,
	}

	// --- Enrichment and Dispatch Adapters ---
	geoEnricher := geo.NewEnricher(cfg.GeoDBPath, logger, m)
	defer geoEnricher.Close()

	identityResolver := identity.NewResolver(logger)
	dispatcher := capi.NewClient(cfg.GraphAPIURL, cfg.DispatchTimeout, logger, m)
	userRepo := postgres.NewUserRepository(db, logger)

	// --- Use Case and Server ---
	relayUseCase := usecase.NewRelayUseCase(
		userRepo, dispatcher, geoEnricher, tenantResolver, auditRepo, defaults, m, logger,
	)

	router := api.NewRouter(cfg, logger, identityResolver, relayUseCase, m)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      middleware.Logging(logger)(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("starting relay server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("relay server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
