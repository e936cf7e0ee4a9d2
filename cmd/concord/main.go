package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/concord-collective/concord/internal/app"
	"github.com/concord-collective/concord/internal/audit"
	"github.com/concord-collective/concord/internal/auth"
	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/gateway"
	"github.com/concord-collective/concord/internal/observability"
	"github.com/concord-collective/concord/internal/platform/cache"
	"github.com/concord-collective/concord/internal/platform/db"
	"github.com/concord-collective/concord/internal/reconcile"
	"github.com/concord-collective/concord/internal/shared"
	"github.com/concord-collective/concord/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	central := directory.NewHTTPClient(cfg.CentralBaseURL, cfg.CentralToken)
	gatewayClient := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayToken)
	catalogProvider := catalog.NewProvider(central, redisClient, cfg.CatalogTTL, logger)
	locker := shared.NewSubjectLocker(redisClient, cfg.ReconcileLockTTL)

	metrics := observability.NewMetrics()

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	service := reconcile.NewService(reconcile.ServiceConfig{
		Central: central,
		Gateway: gatewayClient,
		Catalog: catalogProvider,
		Locker:  locker,
		Audit:   auditService,
		Metrics: metrics,
		Logger:  logger,
	})

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	reconcileHandler := reconcile.NewHandler(logger, service, catalogProvider, queueClient)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		TokenVerifier:    auth.NewTokenVerifier(cfg.APITokenHash),
		ReconcileHandler: reconcileHandler,
		AuditHandler:     auditHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
