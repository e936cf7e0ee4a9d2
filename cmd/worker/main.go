package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/concord-collective/concord/internal/app"
	"github.com/concord-collective/concord/internal/audit"
	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/gateway"
	jobmetrics "github.com/concord-collective/concord/internal/jobs"
	"github.com/concord-collective/concord/internal/platform/cache"
	"github.com/concord-collective/concord/internal/platform/db"
	"github.com/concord-collective/concord/internal/reconcile"
	"github.com/concord-collective/concord/internal/shared"
	"github.com/concord-collective/concord/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	auditService := audit.NewService(audit.NewRepository(pool))

	service := reconcile.NewService(reconcile.ServiceConfig{
		Central: central,
		Gateway: gatewayClient,
		Catalog: catalogProvider,
		Locker:  locker,
		Audit:   auditService,
		Logger:  logger,
	})

	metrics := jobmetrics.NewMetrics(nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileRun, Handler: jobs.NewReconcileRunHandler(service, logger, metrics)},
			{Type: jobs.TaskCatalogRefresh, Handler: jobs.NewCatalogRefreshHandler(catalogProvider, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: jobs.NewCatalogRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
