package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/concord-collective/concord/internal/catalog"
	"github.com/concord-collective/concord/internal/eligibility"
	jobmetrics "github.com/concord-collective/concord/internal/jobs"
	"github.com/concord-collective/concord/internal/reconcile"
	"github.com/concord-collective/concord/internal/shared"
)

// NewReconcileRunHandler processes TaskReconcileRun tasks. Lock contention
// is retried by the queue; authorization and not-found failures are not,
// since re-running cannot fix them.
func NewReconcileRunHandler(service *reconcile.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("reconcile_run")
		var payload ReconcileRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		req := payload.Request
		req.RunID = payload.RunID
		result, err := service.Reconcile(ctx, req)
		if err != nil {
			logger.Error("reconcile task",
				slog.String("subject", payload.Request.SubjectID),
				slog.Any("error", err),
			)
			if errors.Is(err, shared.ErrNotFound) ||
				errors.Is(err, eligibility.ErrNoTenant) ||
				errors.Is(err, eligibility.ErrNotAuthorized) {
				_ = tracker.End(err)
				return asynq.SkipRetry
			}
			return tracker.End(err)
		}
		if failed := result.Failed(); len(failed) > 0 {
			logger.Warn("reconcile task partial",
				slog.String("run", result.ID),
				slog.Int("failed", len(failed)),
			)
		}
		return tracker.End(nil)
	}
}

// NewCatalogRefreshHandler processes TaskCatalogRefresh tasks.
func NewCatalogRefreshHandler(provider *catalog.Provider, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("catalog_refresh")
		snapshot, err := provider.Refresh(ctx)
		if err != nil {
			logger.Error("catalog refresh task", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("catalog refreshed", slog.Int("tenants", snapshot.Len()))
		return tracker.End(nil)
	}
}
