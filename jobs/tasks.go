// Package jobs defines background tasks and the Asynq worker runtime.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/concord-collective/concord/internal/reconcile"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileRun executes a full reconciliation pass for one subject.
	TaskReconcileRun = "reconcile:run"
	// TaskCatalogRefresh re-reads the tenant catalog from central.
	TaskCatalogRefresh = "catalog:refresh"
)

// ReconcileRunPayload carries the reconciliation request through the
// queue. RunID is minted once at enqueue time so every retry of the task
// records the same audit row instead of a fresh one.
type ReconcileRunPayload struct {
	RunID   string            `json:"run_id"`
	Request reconcile.Request `json:"request"`
}

// NewReconcileRunTask constructs an Asynq task for a reconciliation pass.
func NewReconcileRunTask(runID string, req reconcile.Request) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcileRunPayload{RunID: runID, Request: req})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileRun, data), nil
}

// NewCatalogRefreshTask constructs an Asynq task that refreshes the
// tenant catalog. The task carries no payload.
func NewCatalogRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskCatalogRefresh, nil)
}
