package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-collective/concord/internal/permissions"
	"github.com/concord-collective/concord/internal/reconcile"
)

func TestReconcileRunTaskCarriesRunID(t *testing.T) {
	task, err := NewReconcileRunTask("run-1", reconcile.Request{
		OperatorID: "op",
		SubjectID:  "sub",
		TenantID:   "t1",
		Flags:      []string{permissions.NameTheory},
	})
	require.NoError(t, err)
	assert.Equal(t, TaskReconcileRun, task.Type())

	var payload ReconcileRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "run-1", payload.RunID)
	assert.Equal(t, "sub", payload.Request.SubjectID)
	assert.Equal(t, []string{permissions.NameTheory}, payload.Request.Flags)
}

func TestCatalogRefreshTask(t *testing.T) {
	task := NewCatalogRefreshTask()
	assert.Equal(t, TaskCatalogRefresh, task.Type())
	assert.Empty(t, task.Payload())
}
