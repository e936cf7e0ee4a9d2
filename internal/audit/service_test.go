package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-collective/concord/internal/reconcile"
)

type mockStore struct {
	inserted  []Record
	insertErr error

	timeline    []Record
	timelineErr error
	gotFilters  TimelineFilters
	gotOffset   int
	gotLimit    int
}

func (m *mockStore) Insert(_ context.Context, record Record) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, record)
	return nil
}

func (m *mockStore) Timeline(_ context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	m.gotFilters = filters
	m.gotOffset = offset
	m.gotLimit = limit
	if m.timelineErr != nil {
		return nil, m.timelineErr
	}
	return m.timeline, nil
}

func TestRecordMapsFailedOutcomes(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	err := svc.Record(context.Background(), reconcile.AuditEntry{
		ID:         "run-1",
		OperatorID: "op-1",
		SubjectID:  "sub-1",
		TenantID:   "t-1",
		Requested:  []string{"moderator", "voter"},
		Applied:    []string{"moderator", "voter"},
		Outcomes: []reconcile.Outcome{
			{Key: "central:bits:sub-1:t-1"},
			{Key: "gateway:roles:sub-1:t-1", Err: errors.New("boom")},
		},
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)

	record := store.inserted[0]
	assert.Equal(t, "run-1", record.ID)
	assert.Equal(t, []string{"gateway:roles:sub-1:t-1"}, record.Failed)
	assert.Equal(t, started, record.StartedAt)
	assert.Equal(t, int64(1500), record.DurationMS)
}

func TestRecordWithoutStore(t *testing.T) {
	svc := NewService(nil)
	err := svc.Record(context.Background(), reconcile.AuditEntry{ID: "run-1"})
	assert.Error(t, err)
}

func TestTimelinePagingDefaults(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)

	assert.Equal(t, 0, store.gotOffset)
	assert.Equal(t, 21, store.gotLimit)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, 20, result.Paging.PageSize)
	assert.False(t, result.Paging.HasNext)
}

func TestTimelinePageSizeClamped(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 51, store.gotLimit)
}

func TestTimelineHasNextTrimsExtraRow(t *testing.T) {
	store := &mockStore{}
	for i := 0; i < 3; i++ {
		store.timeline = append(store.timeline, Record{ID: "run"})
	}
	svc := NewService(store)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, store.gotOffset)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 3, result.Paging.NextPage)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineStoreError(t *testing.T) {
	store := &mockStore{timelineErr: errors.New("db down")}
	svc := NewService(store)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)
}
