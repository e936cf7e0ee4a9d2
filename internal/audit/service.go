package audit

import (
	"context"
	"fmt"

	"github.com/concord-collective/concord/internal/reconcile"
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, record Record) error
	Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error)
}

// Service coordinates audit persistence and retrieval. It also satisfies
// reconcile.Recorder so the orchestrator can hand it completed runs.
type Service struct {
	store Store
}

// NewService builds a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Record persists one completed reconciliation.
func (s *Service) Record(ctx context.Context, entry reconcile.AuditEntry) error {
	if s.store == nil {
		return fmt.Errorf("audit: store not configured")
	}
	var failed []string
	for _, outcome := range entry.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome.Key)
		}
	}
	return s.store.Insert(ctx, Record{
		ID:         entry.ID,
		OperatorID: entry.OperatorID,
		SubjectID:  entry.SubjectID,
		TenantID:   entry.TenantID,
		Requested:  entry.Requested,
		Applied:    entry.Applied,
		Failed:     failed,
		StartedAt:  entry.StartedAt,
		DurationMS: entry.Duration.Milliseconds(),
	})
}

// Timeline fetches audit records with paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.store == nil {
		return Result{}, fmt.Errorf("audit: store not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	records, err := s.store.Timeline(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(records) > pageSize
	if hasNext {
		records = records[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: records, Paging: paging}, nil
}
