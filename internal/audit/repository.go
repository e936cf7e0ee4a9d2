package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one reconciliation record. A duplicate reconciliation id
// is swallowed: the async worker may retry a task whose audit write
// already landed.
func (r *Repository) Insert(ctx context.Context, record Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reconciliation_audit
			(id, operator_id, subject_id, tenant_id, requested, applied, failed, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.OperatorID, record.SubjectID, record.TenantID,
		record.Requested, record.Applied, record.Failed,
		record.StartedAt, record.DurationMS,
	)
	if err != nil {
		if isDuplicateRecord(err) {
			return nil
		}
		return err
	}
	return nil
}

// isDuplicateRecord reports whether the insert collided with an already
// stored reconciliation id.
func isDuplicateRecord(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "reconciliation_audit_pkey"
}

// Timeline returns records matching the filters, newest first.
func (r *Repository) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, operator_id, subject_id, tenant_id, requested, applied, failed, started_at, duration_ms
		FROM reconciliation_audit
		WHERE ($1 = '' OR operator_id = $1)
		  AND ($2 = '' OR subject_id = $2)
		  AND ($3 = '' OR tenant_id = $3)
		  AND ($4::timestamptz IS NULL OR started_at >= $4)
		  AND ($5::timestamptz IS NULL OR started_at < $5)
		ORDER BY started_at DESC
		OFFSET $6 LIMIT $7`,
		filters.OperatorID, filters.SubjectID, filters.TenantID,
		nullableTime(filters.From), nullableTime(filters.To),
		offset, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID, &record.OperatorID, &record.SubjectID, &record.TenantID,
			&record.Requested, &record.Applied, &record.Failed,
			&record.StartedAt, &record.DurationMS,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
