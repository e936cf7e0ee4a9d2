package audit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsDuplicateRecord(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "reconciliation_audit_pkey"}

	assert.True(t, isDuplicateRecord(dup))
	assert.True(t, isDuplicateRecord(fmt.Errorf("insert: %w", dup)))

	assert.False(t, isDuplicateRecord(nil))
	assert.False(t, isDuplicateRecord(errors.New("connection refused")))
	assert.False(t, isDuplicateRecord(&pgconn.PgError{Code: "23503", ConstraintName: "reconciliation_audit_pkey"}))
	assert.False(t, isDuplicateRecord(&pgconn.PgError{Code: "23505", ConstraintName: "other_unique"}))
}
