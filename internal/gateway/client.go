// Package gateway reads and writes live membership state on the chat
// platform. Membership is ephemeral: it is fetched fresh before every
// reconciliation pass and never persisted here.
package gateway

import (
	"context"
	"errors"
)

// ErrNotMember indicates the subject has no live membership in the tenant.
// The projector skips such tenants; it is not a failure.
var ErrNotMember = errors.New("not a member")

// Member is a subject's live presence in one tenant.
type Member struct {
	SubjectID string
	TenantID  string
	RoleIDs   []string
	Bot       bool
}

// Client is the engine-facing contract of the platform gateway.
type Client interface {
	Member(ctx context.Context, tenantID, subjectID string) (*Member, error)
	// SetMemberRoles replaces the member's role set wholesale, managed and
	// unmanaged roles combined.
	SetMemberRoles(ctx context.Context, tenantID, subjectID string, roleIDs []string) error
}
