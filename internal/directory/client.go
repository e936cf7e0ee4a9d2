package directory

import (
	"context"

	"github.com/concord-collective/concord/internal/permissions"
)

// Client is the engine-facing contract of the central backend. Every
// reconciliation re-reads through it; nothing is cached at this layer.
type Client interface {
	Subject(ctx context.Context, id string) (*Subject, error)
	Tenant(ctx context.Context, id string) (*Tenant, error)
	Tenants(ctx context.Context) ([]Tenant, error)

	SetTenantBits(ctx context.Context, subjectID, tenantID string, bits permissions.Flags) error
	GrantCommittee(ctx context.Context, subjectID string, flag CommitteeFlag) error
	RevokeCommittee(ctx context.Context, subjectID string, flag CommitteeFlag) error
	PatchTenantRoles(ctx context.Context, tenantID string, patch StructuralPatch) error
}
