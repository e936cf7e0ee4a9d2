// Package reconcile implements the role reconciliation engine: the
// central-state diff, the per-tenant role projection, and the orchestrator
// that fans the resulting writes out to both backends.
package reconcile

import (
	"context"
	"fmt"

	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/gateway"
	"github.com/concord-collective/concord/internal/permissions"
)

// Env carries the write targets an intent executes against.
type Env struct {
	Central directory.Client
	Gateway gateway.Client
}

// Intent is one idempotent, independently dispatchable write. Intents are
// pure data until executed; no intent depends on another's completion.
type Intent interface {
	Key() string
	Execute(ctx context.Context, env Env) error
}

// SetPermissionBits replaces the subject's assignable bitmask for one
// tenant in the central backend.
type SetPermissionBits struct {
	SubjectID string
	TenantID  string
	Bits      permissions.Flags
}

func (i SetPermissionBits) Key() string {
	return fmt.Sprintf("central:bits:%s:%s", i.SubjectID, i.TenantID)
}

func (i SetPermissionBits) Execute(ctx context.Context, env Env) error {
	return env.Central.SetTenantBits(ctx, i.SubjectID, i.TenantID, i.Bits)
}

// GrantCommittee adds a committee membership row.
type GrantCommittee struct {
	SubjectID string
	Flag      directory.CommitteeFlag
}

func (i GrantCommittee) Key() string {
	return fmt.Sprintf("central:committee:grant:%s:%s", i.Flag, i.SubjectID)
}

func (i GrantCommittee) Execute(ctx context.Context, env Env) error {
	return env.Central.GrantCommittee(ctx, i.SubjectID, i.Flag)
}

// RevokeCommittee removes a committee membership row.
type RevokeCommittee struct {
	SubjectID string
	Flag      directory.CommitteeFlag
}

func (i RevokeCommittee) Key() string {
	return fmt.Sprintf("central:committee:revoke:%s:%s", i.Flag, i.SubjectID)
}

func (i RevokeCommittee) Execute(ctx context.Context, env Env) error {
	return env.Central.RevokeCommittee(ctx, i.SubjectID, i.Flag)
}

// PatchStructuralRoles writes all three singleton slots of one tenant in a
// single call, so a role moving between users never has a transient gap.
type PatchStructuralRoles struct {
	TenantID string
	Patch    directory.StructuralPatch
}

func (i PatchStructuralRoles) Key() string {
	return fmt.Sprintf("central:structural:%s", i.TenantID)
}

func (i PatchStructuralRoles) Execute(ctx context.Context, env Env) error {
	return env.Central.PatchTenantRoles(ctx, i.TenantID, i.Patch)
}

// SetMemberRoles replaces a member's live role set on the platform.
type SetMemberRoles struct {
	TenantID  string
	SubjectID string
	RoleIDs   []string
}

func (i SetMemberRoles) Key() string {
	return fmt.Sprintf("gateway:roles:%s:%s", i.TenantID, i.SubjectID)
}

func (i SetMemberRoles) Execute(ctx context.Context, env Env) error {
	return env.Gateway.SetMemberRoles(ctx, i.TenantID, i.SubjectID, i.RoleIDs)
}

// Outcome is the result of one dispatched intent.
type Outcome struct {
	Key string
	Err error
}

// Result aggregates a reconciliation pass: the correlation id, the flag
// names that survived eligibility filtering, and per-intent outcomes.
type Result struct {
	ID       string
	Applied  []string
	Outcomes []Outcome
}

// Failed returns the outcomes whose intent did not apply.
func (r *Result) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Partial reports whether some, but not all, intents failed to apply.
func (r *Result) Partial() bool {
	failed := len(r.Failed())
	return failed > 0
}
