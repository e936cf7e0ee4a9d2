// Package directory models canonical permission state held by the central
// backend and provides the REST client that reads and mutates it.
package directory

import "github.com/concord-collective/concord/internal/permissions"

// CommitteeFlag identifies a global committee membership. Committee state
// is a join-table row in the backend, not a bit in the tenant mask.
type CommitteeFlag string

const (
	CommitteeExec     CommitteeFlag = "exec"
	CommitteeObserver CommitteeFlag = "observer"
)

// Subject is the aggregate record of a network user: per-tenant permission
// bits, singleton structural slots, and committee flags. The same shape
// serves for operators; only the eligibility resolver distinguishes them.
type Subject struct {
	ID         string
	TenantBits map[string]permissions.Flags
	OwnerOf    string
	AdvisorOf  string
	VoterOf    string
	Exec       bool
	Observer   bool
}

// Bits returns the subject's assignable bits for a tenant.
func (s Subject) Bits(tenantID string) permissions.Flags {
	return s.TenantBits[tenantID].Assignable()
}

// HoldsOwnerAnywhere reports whether the subject carries the OWNER
// structural slot for any tenant in the aggregate record.
func (s Subject) HoldsOwnerAnywhere() bool {
	return s.OwnerOf != ""
}

// Committee reports whether the subject holds either committee flag.
func (s Subject) Committee() bool {
	return s.Exec || s.Observer
}

// Clone deep-copies the subject so post-reconciliation state can be
// derived without touching the freshly read record.
func (s Subject) Clone() Subject {
	out := s
	out.TenantBits = make(map[string]permissions.Flags, len(s.TenantBits))
	for tenantID, bits := range s.TenantBits {
		out.TenantBits[tenantID] = bits
	}
	return out
}

// Tenant is one community instance: structural slots from the tenant's
// point of view, the cosmetic-role policy flag, and the catalog mapping
// flag names to platform role identifiers.
type Tenant struct {
	ID              string
	Name            string
	Alias           string
	OwnerID         string
	AdvisorID       string
	VoterID         string
	SingleColorRole bool

	// FlagRoles maps permission flag names to this tenant's platform role
	// ids. Tenants may define any subset.
	FlagRoles map[string]string

	OwnerRoleID   string
	AdvisorRoleID string
	VoterRoleID   string
	BotRoleID     string
}

// ManagedRoleIDs returns every platform role id this engine owns in the
// tenant. Roles outside this set are never touched.
func (t Tenant) ManagedRoleIDs() map[string]struct{} {
	managed := make(map[string]struct{}, len(t.FlagRoles)+4)
	for _, id := range t.FlagRoles {
		if id != "" {
			managed[id] = struct{}{}
		}
	}
	for _, id := range []string{t.OwnerRoleID, t.AdvisorRoleID, t.VoterRoleID, t.BotRoleID} {
		if id != "" {
			managed[id] = struct{}{}
		}
	}
	return managed
}

// StructuralPatch carries all three singleton slots of one tenant in a
// single write. A nil pointer clears the slot; patching every slot at once
// avoids a transient gap when a role moves between users.
type StructuralPatch struct {
	VoterID   *string
	OwnerID   *string
	AdvisorID *string
}

// Differs reports whether applying the patch would change the tenant.
func (p StructuralPatch) Differs(t Tenant) bool {
	return deref(p.VoterID) != t.VoterID ||
		deref(p.OwnerID) != t.OwnerID ||
		deref(p.AdvisorID) != t.AdvisorID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
