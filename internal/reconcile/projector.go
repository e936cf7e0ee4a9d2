package reconcile

import (
	"sort"

	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/gateway"
	"github.com/concord-collective/concord/internal/permissions"
)

// Projection is the derived target role set for one membership.
type Projection struct {
	RoleIDs []string
	// Changed is true when the target differs from the live set. The
	// comparison is order-insensitive: permuting the live roles must not
	// trigger a write.
	Changed bool
}

// Project derives the exact role set the member should carry in the
// tenant, from the post-reconciliation subject state. It is pure: the
// orchestrator supplies fresh reads and dispatches the write.
func Project(subject directory.Subject, tenant directory.Tenant, member gateway.Member) Projection {
	managed := tenant.ManagedRoleIDs()

	target := make(map[string]struct{})
	var ordered []string
	add := func(roleID string) {
		if roleID == "" {
			return
		}
		if _, ok := target[roleID]; ok {
			return
		}
		target[roleID] = struct{}{}
		ordered = append(ordered, roleID)
	}

	// Stale managed roles are stripped; unmanaged roles pass through
	// untouched.
	for _, roleID := range member.RoleIDs {
		if _, owned := managed[roleID]; !owned {
			add(roleID)
		}
	}

	if member.Bot {
		add(tenant.BotRoleID)
	}

	if tenant.OwnerID == subject.ID {
		add(tenant.OwnerRoleID)
	}
	if tenant.AdvisorID == subject.ID {
		add(tenant.AdvisorRoleID)
	}
	if tenant.VoterID == subject.ID {
		add(tenant.VoterRoleID)
	}

	// Staff roles project into every tenant the subject is a member of:
	// the catalog of bits is keyed by tenant, the role mapping is this
	// tenant's own.
	structuralHolder := tenant.OwnerID == subject.ID || tenant.AdvisorID == subject.ID
	for _, sourceTenantID := range sortedKeys(subject.TenantBits) {
		bits := subject.TenantBits[sourceTenantID].Assignable()
		cosmeticAllowed := !tenant.SingleColorRole || bits.HasAny(permissions.SeniorMask) || structuralHolder
		for _, name := range bits.Names() {
			flag, _ := permissions.Parse(name)
			if !flag.HasAny(permissions.SeniorMask) && !cosmeticAllowed {
				continue
			}
			add(tenant.FlagRoles[name])
		}
	}

	return Projection{
		RoleIDs: ordered,
		Changed: !sameRoleSet(member.RoleIDs, target),
	}
}

func sameRoleSet(current []string, target map[string]struct{}) bool {
	seen := make(map[string]struct{}, len(current))
	for _, roleID := range current {
		if _, ok := target[roleID]; !ok {
			return false
		}
		seen[roleID] = struct{}{}
	}
	return len(seen) == len(target)
}

func sortedKeys(m map[string]permissions.Flags) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
