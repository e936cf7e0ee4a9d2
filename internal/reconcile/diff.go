package reconcile

import (
	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/eligibility"
	"github.com/concord-collective/concord/internal/permissions"
)

// Plan is the outcome of the central-state diff: the write intents needed
// to move the backend to the requested state, plus the post-reconciliation
// view of the subject and target tenant that the role projector works
// from. Building a plan has no side effects.
type Plan struct {
	// Requested holds the flag names that survived eligibility filtering,
	// in catalog order.
	Requested []string
	// Intents are the central-backend writes, in diff order: bitmask,
	// committee, structural.
	Intents []Intent
	// Subject is the subject as it will read after the intents apply.
	Subject directory.Subject
	// Tenant is the target tenant record with the structural patch
	// applied, nil for tenant-less operations.
	Tenant *directory.Tenant
}

// BuildPlan computes the minimal central-backend writes for the requested
// state. Requested names outside the eligible set are dropped, never
// applied: an ineligible OWNER request produces no structural write.
func BuildPlan(subject directory.Subject, tenant *directory.Tenant, elig eligibility.Eligibility, requested []string) *Plan {
	selected := make(map[string]bool, len(requested))
	for _, name := range requested {
		if elig.Eligible(name) {
			selected[name] = true
		}
	}

	plan := &Plan{Subject: subject.Clone()}
	for _, name := range permissions.All() {
		if selected[name] {
			plan.Requested = append(plan.Requested, name)
		}
	}

	if tenant != nil {
		plan.diffBits(*tenant)
	}
	plan.diffCommittee(elig, selected)
	if tenant != nil {
		plan.diffStructural(*tenant, elig, selected)
	}
	return plan
}

// diffBits recomputes the assignable bitmask for the target tenant.
// Combine drops structural and committee names, so they never reach the
// mask.
func (p *Plan) diffBits(tenant directory.Tenant) {
	newBits := permissions.Combine(p.Requested)
	if newBits != p.Subject.Bits(tenant.ID) {
		p.Intents = append(p.Intents, SetPermissionBits{
			SubjectID: p.Subject.ID,
			TenantID:  tenant.ID,
			Bits:      newBits,
		})
	}
	if p.Subject.TenantBits == nil {
		p.Subject.TenantBits = map[string]permissions.Flags{}
	}
	p.Subject.TenantBits[tenant.ID] = newBits
}

// diffCommittee emits grant/revoke pairs per flag. The backend models
// committee membership as a join-table row, so the two directions are
// distinct idempotent endpoints rather than one PATCH.
func (p *Plan) diffCommittee(elig eligibility.Eligibility, selected map[string]bool) {
	type committee struct {
		name    string
		flag    directory.CommitteeFlag
		current *bool
	}
	for _, c := range []committee{
		{permissions.NameExec, directory.CommitteeExec, &p.Subject.Exec},
		{permissions.NameObserver, directory.CommitteeObserver, &p.Subject.Observer},
	} {
		if !elig.Eligible(c.name) {
			continue
		}
		want := selected[c.name]
		if want == *c.current {
			continue
		}
		if want {
			p.Intents = append(p.Intents, GrantCommittee{SubjectID: p.Subject.ID, Flag: c.flag})
		} else {
			p.Intents = append(p.Intents, RevokeCommittee{SubjectID: p.Subject.ID, Flag: c.flag})
		}
		*c.current = want
	}
}

// diffStructural derives the candidate holder for each singleton slot:
// requested means the subject takes it, eligible-and-unselected while the
// subject holds it means an explicit clear, anything else leaves the
// current holder in place.
func (p *Plan) diffStructural(tenant directory.Tenant, elig eligibility.Eligibility, selected map[string]bool) {
	candidate := func(name, currentHolder string) *string {
		if selected[name] {
			id := p.Subject.ID
			return &id
		}
		if elig.Eligible(name) && currentHolder == p.Subject.ID {
			return nil
		}
		if currentHolder == "" {
			return nil
		}
		holder := currentHolder
		return &holder
	}

	patch := directory.StructuralPatch{
		VoterID:   candidate(permissions.NameVoter, tenant.VoterID),
		OwnerID:   candidate(permissions.NameOwner, tenant.OwnerID),
		AdvisorID: candidate(permissions.NameAdvisor, tenant.AdvisorID),
	}

	if patch.Differs(tenant) {
		p.Intents = append(p.Intents, PatchStructuralRoles{TenantID: tenant.ID, Patch: patch})
	}

	post := tenant
	post.VoterID = strOrEmpty(patch.VoterID)
	post.OwnerID = strOrEmpty(patch.OwnerID)
	post.AdvisorID = strOrEmpty(patch.AdvisorID)
	p.Tenant = &post

	p.applyStructuralSlot(&p.Subject.VoterOf, post.VoterID, tenant.ID)
	p.applyStructuralSlot(&p.Subject.OwnerOf, post.OwnerID, tenant.ID)
	p.applyStructuralSlot(&p.Subject.AdvisorOf, post.AdvisorID, tenant.ID)
}

func (p *Plan) applyStructuralSlot(slot *string, holder, tenantID string) {
	switch {
	case holder == p.Subject.ID:
		*slot = tenantID
	case *slot == tenantID:
		*slot = ""
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
