// Package eligibility decides which permission flags an operator may
// grant or revoke on a subject, given an optional tenant context.
package eligibility

import (
	"errors"

	"github.com/concord-collective/concord/internal/directory"
	"github.com/concord-collective/concord/internal/permissions"
)

var (
	// ErrNoTenant rejects tenant-less operations from operators without a
	// committee flag.
	ErrNoTenant = errors.New("no tenant specified")
	// ErrNotAuthorized rejects operators with no standing for the tenant.
	ErrNotAuthorized = errors.New("not authorized for tenant")
)

// Option is one flag the operator may toggle, with the subject's current
// holding as the caller's select-menu default.
type Option struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Eligibility is the filtered option set for one operator/subject/tenant
// triple. An empty set is a valid outcome, not an error.
type Eligibility struct {
	Options []Option
}

// Eligible reports whether the named flag is in the set.
func (e Eligibility) Eligible(name string) bool {
	for _, opt := range e.Options {
		if opt.Name == name {
			return true
		}
	}
	return false
}

// Names returns the eligible flag names in catalog order.
func (e Eligibility) Names() []string {
	names := make([]string, len(e.Options))
	for i, opt := range e.Options {
		names[i] = opt.Name
	}
	return names
}

// Resolve applies the authorization gate and the per-flag rules. tenant is
// nil for tenant-less (committee-only) operations.
func Resolve(operator, subject directory.Subject, tenant *directory.Tenant) (Eligibility, error) {
	if !operator.Committee() {
		if tenant == nil {
			return Eligibility{}, ErrNoTenant
		}
		if operator.OwnerOf != tenant.ID && operator.AdvisorOf != tenant.ID {
			return Eligibility{}, ErrNotAuthorized
		}
	}

	var result Eligibility
	for _, name := range permissions.All() {
		if !eligible(name, operator, subject, tenant) {
			continue
		}
		result.Options = append(result.Options, Option{
			Name:     name,
			Label:    permissions.Label(name),
			Selected: holds(name, subject, tenant),
		})
	}
	return result, nil
}

func eligible(name string, operator, subject directory.Subject, tenant *directory.Tenant) bool {
	if tenant == nil {
		// Only committee operators reach this branch, and only committee
		// flags can be toggled without a tenant.
		return permissions.Committee(name)
	}

	switch name {
	case permissions.NameVoter:
		return operator.OwnerOf == tenant.ID || operator.VoterOf == tenant.ID
	case permissions.NameAdvisor:
		return operator.OwnerOf == tenant.ID || operator.AdvisorOf == tenant.ID
	case permissions.NameOwner:
		// Never offered when the subject already holds OWNER anywhere in
		// the aggregate record.
		if subject.HoldsOwnerAnywhere() {
			return false
		}
		return operator.OwnerOf == tenant.ID
	case permissions.NameExec, permissions.NameObserver:
		return false
	default:
		// Plain staff flags carry no holder precondition.
		return permissions.Plain(name)
	}
}

func holds(name string, subject directory.Subject, tenant *directory.Tenant) bool {
	switch name {
	case permissions.NameExec:
		return subject.Exec
	case permissions.NameObserver:
		return subject.Observer
	}
	if tenant == nil {
		return false
	}
	switch name {
	case permissions.NameOwner:
		return subject.OwnerOf == tenant.ID
	case permissions.NameAdvisor:
		return subject.AdvisorOf == tenant.ID
	case permissions.NameVoter:
		return subject.VoterOf == tenant.ID
	}
	flag, err := permissions.Parse(name)
	if err != nil {
		return false
	}
	return subject.Bits(tenant.ID).Has(flag)
}
