// Package catalog provides the immutable tenant-catalog snapshot the
// reconciliation engine is handed on every pass.
package catalog

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/concord-collective/concord/internal/directory"
)

// Snapshot is a point-in-time view of the tenant catalog. It is never
// mutated after construction; refreshes build a new snapshot.
type Snapshot struct {
	tenants []directory.Tenant
	byID    map[string]int
}

// NewSnapshot indexes the given tenants.
func NewSnapshot(tenants []directory.Tenant) *Snapshot {
	snap := &Snapshot{
		tenants: make([]directory.Tenant, len(tenants)),
		byID:    make(map[string]int, len(tenants)),
	}
	copy(snap.tenants, tenants)
	for i, tenant := range snap.tenants {
		snap.byID[tenant.ID] = i
	}
	return snap
}

// Tenant looks up a tenant by id.
func (s *Snapshot) Tenant(id string) (directory.Tenant, bool) {
	i, ok := s.byID[id]
	if !ok {
		return directory.Tenant{}, false
	}
	return s.tenants[i], true
}

// All returns the catalog in load order. Callers must not mutate the
// returned slice's elements.
func (s *Snapshot) All() []directory.Tenant {
	return s.tenants
}

// Len returns the number of tenants.
func (s *Snapshot) Len() int {
	return len(s.tenants)
}

// Search returns tenants whose name or alias starts with the query,
// compared under Unicode case folding.
func (s *Snapshot) Search(query string) []directory.Tenant {
	folder := cases.Fold()
	q := folder.String(strings.TrimSpace(query))
	if q == "" {
		return s.All()
	}
	var matches []directory.Tenant
	for _, tenant := range s.tenants {
		if strings.HasPrefix(folder.String(tenant.Name), q) || strings.HasPrefix(folder.String(tenant.Alias), q) {
			matches = append(matches, tenant)
		}
	}
	return matches
}
