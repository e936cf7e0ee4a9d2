// Package permissions defines the fixed catalog of permission flags and
// the bitmask encoding used by the central directory.
package permissions

import "fmt"

// Flags is a bitmask over the permission catalog.
type Flags uint32

const (
	// FlagModerator marks network moderators.
	FlagModerator Flags = 1 << iota
	// FlagEvent marks event staff.
	FlagEvent
	// FlagTheory marks theorycrafting staff.
	FlagTheory
	// FlagLeaks marks leak staff.
	FlagLeaks
	// FlagArt marks art staff.
	FlagArt
	// FlagDev marks developer staff.
	FlagDev

	// FlagOwner is the structural server-owner bit. Derived state; never
	// persisted through the bitmask write path.
	FlagOwner
	// FlagAdvisor is the structural council-advisor bit.
	FlagAdvisor
	// FlagVoter is the structural voter bit.
	FlagVoter
	// FlagExec is the internal-committee bit.
	FlagExec
	// FlagObserver is the external-committee bit.
	FlagObserver
)

// AssignableMask isolates the bits that may be stored in a tenant's
// permission record. Structural and committee bits fall outside it.
const AssignableMask = FlagOwner - 1

// SeniorMask marks the staff tiers that satisfy a tenant's
// single-color-role policy on their own.
const SeniorMask = FlagModerator | FlagDev

// Flag names, in catalog order.
const (
	NameModerator = "MODERATOR"
	NameEvent     = "EVENT"
	NameTheory    = "THEORY"
	NameLeaks     = "LEAKS"
	NameArt       = "ART"
	NameDev       = "DEV"
	NameOwner     = "OWNER"
	NameAdvisor   = "ADVISOR"
	NameVoter     = "VOTER"
	NameExec      = "EXEC"
	NameObserver  = "OBSERVER"
)

var catalog = []struct {
	name  string
	label string
	flag  Flags
}{
	{NameModerator, "Moderator", FlagModerator},
	{NameEvent, "Event Staff", FlagEvent},
	{NameTheory, "Theorycrafting Staff", FlagTheory},
	{NameLeaks, "Leak Staff", FlagLeaks},
	{NameArt, "Art Staff", FlagArt},
	{NameDev, "Developer Staff", FlagDev},
	{NameOwner, "Server Owner", FlagOwner},
	{NameAdvisor, "Council Advisor", FlagAdvisor},
	{NameVoter, "Voter", FlagVoter},
	{NameExec, "Internal Committee", FlagExec},
	{NameObserver, "External Committee", FlagObserver},
}

var byName = func() map[string]Flags {
	m := make(map[string]Flags, len(catalog))
	for _, entry := range catalog {
		m[entry.name] = entry.flag
	}
	return m
}()

// Has reports whether every bit of target is set.
func (f Flags) Has(target Flags) bool {
	return f&target == target
}

// HasAny reports whether any bit of target is set.
func (f Flags) HasAny(target Flags) bool {
	return f&target != 0
}

// Assignable truncates f to the centrally persistable subset.
func (f Flags) Assignable() Flags {
	return f & AssignableMask
}

// Names expands f into catalog-ordered flag names.
func (f Flags) Names() []string {
	var names []string
	for _, entry := range catalog {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

// Parse resolves a catalog name to its flag.
func Parse(name string) (Flags, error) {
	flag, ok := byName[name]
	if !ok {
		return 0, fmt.Errorf("permissions: unknown flag %q", name)
	}
	return flag, nil
}

// Label returns the display label for a catalog name, or the name itself
// when it is not in the catalog.
func Label(name string) string {
	for _, entry := range catalog {
		if entry.name == name {
			return entry.label
		}
	}
	return name
}

// All returns the catalog names in declaration order.
func All() []string {
	names := make([]string, len(catalog))
	for i, entry := range catalog {
		names[i] = entry.name
	}
	return names
}

// Structural reports whether name is one of the singleton tenant roles.
func Structural(name string) bool {
	return name == NameOwner || name == NameAdvisor || name == NameVoter
}

// Committee reports whether name is a global committee flag.
func Committee(name string) bool {
	return name == NameExec || name == NameObserver
}

// Plain reports whether name is an ordinary assignable flag.
func Plain(name string) bool {
	flag, ok := byName[name]
	return ok && flag&AssignableMask != 0
}

// Combine folds the plain flags among names into a bitmask. Structural and
// committee names are skipped: they are tracked as separate fields, never
// through the mask.
func Combine(names []string) Flags {
	var bits Flags
	for _, name := range names {
		if flag, ok := byName[name]; ok && flag&AssignableMask != 0 {
			bits |= flag
		}
	}
	return bits
}
