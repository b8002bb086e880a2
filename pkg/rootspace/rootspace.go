// Package rootspace chooses a filesystem root (or bucket) for a new
// database and maps expver to a named space, per spec.md §4's
// "Root/FileSpace manager" component and the `spaces` configuration of
// §6.
package rootspace

import (
	"fmt"

	"github.com/ecmwf-go/fdb/internal/ferr"
)

// Root is one candidate location within a space.
type Root struct {
	Path     string
	Writable bool
	Visit    bool // included when enumerating databases for list/wipe-all
}

// Space groups a set of roots under one handler policy. "handler" names
// the root-selection strategy (e.g. "Default", "RoundRobin").
type Space struct {
	Handler string
	Roots   []Root
}

// Manager maps expver keywords to a Space and selects a concrete Root
// for archiving a new database within that space.
type Manager struct {
	spaces        map[string]Space
	expverToSpace map[string]string
	defaultSpace  string

	rrCounters map[string]int
}

// NewManager builds a Manager from named spaces and an expver->space
// mapping; expvers absent from the mapping resolve to defaultSpace.
func NewManager(spaces map[string]Space, expverToSpace map[string]string, defaultSpace string) *Manager {
	return &Manager{
		spaces:        spaces,
		expverToSpace: expverToSpace,
		defaultSpace:  defaultSpace,
		rrCounters:    make(map[string]int),
	}
}

// SpaceFor resolves the space name governing expver.
func (m *Manager) SpaceFor(expver string) string {
	if name, ok := m.expverToSpace[expver]; ok {
		return name
	}
	return m.defaultSpace
}

// SelectRoot picks a writable root within expver's space, according to
// the space's handler policy.
func (m *Manager) SelectRoot(expver string) (Root, error) {
	spaceName := m.SpaceFor(expver)
	space, ok := m.spaces[spaceName]
	if !ok {
		return Root{}, ferr.New(ferr.UserError, "no space configured").With("space", spaceName)
	}

	var writable []Root
	for _, r := range space.Roots {
		if r.Writable {
			writable = append(writable, r)
		}
	}
	if len(writable) == 0 {
		return Root{}, ferr.New(ferr.UserError, "no writable root in space").With("space", spaceName)
	}

	switch space.Handler {
	case "RoundRobin":
		i := m.rrCounters[spaceName] % len(writable)
		m.rrCounters[spaceName]++
		return writable[i], nil
	default: // "Default": first writable root
		return writable[0], nil
	}
}

// VisitRoots returns every root across every space marked Visit=true,
// used to enumerate databases for an `all=true` request or an
// unsafeWipeAll sweep.
func (m *Manager) VisitRoots() []Root {
	var out []Root
	for _, space := range m.spaces {
		for _, r := range space.Roots {
			if r.Visit {
				out = append(out, r)
			}
		}
	}
	return out
}

// String renders the manager's space/expver configuration, useful for
// diagnostics (the `where` CLI tool).
func (m *Manager) String() string {
	return fmt.Sprintf("rootspace.Manager{spaces=%d, mappings=%d, default=%q}", len(m.spaces), len(m.expverToSpace), m.defaultSpace)
}
