package rootspace

import "testing"

func testManager() *Manager {
	spaces := map[string]Space{
		"all": {
			Handler: "RoundRobin",
			Roots: []Root{
				{Path: "/data/1", Writable: true, Visit: true},
				{Path: "/data/2", Writable: true, Visit: true},
			},
		},
		"readonly": {
			Handler: "Default",
			Roots: []Root{
				{Path: "/archive/1", Writable: false, Visit: true},
			},
		},
	}
	return NewManager(spaces, map[string]string{"xxxx": "all"}, "readonly")
}

func TestSpaceForMappedAndDefault(t *testing.T) {
	m := testManager()
	if got := m.SpaceFor("xxxx"); got != "all" {
		t.Errorf("SpaceFor(xxxx) = %q, want %q", got, "all")
	}
	if got := m.SpaceFor("unknown"); got != "readonly" {
		t.Errorf("SpaceFor(unknown) = %q, want the default %q", got, "readonly")
	}
}

func TestSelectRootRoundRobinCycles(t *testing.T) {
	m := testManager()
	first, err := m.SelectRoot("xxxx")
	if err != nil {
		t.Fatalf("SelectRoot() error = %v", err)
	}
	second, err := m.SelectRoot("xxxx")
	if err != nil {
		t.Fatalf("SelectRoot() error = %v", err)
	}
	third, err := m.SelectRoot("xxxx")
	if err != nil {
		t.Fatalf("SelectRoot() error = %v", err)
	}
	if first.Path == second.Path {
		t.Errorf("SelectRoot() round-robin returned the same root twice in a row: %q", first.Path)
	}
	if first.Path != third.Path {
		t.Errorf("SelectRoot() round-robin did not cycle back after 2 writable roots: first=%q third=%q", first.Path, third.Path)
	}
}

func TestSelectRootNoWritableRootErrors(t *testing.T) {
	m := testManager()
	if _, err := m.SelectRoot("unknown"); err == nil {
		t.Error("SelectRoot() on a space with no writable roots error = nil, want error")
	}
}

func TestSelectRootUnknownSpaceErrors(t *testing.T) {
	m := NewManager(map[string]Space{}, nil, "missing")
	if _, err := m.SelectRoot("anything"); err == nil {
		t.Error("SelectRoot() with an unconfigured space error = nil, want error")
	}
}

func TestVisitRootsCollectsAcrossSpaces(t *testing.T) {
	m := testManager()
	roots := m.VisitRoots()
	if len(roots) != 3 {
		t.Fatalf("VisitRoots() returned %d roots, want 3", len(roots))
	}
}
