package lifecycle

import "testing"

func TestControlStoreSetAndDisabled(t *testing.T) {
	dir := t.TempDir()
	cs, err := OpenControlStore(dir)
	if err != nil {
		t.Fatalf("OpenControlStore() error = %v", err)
	}
	defer cs.Close()

	disabled, err := cs.Disabled("archive")
	if err != nil {
		t.Fatalf("Disabled() error = %v", err)
	}
	if disabled {
		t.Error("Disabled(\"archive\") = true before any Set, want false")
	}

	if err := cs.Set("archive", false); err != nil {
		t.Fatalf("Set(false) error = %v", err)
	}
	disabled, err = cs.Disabled("archive")
	if err != nil {
		t.Fatalf("Disabled() error = %v", err)
	}
	if !disabled {
		t.Error("Disabled(\"archive\") = false after Set(enable=false), want true")
	}

	if err := cs.Set("archive", true); err != nil {
		t.Fatalf("Set(true) error = %v", err)
	}
	disabled, err = cs.Disabled("archive")
	if err != nil {
		t.Fatalf("Disabled() error = %v", err)
	}
	if disabled {
		t.Error("Disabled(\"archive\") = true after re-enabling, want false")
	}
}

// TestControlStorePersistsAcrossReopen exercises the spec requirement
// that lock state is read at catalogue open and survives restarts.
func TestControlStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cs, err := OpenControlStore(dir)
	if err != nil {
		t.Fatalf("OpenControlStore() error = %v", err)
	}
	if err := cs.Set("wipe", false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cs.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenControlStore(dir)
	if err != nil {
		t.Fatalf("re-OpenControlStore() error = %v", err)
	}
	defer reopened.Close()
	disabled, err := reopened.Disabled("wipe")
	if err != nil {
		t.Fatalf("Disabled() error = %v", err)
	}
	if !disabled {
		t.Error("Disabled(\"wipe\") after reopen = false, want true")
	}
	// An action never set keeps its default (enabled).
	disabled, err = reopened.Disabled("archive")
	if err != nil {
		t.Fatalf("Disabled() error = %v", err)
	}
	if disabled {
		t.Error("Disabled(\"archive\") = true for an action never disabled, want false")
	}
}

func TestControlStoreIndependentActions(t *testing.T) {
	dir := t.TempDir()
	cs, err := OpenControlStore(dir)
	if err != nil {
		t.Fatalf("OpenControlStore() error = %v", err)
	}
	defer cs.Close()

	if err := cs.Set("list", false); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	listDisabled, err := cs.Disabled("list")
	if err != nil {
		t.Fatalf("Disabled(list) error = %v", err)
	}
	retrieveDisabled, err := cs.Disabled("retrieve")
	if err != nil {
		t.Fatalf("Disabled(retrieve) error = %v", err)
	}
	if !listDisabled {
		t.Error("Disabled(\"list\") = false, want true")
	}
	if retrieveDisabled {
		t.Error("Disabled(\"retrieve\") = true, want false (unaffected by disabling \"list\")")
	}
}
