package catalogue

import (
	"path/filepath"
	"testing"

	"github.com/ecmwf-go/fdb/pkg/location"
)

func TestIndexFilePutGet(t *testing.T) {
	idx := NewIndexFile(filepath.Join(t.TempDir(), "index.test.data"), 4)
	loc := location.New("file:///a", 0, 21)
	if err := idx.Put("param=130,step=1", loc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok := idx.Get("param=130,step=1")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != loc {
		t.Errorf("Get() = %+v, want %+v", got, loc)
	}
}

func TestIndexFileDuplicateKeyRejected(t *testing.T) {
	idx := NewIndexFile(filepath.Join(t.TempDir(), "index.test.data"), 4)
	if err := idx.Put("k1", location.New("file:///a", 0, 1)); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := idx.Put("k1", location.New("file:///b", 0, 1)); err == nil {
		t.Error("second Put() with the same key error = nil, want CatalogueCorrupt")
	}
}

func TestIndexFileSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.test.data")
	idx := NewIndexFile(path, 8)
	entries := map[string]location.FieldLocation{
		"k1": location.New("file:///a", 0, 10),
		"k2": location.New("file:///a", 10, 5),
		"k3": location.New("file:///b", 0, 21),
	}
	for k, v := range entries {
		if err := idx.Put(k, v); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadIndexFile(path)
	if err != nil {
		t.Fatalf("LoadIndexFile() error = %v", err)
	}
	for k, want := range entries {
		got, ok := loaded.Get(k)
		if !ok {
			t.Errorf("Get(%q) ok = false after round trip", k)
			continue
		}
		if got != want {
			t.Errorf("Get(%q) = %+v, want %+v", k, got, want)
		}
	}
	if len(loaded.Entries()) != len(entries) {
		t.Errorf("Entries() returned %d, want %d", len(loaded.Entries()), len(entries))
	}
}

func TestLoadIndexFileMissing(t *testing.T) {
	if _, err := LoadIndexFile(filepath.Join(t.TempDir(), "nope.data")); err == nil {
		t.Error("LoadIndexFile() error = nil, want IndexMissing")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("class=od,stream=oper")
	b := Fingerprint("class=od,stream=oper")
	if a != b {
		t.Error("Fingerprint() not stable across calls for the same input")
	}
	c := Fingerprint("class=rd,stream=oper")
	if a == c {
		t.Error("Fingerprint() collided for distinct inputs (statistically very unlikely)")
	}
}
