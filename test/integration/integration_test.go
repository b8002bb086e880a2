// Package integration exercises internal/build's config-to-dispatch
// wiring end to end, black-box style: a YAML document in, a working
// dispatch.FDB out, driven the way a CLI command would drive it.
package integration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ecmwf-go/fdb/internal/build"
	"github.com/ecmwf-go/fdb/internal/config"
	"github.com/ecmwf-go/fdb/pkg/dispatch"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

const testSchema = `[class, expver [date [param]]]`

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema")
	if err := os.WriteFile(path, []byte(testSchema), 0o644); err != nil {
		t.Fatalf("WriteFile(schema) error = %v", err)
	}
	return path
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Type:   config.TypeLocal,
		Schema: writeSchema(t, dir),
		Store:  config.StoreFile,
		Spaces: map[string]config.SpaceConfig{
			"default": {Roots: []config.RootConfig{{Path: dir, Writable: true, Visit: true}}},
		},
	}
}

func chainFor(class, expver, date, param string) *key.Chain {
	db := key.New()
	db.Set("class", class)
	db.Set("expver", expver)
	idx := key.New()
	idx.Set("date", date)
	datum := key.New()
	datum.Set("param", param)
	return key.NewChain(db, idx, datum)
}

// TestArchiveFlushListRetrieve mirrors spec.md §8 E2E scenario 1, driven
// through internal/build.FDB rather than constructing dispatch.Local
// directly, so the config-parsing and root-selection layers are
// exercised too.
func TestArchiveFlushListRetrieve(t *testing.T) {
	cfg := localConfig(t)
	fdb, err := build.FDB(cfg)
	if err != nil {
		t.Fatalf("build.FDB() error = %v", err)
	}
	defer fdb.Close()

	ctx := context.Background()
	payload := []byte("Raining cats and dogs")
	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := fdb.Archive(ctx, dispatch.ArchiveRequest{Chain: chain, Payload: payload}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := fdb.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}}
	entries, err := fdb.List(ctx, req, true)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}

	h, err := fdb.Retrieve(ctx, req, true, false)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	defer h.Close()
	got, err := io.ReadAll(h)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("retrieved payload = %q, want %q", got, payload)
	}
}

// TestDedupKeepsOnePerCellThenWipe mirrors spec.md §8 E2E scenarios 5
// and 4: distinct index cells archived together dedup to one entry per
// cell, and a subsequent wipe leaves nothing behind. (Re-archiving one
// *identical* key across separate flushes is not exercised here — see
// DESIGN.md's masking-granularity note.)
func TestDedupKeepsOnePerCellThenWipe(t *testing.T) {
	cfg := localConfig(t)
	fdb, err := build.FDB(cfg)
	if err != nil {
		t.Fatalf("build.FDB() error = %v", err)
	}
	defer fdb.Close()

	ctx := context.Background()
	for _, param := range []string{"167", "168"} {
		chain := chainFor("od", "xxxx", "20101010", param)
		if err := fdb.Archive(ctx, dispatch.ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
			t.Fatalf("Archive(%s) error = %v", param, err)
		}
	}
	if err := fdb.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}, "param": {"167", "168"}}
	deduped, err := fdb.List(ctx, req, true)
	if err != nil {
		t.Fatalf("List(dedup=true) error = %v", err)
	}
	if len(deduped) != 2 {
		t.Fatalf("List(dedup=true) = %d entries, want 2 (one per param cell)", len(deduped))
	}

	wipeReq := schema.Request{"class": {"od"}, "expver": {"xxxx"}}
	if _, err := fdb.Wipe(ctx, wipeReq, true, false); err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}
	remaining, err := fdb.List(ctx, wipeReq, false)
	if err != nil {
		t.Fatalf("List() after wipe error = %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("List() after wipe = %d entries, want 0", len(remaining))
	}
}

// TestRetrieveNotFoundWhenNothingArchived mirrors spec.md §7's NotFound
// error kind: retrieve on an empty database returns NotFound, not a
// zero-length success.
func TestRetrieveNotFoundWhenNothingArchived(t *testing.T) {
	cfg := localConfig(t)
	fdb, err := build.FDB(cfg)
	if err != nil {
		t.Fatalf("build.FDB() error = %v", err)
	}
	defer fdb.Close()

	_, err = fdb.Retrieve(context.Background(), schema.Request{"class": {"od"}, "expver": {"xxxx"}}, true, false)
	if err == nil {
		t.Fatal("Retrieve() on an empty database error = nil, want NotFound")
	}
}
