package dispatch

import (
	"context"
	"io"
	"testing"

	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/registry"
	"github.com/ecmwf-go/fdb/pkg/schema"
	"github.com/ecmwf-go/fdb/pkg/store"
)

func testLocalSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Parse(`[class, expver [date [param]]]`, registry.New())
	if err != nil {
		t.Fatalf("schema.Parse() error = %v", err)
	}
	return sch
}

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	root := t.TempDir()
	backend, err := store.NewFileStore(t.TempDir(), store.Unpacked)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return NewLocal(root, testLocalSchema(t), backend, NewCatalogueLRU(16), []byte("schema"))
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

// TestLocalArchiveFlushList mirrors spec.md §8 E2E scenario 1.
func TestLocalArchiveFlushList(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	chain := chainFor("od", "xxxx", "20101010", "130")
	payload := []byte("Raining cats and dogs")
	if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: payload}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}}
	entries, err := l.List(ctx, req, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}

	rs, err := l.backend.Retrieve(ctx, entries[0].Location)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	defer rs.Close()
	got, err := io.ReadAll(rs)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("retrieved payload = %q, want %q", got, payload)
	}
}

func TestLocalDedupKeepsOnePerCell(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	// Two distinct params archived under the same database/index.
	for _, param := range []string{"167", "168"} {
		chain := chainFor("od", "xxxx", "20120911", param)
		if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
			t.Fatalf("Archive(%s) error = %v", param, err)
		}
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}, "param": {"167", "168"}}
	entries, err := l.List(ctx, req, true)
	if err != nil {
		t.Fatalf("List(dedup=true) error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List(dedup=true) returned %d entries, want 2 (one per param cell)", len(entries))
	}
}

func TestLocalWipeRemovesDatabase(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}}
	if _, err := l.Wipe(ctx, req, true, true); err != nil {
		t.Fatalf("Wipe() error = %v", err)
	}

	entries, err := l.List(ctx, req, false)
	if err != nil {
		t.Fatalf("List() after wipe error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() after wipe returned %d entries, want 0", len(entries))
	}
}

func TestLocalWipeUnderSpecifiedRequiresUnsafeFlag(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// class alone matches the rule's db level (expver is implicitly
	// omitted in ModeRead) but doesn't fully determine it, so wipe must
	// reject without unsafeWipeAll.
	req := schema.Request{"class": {"od"}}
	if _, err := l.Wipe(ctx, req, true, false); err == nil {
		t.Error("Wipe() error = nil, want UserError for an unmatched/under-specified request")
	}
}

func TestLocalControlBlocksArchive(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := l.Control(ctx, chain.DB, ControlArchive, false); err != nil {
		t.Fatalf("Control() error = %v", err)
	}
	if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err == nil {
		t.Error("Archive() on a locked database error = nil, want LockConflict")
	}
}

// TestLocalControlPersistsAcrossReopen exercises spec §4.6's "persisted
// as a lock file read at catalogue open": a lock set by one Local must
// still apply after that Local is closed and a fresh one opened against
// the same root (new process, same disk state).
func TestLocalControlPersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	chain := chainFor("od", "xxxx", "20101010", "130")

	backend1, err := store.NewFileStore(t.TempDir(), store.Unpacked)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	l1 := NewLocal(root, testLocalSchema(t), backend1, NewCatalogueLRU(16), []byte("schema"))
	if err := l1.Control(ctx, chain.DB, ControlArchive, false); err != nil {
		t.Fatalf("Control() error = %v", err)
	}
	if err := l1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	backend2, err := store.NewFileStore(t.TempDir(), store.Unpacked)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	l2 := NewLocal(root, testLocalSchema(t), backend2, NewCatalogueLRU(16), []byte("schema"))
	defer l2.Close()
	if err := l2.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err == nil {
		t.Error("Archive() on a database locked by a prior process error = nil, want LockConflict")
	}
}

// TestLocalPurgeDelegatesToLifecyclePurge exercises spec §4.6: Purge must
// run the real scan-and-remove algorithm (pkg/lifecycle.Purge) against
// the database's catalogue rather than report a placeholder. With
// nothing masked, it removes nothing and every archived entry survives.
func TestLocalPurgeDelegatesToLifecyclePurge(t *testing.T) {
	l := newTestLocal(t)
	defer l.Close()
	ctx := context.Background()

	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	req := schema.Request{"class": {"od"}, "expver": {"xxxx"}}
	purged, err := l.Purge(ctx, req, true)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if len(purged) != 0 {
		t.Errorf("Purge() with nothing masked = %v, want nothing removed", purged)
	}

	entries, err := l.List(ctx, req, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List() after purge = %d entries, want 1 (purge must not touch live data)", len(entries))
	}
}

func TestLocalLRUEviction(t *testing.T) {
	root := t.TempDir()
	backend, err := store.NewFileStore(t.TempDir(), store.Unpacked)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	lru := NewCatalogueLRU(1)
	l := NewLocal(root, testLocalSchema(t), backend, lru, []byte("schema"))
	defer l.Close()
	ctx := context.Background()

	if err := l.Archive(ctx, ArchiveRequest{Chain: chainFor("od", "xxxx", "20101010", "1"), Payload: []byte("x")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := l.Archive(ctx, ArchiveRequest{Chain: chainFor("rd", "0001", "20101010", "1"), Payload: []byte("y")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if lru.Len() != 1 {
		t.Errorf("CatalogueLRU.Len() = %d, want 1 with capacity 1", lru.Len())
	}
}
