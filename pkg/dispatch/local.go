package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
	"github.com/ecmwf-go/fdb/pkg/dedup"
	"github.com/ecmwf-go/fdb/pkg/handle"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/lifecycle"
	"github.com/ecmwf-go/fdb/pkg/schema"
	"github.com/ecmwf-go/fdb/pkg/store"
)

// mergeCanonical parses a key.Key.CanonicalString()-shaped "kw=val,..."
// string (as stored in catalogue.Entry's IndexKeyCanonical/DatumKey) and
// merges its keyword/value pairs into dst, so dedup sees the full
// combined key rather than only the database-level keywords.
func mergeCanonical(dst map[string]string, canonical string) {
	if canonical == "" {
		return
	}
	for _, pair := range strings.Split(canonical, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		dst[kv[0]] = kv[1]
	}
}

// Local is the simplest dispatch variant: one schema, one store, and a
// process-wide LRU of open catalogues keyed by database directory, per
// spec §4.4.
type Local struct {
	root          string
	sch           *schema.Schema
	backend       store.Store
	lru           *CatalogueLRU
	schemaSnapshot []byte

	controlMu     sync.Mutex
	controlStores map[string]*lifecycle.ControlStore
}

// NewLocal builds a Local FDB rooted at root, using sch for expansion
// and backend for payload storage. lru may be shared across multiple
// Local instances in a select/dist configuration.
func NewLocal(root string, sch *schema.Schema, backend store.Store, lru *CatalogueLRU, schemaSnapshot []byte) *Local {
	return &Local{
		root:           root,
		sch:            sch,
		backend:        backend,
		lru:            lru,
		schemaSnapshot: schemaSnapshot,
		controlStores:  make(map[string]*lifecycle.ControlStore),
	}
}

// Store returns the backing store.Store, for lifecycle tooling (move,
// copy) that must read/write payloads directly rather than through the
// narrow FDB capability surface.
func (l *Local) Store() store.Store { return l.backend }

// Schema returns the schema this Local expands requests against.
func (l *Local) Schema() *schema.Schema { return l.sch }

// Root returns the filesystem directory Local archives new databases
// under.
func (l *Local) Root() string { return l.root }

func (l *Local) catalogueFor(dbKey *key.Key) (*catalogue.Catalogue, error) {
	dirName := dbKey.String()
	if cat, ok := l.lru.Get(dirName); ok {
		return cat, nil
	}
	dir := filepath.Join(l.root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "create database directory", err).With("path", dir)
	}
	cat, err := catalogue.Open(dir, dbKey, l.schemaSnapshot)
	if err != nil {
		return nil, err
	}
	l.lru.Put(dirName, cat)
	return cat, nil
}

// controlDir returns the directory a database's (or, for a nil dbKey,
// the process-wide) control.ControlStore lives in, per spec §4.6:
// "persisted as a lock file read at catalogue open".
func (l *Local) controlDir(dbKey *key.Key) string {
	if dbKey == nil {
		return l.root
	}
	return filepath.Join(l.root, dbKey.String())
}

// controlStoreFor opens (and caches) the persisted lock file backing
// dbKey's control actions, creating its directory if this is the first
// time any control action touches this database.
func (l *Local) controlStoreFor(dbKey *key.Key) (*lifecycle.ControlStore, error) {
	name := ""
	if dbKey != nil {
		name = dbKey.String()
	}

	l.controlMu.Lock()
	defer l.controlMu.Unlock()
	if cs, ok := l.controlStores[name]; ok {
		return cs, nil
	}
	dir := l.controlDir(dbKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "create control store directory", err).With("path", dir)
	}
	cs, err := lifecycle.OpenControlStore(dir)
	if err != nil {
		return nil, err
	}
	l.controlStores[name] = cs
	return cs, nil
}

// Archive implements FDB.
func (l *Local) Archive(ctx context.Context, req ArchiveRequest) error {
	if l.locked(req.Chain.DB, ControlArchive) {
		return ferr.New(ferr.LockConflict, "archive disabled on database").With("database", req.Chain.DB.String())
	}
	cat, err := l.catalogueFor(req.Chain.DB)
	if err != nil {
		return err
	}
	loc, err := l.backend.Archive(ctx, req.Chain.Index.String(), req.Payload)
	if err != nil {
		return err
	}
	datumKey := req.Chain.Datum.CanonicalString()
	return cat.Archive(*req.Chain.Index, datumKey, loc)
}

// Flush implements FDB: the store must durably flush before the
// catalogue publishes its index records (spec §4.3 ordering guarantee).
func (l *Local) Flush(ctx context.Context) error {
	if err := l.backend.Flush(ctx); err != nil {
		return err
	}
	for _, dirName := range l.openDatabases() {
		cat, ok := l.lru.Get(dirName)
		if !ok {
			continue
		}
		if err := cat.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Local) openDatabases() []string {
	l.lru.mu.Lock()
	defer l.lru.mu.Unlock()
	out := make([]string, 0, len(l.lru.items))
	for k := range l.lru.items {
		out = append(out, k)
	}
	return out
}

// List implements FDB: expands req against the schema, resolves each
// candidate database's catalogue, and optionally deduplicates the
// combined result over the request's hypercube.
func (l *Local) List(ctx context.Context, req schema.Request, dedupFlag bool) ([]catalogue.Entry, error) {
	if l.locked(nil, ControlList) {
		return nil, ferr.New(ferr.LockConflict, "list disabled")
	}

	dbKeys, err := l.sch.ExpandFirstLevel(req)
	if err != nil {
		return nil, err
	}

	var all []catalogue.Entry
	var elems []dedup.Element
	for _, dbKey := range dbKeys {
		if l.locked(dbKey, ControlList) {
			continue
		}
		cat, err := l.catalogueFor(dbKey)
		if err != nil {
			continue
		}
		for _, e := range cat.List() {
			all = append(all, e)
			combined := map[string]string{}
			for k, v := range dbKey.Request() {
				combined[k] = v
			}
			mergeCanonical(combined, e.IndexKeyCanonical)
			mergeCanonical(combined, e.DatumKey)
			// e.Seq is this entry's Index record position within its own
			// database's TOC (spec §5: no ordering is guaranteed between
			// databases, so comparing Seq across catalogues is fine to be
			// arbitrary, but within one database it reflects genuine
			// write order for dedup's "keep the latest" rule).
			elems = append(elems, dedup.Element{Combined: combined, Location: e.Location, TOCOrder: e.Seq})
		}
	}

	if !dedupFlag {
		return all, nil
	}
	cube := dedup.NewHyperCube(req)
	deduper := dedup.New(cube, false)
	kept := deduper.Apply(elems)
	out := make([]catalogue.Entry, 0, len(kept))
	for _, k := range kept {
		out = append(out, catalogue.Entry{Location: k.Location})
	}
	return out, nil
}

// Retrieve implements FDB: lists req's matches and gathers their
// locations into one multi-range read handle through the backing
// store (spec §4's read data flow).
func (l *Local) Retrieve(ctx context.Context, req schema.Request, dedup, optimise bool) (io.ReadCloser, error) {
	if l.locked(nil, ControlRetrieve) {
		return nil, ferr.New(ferr.LockConflict, "retrieve disabled")
	}
	entries, err := l.List(ctx, req, dedup)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ferr.New(ferr.NotFound, "retrieve matched no fields").With("request", fmt.Sprint(req))
	}
	g := handle.NewGatherer(l.backend, optimise)
	for _, e := range entries {
		g.Add(e.Location)
	}
	return g.MultiHandle(ctx)
}

// Axes returns the merged axis summary across every database matched by
// req, per spec §3's "merged across indexes for partial listings".
func (l *Local) Axes(ctx context.Context, req schema.Request) (map[string][]string, error) {
	dbKeys, err := l.sch.ExpandFirstLevel(req)
	if err != nil {
		return nil, err
	}
	merged := make(map[string][]string)
	for _, dbKey := range dbKeys {
		cat, err := l.catalogueFor(dbKey)
		if err != nil {
			continue
		}
		axes, err := cat.Axes()
		if err != nil {
			return nil, err
		}
		for kw, vals := range axes {
			merged[kw] = mergeSortedUnique(merged[kw], vals)
		}
	}
	return merged, nil
}

func mergeSortedUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Overlay mounts src's already-indexed entries into dbKey's catalogue
// under remap, without copying payload bytes: the overlaid database
// keeps exclusive ownership of the underlying data (spec's weak
// backreference / "the overlayed db does not own the source").
func (l *Local) Overlay(dbKey *key.Key, src []catalogue.Entry, remap map[string]string) error {
	cat, err := l.catalogueFor(dbKey)
	if err != nil {
		return err
	}
	for _, e := range src {
		idxKey := key.New()
		for _, pair := range strings.Split(e.IndexKeyCanonical, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 {
				idxKey.Set(kv[0], kv[1])
			}
		}
		loc := e.Location.WithRemap(remap)
		if err := cat.Archive(*idxKey, e.DatumKey, loc); err != nil {
			return err
		}
	}
	return nil
}

// Wipe implements FDB.
func (l *Local) Wipe(ctx context.Context, req schema.Request, doit, unsafeWipeAll bool) ([]string, error) {
	dbKeys, err := l.sch.ExpandFirstLevel(req)
	if err != nil {
		return nil, err
	}
	if len(dbKeys) == 0 {
		return nil, ferr.New(ferr.UserError, "wipe request matched no database")
	}
	if !unsafeWipeAll && l.sch.FullyExpandedLevels(req) < 1 {
		return nil, ferr.New(ferr.UserError, "under-specified wipe request requires unsafeWipeAll")
	}

	var removed []string
	for _, dbKey := range dbKeys {
		if l.locked(dbKey, ControlWipe) {
			return nil, ferr.New(ferr.LockConflict, "wipe disabled on database").With("database", dbKey.String())
		}
		dir := filepath.Join(l.root, dbKey.String())
		if !doit {
			removed = append(removed, dir)
			continue
		}
		cat, err := l.catalogueFor(dbKey)
		if err != nil {
			return removed, err
		}
		entries := cat.List()
		if err := cat.Wipe(); err != nil {
			return removed, err
		}
		// Only this database's own store units go; overlay entries
		// (remapped locations) point at data another database owns.
		done := make(map[string]bool)
		for _, e := range entries {
			if len(e.Location.RemapKey) > 0 || done[e.Location.URI] {
				continue
			}
			done[e.Location.URI] = true
			l.backend.Remove(ctx, e.Location.URI, true)
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

// Purge implements FDB: removes fully-masked index files, conservatively
// leaving partially-masked ones intact (spec §4.6). The scan/removal
// algorithm itself lives in pkg/lifecycle, which walks the catalogue's
// raw TOC record stream; Local only resolves the per-database catalogue
// and hands it off.
func (l *Local) Purge(ctx context.Context, req schema.Request, doit bool) ([]string, error) {
	dbKeys, err := l.sch.ExpandFirstLevel(req)
	if err != nil {
		return nil, err
	}
	var purged []string
	for _, dbKey := range dbKeys {
		cat, err := l.catalogueFor(dbKey)
		if err != nil {
			continue
		}
		result, err := lifecycle.Purge(ctx, cat, l.backend, doit)
		if err != nil {
			return purged, err
		}
		purged = append(purged, result.RemovedIndexFiles...)
	}
	return purged, nil
}

// Control implements FDB: toggles a capability on dbKey, or process-wide
// when dbKey is nil, persisting the change to a lock file so it survives
// process restarts (spec §4.6).
func (l *Local) Control(ctx context.Context, dbKey *key.Key, action ControlAction, enable bool) error {
	cs, err := l.controlStoreFor(dbKey)
	if err != nil {
		return err
	}
	return cs.Set(string(action), enable)
}

func (l *Local) locked(dbKey *key.Key, action ControlAction) bool {
	cs, err := l.controlStoreFor(dbKey)
	if err != nil {
		logging.WithComponent("dispatch").Warn().Err(err).Msg("failed to open control store, treating action as unlocked")
		return false
	}
	disabled, err := cs.Disabled(string(action))
	if err != nil {
		logging.WithComponent("dispatch").Warn().Err(err).Msg("failed to read control store, treating action as unlocked")
		return false
	}
	return disabled
}

// Close releases every cached catalogue, every opened control store, and
// the backing store.
func (l *Local) Close() error {
	l.lru.CloseAll()

	l.controlMu.Lock()
	for _, cs := range l.controlStores {
		cs.Close()
	}
	l.controlMu.Unlock()

	return l.backend.Close()
}
