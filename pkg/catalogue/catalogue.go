package catalogue

import (
	"path/filepath"
	"sync"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/location"
)

// Catalogue is the index side of one database: a TOC plus the per-index
// hash-table files and axis summaries it references. Catalogue
// exclusively owns these (spec §3 ownership summary); it never touches
// payload bytes, which belong to a store.Store.
type Catalogue struct {
	dir string

	mu      sync.Mutex
	writer  *TOCWriter
	axes    *AxisStore
	dbKey   *key.Key
	indexes map[string]*openIndex // live (non-Clear'd) index file refs
	buffer  []bufferedEntry
	wiped   bool
	nextSeq int // monotonic count of Index records, for dedup ordering
}

type openIndex struct {
	payload IndexPayload
	file    *IndexFile
	// seq is this index generation's position in TOC record order
	// (assigned when its Index record was written or replayed), used by
	// dedup to pick the latest write among live index files — map
	// iteration order over c.indexes is NOT a substitute, since Go does
	// not preserve insertion order.
	seq int
}

type bufferedEntry struct {
	indexKey key.Key
	datumKey string
	loc      location.FieldLocation
}

// Open opens or creates the database rooted at dir, with dbKey and a
// snapshot of the schema text used to create it (written only on first
// Init).
func Open(dir string, dbKey *key.Key, schemaSnapshot []byte) (*Catalogue, error) {
	tocPath := filepath.Join(dir, "toc")
	writer, err := OpenTOCWriter(tocPath)
	if err != nil {
		return nil, err
	}

	axes, err := OpenAxisStore(filepath.Join(dir, "axes.db"))
	if err != nil {
		writer.Close()
		return nil, err
	}

	c := &Catalogue{
		dir:     dir,
		writer:  writer,
		axes:    axes,
		dbKey:   dbKey,
		indexes: make(map[string]*openIndex),
	}

	records, err := ReadTOC(tocPath)
	if err != nil {
		c.Close()
		return nil, err
	}
	if len(records) == 0 {
		if err := writer.AppendInit(InitPayload{SchemaSnapshot: schemaSnapshot, DBKey: dbKey.String(), Version: 1}); err != nil {
			c.Close()
			return nil, err
		}
	} else if records[0].Kind != KindInit {
		c.Close()
		return nil, ferr.New(ferr.CatalogueCorrupt, "toc does not begin with Init").With("path", tocPath)
	}

	if err := c.replay(records); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// replay reconstructs in-memory index state (live index refs, wipe
// status) from the TOC's record history.
func (c *Catalogue) replay(records []DecodedRecord) error {
	for _, rec := range records {
		switch rec.Kind {
		case KindIndex:
			p, err := decodeIndex(rec.Payload)
			if err != nil {
				return ferr.Wrap(ferr.CatalogueCorrupt, "decode index record", err).With("path", rec.SourcePath)
			}
			file, err := LoadIndexFile(filepath.Join(c.dir, p.IndexFileRef))
			if err != nil {
				return err
			}
			c.indexes[p.IndexFileRef] = &openIndex{payload: p, file: file, seq: c.nextSeq}
			c.nextSeq++
		case KindClear:
			p, err := decodeClear(rec.Payload)
			if err != nil {
				return ferr.Wrap(ferr.CatalogueCorrupt, "decode clear record", err).With("path", rec.SourcePath)
			}
			delete(c.indexes, p.IndexFileRef)
		case KindWipe:
			c.wiped = true
		}
	}
	return nil
}

// Archive buffers one datum under indexKey/loc for the next Flush. It
// does not touch the TOC; the index record is only published on Flush,
// preserving "data durable before index".
func (c *Catalogue) Archive(indexKey key.Key, datumKey string, loc location.FieldLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wiped {
		return ferr.New(ferr.CatalogueCorrupt, "archive on wiped database").With("path", c.dir)
	}
	c.buffer = append(c.buffer, bufferedEntry{indexKey: indexKey, datumKey: datumKey, loc: loc})
	return nil
}

// Flush groups buffered entries by index key, writes (or extends) each
// index file, clears any superseded prior version of that index, and
// appends the new Index records to the TOC.
func (c *Catalogue) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buffer) == 0 {
		return nil
	}

	groups := make(map[string][]bufferedEntry)
	order := []string{}
	for _, e := range c.buffer {
		ck := e.indexKey.CanonicalString()
		if _, ok := groups[ck]; !ok {
			order = append(order, ck)
		}
		groups[ck] = append(groups[ck], e)
	}

	for _, ck := range order {
		entries := groups[ck]
		fp := Fingerprint(ck)
		fileName := FileName(fp)

		// A new generation of an already-published index key carries
		// forward every entry the prior generation held (spec §4.2:
		// "new versions are added by writing a new Index record and
		// Clearing the old" — Clearing masks the old generation, it does
		// not drop the data it held that the new buffer doesn't happen
		// to touch). Only datum keys present in the current buffer are
		// allowed to overwrite; everything else survives unchanged.
		merged := make(map[string]location.FieldLocation)
		if prior, ok := c.indexes[fileName]; ok && prior != nil {
			for _, e := range prior.file.Entries() {
				merged[e.DatumKey] = e.Location
			}
		}
		for _, e := range entries {
			merged[e.datumKey] = e.loc
			if err := c.axes.Record(fileName, e.indexKey.Request()); err != nil {
				return err
			}
		}

		idxFile := NewIndexFile(filepath.Join(c.dir, fileName), len(merged))
		for datumKey, loc := range merged {
			if err := idxFile.Put(datumKey, loc); err != nil {
				return err
			}
		}
		if err := idxFile.Save(); err != nil {
			return err
		}

		if prior, ok := c.indexes[fileName]; ok && prior != nil {
			if err := c.writer.AppendClear(ClearPayload{IndexFileRef: fileName}); err != nil {
				return err
			}
		}

		payload := IndexPayload{IndexKey: ck, RegistryHash: fp, IndexFileRef: fileName}
		if err := c.writer.AppendIndex(payload); err != nil {
			return err
		}
		c.indexes[fileName] = &openIndex{payload: payload, file: idxFile, seq: c.nextSeq}
		c.nextSeq++
	}

	c.buffer = nil
	return nil
}

// Wipe writes the terminal Wipe record; afterwards List returns nothing
// and Archive fails. Its caller, dispatch.Local.Wipe, then removes the
// store units the database's entries reference. The index files, the
// TOC and the database directory are left on disk.
func (c *Catalogue) Wipe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writer.AppendWipe(); err != nil {
		return err
	}
	c.wiped = true
	return nil
}

// Entry is one resolved (indexKey, datumKey, location) triple, used by
// List/Inspect.
type Entry struct {
	IndexKeyCanonical string
	DatumKey          string
	Location          location.FieldLocation
	// Seq is the generation's position in TOC record order, for callers
	// (pkg/dedup via pkg/dispatch) that need to pick the latest write
	// among several live index generations. Do not substitute iteration
	// order over a Go map for this: map iteration order is randomized.
	Seq int
}

// List returns every live (non-Clear'd) entry across all open indexes.
// Each entry carries the Seq of the Index record that published it, so
// callers needing genuine TOC order (e.g. dedup's "keep the latest
// write") can sort or compare on Seq instead of relying on the order
// this slice happens to be built in. A wiped catalogue has no entries.
func (c *Catalogue) List() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wiped {
		return nil
	}
	var out []Entry
	for _, idx := range c.indexes {
		for _, e := range idx.file.Entries() {
			out = append(out, Entry{IndexKeyCanonical: idx.payload.IndexKey, DatumKey: e.DatumKey, Location: e.Location, Seq: idx.seq})
		}
	}
	return out
}

// Axes returns the merged axis summary across every open index.
func (c *Catalogue) Axes() (map[string][]string, error) {
	c.mu.Lock()
	var fps []string
	for fileName := range c.indexes {
		fps = append(fps, fileName)
	}
	c.mu.Unlock()
	return c.axes.Merge(fps)
}

// Dir returns the database's root directory, used by lifecycle
// operations that need to resolve index file paths directly.
func (c *Catalogue) Dir() string { return c.dir }

// RawRecords re-reads the TOC's full record history, including already
// Clear'd index records, for callers (pkg/lifecycle's purge) that need
// to distinguish fully-masked from partially-masked index generations.
func (c *Catalogue) RawRecords() ([]DecodedRecord, error) {
	return ReadTOC(filepath.Join(c.dir, "toc"))
}

// IndexFilePath resolves an index file reference (as stored in an Index
// record) to its path on disk.
func (c *Catalogue) IndexFilePath(ref string) string {
	return filepath.Join(c.dir, ref)
}

// Close flushes pending writes and releases all held resources.
func (c *Catalogue) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.axes != nil {
		if err := c.axes.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
