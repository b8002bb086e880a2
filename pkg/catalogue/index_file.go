package catalogue

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/location"
)

// maxLoadFactor bounds the hash table's fill ratio before a rebuild is
// required, per spec §4.2: "load factor ≤ 0.75".
const maxLoadFactor = 0.75

// slotState distinguishes an empty bucket from an occupied one so linear
// probing can tell "not found" from "keep scanning".
type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
)

// slotHeaderSize is {state:1, keyLen:4}.
const slotHeaderSize = 1 + 4

// IndexFile is the per-index hash table described in spec §4.2: a hash
// table from fingerprint(datumKey) to FieldLocation bytes, named
// "index.<fingerprint>.data". Collisions resolve via linear probing
// within the file. Each index key has a single file name, so a later
// flush of the same index key rewrites the published file in place
// (Save truncates it) before appending a Clear record and a new Index
// record for that name; a published file is not immutable.
type IndexFile struct {
	path     string
	capacity int
	slots    []indexSlot
}

type indexSlot struct {
	state    slotState
	datumKey string
	location location.FieldLocation
}

// Fingerprint hashes a canonical key string. Catalogue.Flush applies it
// to the index key to name the index file; slots within the file are
// placed by the fingerprint of the datum key.
func Fingerprint(canonicalDatumKey string) uint64 {
	return xxhash.Sum64String(canonicalDatumKey)
}

// FileName returns the conventional name for an index file whose
// fingerprint is fp: "index.<fingerprint>.data".
func FileName(fp uint64) string {
	return fmt.Sprintf("index.%x.data", fp)
}

// NewIndexFile allocates an empty in-memory index file sized for
// expectedEntries at the target load factor.
func NewIndexFile(path string, expectedEntries int) *IndexFile {
	capacity := nextCapacity(expectedEntries)
	return &IndexFile{path: path, capacity: capacity, slots: make([]indexSlot, capacity)}
}

func nextCapacity(expected int) int {
	n := 8
	for float64(expected)/float64(n) > maxLoadFactor {
		n *= 2
	}
	return n
}

// Put inserts datumKey/loc via linear probing. Within one index record
// duplicate keys are disallowed (the caller must Clear and republish to
// replace an entry); Put returns an error if datumKey is already present.
func (idx *IndexFile) Put(datumKey string, loc location.FieldLocation) error {
	h := Fingerprint(datumKey)
	start := int(h % uint64(idx.capacity))
	for i := 0; i < idx.capacity; i++ {
		slot := (start + i) % idx.capacity
		s := &idx.slots[slot]
		if s.state == slotEmpty {
			s.state = slotOccupied
			s.datumKey = datumKey
			s.location = loc
			return nil
		}
		if s.datumKey == datumKey {
			return ferr.New(ferr.CatalogueCorrupt, "duplicate datum key within one index record").With("key", datumKey)
		}
	}
	return ferr.New(ferr.StoreIOError, "index file full").With("path", idx.path)
}

// Get looks up datumKey via linear probing from its fingerprint slot.
func (idx *IndexFile) Get(datumKey string) (location.FieldLocation, bool) {
	h := Fingerprint(datumKey)
	start := int(h % uint64(idx.capacity))
	for i := 0; i < idx.capacity; i++ {
		slot := (start + i) % idx.capacity
		s := &idx.slots[slot]
		if s.state == slotEmpty {
			return location.FieldLocation{}, false
		}
		if s.datumKey == datumKey {
			return s.location, true
		}
	}
	return location.FieldLocation{}, false
}

// Entries returns every occupied (datumKey, location) pair, in slot
// order (not insertion order).
func (idx *IndexFile) Entries() []struct {
	DatumKey string
	Location location.FieldLocation
} {
	var out []struct {
		DatumKey string
		Location location.FieldLocation
	}
	for _, s := range idx.slots {
		if s.state == slotOccupied {
			out = append(out, struct {
				DatumKey string
				Location location.FieldLocation
			}{s.datumKey, s.location})
		}
	}
	return out
}

// Save writes idx to its path as a sequence of framed slot records, one
// per table slot (empty slots are written as a zero-length marker so the
// table geometry survives a round trip).
func (idx *IndexFile) Save() error {
	f, err := os.OpenFile(idx.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return ferr.Wrap(ferr.StoreIOError, "create index file", err).With("path", idx.path)
	}
	defer f.Close()

	var capBuf [4]byte
	binary.LittleEndian.PutUint32(capBuf[:], uint32(idx.capacity))
	if _, err := f.Write(capBuf[:]); err != nil {
		return ferr.Wrap(ferr.StoreIOError, "write index capacity", err).With("path", idx.path)
	}

	for _, s := range idx.slots {
		if s.state == slotEmpty {
			if _, err := f.Write([]byte{byte(slotEmpty), 0, 0, 0, 0}); err != nil {
				return ferr.Wrap(ferr.StoreIOError, "write empty slot", err).With("path", idx.path)
			}
			continue
		}
		encoded := location.Encode(s.location)
		var buf []byte
		buf = append(buf, byte(slotOccupied))
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s.datumKey)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, s.datumKey...)
		var encLenBuf [4]byte
		binary.LittleEndian.PutUint32(encLenBuf[:], uint32(len(encoded)))
		buf = append(buf, encLenBuf[:]...)
		buf = append(buf, encoded...)
		if _, err := f.Write(buf); err != nil {
			return ferr.Wrap(ferr.StoreIOError, "write occupied slot", err).With("path", idx.path)
		}
	}
	return f.Sync()
}

// LoadIndexFile reads path back into memory.
func LoadIndexFile(path string) (*IndexFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferr.Wrap(ferr.IndexMissing, "index file missing", err).With("path", path)
		}
		return nil, ferr.Wrap(ferr.StoreIOError, "read index file", err).With("path", path)
	}
	if len(data) < 4 {
		return nil, ferr.New(ferr.CatalogueCorrupt, "index file too short").With("path", path)
	}
	capacity := int(binary.LittleEndian.Uint32(data[:4]))
	idx := &IndexFile{path: path, capacity: capacity, slots: make([]indexSlot, capacity)}
	buf := data[4:]
	for i := 0; i < capacity; i++ {
		if len(buf) < slotHeaderSize {
			return nil, ferr.New(ferr.CatalogueCorrupt, "index file truncated").With("path", path)
		}
		state := slotState(buf[0])
		buf = buf[1:]
		if state == slotEmpty {
			buf = buf[4:]
			continue
		}
		keyLen := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < keyLen {
			return nil, ferr.New(ferr.CatalogueCorrupt, "index file key truncated").With("path", path)
		}
		datumKey := string(buf[:keyLen])
		buf = buf[keyLen:]
		if len(buf) < 4 {
			return nil, ferr.New(ferr.CatalogueCorrupt, "index file missing location length").With("path", path)
		}
		encLen := binary.LittleEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < encLen {
			return nil, ferr.New(ferr.CatalogueCorrupt, "index file location truncated").With("path", path)
		}
		encoded := string(buf[:encLen])
		buf = buf[encLen:]
		loc, err := location.Decode(encoded)
		if err != nil {
			return nil, ferr.Wrap(ferr.CatalogueCorrupt, "decode index location", err).With("path", path)
		}
		idx.slots[i] = indexSlot{state: slotOccupied, datumKey: datumKey, location: loc}
	}
	return idx, nil
}
