package catalogue

import (
	"encoding/json"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/ecmwf-go/fdb/internal/ferr"
)

var axesBucket = []byte("axes")

// AxisStore persists, per index, the set of distinct values observed
// for each keyword (spec §3: "Axes: per index, a map keyword -> sorted
// set<value>"). Backed by bbolt, one bucket keyed by index fingerprint.
type AxisStore struct {
	db *bolt.DB
}

// OpenAxisStore opens (creating if necessary) the bbolt-backed axis
// database at path.
func OpenAxisStore(path string) (*AxisStore, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "open axis store", err).With("path", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(axesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.StoreIOError, "create axes bucket", err).With("path", path)
	}
	return &AxisStore{db: db}, nil
}

// axisSet is the JSON-serialized shape stored per index fingerprint:
// keyword -> sorted distinct values.
type axisSet map[string][]string

// Record folds every keyword/value pair in entry into the axis set for
// indexFingerprint, keeping values sorted and deduplicated.
func (a *AxisStore) Record(indexFingerprint string, entry map[string]string) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(axesBucket)
		axes, err := loadAxisSet(b, indexFingerprint)
		if err != nil {
			return err
		}
		for kw, val := range entry {
			axes[kw] = insertSorted(axes[kw], val)
		}
		data, err := json.Marshal(axes)
		if err != nil {
			return err
		}
		return b.Put([]byte(indexFingerprint), data)
	})
}

// Get returns the axis set for one index.
func (a *AxisStore) Get(indexFingerprint string) (map[string][]string, error) {
	var axes axisSet
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(axesBucket)
		var err error
		axes, err = loadAxisSet(b, indexFingerprint)
		return err
	})
	return axes, err
}

// Merge combines the axis sets of several indexes (for a list operation
// spanning multiple visible indexes), per spec §4.2: "On list at a
// higher level, axes from all visible indexes are merged."
func (a *AxisStore) Merge(indexFingerprints []string) (map[string][]string, error) {
	merged := make(axisSet)
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(axesBucket)
		for _, fp := range indexFingerprints {
			axes, err := loadAxisSet(b, fp)
			if err != nil {
				return err
			}
			for kw, vals := range axes {
				for _, v := range vals {
					merged[kw] = insertSorted(merged[kw], v)
				}
			}
		}
		return nil
	})
	return merged, err
}

func loadAxisSet(b *bolt.Bucket, fingerprint string) (axisSet, error) {
	data := b.Get([]byte(fingerprint))
	if data == nil {
		return make(axisSet), nil
	}
	var axes axisSet
	if err := json.Unmarshal(data, &axes); err != nil {
		return nil, ferr.Wrap(ferr.CatalogueCorrupt, "decode axis set", err).With("fingerprint", fingerprint)
	}
	return axes, nil
}

func insertSorted(vals []string, v string) []string {
	i := sort.SearchStrings(vals, v)
	if i < len(vals) && vals[i] == v {
		return vals
	}
	vals = append(vals, "")
	copy(vals[i+1:], vals[i:])
	vals[i] = v
	return vals
}

// Close closes the underlying bbolt handle.
func (a *AxisStore) Close() error {
	return a.db.Close()
}
