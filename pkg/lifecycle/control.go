package lifecycle

import (
	"encoding/json"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/ecmwf-go/fdb/internal/ferr"
)

var lockBucket = []byte("locks")

// ControlStore persists which capabilities (spec §4.6:
// {Archive,Retrieve,List,Wipe,UniqueRoot}) are disabled per database, so
// the lock state survives process restarts and is "read at catalogue
// open" as the spec requires.
type ControlStore struct {
	db *bolt.DB
}

// OpenControlStore opens the lock file for the database rooted at dir.
func OpenControlStore(dir string) (*ControlStore, error) {
	path := filepath.Join(dir, "control.db")
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreIOError, "open control store", err).With("path", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(lockBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.StoreIOError, "create lock bucket", err).With("path", path)
	}
	return &ControlStore{db: db}, nil
}

// Set disables (enable=false) or re-enables (enable=true) action.
func (c *ControlStore) Set(action string, enable bool) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		locks, err := loadLocks(b)
		if err != nil {
			return err
		}
		locks[action] = !enable
		data, err := json.Marshal(locks)
		if err != nil {
			return err
		}
		return b.Put([]byte("state"), data)
	})
}

// Disabled reports whether action is currently disabled.
func (c *ControlStore) Disabled(action string) (bool, error) {
	var disabled bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(lockBucket)
		locks, err := loadLocks(b)
		if err != nil {
			return err
		}
		disabled = locks[action]
		return nil
	})
	return disabled, err
}

func loadLocks(b *bolt.Bucket) (map[string]bool, error) {
	data := b.Get([]byte("state"))
	if data == nil {
		return make(map[string]bool), nil
	}
	var locks map[string]bool
	if err := json.Unmarshal(data, &locks); err != nil {
		return nil, ferr.Wrap(ferr.CatalogueCorrupt, "decode control lock state", err)
	}
	return locks, nil
}

// Close closes the underlying bbolt handle.
func (c *ControlStore) Close() error {
	return c.db.Close()
}
