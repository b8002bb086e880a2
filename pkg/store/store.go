// Package store implements the pluggable payload backends described in
// spec.md §4.3: POSIX file stores and S3-style object stores, both
// behind a single Store contract.
package store

import (
	"context"
	"io"

	"github.com/ecmwf-go/fdb/pkg/location"
)

// ReadStream is a handle over exactly [offset, offset+length) of a
// stored object. Callers must Close it.
type ReadStream interface {
	io.Reader
	io.Closer
}

// Store is the contract every backend implements. Store owns payload
// bytes and their backing objects/files exclusively (spec §3 ownership
// summary); the Catalogue never reads or writes payloads directly.
type Store interface {
	// Archive writes payload atomically and returns a FieldLocation
	// referencing it. Implementations may batch writes until Flush.
	Archive(ctx context.Context, indexKey string, payload []byte) (location.FieldLocation, error)

	// Retrieve opens a ReadStream over exactly loc's byte range.
	Retrieve(ctx context.Context, loc location.FieldLocation) (ReadStream, error)

	// Flush persists all pending payloads. Must complete before the
	// catalogue is allowed to publish the corresponding index record
	// (spec §4.3: "data durable before index").
	Flush(ctx context.Context) error

	// Remove deletes the store unit identified by uri. doit=false is a
	// dry run that only reports the bytes that would be reclaimed.
	Remove(ctx context.Context, uri string, doit bool) (removedBytes int64, err error)

	// StoreUnitURIs enumerates every backing unit (file or object),
	// used by wipe/purge to plan removal.
	StoreUnitURIs(ctx context.Context) ([]string, error)

	// Close releases any held resources (open file descriptors,
	// clients).
	Close() error
}

// PackingPolicy controls whether a backend writes one object per field
// or packs many fields into one object per index, per spec §4.3.
type PackingPolicy int

const (
	// Unpacked stores one object per field; the FieldLocation records
	// only the object URI (offset/length are 0/whole-object).
	Unpacked PackingPolicy = iota
	// Packed stores many fields in one object per index; the
	// FieldLocation records (offset, length) within it.
	Packed
)
