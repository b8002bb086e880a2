// Package dispatch implements the four front-end variants described in
// spec.md §4.4: local, select, dist, and remote, behind one FDB
// capability interface.
package dispatch

import (
	"context"
	"io"

	"github.com/ecmwf-go/fdb/pkg/catalogue"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

// ArchiveRequest is one field to write.
type ArchiveRequest struct {
	Chain   *key.Chain
	Payload []byte
}

// FDB is the small public surface every dispatch variant implements:
// archive, flush, list, wipe, purge, control (spec §9's re-architecture
// guidance: "a capability trait defining the small public surface").
type FDB interface {
	Archive(ctx context.Context, req ArchiveRequest) error
	Flush(ctx context.Context) error
	List(ctx context.Context, req schema.Request, dedup bool) ([]catalogue.Entry, error)
	// Retrieve expands req, opens every matched field's byte range
	// through its owning store, and returns one concatenated read
	// handle over them (spec §4's read data flow and §4.1's
	// HandleGatherer; optimise toggles sorted-merge ordering per spec
	// §9's "optimise=on" design note). Returns ferr.NotFound if req
	// matches zero fields.
	Retrieve(ctx context.Context, req schema.Request, dedup, optimise bool) (io.ReadCloser, error)
	Wipe(ctx context.Context, req schema.Request, doit, unsafeWipeAll bool) ([]string, error)
	Purge(ctx context.Context, req schema.Request, doit bool) ([]string, error)
	Control(ctx context.Context, dbKey *key.Key, action ControlAction, enable bool) error
	Close() error
}

// ControlAction names one of the toggleable capabilities of spec §4.6.
type ControlAction string

const (
	ControlArchive    ControlAction = "Archive"
	ControlRetrieve   ControlAction = "Retrieve"
	ControlList       ControlAction = "List"
	ControlWipe       ControlAction = "Wipe"
	ControlUniqueRoot ControlAction = "UniqueRoot"
)
