package dispatch

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

// DistLane is one fixed backing lane of a Dist FDB.
type DistLane struct {
	ID   string
	FDB  FDB
}

// Dist is the dispatch variant that orders lanes per database key via a
// rendezvous hash and routes archive to the first non-disabled lane in
// that order; an archive error on a dirty lane fails at once rather than
// moving on to the next lane (see Archive).
type Dist struct {
	lanes []DistLane

	mu       sync.Mutex
	disabled map[string]bool
	dirty    map[string]bool
}

// NewDist builds a Dist FDB over lanes.
func NewDist(lanes []DistLane) *Dist {
	return &Dist{
		lanes:    lanes,
		disabled: make(map[string]bool),
		dirty:    make(map[string]bool),
	}
}

// Rendezvous orders laneIDs by hash(dbKey, laneID) descending: the
// "winning" lane is first, matching `rendezvous(K.dbKey, laneIDs)[0]` of
// spec invariant 6. The ordering is stable for a fixed dbKey and lane
// set, giving minimal movement when lanes are added or removed.
func Rendezvous(dbKey string, laneIDs []string) []string {
	type scored struct {
		id    string
		score uint64
	}
	scores := make([]scored, len(laneIDs))
	for i, id := range laneIDs {
		scores[i] = scored{id: id, score: xxhash.Sum64String(dbKey + "\x00" + id)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.id
	}
	return out
}

func (d *Dist) laneIDs() []string {
	ids := make([]string, len(d.lanes))
	for i, l := range d.lanes {
		ids[i] = l.ID
	}
	return ids
}

func (d *Dist) byID(id string) FDB {
	for _, l := range d.lanes {
		if l.ID == id {
			return l.FDB
		}
	}
	return nil
}

// Archive implements FDB: tries lanes in rendezvous order, marking a
// lane disabled on any pre-flush error and trying the next; an error
// after bytes have been flushed to a lane fails fast with
// DistributionError (spec §4.4).
func (d *Dist) Archive(ctx context.Context, req ArchiveRequest) error {
	order := Rendezvous(req.Chain.DB.String(), d.laneIDs())
	for _, laneID := range order {
		d.mu.Lock()
		skip := d.disabled[laneID]
		d.mu.Unlock()
		if skip {
			continue
		}

		lane := d.byID(laneID)
		if lane == nil {
			continue
		}

		d.mu.Lock()
		dirty := d.dirty[laneID]
		d.mu.Unlock()

		err := lane.Archive(ctx, req)
		if err == nil {
			return nil
		}
		if dirty {
			return ferr.Wrap(ferr.DistributionError, "archive failed after flush on dirty lane", err).With("lane", laneID)
		}
		logging.WithComponent("dispatch").Warn().Str("lane", laneID).Err(err).Msg("disabling lane after pre-flush archive error")
		d.mu.Lock()
		d.disabled[laneID] = true
		d.mu.Unlock()
	}
	return ferr.New(ferr.DistributionError, "no writable lane available").With("database", req.Chain.DB.String())
}

// Flush implements FDB: flushing a lane marks it dirty (it now has
// durable data, so a future archive error on it cannot silently fail
// over to another lane).
func (d *Dist) Flush(ctx context.Context) error {
	for _, lane := range d.lanes {
		if err := lane.FDB.Flush(ctx); err != nil {
			return err
		}
		d.mu.Lock()
		d.dirty[lane.ID] = true
		d.mu.Unlock()
	}
	return nil
}

// List implements FDB: queries are parallel across visitable lanes and
// merged.
func (d *Dist) List(ctx context.Context, req schema.Request, dedup bool) ([]catalogue.Entry, error) {
	type result struct {
		entries []catalogue.Entry
		err     error
	}
	results := make([]result, len(d.lanes))
	var wg sync.WaitGroup
	for i, lane := range d.lanes {
		d.mu.Lock()
		skip := d.disabled[lane.ID]
		d.mu.Unlock()
		if skip {
			continue
		}
		wg.Add(1)
		go func(i int, lane DistLane) {
			defer wg.Done()
			entries, err := lane.FDB.List(ctx, req, dedup)
			results[i] = result{entries: entries, err: err}
		}(i, lane)
	}
	wg.Wait()

	var all []catalogue.Entry
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		all = append(all, r.entries...)
	}
	return all, nil
}

// Retrieve implements FDB: gathers a read handle from every visitable
// lane and concatenates them, since a fixed request may span lanes
// written over the lifetime of the distribution.
func (d *Dist) Retrieve(ctx context.Context, req schema.Request, dedup, optimise bool) (io.ReadCloser, error) {
	var handles []io.ReadCloser
	for _, lane := range d.lanes {
		d.mu.Lock()
		skip := d.disabled[lane.ID]
		d.mu.Unlock()
		if skip {
			continue
		}
		h, err := lane.FDB.Retrieve(ctx, req, dedup, optimise)
		if err != nil {
			if kind, ok := ferr.KindOf(err); ok && kind == ferr.NotFound {
				continue
			}
			for _, opened := range handles {
				opened.Close()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	if len(handles) == 0 {
		return nil, ferr.New(ferr.NotFound, "retrieve matched no fields across any lane")
	}
	return concatHandles(handles), nil
}

// Wipe implements FDB: applied across every lane that holds the
// database.
func (d *Dist) Wipe(ctx context.Context, req schema.Request, doit, unsafeWipeAll bool) ([]string, error) {
	var all []string
	for _, lane := range d.lanes {
		removed, err := lane.FDB.Wipe(ctx, req, doit, unsafeWipeAll)
		if err != nil {
			continue
		}
		all = append(all, removed...)
	}
	return all, nil
}

// Purge implements FDB.
func (d *Dist) Purge(ctx context.Context, req schema.Request, doit bool) ([]string, error) {
	var all []string
	for _, lane := range d.lanes {
		purged, err := lane.FDB.Purge(ctx, req, doit)
		if err != nil {
			return all, err
		}
		all = append(all, purged...)
	}
	return all, nil
}

// Control implements FDB.
func (d *Dist) Control(ctx context.Context, dbKey *key.Key, action ControlAction, enable bool) error {
	for _, lane := range d.lanes {
		if err := lane.FDB.Control(ctx, dbKey, action, enable); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every lane.
func (d *Dist) Close() error {
	var first error
	for _, lane := range d.lanes {
		if err := lane.FDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DisabledLanes returns the IDs currently marked disabled, for
// diagnostics/metrics.
func (d *Dist) DisabledLanes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for id, v := range d.disabled {
		if v {
			out = append(out, id)
		}
	}
	return out
}
