// Package lifecycle implements the space-reclamation and relocation
// operations of spec.md §4.6: purge, move, and persisted control locks.
// Wipe itself is implemented directly on dispatch.FDB (it needs no more
// than the Catalogue.Wipe terminal marker plus store removal); this
// package covers the operations whose algorithms don't fit cleanly on
// that narrow interface.
package lifecycle

import (
	"context"

	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
)

// PurgeResult reports what a purge removed (or, for a dry run, would
// remove).
type PurgeResult struct {
	RemovedIndexFiles []string
	RemovedBytes      int64
}

// StoreRemover is the subset of store.Store that Purge needs.
type StoreRemover interface {
	Remove(ctx context.Context, uri string, doit bool) (int64, error)
}

// Purge scans cat's full TOC record history and deletes the index files
// of generations that are *fully* masked: every Index record for a given
// index key that has a later Index record for the same key superseding
// it entirely. Partially-masked generations (spec: "for partially-masked
// indexes, leave them intact (conservative)") are left alone, since this
// catalogue model publishes one index file per distinct index key per
// flush rather than per-datum masking within a file.
func Purge(ctx context.Context, cat *catalogue.Catalogue, remover StoreRemover, doit bool) (PurgeResult, error) {
	records, err := cat.RawRecords()
	if err != nil {
		return PurgeResult{}, err
	}

	// latestRefByIndexKey tracks, for each index key, the file ref of
	// the most recent Index record not yet Clear'd; any earlier ref for
	// the same index key is fully superseded and safe to purge.
	latestRefByIndexKey := make(map[string]string)
	cleared := make(map[string]bool)
	var history []struct {
		indexKey string
		ref      string
	}

	for _, rec := range records {
		switch rec.Kind {
		case catalogue.KindIndex:
			p, err := catalogue.DecodeIndexPayload(rec.Record)
			if err != nil {
				return PurgeResult{}, err
			}
			if prior, ok := latestRefByIndexKey[p.IndexKey]; ok {
				history = append(history, struct {
					indexKey string
					ref      string
				}{p.IndexKey, prior})
			}
			latestRefByIndexKey[p.IndexKey] = p.IndexFileRef
		case catalogue.KindClear:
			c, err := catalogue.DecodeClearPayload(rec.Record)
			if err != nil {
				return PurgeResult{}, err
			}
			cleared[c.IndexFileRef] = true
		}
	}

	result := PurgeResult{}
	for _, h := range history {
		if h.ref == latestRefByIndexKey[h.indexKey] {
			// Flush reuses one file name per index key, so an earlier
			// generation's ref can name the file the live generation now
			// occupies; that file is never purged.
			continue
		}
		if !cleared[h.ref] {
			// An uncleared earlier generation is only superseded in our
			// bookkeeping, not yet acknowledged by the catalogue itself;
			// conservatively skip it.
			continue
		}
		path := cat.IndexFilePath(h.ref)
		if !doit {
			result.RemovedIndexFiles = append(result.RemovedIndexFiles, path)
			continue
		}
		n, err := remover.Remove(ctx, "file://"+path, true)
		if err != nil {
			logging.WithComponent("lifecycle").Warn().Err(err).Str("path", path).Msg("failed to remove purged index file")
			continue
		}
		result.RemovedIndexFiles = append(result.RemovedIndexFiles, path)
		result.RemovedBytes += n
	}
	return result, nil
}
