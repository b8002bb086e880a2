package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/internal/logging"
	"github.com/ecmwf-go/fdb/pkg/location"
	"github.com/ecmwf-go/fdb/pkg/store"
)

// MoveRequest parameterizes a move operation (spec §4.6:
// "move(request, destURI, keepSource, delay, threads)").
type MoveRequest struct {
	DestURI    string
	KeepSource bool
	Delay      time.Duration
	Threads    int
}

// MoveResult reports the new locations produced by a move, keyed by the
// original location's encoded form, so the caller can rewrite catalogue
// entries to point at them.
type MoveResult struct {
	Rewritten map[string]location.FieldLocation
}

// Move copies every entry's payload from src to dest, returning the new
// locations without touching the catalogue; the caller is responsible
// for rewriting index entries (this keeps Move ignorant of the
// catalogue's on-disk record format). When KeepSource is false, Move
// itself removes the originals via src.Remove from a background
// goroutine once Delay has elapsed.
func Move(ctx context.Context, entries []location.FieldLocation, src, dest store.Store, req MoveRequest) (MoveResult, error) {
	result := MoveResult{Rewritten: make(map[string]location.FieldLocation, len(entries))}
	sem := make(chan struct{}, maxThreads(req.Threads))
	type outcome struct {
		key string
		loc location.FieldLocation
		err error
	}
	results := make(chan outcome, len(entries))

	for _, loc := range entries {
		sem <- struct{}{}
		go func(loc location.FieldLocation) {
			defer func() { <-sem }()
			newLoc, err := copyOne(ctx, loc, src, dest)
			results <- outcome{key: location.Encode(loc), loc: newLoc, err: err}
		}(loc)
	}

	var firstErr error
	for range entries {
		o := <-results
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		result.Rewritten[o.key] = o.loc
	}
	if firstErr != nil {
		return result, firstErr
	}

	if err := dest.Flush(ctx); err != nil {
		return result, err
	}

	if !req.KeepSource {
		go func() {
			if req.Delay > 0 {
				time.Sleep(req.Delay)
			}
			for _, loc := range entries {
				if _, err := src.Remove(ctx, loc.URI, true); err != nil {
					logging.WithComponent("lifecycle").Warn().Err(err).Str("uri", loc.URI).Msg("delayed source removal failed")
				}
			}
		}()
	}
	return result, nil
}

func copyOne(ctx context.Context, loc location.FieldLocation, src, dest store.Store) (location.FieldLocation, error) {
	r, err := src.Retrieve(ctx, loc)
	if err != nil {
		return location.FieldLocation{}, ferr.Wrap(ferr.StoreIOError, "retrieve for move", err).With("uri", loc.URI)
	}
	defer r.Close()

	buf := make([]byte, loc.Length)
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			if m == 0 {
				break
			}
		}
	}
	if int64(n) != loc.Length {
		return location.FieldLocation{}, ferr.New(ferr.StoreIOError, fmt.Sprintf("short read during move: got %d of %d bytes", n, loc.Length)).With("uri", loc.URI)
	}

	newLoc, err := dest.Archive(ctx, "", buf)
	if err != nil {
		return location.FieldLocation{}, ferr.Wrap(ferr.StoreIOError, "archive during move", err).With("uri", loc.URI)
	}
	return newLoc, nil
}

func maxThreads(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
