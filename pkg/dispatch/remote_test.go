package dispatch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
	"github.com/ecmwf-go/fdb/pkg/wire"
)

// newRemoteServer wires a wire.Server whose Handler drives a real Local
// FDB, so Remote's wire encoding/decoding is exercised end to end
// against the same backend the other dispatch tests use.
func newRemoteServer(t *testing.T, l *Local) (addr string, cleanup func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	handler := func(ctx context.Context, req wire.Frame, emit func(wire.BlobPayload) error) (int, error) {
		switch req.Kind {
		case wire.KindArchive:
			var p wire.ArchivePayload
			if err := wire.Unmarshal(req.Payload, &p); err != nil {
				return 0, err
			}
			chain := chainFromCombined(p.CombinedKey)
			if err := l.Archive(ctx, ArchiveRequest{Chain: chain, Payload: p.Payload}); err != nil {
				return 0, err
			}
			return 0, nil
		case wire.KindFlush:
			return 0, l.Flush(ctx)
		case wire.KindList:
			var p wire.ListPayload
			if err := wire.Unmarshal(req.Payload, &p); err != nil {
				return 0, err
			}
			entries, err := l.List(ctx, p.Request, p.Dedup)
			if err != nil {
				return 0, err
			}
			for _, e := range entries {
				if err := emit(wire.BlobPayload{URI: e.Location.URI, Offset: e.Location.Offset, Length: e.Location.Length}); err != nil {
					return 0, err
				}
			}
			return len(entries), nil
		default:
			return 0, nil
		}
	}

	srv := wire.NewServer(ln, handler)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := srv.Start(ctx)
	go func() { <-errCh }()
	return ln.Addr().String(), func() {
		cancel()
		srv.Close()
	}
}

// chainFromCombined rebuilds a minimal three-level chain from a flat
// combined-key map, matching how chainFor's test fixtures lay out
// class/expver/date/param across db/index/datum levels.
func chainFromCombined(combined map[string]string) *key.Chain {
	return chainFor(combined["class"], combined["expver"], combined["date"], combined["param"])
}

func TestRemoteArchiveFlushList(t *testing.T) {
	local := newTestLocal(t)
	defer local.Close()
	addr, cleanup := newRemoteServer(t, local)
	defer cleanup()

	r, err := NewRemote(addr, 1, 2*time.Second)
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	chain := chainFor("od", "xxxx", "20101010", "130")
	if err := r.Archive(ctx, ArchiveRequest{Chain: chain, Payload: []byte("x")}); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if err := r.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	entries, err := r.List(ctx, schema.Request{"class": {"od"}, "expver": {"xxxx"}}, false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(entries))
	}
}

func TestRemoteWipeUnsupported(t *testing.T) {
	local := newTestLocal(t)
	defer local.Close()
	addr, cleanup := newRemoteServer(t, local)
	defer cleanup()

	r, err := NewRemote(addr, 1, 2*time.Second)
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	defer r.Close()

	if _, err := r.Wipe(context.Background(), schema.Request{}, true, true); err == nil {
		t.Error("Wipe() via Remote error = nil, want RemoteProtocolError")
	}
}
