package dispatch

import (
	"context"
	"testing"

	"github.com/ecmwf-go/fdb/pkg/registry"
	"github.com/ecmwf-go/fdb/pkg/schema"
	"github.com/ecmwf-go/fdb/pkg/store"
)

func newSelectLane(t *testing.T, name string, m SelectMatcher) Lane {
	t.Helper()
	sch, err := schema.Parse(`[class, expver [time, number [date]]]`, registry.New())
	if err != nil {
		t.Fatalf("schema.Parse() error = %v", err)
	}
	backend, err := store.NewFileStore(t.TempDir(), store.Unpacked)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return Lane{Name: name, Matcher: m, FDB: NewLocal(t.TempDir(), sch, backend, NewCatalogueLRU(16), []byte("schema"))}
}

// TestSelectWithExcludes mirrors spec.md §8 E2E scenario 4.
func TestSelectWithExcludes(t *testing.T) {
	l1 := newSelectLane(t, "L1", SelectMatcher{
		Select: []Constraint{{Keyword: "time", Pattern: "0000"}},
		Excludes: []Constraint{
			{Keyword: "number", Pattern: "1|2"},
			{Keyword: "time", Pattern: "1200"},
		},
	})
	l2 := newSelectLane(t, "L2", SelectMatcher{
		Select:   []Constraint{{Keyword: "time", Pattern: "1200"}},
		Excludes: []Constraint{{Keyword: "number", Pattern: "2"}},
	})
	l3 := newSelectLane(t, "L3", SelectMatcher{
		Select: []Constraint{{Keyword: "number", Pattern: "1|2"}},
	})

	s := NewSelect([]Lane{l1, l2, l3})
	defer s.Close()
	ctx := context.Background()

	archive := func(time, number string) {
		db := chainFor("od", "xxxx", "20120911", "1")
		db.Index.Set("time", time)
		db.Index.Set("number", number)
		if err := s.Archive(ctx, ArchiveRequest{Chain: db, Payload: []byte("x")}); err != nil {
			t.Fatalf("Archive(time=%s,number=%s) error = %v", time, number, err)
		}
	}
	for _, time := range []string{"0000", "1200"} {
		for _, number := range []string{"1", "2", "3"} {
			archive(time, number)
		}
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	countFor := func(lane FDB, req schema.Request) int {
		entries, err := lane.List(ctx, req, false)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		return len(entries)
	}

	if got := countFor(l1.FDB, schema.Request{"class": {"od"}, "expver": {"xxxx"}}); got != 1 {
		t.Errorf("L1 count = %d, want 1", got)
	}
	if got := countFor(l2.FDB, schema.Request{"class": {"od"}, "expver": {"xxxx"}}); got != 2 {
		t.Errorf("L2 count = %d, want 2", got)
	}
	if got := countFor(l3.FDB, schema.Request{"class": {"od"}, "expver": {"xxxx"}}); got != 3 {
		t.Errorf("L3 count = %d, want 3", got)
	}
}

func TestSelectMatcherMatchOnMissing(t *testing.T) {
	m := SelectMatcher{Select: []Constraint{{Keyword: "stream", Pattern: "oper", Missing: MatchOnMissing}}}
	if !m.Matches(schema.Request{"class": {"od"}}) {
		t.Error("Matches() = false for a request missing a MatchOnMissing-policy keyword, want true")
	}

	m2 := SelectMatcher{Select: []Constraint{{Keyword: "stream", Pattern: "oper", Missing: DontMatchOnMissing}}}
	if m2.Matches(schema.Request{"class": {"od"}}) {
		t.Error("Matches() = true for a missing DontMatchOnMissing keyword, want false")
	}
}

func TestSelectArchiveNoLaneMatched(t *testing.T) {
	s := NewSelect(nil)
	err := s.Archive(context.Background(), ArchiveRequest{Chain: chainFor("od", "xxxx", "20120911", "1"), Payload: []byte("x")})
	if err == nil {
		t.Error("Archive() with no lanes error = nil, want DistributionError")
	}
}
