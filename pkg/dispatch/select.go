package dispatch

import (
	"context"
	"io"
	"regexp"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/catalogue"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

// MissingPolicy controls how a SelectMatcher treats a keyword the
// request doesn't set at all.
type MissingPolicy int

const (
	// DontMatchOnMissing fails the matcher if the keyword is absent.
	DontMatchOnMissing MissingPolicy = iota
	// MatchOnMissing treats an absent keyword as satisfied.
	MatchOnMissing
)

// Constraint is one keyword's matching rule within a SelectMatcher: a
// keyword with an allowed-value pattern (a '|'-separated alternation,
// e.g. "1|2", matched as a regular expression).
type Constraint struct {
	Keyword string
	Pattern string
	Missing MissingPolicy
}

func (c Constraint) matches(req schema.Request) bool {
	vals, ok := req[c.Keyword]
	if !ok || len(vals) == 0 {
		return c.Missing == MatchOnMissing
	}
	re, err := regexp.Compile("^(?:" + c.Pattern + ")$")
	if err != nil {
		return false
	}
	for _, v := range vals {
		if !re.MatchString(v) {
			return false
		}
	}
	return true
}

// SelectMatcher is `{select, excludes}` from spec §4.4: a request
// matches if every `select` constraint is satisfied and no `excludes`
// constraint is.
type SelectMatcher struct {
	Select   []Constraint
	Excludes []Constraint
}

// Matches reports whether req satisfies m.
func (m SelectMatcher) Matches(req schema.Request) bool {
	for _, c := range m.Select {
		if !c.matches(req) {
			return false
		}
	}
	for _, c := range m.Excludes {
		if c.matches(req) {
			return false
		}
	}
	return true
}

// Lane pairs a SelectMatcher with the sub-FDB it guards.
type Lane struct {
	Matcher SelectMatcher
	FDB     FDB
	Name    string
}

// Select is the dispatch variant that routes archive to the first
// matching lane and fans queries out to every matching lane, per spec
// §4.4.
type Select struct {
	lanes []Lane
}

// NewSelect builds a Select FDB over lanes, tried in order.
func NewSelect(lanes []Lane) *Select {
	return &Select{lanes: lanes}
}

func requestFromChain(c *key.Chain) schema.Request {
	req := schema.Request{}
	for _, k := range c.Combined().Keywords() {
		v, _ := c.Combined().Get(k)
		req[k] = []string{v}
	}
	return req
}

// Archive implements FDB: routes to the first lane whose matcher accepts
// the request's combined key.
func (s *Select) Archive(ctx context.Context, req ArchiveRequest) error {
	r := requestFromChain(req.Chain)
	for _, lane := range s.lanes {
		if lane.Matcher.Matches(r) {
			return lane.FDB.Archive(ctx, req)
		}
	}
	return ferr.New(ferr.DistributionError, "no select lane matched archive request")
}

// Flush implements FDB: flushes every lane.
func (s *Select) Flush(ctx context.Context) error {
	for _, lane := range s.lanes {
		if err := lane.FDB.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// List implements FDB: fans out to every matching lane and aggregates.
func (s *Select) List(ctx context.Context, req schema.Request, dedup bool) ([]catalogue.Entry, error) {
	var all []catalogue.Entry
	for _, lane := range s.lanes {
		if !lane.Matcher.Matches(req) {
			continue
		}
		entries, err := lane.FDB.List(ctx, req, dedup)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Retrieve implements FDB: gathers a read handle from every matching
// lane and concatenates them.
func (s *Select) Retrieve(ctx context.Context, req schema.Request, dedup, optimise bool) (io.ReadCloser, error) {
	var handles []io.ReadCloser
	for _, lane := range s.lanes {
		if !lane.Matcher.Matches(req) {
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

// Wipe implements FDB: applies to every matching lane.
func (s *Select) Wipe(ctx context.Context, req schema.Request, doit, unsafeWipeAll bool) ([]string, error) {
	var all []string
	for _, lane := range s.lanes {
		if !lane.Matcher.Matches(req) {
			continue
		}
		removed, err := lane.FDB.Wipe(ctx, req, doit, unsafeWipeAll)
		if err != nil {
			return all, err
		}
		all = append(all, removed...)
	}
	return all, nil
}

// Purge implements FDB.
func (s *Select) Purge(ctx context.Context, req schema.Request, doit bool) ([]string, error) {
	var all []string
	for _, lane := range s.lanes {
		if !lane.Matcher.Matches(req) {
			continue
		}
		purged, err := lane.FDB.Purge(ctx, req, doit)
		if err != nil {
			return all, err
		}
		all = append(all, purged...)
	}
	return all, nil
}

// Control implements FDB: applies to every lane.
func (s *Select) Control(ctx context.Context, dbKey *key.Key, action ControlAction, enable bool) error {
	for _, lane := range s.lanes {
		if err := lane.FDB.Control(ctx, dbKey, action, enable); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every lane.
func (s *Select) Close() error {
	var first error
	for _, lane := range s.lanes {
		if err := lane.FDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
