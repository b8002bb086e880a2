// Package schema parses the declarative three-level rule grammar that
// maps requests onto database/index/datum keys, and implements the
// expansion algorithm described in spec.md §4.1.
package schema

import (
	"fmt"
	"strings"

	"github.com/ecmwf-go/fdb/internal/ferr"
	"github.com/ecmwf-go/fdb/pkg/key"
	"github.com/ecmwf-go/fdb/pkg/registry"
)

// Keyword is one slot in a rule level.
type Keyword struct {
	Name     string
	Type     registry.TypeKind
	Optional bool
}

// Level is one of the three nested rule positions (db, index, datum).
type Level struct {
	Keywords []Keyword
	Children []*Level // nested levels (db has index children, index has datum children)
}

// Rule is a top-level schema entry: a DB level whose children are Index
// levels, whose children are Datum levels.
type Rule struct {
	DB *Level
}

// Schema is an ordered list of rules, evaluated in file order.
type Schema struct {
	Rules []*Rule
	reg   *registry.Registry
}

// New returns an empty Schema bound to reg for canonicalization.
func New(reg *registry.Registry) *Schema {
	return &Schema{reg: reg}
}

// Visitor receives the keys produced during expansion. Each select
// method returns whether expansion should continue into that key's
// children; returning false prunes the branch.
type Visitor interface {
	SelectDatabase(dbKey *key.Key) bool
	SelectIndex(dbKey, indexKey *key.Key) bool
	SelectDatum(dbKey, indexKey, datumKey *key.Key) bool
}

// Request is a multi-valued keyword->values map, the input to expansion.
type Request map[string][]string

// Mode controls whether missing required keywords are tolerated.
type Mode int

const (
	// ModeArchive requires every non-optional keyword at every level to
	// be present in the request.
	ModeArchive Mode = iota
	// ModeRead allows missing keywords; unset keywords are simply not
	// added to the produced key (a partial key).
	ModeRead
)

// Expand iterates the schema's rules in order; for each rule it expands
// the db level, and for every surviving dbKey (per Visitor.SelectDatabase)
// expands nested index and datum levels analogously. A rule that cannot
// satisfy a required keyword is skipped, not fatal, unless every rule
// fails to produce anything in ModeArchive and the request was
// non-empty, in which case SchemaError is returned.
func (s *Schema) Expand(req Request, mode Mode, v Visitor) error {
	produced := false
	for _, rule := range s.Rules {
		n, err := s.expandLevel(rule.DB, req, mode, key.NewTyped(s.reg), v, levelDB)
		if err != nil {
			return err
		}
		produced = produced || n > 0
	}
	if !produced && mode == ModeArchive {
		return ferr.New(ferr.SchemaError, "no schema rule matched request").With("request", fmt.Sprint(req))
	}
	return nil
}

type levelKind int

const (
	levelDB levelKind = iota
	levelIndex
	levelDatum
)

// expandLevel performs the cartesian-product substitution for one level,
// recursing into children after invoking the matching Visitor method. It
// returns the number of keys produced at this level.
func (s *Schema) expandLevel(lvl *Level, req Request, mode Mode, base *key.Key, v Visitor, kind levelKind, parents ...*key.Key) (int, error) {
	if lvl == nil {
		return s.dispatchLeaf(base, v, kind, parents), nil
	}

	combos, err := cartesianProduct(lvl.Keywords, req, mode)
	if err != nil {
		// A required keyword is missing: this rule does not match here,
		// which Expand only reports if no rule produces anything.
		return 0, nil
	}
	if len(combos) == 0 && len(lvl.Keywords) > 0 {
		// Rule's keywords could not be satisfied; not an error, just no match.
		return 0, nil
	}
	if len(combos) == 0 {
		combos = []map[string]string{{}}
	}

	produced := 0
	for _, combo := range combos {
		candidate := base.Clone()
		for _, kw := range lvl.Keywords {
			if val, ok := combo[kw.Name]; ok {
				if err := candidate.Set(kw.Name, val); err != nil {
					return produced, ferr.Wrap(ferr.SchemaError, "canonicalization failed", err).With("keyword", kw.Name)
				}
			}
		}

		// A candidate counts as produced whether or not the visitor
		// selects it: pruning is the visitor's choice, not a failed match.
		produced++
		ok, proceed := s.visit(candidate, v, kind, parents)
		if !ok || !proceed {
			continue
		}

		if len(lvl.Children) == 0 {
			// A datum candidate was visited above; only a childless db or
			// index level hands its key on as a leaf.
			if kind != levelDatum {
				s.dispatchLeaf(candidate, v, nextKind(kind), append(parents, candidate))
			}
			continue
		}
		for _, child := range lvl.Children {
			if _, err := s.expandLevel(child, req, mode, key.NewTyped(s.reg), v, nextKind(kind), append(parents, candidate)...); err != nil {
				return produced, err
			}
		}
	}
	return produced, nil
}

func nextKind(k levelKind) levelKind {
	switch k {
	case levelDB:
		return levelIndex
	case levelIndex:
		return levelDatum
	default:
		return levelDatum
	}
}

// visit dispatches the appropriate Visitor.Select* call for kind and
// returns (matched, shouldDescend).
func (s *Schema) visit(candidate *key.Key, v Visitor, kind levelKind, parents []*key.Key) (bool, bool) {
	switch kind {
	case levelDB:
		ok := v.SelectDatabase(candidate)
		return ok, ok
	case levelIndex:
		dbKey := parents[0]
		ok := v.SelectIndex(dbKey, candidate)
		return ok, ok
	default:
		dbKey, idxKey := parents[0], parents[1]
		ok := v.SelectDatum(dbKey, idxKey, candidate)
		return ok, ok
	}
}

// dispatchLeaf visits candidate at kind on behalf of a level that has no
// nested rule below it: a nil level, or a db or index level without
// children.
func (s *Schema) dispatchLeaf(candidate *key.Key, v Visitor, kind levelKind, parents []*key.Key) int {
	if candidate == nil {
		return 0
	}
	ok, _ := s.visit(candidate, v, kind, parents)
	if ok {
		return 1
	}
	return 0
}

// cartesianProduct expands lvl's keywords against req, substituting each
// multi-valued keyword and producing one map per combination. Missing
// required keywords fail the level in ModeArchive (SchemaError) and are
// simply omitted in ModeRead.
func cartesianProduct(kws []Keyword, req Request, mode Mode) ([]map[string]string, error) {
	combos := []map[string]string{{}}
	for _, kw := range kws {
		values, present := req[kw.Name]
		if !present || len(values) == 0 {
			if kw.Optional || mode == ModeRead {
				continue
			}
			return nil, ferr.New(ferr.SchemaError, "missing required keyword").With("keyword", kw.Name)
		}
		var next []map[string]string
		for _, combo := range combos {
			for _, val := range values {
				c := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					c[k] = v
				}
				c[kw.Name] = val
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos, nil
}

// ExpandFirstLevel partially expands req against the db level of every
// rule only, returning each candidate dbKey. Used by dispatch to locate
// the owning database without paying for full expansion.
func (s *Schema) ExpandFirstLevel(req Request) ([]*key.Key, error) {
	var out []*key.Key
	for _, rule := range s.Rules {
		combos, err := cartesianProduct(rule.DB.Keywords, req, ModeRead)
		if err != nil {
			return nil, err
		}
		for _, combo := range combos {
			k := key.NewTyped(s.reg)
			for _, kw := range rule.DB.Keywords {
				if val, ok := combo[kw.Name]; ok {
					k.Set(kw.Name, val)
				}
			}
			out = append(out, k)
		}
	}
	return out, nil
}

// FullyExpandedLevels reports how many of the three levels (0..3) are
// uniquely determined (every keyword present with exactly one value) by
// req, against the first rule that matches it at all.
func (s *Schema) FullyExpandedLevels(req Request) int {
	for _, rule := range s.Rules {
		n := 0
		if levelFullyDetermined(rule.DB, req) {
			n++
		} else {
			continue
		}
		if len(rule.DB.Children) == 0 {
			return n
		}
		idx := rule.DB.Children[0]
		if levelFullyDetermined(idx, req) {
			n++
		} else {
			return n
		}
		if len(idx.Children) == 0 {
			return n
		}
		datum := idx.Children[0]
		if levelFullyDetermined(datum, req) {
			n++
		}
		return n
	}
	return 0
}

func levelFullyDetermined(lvl *Level, req Request) bool {
	if lvl == nil {
		return true
	}
	for _, kw := range lvl.Keywords {
		if kw.Optional {
			continue
		}
		vals, ok := req[kw.Name]
		if !ok || len(vals) != 1 {
			return false
		}
	}
	return true
}

// String renders the schema back to grammar text, used by the parse<->dump
// round-trip law.
func (s *Schema) String() string {
	var b strings.Builder
	for i, rule := range s.Rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeLevel(&b, rule.DB)
	}
	return b.String()
}

func writeLevel(b *strings.Builder, lvl *Level) {
	if lvl == nil {
		return
	}
	b.WriteByte('[')
	for i, kw := range lvl.Keywords {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(kw.Name)
		if kw.Type != "" && kw.Type != registry.TypeAny {
			b.WriteByte(':')
			b.WriteString(string(kw.Type))
		}
		if kw.Optional {
			b.WriteByte('?')
		}
	}
	for _, child := range lvl.Children {
		writeLevel(b, child)
	}
	b.WriteByte(']')
}
