package key

import "strings"

// Level names the three positions in a KeyChain.
type Level int

const (
	DBLevel Level = iota
	IndexLevel
	DatumLevel
)

func (l Level) String() string {
	switch l {
	case DBLevel:
		return "db"
	case IndexLevel:
		return "index"
	case DatumLevel:
		return "datum"
	default:
		return "unknown"
	}
}

// Chain is the three-level db/index/datum address of a field, as produced
// by schema expansion (pkg/schema.Expand). Each level is a *Key over the
// keywords that schema rule assigns to it.
type Chain struct {
	DB    *Key
	Index *Key
	Datum *Key
}

// NewChain builds a Chain from three already-populated Keys.
func NewChain(db, index, datum *Key) *Chain {
	return &Chain{DB: db, Index: index, Datum: datum}
}

// At returns the Key at the given level.
func (c *Chain) At(level Level) *Key {
	switch level {
	case DBLevel:
		return c.DB
	case IndexLevel:
		return c.Index
	case DatumLevel:
		return c.Datum
	default:
		return nil
	}
}

// Combined returns a single flattened Key containing every keyword from
// all three levels, db first, then index, then datum; keywords repeated
// at a later level overwrite the earlier value.
func (c *Chain) Combined() *Key {
	out := New()
	for _, lvl := range []*Key{c.DB, c.Index, c.Datum} {
		if lvl == nil {
			continue
		}
		for _, kw := range lvl.Keywords() {
			v, _ := lvl.Get(kw)
			out.Set(kw, v)
		}
	}
	return out
}

// Equal reports whether two chains address the same field, level by level.
func (c *Chain) Equal(other *Chain) bool {
	if other == nil {
		return false
	}
	return keyEqual(c.DB, other.DB) && keyEqual(c.Index, other.Index) && keyEqual(c.Datum, other.Datum)
}

func keyEqual(a, b *Key) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

// String renders the chain as "db/index/datum", each level rendered via
// Key.String, matching the directory/file naming convention of spec §6.
func (c *Chain) String() string {
	var parts []string
	for _, lvl := range []*Key{c.DB, c.Index, c.Datum} {
		if lvl == nil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, lvl.String())
	}
	return strings.Join(parts, "/")
}
