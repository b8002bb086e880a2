// Package key implements the ordered keyword->value map ("Key") and the
// three-level db/index/datum chain ("KeyChain") that every field in fdb
// is addressed by. See spec.md §3.
package key

import (
	"sort"
	"strings"
)

// Canonicalizer canonicalizes a single keyword's value. A typed Key binds
// one of these per keyword via a registry (see pkg/registry).
type Canonicalizer interface {
	Canonicalize(keyword, value string) (string, error)
}

// Key is an ordered association of keyword to canonical value. Insertion
// order is preserved for Keywords() and String(), but equality and lookup are
// keyed on the canonicalized dictionary, not on order.
type Key struct {
	order  []string
	values map[string]string
	reg    Canonicalizer
}

// New returns an empty, untyped Key. Values inserted into an untyped Key
// are stored verbatim (no canonicalization).
func New() *Key {
	return &Key{values: make(map[string]string)}
}

// NewTyped returns an empty Key bound to reg; every Set canonicalizes its
// value through reg before storing it.
func NewTyped(reg Canonicalizer) *Key {
	return &Key{values: make(map[string]string), reg: reg}
}

// Set inserts or overwrites keyword with value, canonicalizing it if the
// Key is typed. Returns an error iff canonicalization fails.
func (k *Key) Set(keyword, value string) error {
	v := value
	if k.reg != nil {
		canon, err := k.reg.Canonicalize(keyword, value)
		if err != nil {
			return err
		}
		v = canon
	}
	if _, exists := k.values[keyword]; !exists {
		k.order = append(k.order, keyword)
	}
	k.values[keyword] = v
	return nil
}

// Get returns the canonical value for keyword and whether it is present.
func (k *Key) Get(keyword string) (string, bool) {
	v, ok := k.values[keyword]
	return v, ok
}

// Has reports whether keyword is present.
func (k *Key) Has(keyword string) bool {
	_, ok := k.values[keyword]
	return ok
}

// Unset removes keyword from the Key, if present.
func (k *Key) Unset(keyword string) {
	if _, ok := k.values[keyword]; !ok {
		return
	}
	delete(k.values, keyword)
	for i, kw := range k.order {
		if kw == keyword {
			k.order = append(k.order[:i], k.order[i+1:]...)
			break
		}
	}
}

// Keywords returns the keywords in insertion order.
func (k *Key) Keywords() []string {
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// Len returns the number of keywords set.
func (k *Key) Len() int { return len(k.values) }

// Clone returns a deep, independent copy of k.
func (k *Key) Clone() *Key {
	c := &Key{
		order:  append([]string(nil), k.order...),
		values: make(map[string]string, len(k.values)),
		reg:    k.reg,
	}
	for kw, v := range k.values {
		c.values[kw] = v
	}
	return c
}

// Request returns the keyword->value map view used by schema expansion
// (a single-valued request, as opposed to a multi-valued FDBToolRequest).
func (k *Key) Request() map[string]string {
	out := make(map[string]string, len(k.values))
	for kw, v := range k.values {
		out[kw] = v
	}
	return out
}

// sortedKeywords returns every keyword in k in a stable, value-independent
// order, used for equality and canonical string rendering.
func (k *Key) sortedKeywords() []string {
	kws := make([]string, 0, len(k.values))
	for kw := range k.values {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	return kws
}

// Equal reports whether k and other canonicalize to the same dictionary,
// irrespective of insertion order.
func (k *Key) Equal(other *Key) bool {
	if other == nil {
		return false
	}
	if len(k.values) != len(other.values) {
		return false
	}
	for kw, v := range k.values {
		ov, ok := other.values[kw]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// String renders the key's values in "v1:v2:..." form, insertion-ordered,
// matching the on-disk database-directory naming of spec §6
// (<dbKey.valuesToString()>).
func (k *Key) String() string {
	var b strings.Builder
	for i, kw := range k.order {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(k.values[kw])
	}
	return b.String()
}

// CanonicalString renders the key with keywords sorted, suitable as a
// stable fingerprinting input (unlike String, which preserves insertion
// order for display).
func (k *Key) CanonicalString() string {
	var b strings.Builder
	for i, kw := range k.sortedKeywords() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kw)
		b.WriteByte('=')
		b.WriteString(k.values[kw])
	}
	return b.String()
}
