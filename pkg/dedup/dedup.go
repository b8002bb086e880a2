// Package dedup implements the HyperCube and Deduplicator described in
// spec.md §3 and §4.2: projecting a result set onto the cartesian
// product of a request's multi-valued keywords and keeping one location
// per cell.
package dedup

import (
	"strconv"
	"strings"

	"github.com/ecmwf-go/fdb/pkg/location"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

// Element is one candidate result: a combined keyword->value dictionary
// (the union of its db/index/datum keys), its location, and its
// position in TOC order (lower = earlier, used to pick the "latest").
type Element struct {
	Combined map[string]string
	Location location.FieldLocation
	TOCOrder int
}

// HyperCube is the cartesian product of a request's multi-valued
// keywords: one cell per combination of values.
type HyperCube struct {
	axes []string // keywords with more than one requested value
}

// NewHyperCube builds the cube over req's multi-valued keywords.
func NewHyperCube(req schema.Request) *HyperCube {
	h := &HyperCube{}
	for kw, vals := range req {
		if len(vals) > 1 {
			h.axes = append(h.axes, kw)
		}
	}
	return h
}

// CellKey returns the identifier of the cell elem falls into: the
// concatenation of elem's values for the cube's axis keywords. Elements
// that agree on every axis value belong to the same cell.
func (h *HyperCube) CellKey(elem Element) string {
	var b strings.Builder
	for i, kw := range h.axes {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(kw)
		b.WriteByte('=')
		b.WriteString(elem.Combined[kw])
	}
	return b.String()
}

// Deduplicator selects one element per hypercube cell.
type Deduplicator struct {
	cube           *HyperCube
	onlyDuplicates bool
}

// New returns a Deduplicator over cube. When onlyDuplicates is true, the
// selection is inverted: only elements that were superseded are
// returned (used by purge to find what to delete).
func New(cube *HyperCube, onlyDuplicates bool) *Deduplicator {
	return &Deduplicator{cube: cube, onlyDuplicates: onlyDuplicates}
}

// Apply groups elems by hypercube cell and keeps the latest (highest
// TOCOrder) unmasked element per cell; with onlyDuplicates it returns
// every element that was NOT kept instead.
func (d *Deduplicator) Apply(elems []Element) []Element {
	latest := make(map[string]Element)
	for _, e := range elems {
		cell := d.cube.CellKey(e)
		if cur, ok := latest[cell]; !ok || e.TOCOrder > cur.TOCOrder {
			latest[cell] = e
		}
	}

	if !d.onlyDuplicates {
		out := make([]Element, 0, len(latest))
		for _, e := range latest {
			out = append(out, e)
		}
		return out
	}

	kept := make(map[string]bool, len(latest))
	for cell, e := range latest {
		kept[cell+"\x00"+e.Location.URI+locKey(e.Location)] = true
	}
	var out []Element
	for _, e := range elems {
		cell := d.cube.CellKey(e)
		if !kept[cell+"\x00"+e.Location.URI+locKey(e.Location)] {
			out = append(out, e)
		}
	}
	return out
}

func locKey(l location.FieldLocation) string {
	return "@" + strconv.FormatInt(l.Offset, 10) + "," + strconv.FormatInt(l.Length, 10)
}
