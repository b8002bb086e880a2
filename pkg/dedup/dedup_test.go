package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecmwf-go/fdb/pkg/location"
	"github.com/ecmwf-go/fdb/pkg/schema"
)

// TestDeduplicationHypercube mirrors spec.md §8 E2E scenario 5: the same
// (param, step) combination archived three times each, over
// param in {167,168} and step in {0,1,2}; dedup=true must return exactly
// one (the latest) element per cell out of the 18 writes.
func TestDeduplicationHypercube(t *testing.T) {
	req := schema.Request{
		"param": {"167", "168"},
		"step":  {"0", "1", "2"},
	}
	cube := NewHyperCube(req)

	var elems []Element
	order := 0
	for _, param := range []string{"167", "168"} {
		for _, step := range []string{"0", "1", "2"} {
			for gen := 0; gen < 3; gen++ {
				elems = append(elems, Element{
					Combined: map[string]string{"param": param, "step": step},
					Location: location.New("file:///data.data", int64(order), 10),
					TOCOrder: order,
				})
				order++
			}
		}
	}
	require.Len(t, elems, 18, "test setup")

	deduped := New(cube, false).Apply(elems)
	assert.Len(t, deduped, 6, "dedup=true count")

	// The kept element per cell must be the latest (highest TOCOrder).
	byCell := make(map[string]Element)
	for _, e := range deduped {
		byCell[cube.CellKey(e)] = e
	}
	for _, e := range elems {
		cell := cube.CellKey(e)
		kept, ok := byCell[cell]
		require.Truef(t, ok, "cell %q missing from deduped output", cell)
		assert.LessOrEqualf(t, e.TOCOrder, kept.TOCOrder, "cell %q kept a stale element", cell)
	}
}

func TestApplyKeepsOnePerCell(t *testing.T) {
	req := schema.Request{"param": {"167", "168"}}
	cube := NewHyperCube(req)
	elems := []Element{
		{Combined: map[string]string{"param": "167"}, TOCOrder: 0},
		{Combined: map[string]string{"param": "167"}, TOCOrder: 1},
		{Combined: map[string]string{"param": "168"}, TOCOrder: 2},
	}

	// dedup=false is modeled by the caller simply not invoking Apply;
	// Deduplicator.Apply always reduces to one-per-cell. Verify that
	// behavior explicitly here and exercise onlyDuplicates separately.
	deduped := New(cube, false).Apply(elems)
	require.Len(t, deduped, 2, "cells")
}

func TestOnlyDuplicatesReturnsSupersededElements(t *testing.T) {
	req := schema.Request{"param": {"167", "168"}}
	cube := NewHyperCube(req)
	elems := []Element{
		{Combined: map[string]string{"param": "167"}, Location: location.New("file:///a", 0, 1), TOCOrder: 0},
		{Combined: map[string]string{"param": "167"}, Location: location.New("file:///a", 1, 1), TOCOrder: 1},
		{Combined: map[string]string{"param": "168"}, Location: location.New("file:///a", 2, 1), TOCOrder: 2},
	}

	dup := New(cube, true).Apply(elems)
	require.Len(t, dup, 1, "the superseded param=167 write")
	assert.Equal(t, 0, dup[0].TOCOrder)
}

func TestHyperCubeSingleValuedKeywordsAreNotAxes(t *testing.T) {
	req := schema.Request{"class": {"od"}, "param": {"167", "168"}}
	cube := NewHyperCube(req)
	a := Element{Combined: map[string]string{"class": "od", "param": "167"}}
	b := Element{Combined: map[string]string{"class": "rd", "param": "167"}}
	// "class" isn't a cube axis (single-valued in req), so elements that
	// differ only on it fall into the same cell.
	if cube.CellKey(a) != cube.CellKey(b) {
		t.Error("single-valued request keyword should not be treated as a hypercube axis")
	}
}
