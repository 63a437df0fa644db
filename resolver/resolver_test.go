package resolver

import (
	"testing"

	"github.com/openterrain/distflood/flood"
	"github.com/openterrain/distflood/spillgraph"
)

func TestResolve_RequiresAtLeastOneStrip(t *testing.T) {
	if _, err := Resolve(nil); err == nil {
		t.Error("expected an error for an empty report set")
	}
}

func TestResolve_NamespacesNonExteriorLabelsDisjointly(t *testing.T) {
	// Two strips that each mint local label 2 must not collide in the
	// master graph: after namespacing they must resolve to distinct
	// master-graph vertices unless genuinely stitched together.
	g0 := spillgraph.New()
	g0.Relax(flood.ExteriorLabel, 2, 5)
	g1 := spillgraph.New()
	g1.Relax(flood.ExteriorLabel, 2, 7)

	r0 := flatReport(0, g0)
	r1 := flatReport(1, g1)

	offsets, labelToStrip, master, err := namespaceAndMerge([]*StripReport{r0, r1})
	if err != nil {
		t.Fatalf("namespaceAndMerge: %v", err)
	}
	if offsets[0] == offsets[1] {
		t.Fatalf("expected distinct offsets, got %d and %d", offsets[0], offsets[1])
	}
	g0Label := 2 + offsets[0]
	g1Label := 2 + offsets[1]
	if g0Label == g1Label {
		t.Fatalf("strip 0's and strip 1's local label 2 collided onto %d", g0Label)
	}
	if labelToStrip[g0Label] != 0 {
		t.Errorf("labelToStrip[%d] = %d, want 0", g0Label, labelToStrip[g0Label])
	}
	if labelToStrip[g1Label] != 1 {
		t.Errorf("labelToStrip[%d] = %d, want 1", g1Label, labelToStrip[g1Label])
	}
	if w, ok := master.Weight(flood.ExteriorLabel, g0Label); !ok || w != 5 {
		t.Errorf("master edge (exterior, %d) = (%v, %v), want (5, true)", g0Label, w, ok)
	}
	if w, ok := master.Weight(flood.ExteriorLabel, g1Label); !ok || w != 7 {
		t.Errorf("master edge (exterior, %d) = (%v, %v), want (7, true)", g1Label, w, ok)
	}
}

func TestResolve_IsMinimaxOverMultiplePaths(t *testing.T) {
	// exterior --5-- label2 --9-- label3, plus a direct exterior --3--
	// label3: the minimax resolver must prefer the direct, lower-max
	// path for label3 (3) over the detour through label2 (9).
	g := spillgraph.New()
	g.Relax(flood.ExteriorLabel, 2, 5)
	g.Relax(2, 3, 9)
	g.Relax(flood.ExteriorLabel, 3, 3)

	tables, err := Resolve([]*StripReport{flatReport(0, g)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := tables[0][3]; got != 3 {
		t.Errorf("label 3: resolved fill %v, want 3 (direct path beats the detour through label 2)", got)
	}
	if got := tables[0][2]; got != 5 {
		t.Errorf("label 2: resolved fill %v, want 5", got)
	}
}

func TestResolve_StitchesAcrossSeamAndFillsThroughNeighborStrip(t *testing.T) {
	// Strip 0's bottom row carries its own interior label (2) with no
	// local edge to exterior at all (an enclosed strip-local basin whose
	// only possible outlet is through the strip below it). Strip 1's top
	// row is pure exterior. The only thing that can ever give label 2 a
	// path to the exterior is the seam stitch (spec.md §4.4): without
	// it, label 2 would be unreachable and left out of strip 0's fill
	// table.
	g0 := spillgraph.New()
	g0.AddVertex(2) // no edges yet: isolated until the seam is stitched

	r0 := &StripReport{
		Index:     0,
		Nodata:    -9999,
		TopElev:   []float32{9, 9, 9},
		BotElev:   []float32{4, 4, 4},
		TopLabels: []int32{flood.ExteriorLabel, flood.ExteriorLabel, flood.ExteriorLabel},
		BotLabels: []int32{2, 2, 2},
		Graph:     g0,
	}
	r1 := &StripReport{
		Index:     1,
		Nodata:    -9999,
		TopElev:   []float32{6, 6, 6},
		BotElev:   []float32{9, 9, 9},
		TopLabels: []int32{flood.ExteriorLabel, flood.ExteriorLabel, flood.ExteriorLabel},
		BotLabels: []int32{flood.ExteriorLabel, flood.ExteriorLabel, flood.ExteriorLabel},
		Graph:     spillgraph.New(),
	}

	tables, err := Resolve([]*StripReport{r0, r1})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// The seam weight is max(4, 6) = 6: that's label 2's only path out.
	if got := tables[0][2]; got != 6 {
		t.Errorf("strip 0 label 2: resolved fill %v, want 6", got)
	}
}

func TestResolve_UnreachableVertexIsLeftUnraised(t *testing.T) {
	// A label with no path to the exterior at all (an island whose only
	// neighbours sit across a seam that turned out to be nodata on the
	// far side) is valid input, not a bug: it must simply be left out of
	// its strip's fill table rather than aborting the whole solve.
	g := spillgraph.New()
	g.AddVertex(2) // never connected to the exterior by any edge or seam
	tables, err := Resolve([]*StripReport{flatReport(0, g)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := tables[0][2]; ok {
		t.Errorf("label 2: want no entry (not raised), got %v", tables[0][2])
	}
}

// flatReport builds a minimal single-row StripReport around g, used by
// tests that only exercise namespacing/graph-flood and don't need real
// seam geometry.
func flatReport(index int, g *spillgraph.Graph) *StripReport {
	return &StripReport{
		Index:     index,
		Nodata:    -9999,
		TopElev:   []float32{1},
		BotElev:   []float32{1},
		TopLabels: []int32{flood.ExteriorLabel},
		BotLabels: []int32{flood.ExteriorLabel},
		Graph:     g,
	}
}
