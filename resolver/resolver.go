// Package resolver implements the coordinator side of the algorithm:
// label namespacing, boundary stitching between adjacent strips, a
// graph Priority-Flood over the merged master graph, and partitioning
// the result back into per-strip fill tables.
package resolver

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/flood"
	"github.com/openterrain/distflood/spillgraph"
)

// StripReport is everything a worker sends the coordinator about one
// strip once its local flood fill is done: its top and bottom row
// elevations and labels, and its local spill graph.
type StripReport struct {
	Index     int
	TopElev   []float32
	BotElev   []float32
	TopLabels []int32
	BotLabels []int32
	Graph     *spillgraph.Graph
	Nodata    float32
}

// FillTable maps a strip's local labels to resolved fill elevations.
type FillTable map[int32]float32

// Resolve merges and solves a complete set of strip reports, ordered by
// Index, and returns one FillTable per strip (indexed the same way).
// reports must be sorted by Index and contiguous from 0; Resolve does not
// reorder them.
func Resolve(reports []*StripReport) ([]FillTable, error) {
	if len(reports) == 0 {
		return nil, &errs.InputError{Err: fmt.Errorf("resolver: no strip reports")}
	}

	offsets, labelToStrip, master, err := namespaceAndMerge(reports)
	if err != nil {
		return nil, err
	}
	stitch(reports, offsets, master)

	resolved := graphPriorityFlood(master)

	return partition(reports, offsets, labelToStrip, resolved), nil
}

// namespaceAndMerge computes, for each strip, an offset so that its
// non-exterior labels land in a range disjoint from every other strip's,
// rewrites each strip's graph accordingly, and folds the rewritten
// graphs into one master graph. Label 1 (exterior) is always left
// unshifted.
func namespaceAndMerge(reports []*StripReport) (offsets []int32, labelToStrip map[int32]int, master *spillgraph.Graph, err error) {
	offsets = make([]int32, len(reports))
	labelToStrip = make(map[int32]int)
	master = spillgraph.New()
	master.AddVertex(flood.ExteriorLabel)

	var maxLabelSoFar int32 = flood.ExteriorLabel
	for _, r := range reports {
		if r.Graph == nil {
			return nil, nil, nil, &errs.InputError{Err: fmt.Errorf("resolver: strip %d has no spill graph", r.Index)}
		}
		offsets[r.Index] = maxLabelSoFar

		relabel := func(l spillgraph.Label) spillgraph.Label {
			if l == flood.ExteriorLabel {
				return l
			}
			return l + offsets[r.Index]
		}
		master.Merge(r.Graph, relabel)

		for _, v := range r.Graph.Vertices() {
			g := relabel(v)
			if g == flood.ExteriorLabel {
				continue
			}
			labelToStrip[g] = r.Index
			if g > maxLabelSoFar {
				maxLabelSoFar = g
			}
		}
	}
	return offsets, labelToStrip, master, nil
}

// stitch walks the seam between every adjacent strip pair -- strip s's
// bottom row against strip s+1's top row -- and relaxes master graph
// edges for every pair of distinct labels found across it. Each seam
// column is checked against the three neighbours below it (down-left,
// down, down-right), matching the diagonal reach of the strip-local
// 8-neighbour flood.
func stitch(reports []*StripReport, offsets []int32, master *spillgraph.Graph) {
	for i := 0; i+1 < len(reports); i++ {
		top, bot := reports[i], reports[i+1]
		w := len(top.BotElev)
		relabelTop := relabelFor(offsets[top.Index])
		relabelBot := relabelFor(offsets[bot.Index])

		for x := 0; x < w; x++ {
			ze := top.BotElev[x]
			if ze == top.Nodata {
				continue
			}
			la := relabelTop(top.BotLabels[x])

			for _, dx := range [3]int{-1, 0, 1} {
				nx := x + dx
				if nx < 0 || nx >= w {
					continue
				}
				zn := bot.TopElev[nx]
				if zn == bot.Nodata {
					continue
				}
				lb := relabelBot(bot.TopLabels[nx])
				if la == lb {
					continue
				}
				weight := ze
				if zn > weight {
					weight = zn
				}
				master.Relax(la, lb, weight)
			}
		}
	}
}

func relabelFor(offset int32) func(spillgraph.Label) spillgraph.Label {
	return func(l spillgraph.Label) spillgraph.Label {
		if l == flood.ExteriorLabel {
			return l
		}
		return l + offset
	}
}

// vertexKey is one entry of the graph Priority-Flood's min-heap.
type vertexKey struct {
	elev float32
	v    spillgraph.Label
}

type vertexHeap []vertexKey

func (h vertexHeap) Len() int            { return len(h) }
func (h vertexHeap) Less(i, j int) bool  { return h[i].elev < h[j].elev }
func (h vertexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *vertexHeap) Push(x any)         { *h = append(*h, x.(vertexKey)) }
func (h *vertexHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// graphPriorityFlood runs a Dijkstra-style minimax relaxation over the
// master graph, seeded from the exterior vertex at -infinity: each
// vertex is resolved to the lowest elevation it can be reached at along
// any path from the exterior, where a path's elevation is the max
// weight along it. A vertex with no path to the exterior at all (an
// island whose only neighbours sit across a seam that turned out to be
// nodata on the far side) is simply never finalized, and is absent from
// the returned map; partition leaves such a label out of its strip's
// fill table entirely, so the apply stage treats it as not raised.
func graphPriorityFlood(master *spillgraph.Graph) map[spillgraph.Label]float32 {
	resolved := make(map[spillgraph.Label]float32)
	finalized := make(map[spillgraph.Label]bool)

	var open vertexHeap
	heap.Push(&open, vertexKey{elev: float32(math.Inf(-1)), v: flood.ExteriorLabel})

	for open.Len() > 0 {
		cur := heap.Pop(&open).(vertexKey)
		if finalized[cur.v] {
			continue
		}
		finalized[cur.v] = true
		resolved[cur.v] = cur.elev

		for nbr, w := range master.Neighbors(cur.v) {
			if finalized[nbr] {
				continue
			}
			elev := w
			if cur.elev > elev {
				elev = cur.elev
			}
			heap.Push(&open, vertexKey{elev: elev, v: nbr})
		}
	}

	return resolved
}

// partition recovers, for each resolved vertex, its owning strip and
// local label, and records the fill elevation into that strip's table.
func partition(reports []*StripReport, offsets []int32, labelToStrip map[int32]int, resolved map[spillgraph.Label]float32) []FillTable {
	tables := make([]FillTable, len(reports))
	for i := range tables {
		tables[i] = make(FillTable)
	}

	for v, elev := range resolved {
		if v == flood.ExteriorLabel {
			// Exterior cells are never raised (the apply stage takes
			// max(z, fill) and exterior's own elevations are already
			// correct); every strip still needs an entry so the apply
			// stage's lookup never misses.
			for i := range tables {
				tables[i][flood.ExteriorLabel] = elev
			}
			continue
		}
		s, ok := labelToStrip[v]
		if !ok {
			continue
		}
		local := v - offsets[s]
		tables[s][local] = elev
	}
	return tables
}
