// Package flood implements the per-strip Priority-Flood with watershed
// labelling: a min-heap "open" queue plus a FIFO "pit" queue, a
// sentinel-coded label state machine (0 unassigned, negative
// inherited-not-dequeued, positive finalized), and a fixed 8-neighbour
// enumeration order so results are reproducible run to run.
package flood

import (
	"container/heap"
	"fmt"

	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/grid"
	"github.com/openterrain/distflood/spillgraph"
)

// ExteriorLabel is the one label value reserved for the DEM's physical
// exterior.
const ExteriorLabel spillgraph.Label = 1

// firstFreshLabel is the first label value handed out to an interior
// region; labels start above ExteriorLabel so the reservation never
// collides with a real region.
const firstFreshLabel spillgraph.Label = 2

// Strip is a contiguous horizontal slab of a DEM, addressed locally as
// rows [0, H).
type Strip struct {
	Elev           *grid.Dense
	Nodata         float32
	PhysicalTop    bool // this strip's local row 0 is the DEM's row 0
	PhysicalBottom bool // this strip's local row H-1 is the DEM's row H-1
}

// Result holds everything produced by Run: the (possibly raised)
// elevations, the label grid, and the strip's spill graph.
type Result struct {
	Elev   *grid.Dense
	Labels *grid.Labels
	Graph  *spillgraph.Graph
}

// seededCell is one entry in the open min-heap: an elevation plus an
// insertion sequence number used to break ties FIFO-consistently so that
// results are deterministic regardless of heap implementation details.
type seededCell struct {
	p   grid.Point
	z   float32
	seq uint64
}

type cellHeap []seededCell

func (h cellHeap) Len() int { return len(h) }
func (h cellHeap) Less(i, j int) bool {
	if h[i].z != h[j].z {
		return h[i].z < h[j].z
	}
	return h[i].seq < h[j].seq
}
func (h cellHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cellHeap) Push(x any)        { *h = append(*h, x.(seededCell)) }
func (h *cellHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// Run executes the Priority-Flood algorithm over s, filling local
// depressions, labelling every non-nodata cell reachable from the strip's
// edges (cells walled off from every edge by nodata keep label 0), and
// returning the strip's
// spill graph. It mutates s.Elev in place and allocates a fresh label
// grid.
func Run(s *Strip) (*Result, error) {
	w, h := s.Elev.W, s.Elev.H
	if w == 0 || h < 2 {
		return nil, &errs.InputError{Err: fmt.Errorf("flood: malformed strip %dx%d (need width > 0, height >= 2)", w, h)}
	}

	labels := grid.NewLabels(w, h)
	g := spillgraph.New()

	var open cellHeap
	var pit []grid.Point
	var seq uint64
	push := func(p grid.Point, z float32) {
		heap.Push(&open, seededCell{p: p, z: z, seq: seq})
		seq++
	}

	// 1. Seeding: push every cell of the strip's four local edges, and
	// pre-tag the cells that belong to the true physical exterior with
	// label -1 (reserved, not yet processed).
	for x := 0; x < w; x++ {
		if !s.Elev.IsNodata(x, 0) {
			push(grid.Point{X: x, Y: 0}, s.Elev.At(x, 0))
		}
		if !s.Elev.IsNodata(x, h-1) {
			push(grid.Point{X: x, Y: h - 1}, s.Elev.At(x, h-1))
		}
		if s.PhysicalTop && !s.Elev.IsNodata(x, 0) {
			labels.Set(x, 0, -1)
		}
		if s.PhysicalBottom && !s.Elev.IsNodata(x, h-1) {
			labels.Set(x, h-1, -1)
		}
	}
	for y := 0; y < h; y++ {
		if !s.Elev.IsNodata(0, y) {
			push(grid.Point{X: 0, Y: y}, s.Elev.At(0, y))
			labels.Set(0, y, -1)
		}
		if !s.Elev.IsNodata(w-1, y) {
			push(grid.Point{X: w - 1, Y: y}, s.Elev.At(w-1, y))
			labels.Set(w-1, y, -1)
		}
	}

	nextLabel := firstFreshLabel

	// 2 & 3. Main loop: drain pit in preference to open.
	for len(pit) > 0 || open.Len() > 0 {
		var c grid.Point
		var cz float32
		if len(pit) > 0 {
			c = pit[0]
			pit = pit[1:]
			cz = s.Elev.At(c.X, c.Y)
		} else {
			top := heap.Pop(&open).(seededCell)
			c, cz = top.p, top.z
		}

		curLabel := labels.At(c.X, c.Y)
		switch {
		case curLabel > 0:
			// Already processed; cells may be pushed more than once.
			continue
		case curLabel == 0:
			curLabel = nextLabel
			nextLabel++
			labels.Set(c.X, c.Y, curLabel)
		default: // curLabel < 0
			curLabel = -curLabel
			labels.Set(c.X, c.Y, curLabel)
		}

		for n := 1; n <= 8; n++ {
			np := grid.Neighbor8(c.X, c.Y, n)
			if np.X < 0 || np.X >= w || np.Y < 0 || np.Y >= h {
				continue
			}
			if s.Elev.IsNodata(np.X, np.Y) {
				continue
			}
			nLabelRaw := labels.At(np.X, np.Y)
			if nLabelRaw != 0 {
				otherLabel := nLabelRaw
				if otherLabel < 0 {
					otherLabel = -otherLabel
				}
				if otherLabel != curLabel {
					weight := max32(s.Elev.At(np.X, np.Y), cz)
					g.Relax(curLabel, otherLabel, weight)
				}
				continue
			}

			// Unassigned: inherit curLabel, carried negative until dequeued.
			labels.Set(np.X, np.Y, -curLabel)

			if s.Elev.At(np.X, np.Y) <= cz {
				s.Elev.Set(np.X, np.Y, cz)
				pit = append(pit, np)
			} else {
				push(np, s.Elev.At(np.X, np.Y))
			}
		}
	}

	g.AddVertex(ExteriorLabel)
	return &Result{Elev: s.Elev, Labels: labels, Graph: g}, nil
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
