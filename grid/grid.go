// Package grid holds the dense 2D containers shared by the strip engine and
// the coordinator: elevation buffers, label buffers, and the small value
// types used to index them.
package grid

import "fmt"

// Point is a grid coordinate. X is the column, Y is the row.
type Point struct {
	X, Y int
}

// Cell is a sample at a Point: an elevation (or nodata) value.
type Cell struct {
	P Point
	Z float32
}

// Dense is a row-major elevation buffer of fixed width and height.
// It is the in-memory representation of a Strip's pixels.
type Dense struct {
	W, H   int
	Nodata float32
	Z      []float32
}

// NewDense allocates a W*H buffer filled with nodata.
func NewDense(w, h int, nodata float32) *Dense {
	z := make([]float32, w*h)
	for i := range z {
		z[i] = nodata
	}
	return &Dense{W: w, H: h, Nodata: nodata, Z: z}
}

func (d *Dense) idx(x, y int) int {
	if x < 0 || x >= d.W || y < 0 || y >= d.H {
		panic(fmt.Sprintf("grid: index (%d,%d) out of bounds for %dx%d", x, y, d.W, d.H))
	}
	return y*d.W + x
}

// At returns the elevation at (x, y).
func (d *Dense) At(x, y int) float32 { return d.Z[d.idx(x, y)] }

// Set stores the elevation at (x, y).
func (d *Dense) Set(x, y int, z float32) { d.Z[d.idx(x, y)] = z }

// IsNodata reports whether (x, y) carries the nodata sentinel.
func (d *Dense) IsNodata(x, y int) bool { return d.Z[d.idx(x, y)] == d.Nodata }

// Row returns the backing slice for row y. Mutations through it are visible
// in d; callers must not retain it past d's lifetime.
func (d *Dense) Row(y int) []float32 {
	if y < 0 || y >= d.H {
		panic(fmt.Sprintf("grid: row %d out of bounds for height %d", y, d.H))
	}
	return d.Z[y*d.W : (y+1)*d.W]
}

// Labels is a row-major int32 label buffer the same shape as a Dense.
// Zero means "unassigned"; see package flood for the full state machine.
type Labels struct {
	W, H int
	L    []int32
}

// NewLabels allocates a zeroed W*H label buffer.
func NewLabels(w, h int) *Labels {
	return &Labels{W: w, H: h, L: make([]int32, w*h)}
}

func (l *Labels) idx(x, y int) int {
	if x < 0 || x >= l.W || y < 0 || y >= l.H {
		panic(fmt.Sprintf("grid: index (%d,%d) out of bounds for %dx%d", x, y, l.W, l.H))
	}
	return y*l.W + x
}

// At returns the raw (possibly negative or zero) label at (x, y).
func (l *Labels) At(x, y int) int32 { return l.L[l.idx(x, y)] }

// Set stores the raw label at (x, y).
func (l *Labels) Set(x, y int, v int32) { l.L[l.idx(x, y)] = v }

// Row returns the backing slice for row y.
func (l *Labels) Row(y int) []int32 {
	if y < 0 || y >= l.H {
		panic(fmt.Sprintf("grid: row %d out of bounds for height %d", y, l.H))
	}
	return l.L[y*l.W : (y+1)*l.W]
}

// Neighbors8 are the 8-connected offsets, numbered 1..8 in a fixed
// clockwise order so the strip flood fill always enumerates a cell's
// neighbours identically. (The coordinator's seam-stitch loop does not
// use this table; it walks the three cells below with its own offsets.)
//
//	234
//	105
//	876
var (
	dx8 = [9]int{0, -1, -1, 0, 1, 1, 1, 0, -1}
	dy8 = [9]int{0, 0, -1, -1, -1, 0, 1, 1, 1}
)

// Neighbor8 returns the n-th (1..8) 8-connected neighbour of (x, y).
func Neighbor8(x, y, n int) Point {
	return Point{X: x + dx8[n], Y: y + dy8[n]}
}
