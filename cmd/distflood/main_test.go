package main

import (
	"path/filepath"
	"testing"

	"github.com/openterrain/distflood/grid"
	"github.com/openterrain/distflood/raster/flatfile"
)

// ringBasinRows builds a DEM with two sealed rooms at different ridge
// heights (15 and 20) separated from the outer border (10) by a moat,
// and from each other by more moat. Each room's floor sits well below
// its own ridge, so a correct solve must raise each room to its own
// ridge height rather than to the border's or to one uniform level --
// a stitching bug that let one room leak into the other's fill level
// would show up as a mismatch against wantRows.
func ringBasinRows() [][]float32 {
	const b = 10 // border/moat
	row := func(vals ...float32) []float32 { return vals }
	return [][]float32{
		row(b, b, b, b, b, b, b),       // row0: top border
		row(b, b, b, b, b, b, b),       // row1: moat
		row(b, 15, 15, 15, 15, 15, b),  // row2: room A ridge (top)
		row(b, 15, 2, 2, 2, 15, b),     // row3: room A floor
		row(b, 15, 15, 15, 15, 15, b),  // row4: room A ridge (bottom)
		row(b, b, b, b, b, b, b),       // row5: moat
		row(b, 20, 20, 20, 20, 20, b),  // row6: room B ridge (top)
		row(b, 20, 5, 5, 5, 20, b),     // row7: room B floor
		row(b, 20, 20, 20, 20, 20, b),  // row8: room B ridge (bottom)
		row(b, b, b, b, b, b, b),       // row9: moat
		row(b, b, b, b, b, b, b),       // row10: moat
		row(b, b, b, b, b, b, b),       // row11: moat
		row(b, b, b, b, b, b, b),       // row12: bottom border
	}
}

// wantRingBasinRows is ringBasinRows after a correct solve: each room
// flattens to its own ridge height, everything else is unchanged.
func wantRingBasinRows() [][]float32 {
	rows := ringBasinRows()
	for _, y := range []int{2, 3, 4} {
		for x := 1; x <= 5; x++ {
			rows[y][x] = 15
		}
	}
	for _, y := range []int{6, 7, 8} {
		for x := 1; x <= 5; x++ {
			rows[y][x] = 20
		}
	}
	return rows
}

func writeDEM(t *testing.T, path string, rows [][]float32) {
	t.Helper()
	h := len(rows)
	w := len(rows[0])
	writer, err := flatfile.Create(path, "data.bin", w, h, -9999, [6]float64{0, 1, 0, 0, 0, -1}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dense := grid.NewDense(w, h, -9999)
	for y, r := range rows {
		for x, z := range r {
			dense.Set(x, y, z)
		}
	}
	if err := writer.WriteRows(0, dense); err != nil {
		t.Fatalf("WriteRows: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// readMerged reassembles the full raster from the per-strip output
// files runEmbedded(inputPath, workers) wrote, in strip (row) order.
func readMerged(t *testing.T, inputPath string, workers, width, height int) [][]float32 {
	t.Helper()
	bounds, err := splitStrips(height, workers)
	if err != nil {
		t.Fatalf("splitStrips: %v", err)
	}
	out := make([][]float32, 0, height)
	for rank, b := range bounds {
		sidecar, _ := outputPaths(inputPath, rank+1)
		ds, err := flatfile.Open(sidecar)
		if err != nil {
			t.Fatalf("Open strip %d output: %v", rank+1, err)
		}
		rows, err := ds.ReadRows(0, b.r1-b.r0)
		if err != nil {
			t.Fatalf("ReadRows strip %d: %v", rank+1, err)
		}
		for y := 0; y < rows.H; y++ {
			out = append(out, append([]float32(nil), rows.Row(y)...))
		}
	}
	return out
}

func assertRowsEqual(t *testing.T, got, want [][]float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("row count = %d, want %d", len(got), len(want))
	}
	for y := range want {
		if len(got[y]) != len(want[y]) {
			t.Fatalf("row %d width = %d, want %d", y, len(got[y]), len(want[y]))
		}
		for x := range want[y] {
			if got[y][x] != want[y][x] {
				t.Errorf("(%d,%d) = %v, want %v", x, y, got[y][x], want[y][x])
			}
		}
	}
}

func TestRunEmbedded_FillsEachRoomToItsOwnRidge(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "basins.dem.json")
	rows := ringBasinRows()
	writeDEM(t, input, rows)

	if err := runEmbedded(input, 4); err != nil {
		t.Fatalf("runEmbedded: %v", err)
	}
	got := readMerged(t, input, 4, len(rows[0]), len(rows))
	assertRowsEqual(t, got, wantRingBasinRows())
}

// TestRunEmbedded_DeterministicAcrossWorkerCounts exercises invariant 8
// (spec.md §8): the same DEM solved with a different number of strips
// must produce identical output, even when a strip boundary falls
// inside a room (workers=4 splits both rooms across two strips; see
// splitStrips(13,4) = heights 4,3,3,3, boundaries at rows 4, 7 and 10;
// the ones at 4 and 7 cut through the rooms).
func TestRunEmbedded_DeterministicAcrossWorkerCounts(t *testing.T) {
	rows := ringBasinRows()
	width, height := len(rows[0]), len(rows)

	dir1 := t.TempDir()
	in1 := filepath.Join(dir1, "basins.dem.json")
	writeDEM(t, in1, rows)
	if err := runEmbedded(in1, 1); err != nil {
		t.Fatalf("runEmbedded(workers=1): %v", err)
	}
	want := readMerged(t, in1, 1, width, height)

	dir4 := t.TempDir()
	in4 := filepath.Join(dir4, "basins.dem.json")
	writeDEM(t, in4, rows)
	if err := runEmbedded(in4, 4); err != nil {
		t.Fatalf("runEmbedded(workers=4): %v", err)
	}
	got := readMerged(t, in4, 4, width, height)

	assertRowsEqual(t, got, want)
}

// TestRunEmbedded_IsIdempotent exercises invariant 7 (spec.md §8):
// solving an already-solved DEM a second time must not change it.
func TestRunEmbedded_IsIdempotent(t *testing.T) {
	rows := ringBasinRows()
	width, height := len(rows[0]), len(rows)

	dir := t.TempDir()
	input := filepath.Join(dir, "basins.dem.json")
	writeDEM(t, input, rows)
	if err := runEmbedded(input, 3); err != nil {
		t.Fatalf("runEmbedded: %v", err)
	}
	solved := readMerged(t, input, 3, width, height)

	dir2 := t.TempDir()
	input2 := filepath.Join(dir2, "basins.dem.json")
	writeDEM(t, input2, solved)
	if err := runEmbedded(input2, 3); err != nil {
		t.Fatalf("runEmbedded (second pass): %v", err)
	}
	again := readMerged(t, input2, 3, width, height)

	assertRowsEqual(t, again, solved)
}
