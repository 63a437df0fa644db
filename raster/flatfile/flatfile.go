// Package flatfile is a simple raster.Dataset/Writer backend: a dense
// row-major float32 binary payload plus a JSON sidecar holding the
// dataset's width, height, nodata, geotransform, and projection.
package flatfile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/openterrain/distflood/errs"
	"github.com/openterrain/distflood/grid"
)

// meta is the JSON sidecar format. DataFile is relative to the sidecar's
// own directory, so a .dem.json input and its companion .dem.bin travel
// together beside each other.
type meta struct {
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Nodata       float32    `json:"nodata"`
	GeoTransform [6]float64 `json:"geotransform"`
	Projection   string     `json:"projection"`
	DataFile     string     `json:"data"`
}

// Dataset is a flatfile-backed raster.Dataset: the sidecar is parsed
// eagerly, rows are read lazily from the binary payload on demand.
type Dataset struct {
	meta meta
	path string // path to the binary payload
}

// Open reads the JSON sidecar at path and returns a Dataset over its
// companion binary payload. The binary file is not opened until the
// first ReadRows call.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.InputError{Err: err}
	}
	defer f.Close()

	var m meta
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, &errs.InputError{Err: fmt.Errorf("flatfile: parse %s: %w", path, err)}
	}
	if m.Width <= 0 || m.Height <= 0 {
		return nil, &errs.InputError{Err: fmt.Errorf("flatfile: %s has non-positive dimensions %dx%d", path, m.Width, m.Height)}
	}
	if m.DataFile == "" {
		return nil, &errs.InputError{Err: fmt.Errorf("flatfile: %s names no data file", path)}
	}
	return &Dataset{meta: m, path: filepath.Join(filepath.Dir(path), m.DataFile)}, nil
}

func (d *Dataset) Bounds() (width, height int, nodata float32) {
	return d.meta.Width, d.meta.Height, d.meta.Nodata
}

func (d *Dataset) GeoTransform() [6]float64 { return d.meta.GeoTransform }

func (d *Dataset) Projection() string { return d.meta.Projection }

// ReadRows reads the half-open row range [y0, y1).
func (d *Dataset) ReadRows(y0, y1 int) (*grid.Dense, error) {
	if y0 < 0 || y1 > d.meta.Height || y0 >= y1 {
		return nil, &errs.InputError{Err: fmt.Errorf("flatfile: row range [%d,%d) out of bounds for height %d", y0, y1, d.meta.Height)}
	}
	f, err := os.Open(d.path)
	if err != nil {
		return nil, &errs.InputError{Err: err}
	}
	defer f.Close()

	w := d.meta.Width
	rows := y1 - y0
	out := grid.NewDense(w, rows, d.meta.Nodata)

	offset := int64(y0) * int64(w) * 4
	if _, err := f.Seek(offset, 0); err != nil {
		return nil, &errs.ResourceError{Err: err}
	}
	buf := make([]byte, w*4)
	for y := 0; y < rows; y++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, &errs.ResourceError{Err: fmt.Errorf("flatfile: read row %d of %s: %w", y0+y, d.path, err)}
		}
		row := out.Row(y)
		for x := 0; x < w; x++ {
			bits := binary.LittleEndian.Uint32(buf[x*4:])
			row[x] = math.Float32frombits(bits)
		}
	}
	return out, nil
}

// Writer writes a flatfile Dataset: the sidecar is written once by
// Create, rows are written to the binary payload as they arrive.
type Writer struct {
	f     *os.File
	width int
}

// Create writes the JSON sidecar at path and opens (truncating) its
// companion binary payload for writing width*height float32 values.
// dataFile is the binary payload's name, written as-is into the
// sidecar's "data" field and resolved relative to path's directory.
func Create(path, dataFile string, width, height int, nodata float32, gt [6]float64, projection string) (*Writer, error) {
	m := meta{
		Width:        width,
		Height:       height,
		Nodata:       nodata,
		GeoTransform: gt,
		Projection:   projection,
		DataFile:     dataFile,
	}
	sidecar, err := os.Create(path)
	if err != nil {
		return nil, &errs.ResourceError{Err: err}
	}
	defer sidecar.Close()
	if err := json.NewEncoder(sidecar).Encode(&m); err != nil {
		return nil, &errs.ResourceError{Err: fmt.Errorf("flatfile: write sidecar %s: %w", path, err)}
	}

	dataPath := filepath.Join(filepath.Dir(path), dataFile)
	f, err := os.Create(dataPath)
	if err != nil {
		return nil, &errs.ResourceError{Err: err}
	}
	if err := f.Truncate(int64(width) * int64(height) * 4); err != nil {
		f.Close()
		return nil, &errs.ResourceError{Err: err}
	}
	return &Writer{f: f, width: width}, nil
}

// WriteRows writes rows starting at row y0.
func (w *Writer) WriteRows(y0 int, rows *grid.Dense) error {
	if rows.W != w.width {
		return &errs.LogicError{Err: fmt.Errorf("flatfile: width mismatch: writer wants %d, got %d", w.width, rows.W)}
	}
	offset := int64(y0) * int64(w.width) * 4
	if _, err := w.f.Seek(offset, 0); err != nil {
		return &errs.ResourceError{Err: err}
	}
	buf := make([]byte, w.width*4)
	for y := 0; y < rows.H; y++ {
		row := rows.Row(y)
		for x, z := range row {
			binary.LittleEndian.PutUint32(buf[x*4:], math.Float32bits(z))
		}
		if _, err := w.f.Write(buf); err != nil {
			return &errs.ResourceError{Err: fmt.Errorf("flatfile: write row %d: %w", y0+y, err)}
		}
	}
	return nil
}

// Close flushes and closes the binary payload.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return &errs.ResourceError{Err: err}
	}
	return nil
}
