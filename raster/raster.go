// Package raster defines the narrow interface the rest of the module
// uses to read and write elevation data: the same handful of fields any
// GDAL-backed dataset exposes (dimensions, nodata, geotransform,
// projection) alongside the pixel buffer. Only cmd/distflood imports
// this package directly; flood and resolver work
// entirely in terms of grid.Dense and never see a Dataset or Writer.
package raster

import "github.com/openterrain/distflood/grid"

// Dataset is a read-only elevation source.
type Dataset interface {
	// Bounds returns the full raster's dimensions and nodata sentinel.
	Bounds() (width, height int, nodata float32)
	// GeoTransform returns GDAL's six-coefficient affine transform
	// (origin x, pixel width, row rotation, origin y, column rotation,
	// pixel height), unchanged from whatever produced the dataset.
	GeoTransform() [6]float64
	// Projection returns the WKT (or equivalent) projection string.
	Projection() string
	// ReadRows reads the half-open row range [y0, y1) into a Dense
	// buffer of width Bounds().width and height y1-y0.
	ReadRows(y0, y1 int) (*grid.Dense, error)
}

// Writer is a sink for elevation data produced by the apply stage.
type Writer interface {
	// WriteRows writes rows starting at row y0 of the output raster.
	WriteRows(y0 int, rows *grid.Dense) error
	// Close flushes and releases any resources held by the Writer.
	Close() error
}

// ShiftedGeoTransform returns gt with its origin northing (index 3)
// shifted down by rowOffset rows, for a strip or output file that
// begins partway through the parent raster.
func ShiftedGeoTransform(gt [6]float64, rowOffset int) [6]float64 {
	shifted := gt
	shifted[3] = gt[3] + float64(rowOffset)*gt[5]
	return shifted
}
