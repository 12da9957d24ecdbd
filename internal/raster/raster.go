// Package raster implements the processing engine for monthly brightness
// rasters: masking to an area boundary, zonal statistics, and tile pyramid
// generation.
package raster

import (
	"math"

	"github.com/geolumen/nightlights/internal/domain"
)

// Raster is a single-band geographic grid in EPSG:4326. Pixels are stored
// row-major with row 0 at the northern edge. Zero is the nodata sentinel.
type Raster struct {
	Width  int
	Height int
	Bounds domain.BoundingBox
	Pixels []float64
}

func New(width, height int, bounds domain.BoundingBox) *Raster {
	return &Raster{
		Width:  width,
		Height: height,
		Bounds: bounds,
		Pixels: make([]float64, width*height),
	}
}

func (r *Raster) At(col, row int) float64 {
	return r.Pixels[row*r.Width+col]
}

func (r *Raster) Set(col, row int, value float64) {
	r.Pixels[row*r.Width+col] = value
}

// PixelWidth is the longitude span of one pixel.
func (r *Raster) PixelWidth() float64 {
	return r.Bounds.Width() / float64(r.Width)
}

// PixelHeight is the latitude span of one pixel.
func (r *Raster) PixelHeight() float64 {
	return r.Bounds.Height() / float64(r.Height)
}

// Center returns the geographic coordinate of a pixel center.
func (r *Raster) Center(col, row int) domain.Point {
	return domain.Point{
		Lon: r.Bounds.MinX + (float64(col)+0.5)*r.PixelWidth(),
		Lat: r.Bounds.MaxY - (float64(row)+0.5)*r.PixelHeight(),
	}
}

// Sample returns the value at a geographic coordinate, nearest-neighbor,
// or 0 outside the raster.
func (r *Raster) Sample(pt domain.Point) float64 {
	col := int(math.Floor((pt.Lon - r.Bounds.MinX) / r.PixelWidth()))
	row := int(math.Floor((r.Bounds.MaxY - pt.Lat) / r.PixelHeight()))
	if col < 0 || col >= r.Width || row < 0 || row >= r.Height {
		return 0
	}
	return r.At(col, row)
}

// MaxValue returns the largest pixel value, or 0 for an all-nodata raster.
func (r *Raster) MaxValue() float64 {
	max := 0.0
	for _, value := range r.Pixels {
		if value > max {
			max = value
		}
	}
	return max
}

// ScaleToBytes produces the reduced-precision representation used for
// tiling: values scaled linearly into 1..255, nodata kept at 0.
func (r *Raster) ScaleToBytes() []uint8 {
	scaled := make([]uint8, len(r.Pixels))
	max := r.MaxValue()
	if max <= 0 {
		return scaled
	}
	for i, value := range r.Pixels {
		if value <= 0 {
			continue
		}
		byteValue := math.Round(value / max * 254)
		scaled[i] = uint8(byteValue) + 1
	}
	return scaled
}

// Synthetic builds a placeholder raster over the given bounds with small
// nonzero values. Used as the degraded-mode fallback when a source raster
// cannot be decoded, so downstream stages still produce a low-confidence
// result instead of aborting.
func Synthetic(bounds domain.BoundingBox, width, height int) *Raster {
	if bounds.IsEmpty() {
		bounds = domain.BoundingBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	}
	r := New(width, height, bounds)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			// Deterministic low-brightness gradient, always > 0.
			r.Set(col, row, 0.1+float64((col+row)%10)*0.05)
		}
	}
	return r
}
