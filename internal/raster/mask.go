package raster

import (
	"errors"
	"math"

	"github.com/geolumen/nightlights/internal/domain"
)

var ErrNoOverlap = errors.New("polygon does not overlap raster")

// MaskToPolygon crops the raster to the polygon's bounding box and zeroes
// every pixel whose center falls outside the polygon. Values <= 0 are
// treated as nodata as well. The crop snaps outward to the source pixel
// grid so pixels touched by the boundary are kept.
func MaskToPolygon(src *Raster, polygon domain.Polygon) (*Raster, error) {
	if err := polygon.Validate(); err != nil {
		return nil, err
	}

	overlap := polygon.Bounds().Intersect(src.Bounds)
	if overlap.IsEmpty() {
		return nil, ErrNoOverlap
	}

	pw, ph := src.PixelWidth(), src.PixelHeight()
	colStart := clamp(int(math.Floor((overlap.MinX-src.Bounds.MinX)/pw)), 0, src.Width-1)
	colEnd := clamp(int(math.Ceil((overlap.MaxX-src.Bounds.MinX)/pw)), colStart+1, src.Width)
	rowStart := clamp(int(math.Floor((src.Bounds.MaxY-overlap.MaxY)/ph)), 0, src.Height-1)
	rowEnd := clamp(int(math.Ceil((src.Bounds.MaxY-overlap.MinY)/ph)), rowStart+1, src.Height)

	width := colEnd - colStart
	height := rowEnd - rowStart
	masked := New(width, height, domain.BoundingBox{
		MinX: src.Bounds.MinX + float64(colStart)*pw,
		MaxX: src.Bounds.MinX + float64(colEnd)*pw,
		MinY: src.Bounds.MaxY - float64(rowEnd)*ph,
		MaxY: src.Bounds.MaxY - float64(rowStart)*ph,
	})

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			value := src.At(colStart+col, rowStart+row)
			if value <= 0 {
				continue
			}
			if polygon.Contains(masked.Center(col, row)) {
				masked.Set(col, row, value)
			}
		}
	}
	return masked, nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
