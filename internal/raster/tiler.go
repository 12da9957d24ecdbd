package raster

import (
	"context"
	"math"

	"github.com/geolumen/nightlights/internal/domain"
)

// Tiler turns a masked raster into a tile pyramid on disk, laid out as
// {outDir}/{z}/{x}/{y}.png. Implementations may shell out to an external
// tool or render natively; the engine does not care which.
type Tiler interface {
	RasterToTilePyramid(ctx context.Context, rasterPath, outDir string, minZoom, maxZoom int) error
}

const tileSize = 256

// tileRange is the inclusive XYZ tile span covering a geographic extent at
// one zoom level.
type tileRange struct {
	minX, maxX int
	minY, maxY int
}

func tilesCovering(bounds domain.BoundingBox, zoom int) tileRange {
	n := 1 << zoom
	minX, maxY := tileIndex(domain.Point{Lon: bounds.MinX, Lat: bounds.MinY}, zoom)
	maxX, minY := tileIndex(domain.Point{Lon: bounds.MaxX, Lat: bounds.MaxY}, zoom)
	return tileRange{
		minX: clamp(minX, 0, n-1),
		maxX: clamp(maxX, 0, n-1),
		minY: clamp(minY, 0, n-1),
		maxY: clamp(maxY, 0, n-1),
	}
}

// tileIndex maps a coordinate to XYZ tile indices (slippy-map scheme,
// y grows southward).
func tileIndex(pt domain.Point, zoom int) (x, y int) {
	n := float64(uint(1) << uint(zoom))
	x = int(math.Floor((pt.Lon + 180) / 360 * n))
	latRad := pt.Lat * math.Pi / 180
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	return x, y
}

// tilePixelCoord returns the geographic coordinate of a pixel inside a tile.
func tilePixelCoord(tileX, tileY, zoom, px, py int) domain.Point {
	n := float64(uint(1) << uint(zoom))
	fx := (float64(tileX) + (float64(px)+0.5)/tileSize) / n
	fy := (float64(tileY) + (float64(py)+0.5)/tileSize) / n
	lon := fx*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*fy))) * 180 / math.Pi
	return domain.Point{Lon: lon, Lat: lat}
}
