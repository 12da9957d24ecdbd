package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// NativeTiler renders the tile pyramid in process: the raster is reduced to
// the 8-bit scaled representation and sampled nearest-neighbor into 256px
// grayscale PNG tiles. Nodata pixels come out transparent. No external
// tooling required, which also keeps the test suite self-contained.
type NativeTiler struct{}

func (NativeTiler) RasterToTilePyramid(ctx context.Context, rasterPath, outDir string, minZoom, maxZoom int) error {
	src, err := DecodeGeoTIFF(rasterPath)
	if err != nil {
		return fmt.Errorf("native tiler: %w", err)
	}

	// Reduced-precision raster shared by all zoom levels.
	scaled := New(src.Width, src.Height, src.Bounds)
	for i, value := range src.ScaleToBytes() {
		scaled.Pixels[i] = float64(value)
	}

	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		coverage := tilesCovering(src.Bounds, zoom)
		for tileX := coverage.minX; tileX <= coverage.maxX; tileX++ {
			for tileY := coverage.minY; tileY <= coverage.maxY; tileY++ {
				if err := renderTile(scaled, outDir, zoom, tileX, tileY); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func renderTile(scaled *Raster, outDir string, zoom, tileX, tileY int) error {
	img := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	empty := true
	for py := 0; py < tileSize; py++ {
		for px := 0; px < tileSize; px++ {
			value := scaled.Sample(tilePixelCoord(tileX, tileY, zoom, px, py))
			if value <= 0 {
				continue
			}
			gray := uint8(value)
			img.SetNRGBA(px, py, color.NRGBA{R: gray, G: gray, B: gray, A: 255})
			empty = false
		}
	}
	// Tiles with no data are skipped entirely, matching external tilers.
	if empty {
		return nil
	}

	dir := filepath.Join(outDir, fmt.Sprintf("%d/%d", zoom, tileX))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d.png", tileY)))
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, img)
}
