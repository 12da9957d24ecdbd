package raster

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// GDALTiler shells out to the GDAL toolchain: gdal_translate reduces the
// raster to 8-bit, gdal2tiles renders the pyramid. This is the production
// tiler; NativeTiler substitutes where GDAL is not installed.
type GDALTiler struct {
	// TranslateBin and TilesBin override the executable names, mainly for
	// tests. Empty means the standard names on PATH.
	TranslateBin string
	TilesBin     string
	Processes    int
	Logger       *log.Logger
}

func (t GDALTiler) RasterToTilePyramid(ctx context.Context, rasterPath, outDir string, minZoom, maxZoom int) error {
	translate := t.TranslateBin
	if translate == "" {
		translate = "gdal_translate"
	}
	tiles := t.TilesBin
	if tiles == "" {
		tiles = "gdal2tiles.py"
	}
	processes := t.Processes
	if processes <= 0 {
		processes = 4
	}

	// gdal2tiles requires 8-bit input; fall back to the source raster when
	// the conversion fails rather than aborting the pyramid.
	eightBitPath := filepath.Join(filepath.Dir(rasterPath), "8bit_"+filepath.Base(rasterPath))
	cmd := exec.CommandContext(ctx, translate, "-ot", "Byte", "-scale", rasterPath, eightBitPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		if t.Logger != nil {
			t.Logger.Printf("gdal_translate failed, tiling original raster: %v (%s)", err, truncate(output))
		}
		eightBitPath = rasterPath
	} else if info, err := os.Stat(eightBitPath); err != nil || info.Size() == 0 {
		eightBitPath = rasterPath
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	cmd = exec.CommandContext(ctx, tiles,
		"--zoom", fmt.Sprintf("%d-%d", minZoom, maxZoom),
		"--webviewer", "none",
		"--resampling", "average",
		"--processes", strconv.Itoa(processes),
		"--xyz",
		eightBitPath,
		outDir,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gdal2tiles: %w (%s)", err, truncate(output))
	}
	return nil
}

func truncate(output []byte) string {
	const limit = 500
	if len(output) > limit {
		return string(output[:limit]) + "..."
	}
	return string(output)
}
