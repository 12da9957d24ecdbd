package raster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/storage"
)

// Engine runs the full processing pass for one (area, month): resolve the
// source raster, mask to the area boundary, compute statistics, build and
// upload the tile pyramid, upload the masked artifact.
//
// Process never returns an error. Every failure path degrades into a result
// the caller can persist, with the failure annotated in the result itself.
type Engine struct {
	store   storage.ObjectStore
	tiler   Tiler
	minZoom int
	maxZoom int
	logger  *log.Logger
}

type EngineConfig struct {
	MinZoom int
	MaxZoom int
}

func NewEngine(store storage.ObjectStore, tiler Tiler, cfg EngineConfig, logger *log.Logger) *Engine {
	if cfg.MinZoom <= 0 {
		cfg.MinZoom = 8
	}
	if cfg.MaxZoom < cfg.MinZoom {
		cfg.MaxZoom = 14
	}
	return &Engine{
		store:   store,
		tiler:   tiler,
		minZoom: cfg.MinZoom,
		maxZoom: cfg.MaxZoom,
		logger:  logger,
	}
}

func (e *Engine) Process(
	ctx context.Context,
	area *domain.Area,
	month time.Time,
	rasterRef string,
	threshold float64,
) domain.ProcessingResult {
	result := domain.ProcessingResult{
		Outcome:     domain.OutcomeOK,
		MinZoom:     e.minZoom,
		MaxZoom:     e.maxZoom,
		Threshold:   threshold,
		ProcessedAt: time.Now().UTC(),
	}
	prefix := fmt.Sprintf("%d/%s", area.ID, domain.MonthKey(month))
	result.TilePathPattern = storage.BucketTiles + "/" + prefix + "/{z}/{x}/{y}.png"
	result.RasterPath = storage.Ref(storage.BucketRasters, prefix+"/masked.tif")

	tmpDir, err := os.MkdirTemp("", "nightlights-*")
	if err != nil {
		return e.failed(result, area, month, fmt.Errorf("create working dir: %w", err))
	}
	// The working directory is scoped to this invocation and removed on
	// every exit path.
	defer os.RemoveAll(tmpDir)

	src := e.resolveRaster(ctx, area, rasterRef, tmpDir, &result)

	masked, err := MaskToPolygon(src, area.Geometry)
	if err != nil {
		return e.failed(result, area, month, fmt.Errorf("mask raster: %w", err))
	}
	result.Stats = ComputeStats(masked, threshold)
	result.BoundingBox = src.Bounds

	maskedPath := filepath.Join(tmpDir, "masked.tif")
	if err := EncodeGeoTIFF(masked, maskedPath); err != nil {
		return e.failed(result, area, month, fmt.Errorf("write masked raster: %w", err))
	}

	tilesDir := filepath.Join(tmpDir, "tiles")
	if err := e.tiler.RasterToTilePyramid(ctx, maskedPath, tilesDir, e.minZoom, e.maxZoom); err != nil {
		// Zero tiles is acceptable; statistics are still worth persisting.
		e.logf("tiling failed for area %d %s: %v", area.ID, domain.MonthKey(month), err)
	}
	result.TilesUploaded = e.uploadTiles(ctx, tilesDir, prefix)

	if _, err := e.store.Upload(ctx, maskedPath, prefix+"/masked.tif", storage.BucketRasters, "image/tiff"); err != nil {
		e.logf("masked raster upload failed for area %d %s: %v", area.ID, domain.MonthKey(month), err)
	}

	return result
}

// resolveRaster downloads and decodes the source raster. Anything that
// prevents getting real pixels swaps in the synthetic placeholder and flags
// the result as a fallback.
func (e *Engine) resolveRaster(
	ctx context.Context,
	area *domain.Area,
	rasterRef string,
	tmpDir string,
	result *domain.ProcessingResult,
) *Raster {
	localPath := rasterRef
	if bucket, key, ok := storage.SplitRef(rasterRef); ok && (bucket == storage.BucketRasters || bucket == storage.BucketTiles) {
		downloaded, err := e.store.Download(ctx, key, filepath.Join(tmpDir, "source.tif"), bucket)
		if err != nil {
			e.logf("raster download %s failed, using synthetic fallback: %v", rasterRef, err)
			return e.fallbackRaster(area, result, err)
		}
		localPath = downloaded
	}

	src, err := DecodeGeoTIFF(localPath)
	if err != nil {
		e.logf("raster %s not decodable, using synthetic fallback: %v", rasterRef, err)
		return e.fallbackRaster(area, result, err)
	}
	return src
}

func (e *Engine) fallbackRaster(area *domain.Area, result *domain.ProcessingResult, cause error) *Raster {
	result.Outcome = domain.OutcomeDegraded
	result.FallbackRaster = true
	result.ErrorMessage = cause.Error()
	return Synthetic(area.Geometry.Bounds(), 10, 10)
}

// failed finalizes a result when masking or artifact writing broke down.
// Partial statistics computed so far are kept; the raster reference points
// at the deterministic error marker.
func (e *Engine) failed(
	result domain.ProcessingResult,
	area *domain.Area,
	month time.Time,
	cause error,
) domain.ProcessingResult {
	e.logf("processing failed for area %d %s: %v", area.ID, domain.MonthKey(month), cause)
	result.Outcome = domain.OutcomeFailed
	result.ErrorMessage = cause.Error()
	result.RasterPath = storage.Ref(
		storage.BucketRasters,
		fmt.Sprintf("%d/%s/error.tif", area.ID, domain.MonthKey(month)),
	)
	return result
}

// uploadTiles pushes every generated tile individually; a failed upload is
// logged and does not stop the remaining tiles.
func (e *Engine) uploadTiles(ctx context.Context, tilesDir, prefix string) int {
	uploaded := 0
	walkErr := filepath.WalkDir(tilesDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			return nil
		}
		relative, err := filepath.Rel(tilesDir, path)
		if err != nil {
			return nil
		}
		key := prefix + "/" + filepath.ToSlash(relative)
		if _, err := e.store.Upload(ctx, path, key, storage.BucketTiles, "image/png"); err != nil {
			e.logf("tile upload %s failed: %v", key, err)
			return nil
		}
		uploaded++
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		e.logf("tile walk failed: %v", walkErr)
	}
	return uploaded
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
