package acquisition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/storage"
)

// SyntheticClient renders a small placeholder raster over the area's bounding
// box instead of calling the imagery provider. It backs local development when
// no credentials are configured, so export jobs still flow end to end.
type SyntheticClient struct {
	store  storage.ObjectStore
	width  int
	height int
}

func NewSyntheticClient(store storage.ObjectStore) *SyntheticClient {
	return &SyntheticClient{store: store, width: 32, height: 32}
}

func (c *SyntheticClient) ExportForArea(
	ctx context.Context,
	areaID int64,
	geom domain.Polygon,
	year int,
	month time.Month,
) (string, error) {
	if err := geom.Validate(); err != nil {
		return "", err
	}

	tmpDir, err := os.MkdirTemp("", "acquisition-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, "synthetic.tif")
	synthetic := raster.Synthetic(geom.Bounds(), c.width, c.height)
	if err := raster.EncodeGeoTIFF(synthetic, localPath); err != nil {
		return "", fmt.Errorf("encode synthetic raster: %w", err)
	}

	key := rasterKey(areaID, year, month)
	ref, err := c.store.Upload(ctx, localPath, key, storage.BucketRasters, "image/tiff")
	if err != nil {
		return "", fmt.Errorf("stage synthetic raster: %w", err)
	}
	return ref, nil
}
