// Package acquisition obtains monthly composite rasters from the upstream
// imagery provider and stages them in object storage for processing.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

var (
	// ErrUnavailable reports that no acquisition provider is configured or
	// reachable.
	ErrUnavailable = errors.New("acquisition provider unavailable")
	// ErrExportFailed reports a provider-side export failure for one month.
	ErrExportFailed = errors.New("acquisition export failed")
)

// Client exports one monthly raster for an area and returns the object-store
// reference where the raster was staged.
type Client interface {
	ExportForArea(ctx context.Context, areaID int64, geom domain.Polygon, year int, month time.Month) (string, error)
}

// rasterKey is the staging location inside the rasters bucket.
func rasterKey(areaID int64, year int, month time.Month) string {
	return fmt.Sprintf("%d/%s/viirs_ntl.tif", areaID, domain.MonthKey(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)))
}
