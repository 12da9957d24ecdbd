// Package cache holds the read-through cache for timeseries queries. The API
// serves month series from here when it can; the executor invalidates an
// area's entries whenever a new month lands.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

// TimeseriesCache caches query results keyed by (area, month range). A miss
// is never an error; callers fall through to the repository.
type TimeseriesCache interface {
	Get(ctx context.Context, areaID int64, from, to *time.Time) ([]domain.TimeseriesRecord, bool)
	Set(ctx context.Context, areaID int64, from, to *time.Time, records []domain.TimeseriesRecord)
	InvalidateArea(ctx context.Context, areaID int64)
}

func areaPrefix(areaID int64) string {
	return fmt.Sprintf("timeseries:%d:", areaID)
}

func rangeKey(areaID int64, from, to *time.Time) string {
	return areaPrefix(areaID) + monthBound(from) + ":" + monthBound(to)
}

func monthBound(t *time.Time) string {
	if t == nil {
		return "open"
	}
	return domain.MonthKey(*t)
}
