package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/storage"
)

type TimeseriesService struct {
	areas          repository.AreasRepository
	timeseries     repository.TimeseriesRepository
	cache          cache.TimeseriesCache
	publicEndpoint string
}

func NewTimeseriesService(
	areas repository.AreasRepository,
	timeseries repository.TimeseriesRepository,
	timeseriesCache cache.TimeseriesCache,
	publicEndpoint string,
) *TimeseriesService {
	return &TimeseriesService{
		areas:          areas,
		timeseries:     timeseries,
		cache:          timeseriesCache,
		publicEndpoint: strings.TrimSuffix(publicEndpoint, "/"),
	}
}

// ListByArea returns the area's monthly records ordered by month, serving
// from the cache when possible. Tile patterns are rewritten to URLs a map
// client can load directly.
func (s *TimeseriesService) ListByArea(
	ctx context.Context,
	areaID int64,
	from, to *time.Time,
) ([]domain.TimeseriesRecord, error) {
	if _, err := s.areas.GetArea(ctx, areaID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, areaID, from, to); ok {
			return s.publishTilePatterns(cached), nil
		}
	}

	stored, err := s.timeseries.ListByArea(ctx, areaID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list timeseries for area %d: %w", areaID, err)
	}
	records := make([]domain.TimeseriesRecord, len(stored))
	for i, record := range stored {
		records[i] = *record
	}

	if s.cache != nil {
		s.cache.Set(ctx, areaID, from, to, records)
	}
	return s.publishTilePatterns(records), nil
}

// publishTilePatterns swaps the internal tiles bucket prefix for the public
// storage endpoint. Cached entries keep the internal form so an endpoint
// change never requires a cache flush.
func (s *TimeseriesService) publishTilePatterns(records []domain.TimeseriesRecord) []domain.TimeseriesRecord {
	if s.publicEndpoint == "" {
		return records
	}
	published := make([]domain.TimeseriesRecord, len(records))
	for i, record := range records {
		prefix := storage.BucketTiles + "/"
		if strings.HasPrefix(record.TilePathPattern, prefix) {
			record.TilePathPattern = s.publicEndpoint + "/" + record.TilePathPattern
		}
		published[i] = record
	}
	return published
}
