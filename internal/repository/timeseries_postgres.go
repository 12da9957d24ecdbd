package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geolumen/nightlights/internal/domain"
)

type PostgresTimeseriesRepository struct {
	pool *pgxpool.Pool
}

func (r *PostgresTimeseriesRepository) Upsert(ctx context.Context, record *domain.TimeseriesRecord) error {
	boundingBox, err := json.Marshal(record.BoundingBox)
	if err != nil {
		return fmt.Errorf("encode bounding box: %w", err)
	}
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode timeseries metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO area_timeseries (
			area_id, month, mean_brightness, median_brightness, sum_brightness,
			lit_pixel_count, lit_percentage, tile_path_pattern, raster_path,
			min_zoom, max_zoom, bounding_box, meta_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (area_id, month) DO UPDATE SET
			mean_brightness = EXCLUDED.mean_brightness,
			median_brightness = EXCLUDED.median_brightness,
			sum_brightness = EXCLUDED.sum_brightness,
			lit_pixel_count = EXCLUDED.lit_pixel_count,
			lit_percentage = EXCLUDED.lit_percentage,
			tile_path_pattern = EXCLUDED.tile_path_pattern,
			raster_path = EXCLUDED.raster_path,
			min_zoom = EXCLUDED.min_zoom,
			max_zoom = EXCLUDED.max_zoom,
			bounding_box = EXCLUDED.bounding_box,
			meta_data = EXCLUDED.meta_data
	`,
		record.AreaID,
		domain.FirstOfMonth(record.Month),
		record.MeanBrightness,
		record.MedianBrightness,
		record.SumBrightness,
		record.LitPixelCount,
		record.LitPercentage,
		record.TilePathPattern,
		record.RasterPath,
		record.MinZoom,
		record.MaxZoom,
		boundingBox,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("upsert timeseries: %w", err)
	}
	return nil
}

func (r *PostgresTimeseriesRepository) ListByArea(
	ctx context.Context,
	areaID int64,
	from, to *time.Time,
) ([]*domain.TimeseriesRecord, error) {
	query := `
		SELECT area_id, month, mean_brightness, median_brightness, sum_brightness,
			lit_pixel_count, lit_percentage, tile_path_pattern, raster_path,
			min_zoom, max_zoom, bounding_box, meta_data
		FROM area_timeseries
		WHERE area_id = $1`
	args := []any{areaID}
	if from != nil {
		args = append(args, domain.FirstOfMonth(*from))
		query += fmt.Sprintf(" AND month >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND month <= $%d", len(args))
	}
	query += " ORDER BY month ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeseries: %w", err)
	}
	defer rows.Close()

	records := make([]*domain.TimeseriesRecord, 0)
	for rows.Next() {
		var (
			record      domain.TimeseriesRecord
			boundingBox []byte
			metadata    []byte
		)
		err := rows.Scan(
			&record.AreaID,
			&record.Month,
			&record.MeanBrightness,
			&record.MedianBrightness,
			&record.SumBrightness,
			&record.LitPixelCount,
			&record.LitPercentage,
			&record.TilePathPattern,
			&record.RasterPath,
			&record.MinZoom,
			&record.MaxZoom,
			&boundingBox,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan timeseries record: %w", err)
		}
		if len(boundingBox) > 0 {
			if err := json.Unmarshal(boundingBox, &record.BoundingBox); err != nil {
				return nil, fmt.Errorf("decode bounding box: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
				return nil, fmt.Errorf("decode timeseries metadata: %w", err)
			}
		}
		records = append(records, &record)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate timeseries records: %w", rows.Err())
	}
	return records, nil
}
