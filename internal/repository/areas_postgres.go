package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geolumen/nightlights/internal/domain"
)

type PostgresAreasRepository struct {
	pool *pgxpool.Pool
}

func (r *PostgresAreasRepository) CreateArea(ctx context.Context, area *domain.Area) error {
	geometry, err := area.Geometry.MarshalGeoJSON()
	if err != nil {
		return fmt.Errorf("encode area geometry: %w", err)
	}
	metadata, err := encodeMetadata(area.Metadata)
	if err != nil {
		return fmt.Errorf("encode area metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO areas (name, geometry, meta_data)
		VALUES ($1, $2, $3)
		RETURNING area_id, created_at
	`, area.Name, geometry, metadata).Scan(&area.ID, &area.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert area: %w", err)
	}
	return nil
}

func (r *PostgresAreasRepository) GetArea(ctx context.Context, areaID int64) (*domain.Area, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT area_id, name, geometry, meta_data, created_at
		FROM areas
		WHERE area_id = $1
	`, areaID)

	area, err := scanArea(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query area: %w", err)
	}
	return area, nil
}

func (r *PostgresAreasRepository) ListAreas(ctx context.Context) ([]*domain.Area, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT area_id, name, geometry, meta_data, created_at
		FROM areas
		ORDER BY area_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	areas := make([]*domain.Area, 0)
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		areas = append(areas, area)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate areas: %w", rows.Err())
	}
	return areas, nil
}

func scanArea(row pgx.Row) (*domain.Area, error) {
	var (
		area     domain.Area
		geometry []byte
		metadata []byte
	)
	if err := row.Scan(&area.ID, &area.Name, &geometry, &metadata, &area.CreatedAt); err != nil {
		return nil, err
	}

	polygon, err := domain.UnmarshalGeoJSON(geometry)
	if err != nil {
		return nil, fmt.Errorf("decode area geometry: %w", err)
	}
	area.Geometry = polygon

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &area.Metadata); err != nil {
			return nil, fmt.Errorf("decode area metadata: %w", err)
		}
	}
	return &area, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}
