package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres bundles the pgx pool shared by the per-entity repositories.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Areas() *PostgresAreasRepository {
	return &PostgresAreasRepository{pool: p.pool}
}

func (p *Postgres) Jobs() *PostgresJobsRepository {
	return &PostgresJobsRepository{pool: p.pool}
}

func (p *Postgres) Timeseries() *PostgresTimeseriesRepository {
	return &PostgresTimeseriesRepository{pool: p.pool}
}

// Migrate creates the schema when it does not exist yet. Geometry is stored
// as GeoJSON in jsonb; the pipeline only needs containment tests, which run
// in process.
func (p *Postgres) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS areas (
			area_id BIGSERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			geometry JSONB NOT NULL,
			meta_data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS processing_jobs (
			job_id UUID PRIMARY KEY,
			area_id BIGINT NOT NULL REFERENCES areas(area_id) ON DELETE CASCADE,
			job_type TEXT NOT NULL,
			status TEXT NOT NULL,
			start_date DATE,
			end_date DATE,
			meta_data JSONB,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_jobs_status_created
			ON processing_jobs (status, created_at)`,
		`CREATE TABLE IF NOT EXISTS area_timeseries (
			area_id BIGINT NOT NULL REFERENCES areas(area_id) ON DELETE CASCADE,
			month DATE NOT NULL,
			mean_brightness DOUBLE PRECISION,
			median_brightness DOUBLE PRECISION,
			sum_brightness DOUBLE PRECISION,
			lit_pixel_count INTEGER,
			lit_percentage DOUBLE PRECISION,
			tile_path_pattern TEXT,
			raster_path TEXT,
			min_zoom INTEGER,
			max_zoom INTEGER,
			bounding_box JSONB,
			meta_data JSONB,
			PRIMARY KEY (area_id, month)
		)`,
	}
	for _, statement := range statements {
		if _, err := p.pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
