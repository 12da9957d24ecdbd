// Package executor runs claimed jobs: the monthly processing pass and the
// acquisition export fan-out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/geolumen/nightlights/internal/acquisition"
	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/repository"
)

type Executor struct {
	areas       repository.AreasRepository
	jobs        repository.JobsRepository
	timeseries  repository.TimeseriesRepository
	engine      *raster.Engine
	acquisition acquisition.Client
	cache       cache.TimeseriesCache
	threshold   float64
	logger      *log.Logger
}

func New(
	areas repository.AreasRepository,
	jobs repository.JobsRepository,
	timeseries repository.TimeseriesRepository,
	engine *raster.Engine,
	acquisitionClient acquisition.Client,
	timeseriesCache cache.TimeseriesCache,
	threshold float64,
	logger *log.Logger,
) *Executor {
	if threshold <= 0 {
		threshold = 1.0
	}
	return &Executor{
		areas:       areas,
		jobs:        jobs,
		timeseries:  timeseries,
		engine:      engine,
		acquisition: acquisitionClient,
		cache:       timeseriesCache,
		threshold:   threshold,
		logger:      logger,
	}
}

// Execute dispatches a claimed job by type. A returned error means the job
// must be marked failed; nil means completed.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) error {
	switch job.Type {
	case domain.JobTypeETLProcessing:
		return e.executeProcessing(ctx, job)
	case domain.JobTypeAcquisitionExport:
		return e.executeExport(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (e *Executor) executeProcessing(ctx context.Context, job *domain.Job) error {
	area, err := e.areas.GetArea(ctx, job.AreaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("area %d not found", job.AreaID)
		}
		return fmt.Errorf("load area %d: %w", job.AreaID, err)
	}

	rasterRef, ok := job.RasterPath()
	if !ok {
		return errors.New("no raster reference in job metadata")
	}

	month := domain.FirstOfMonth(time.Now().UTC())
	if job.StartDate != nil {
		month = domain.FirstOfMonth(*job.StartDate)
	}

	result := e.engine.Process(ctx, area, month, rasterRef, e.threshold)
	record := result.ToTimeseries(area.ID, month)
	if err := e.timeseries.Upsert(ctx, &record); err != nil {
		return fmt.Errorf("persist timeseries for area %d %s: %w", area.ID, domain.MonthKey(month), err)
	}
	if e.cache != nil {
		e.cache.InvalidateArea(ctx, area.ID)
	}

	e.logf("processed area=%d month=%s outcome=%s lit=%.1f%% tiles=%d",
		area.ID, domain.MonthKey(month), result.Outcome, result.Stats.LitPercentage, result.TilesUploaded)
	return nil
}

// executeExport walks the requested month range, exporting one raster per
// month and enqueueing a child processing job for it. A failed month is
// recorded on the parent and never aborts the rest of the range.
func (e *Executor) executeExport(ctx context.Context, job *domain.Job) error {
	if job.StartDate == nil {
		return errors.New("export job requires a start date")
	}
	area, err := e.areas.GetArea(ctx, job.AreaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("area %d not found", job.AreaID)
		}
		return fmt.Errorf("load area %d: %w", job.AreaID, err)
	}

	end := *job.StartDate
	if job.EndDate != nil {
		end = *job.EndDate
	}

	failedMonths := make([]string, 0)
	for _, month := range domain.MonthsBetween(*job.StartDate, end) {
		ref, err := e.acquisition.ExportForArea(ctx, area.ID, area.Geometry, month.Year(), month.Month())
		if err != nil {
			e.logf("export failed area=%d month=%s: %v", area.ID, domain.MonthKey(month), err)
			failedMonths = append(failedMonths, domain.MonthKey(month))
			continue
		}

		start := month
		child := &domain.Job{
			ID:        uuid.NewString(),
			AreaID:    area.ID,
			Type:      domain.JobTypeETLProcessing,
			Status:    domain.JobStatusPending,
			StartDate: &start,
			Metadata: map[string]any{
				domain.MetaRasterPath:  ref,
				domain.MetaParentJobID: job.ID,
			},
		}
		if err := e.jobs.CreateJob(ctx, child); err != nil {
			e.logf("enqueue child job failed area=%d month=%s: %v", area.ID, domain.MonthKey(month), err)
			failedMonths = append(failedMonths, domain.MonthKey(month))
		}
	}

	if len(failedMonths) > 0 {
		if job.Metadata == nil {
			job.Metadata = make(map[string]any)
		}
		job.Metadata[domain.MetaFailedMonths] = failedMonths
	}
	return nil
}

func (e *Executor) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
