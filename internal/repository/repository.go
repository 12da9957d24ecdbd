package repository

import (
	"context"
	"errors"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrConflict reports a lost claim race: the job was no longer pending
	// when the conditional transition ran.
	ErrConflict = errors.New("job claim conflict")
)

// AreasRepository abstracts area persistence. Areas are created by the API
// and read-only to the pipeline.
type AreasRepository interface {
	CreateArea(ctx context.Context, area *domain.Area) error
	GetArea(ctx context.Context, areaID int64) (*domain.Area, error)
	ListAreas(ctx context.Context) ([]*domain.Area, error)
}

// JobsRepository abstracts job persistence and the atomic claim that keeps
// concurrent scheduler instances from double-processing a job.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	// ListPending returns up to limit pending jobs ordered oldest-first.
	ListPending(ctx context.Context, limit int) ([]*domain.Job, error)
	// Claim transitions a job from pending to running as a single
	// conditional update. ErrConflict means another instance won the race.
	Claim(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, metadata map[string]any) error
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error
}

// TimeseriesRepository abstracts the monthly statistics records.
// (area, month) is unique; Upsert overwrites rather than duplicates.
type TimeseriesRepository interface {
	Upsert(ctx context.Context, record *domain.TimeseriesRecord) error
	ListByArea(ctx context.Context, areaID int64, from, to *time.Time) ([]*domain.TimeseriesRecord, error)
}
