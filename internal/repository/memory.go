package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
)

// MemoryAreasRepository stores areas in memory for local development and
// tests.
type MemoryAreasRepository struct {
	mu     sync.RWMutex
	areas  map[int64]*domain.Area
	nextID int64
}

func NewMemoryAreasRepository() *MemoryAreasRepository {
	return &MemoryAreasRepository{areas: make(map[int64]*domain.Area), nextID: 1}
}

func (r *MemoryAreasRepository) CreateArea(_ context.Context, area *domain.Area) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if area.ID == 0 {
		area.ID = r.nextID
		r.nextID++
	} else if area.ID >= r.nextID {
		r.nextID = area.ID + 1
	}
	if area.CreatedAt.IsZero() {
		area.CreatedAt = time.Now().UTC()
	}
	clone := *area
	r.areas[area.ID] = &clone
	return nil
}

func (r *MemoryAreasRepository) GetArea(_ context.Context, areaID int64) (*domain.Area, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	area, ok := r.areas[areaID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *area
	return &clone, nil
}

func (r *MemoryAreasRepository) ListAreas(_ context.Context) ([]*domain.Area, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	areas := make([]*domain.Area, 0, len(r.areas))
	for _, area := range r.areas {
		clone := *area
		areas = append(areas, &clone)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })
	return areas, nil
}

// MemoryJobsRepository stores jobs in memory. The claim transition holds the
// same atomicity guarantee as the Postgres implementation: exactly one caller
// observes pending -> running.
type MemoryJobsRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) ListJobs(_ context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*domain.Job, 0)
	for _, job := range r.jobs {
		if filter.AreaID != 0 && job.AreaID != filter.AreaID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (r *MemoryJobsRepository) ListPending(_ context.Context, limit int) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]*domain.Job, 0)
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusPending {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (r *MemoryJobsRepository) Claim(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return ErrConflict
	}
	job.Status = domain.JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryJobsRepository) MarkCompleted(_ context.Context, jobID string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	job.ErrorMessage = ""
	if metadata != nil {
		job.Metadata = mergeMetadata(job.Metadata, metadata)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryJobsRepository) MarkFailed(_ context.Context, jobID string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryTimeseriesRepository stores timeseries records keyed by
// (area, month).
type MemoryTimeseriesRepository struct {
	mu      sync.RWMutex
	records map[timeseriesKey]*domain.TimeseriesRecord
}

type timeseriesKey struct {
	areaID int64
	month  string
}

func NewMemoryTimeseriesRepository() *MemoryTimeseriesRepository {
	return &MemoryTimeseriesRepository{records: make(map[timeseriesKey]*domain.TimeseriesRecord)}
}

func (r *MemoryTimeseriesRepository) Upsert(_ context.Context, record *domain.TimeseriesRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := timeseriesKey{areaID: record.AreaID, month: domain.MonthKey(record.Month)}
	clone := *record
	r.records[key] = &clone
	return nil
}

func (r *MemoryTimeseriesRepository) ListByArea(
	_ context.Context,
	areaID int64,
	from, to *time.Time,
) ([]*domain.TimeseriesRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*domain.TimeseriesRecord, 0)
	for _, record := range r.records {
		if record.AreaID != areaID {
			continue
		}
		if from != nil && record.Month.Before(domain.FirstOfMonth(*from)) {
			continue
		}
		if to != nil && record.Month.After(*to) {
			continue
		}
		clone := *record
		records = append(records, &clone)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Month.Before(records[j].Month) })
	return records, nil
}

// Count reports the number of stored records. Test helper.
func (r *MemoryTimeseriesRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func cloneJob(job *domain.Job) *domain.Job {
	clone := *job
	if job.Metadata != nil {
		clone.Metadata = make(map[string]any, len(job.Metadata))
		for key, value := range job.Metadata {
			clone.Metadata[key] = value
		}
	}
	if job.StartDate != nil {
		start := *job.StartDate
		clone.StartDate = &start
	}
	if job.EndDate != nil {
		end := *job.EndDate
		clone.EndDate = &end
	}
	return &clone
}

func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}
