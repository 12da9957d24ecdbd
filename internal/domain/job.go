package domain

import (
	"time"
)

type JobType string

const (
	JobTypeETLProcessing     JobType = "etl_processing"
	JobTypeAcquisitionExport JobType = "acquisition_export"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Metadata keys carried in job metadata maps.
const (
	MetaRasterPath   = "raster_path"
	MetaParentJobID  = "parent_job_id"
	MetaFailedMonths = "failed_months"
)

// Job is the unit of work claimed and executed by the scheduler.
// pending -> running -> completed|failed; terminal states are never left
// and a failed job is never requeued automatically.
type Job struct {
	ID           string
	AreaID       int64
	Type         JobType
	Status       JobStatus
	StartDate    *time.Time
	EndDate      *time.Time
	Metadata     map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RasterPath returns the raster object reference from job metadata, if set.
func (j *Job) RasterPath() (string, bool) {
	if j.Metadata == nil {
		return "", false
	}
	value, ok := j.Metadata[MetaRasterPath].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// JobFilter narrows job listings; zero values mean "any".
type JobFilter struct {
	AreaID int64
	Status JobStatus
	Type   JobType
	Limit  int
}
