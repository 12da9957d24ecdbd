package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/repository"
)

type ExportsService struct {
	areas repository.AreasRepository
	jobs  repository.JobsRepository
}

func NewExportsService(areas repository.AreasRepository, jobs repository.JobsRepository) *ExportsService {
	return &ExportsService{areas: areas, jobs: jobs}
}

// CreateExport enqueues an acquisition export for the area over [start, end].
// A nil end means just the start month. The scheduler picks the job up on its
// next cycle.
func (s *ExportsService) CreateExport(
	ctx context.Context,
	areaID int64,
	start time.Time,
	end *time.Time,
) (*domain.Job, error) {
	if _, err := s.areas.GetArea(ctx, areaID); err != nil {
		return nil, err
	}

	startMonth := domain.FirstOfMonth(start)
	if end != nil {
		endMonth := domain.FirstOfMonth(*end)
		if endMonth.Before(startMonth) {
			return nil, fmt.Errorf("%w: end date before start date", ErrInvalidInput)
		}
		end = &endMonth
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		AreaID:    areaID,
		Type:      domain.JobTypeAcquisitionExport,
		Status:    domain.JobStatusPending,
		StartDate: &startMonth,
		EndDate:   end,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}
	return job, nil
}
