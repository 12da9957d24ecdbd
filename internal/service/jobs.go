package service

import (
	"context"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/repository"
)

type JobsService struct {
	repo repository.JobsRepository
}

func NewJobsService(repo repository.JobsRepository) *JobsService {
	return &JobsService{repo: repo}
}

func (s *JobsService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

func (s *JobsService) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.repo.ListJobs(ctx, filter)
}
