// Package scheduler polls the job table and drives claimed jobs through the
// executor. Multiple instances may run concurrently; the atomic claim keeps
// them from double-processing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/executor"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/storage"
)

type Config struct {
	PollInterval       time.Duration
	BatchSize          int
	BucketInitAttempts int
	BucketInitBackoff  time.Duration
}

type Scheduler struct {
	jobs     repository.JobsRepository
	store    storage.ObjectStore
	executor *executor.Executor
	config   Config
	logger   *log.Logger
}

func New(
	jobs repository.JobsRepository,
	store storage.ObjectStore,
	exec *executor.Executor,
	config Config,
	logger *log.Logger,
) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BucketInitAttempts <= 0 {
		config.BucketInitAttempts = 5
	}
	if config.BucketInitBackoff <= 0 {
		config.BucketInitBackoff = 2 * time.Second
	}
	return &Scheduler{
		jobs:     jobs,
		store:    store,
		executor: exec,
		config:   config,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.ensureBuckets(ctx)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ensureBuckets retries bucket provisioning with linear backoff. Exhaustion
// is logged and the loop starts anyway: storage may come up later, and jobs
// fail individually until it does.
func (s *Scheduler) ensureBuckets(ctx context.Context) {
	for attempt := 1; attempt <= s.config.BucketInitAttempts; attempt++ {
		err := s.store.EnsureBuckets(ctx)
		if err == nil {
			return
		}
		s.logf("bucket init attempt %d/%d failed: %v", attempt, s.config.BucketInitAttempts, err)

		if attempt == s.config.BucketInitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.BucketInitBackoff * time.Duration(attempt)):
		}
	}
	s.logf("bucket init exhausted, starting poll loop anyway")
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	pending, err := s.jobs.ListPending(ctx, s.config.BatchSize)
	if err != nil {
		s.logf("list pending jobs: %v", err)
		return
	}

	for _, job := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.jobs.Claim(ctx, job.ID); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				s.logf("claim job %s: %v", job.ID, err)
			}
			continue
		}
		s.processJob(ctx, job)
	}
}

// processJob runs one claimed job inside a failure boundary: a handler error
// or panic marks the job failed and the loop moves on.
func (s *Scheduler) processJob(ctx context.Context, job *domain.Job) {
	err := s.executeSafely(ctx, job)
	if err != nil {
		s.logf("job %s (%s) failed: %v", job.ID, job.Type, err)
		if markErr := s.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			s.logf("mark job %s failed: %v", job.ID, markErr)
		}
		return
	}

	if markErr := s.jobs.MarkCompleted(ctx, job.ID, job.Metadata); markErr != nil {
		s.logf("mark job %s completed: %v", job.ID, markErr)
		return
	}
	s.logf("job %s (%s) completed", job.ID, job.Type)
}

func (s *Scheduler) executeSafely(ctx context.Context, job *domain.Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("job handler panic: %v", recovered)
		}
	}()
	return s.executor.Execute(ctx, job)
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
