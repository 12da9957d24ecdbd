package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geolumen/nightlights/internal/acquisition"
	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/executor"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/storage"
)

type fixture struct {
	areas     *repository.MemoryAreasRepository
	jobs      *repository.MemoryJobsRepository
	store     *storage.MemoryStore
	scheduler *Scheduler
}

func newFixture(t *testing.T, brokenEngine bool) *fixture {
	t.Helper()
	areas := repository.NewMemoryAreasRepository()
	jobs := repository.NewMemoryJobsRepository()
	timeseries := repository.NewMemoryTimeseriesRepository()
	store := storage.NewMemoryStore(storage.Buckets{})
	logger := log.New(io.Discard, "", 0)

	var engine *raster.Engine
	if !brokenEngine {
		engine = raster.NewEngine(store, raster.NativeTiler{}, raster.EngineConfig{MinZoom: 1, MaxZoom: 1}, logger)
	}
	exec := executor.New(areas, jobs, timeseries, engine, acquisition.NewSyntheticClient(store), nil, 1.0, logger)

	return &fixture{
		areas: areas,
		jobs:  jobs,
		store: store,
		scheduler: New(jobs, store, exec, Config{
			PollInterval:       10 * time.Millisecond,
			BatchSize:          10,
			BucketInitAttempts: 2,
			BucketInitBackoff:  time.Millisecond,
		}, logger),
	}
}

func seedProcessingJob(t *testing.T, f *fixture) *domain.Job {
	t.Helper()
	ctx := context.Background()

	area := &domain.Area{
		Name: "test area",
		Geometry: domain.Polygon{
			Exterior: domain.Ring{
				{Lon: 0, Lat: 0},
				{Lon: 1, Lat: 0},
				{Lon: 1, Lat: 1},
				{Lon: 0, Lat: 1},
			},
		},
	}
	if err := f.areas.CreateArea(ctx, area); err != nil {
		t.Fatal(err)
	}

	src := raster.Synthetic(area.Geometry.Bounds(), 8, 8)
	path := filepath.Join(t.TempDir(), "source.tif")
	if err := raster.EncodeGeoTIFF(src, path); err != nil {
		t.Fatal(err)
	}
	ref, err := f.store.Upload(ctx, path, "staged/source.tif", storage.BucketRasters, "image/tiff")
	if err != nil {
		t.Fatal(err)
	}

	start := time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID:        "job-1",
		AreaID:    area.ID,
		Type:      domain.JobTypeETLProcessing,
		Status:    domain.JobStatusPending,
		StartDate: &start,
		Metadata:  map[string]any{domain.MetaRasterPath: ref},
	}
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestCycleCompletesClaimedJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	job := seedProcessingJob(t, f)

	f.scheduler.runCycle(ctx)

	updated, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (%s), want completed", updated.Status, updated.ErrorMessage)
	}
}

func TestCycleMarksFailingJobFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	job := &domain.Job{ID: "job-bad", Type: "no_such_type", Status: domain.JobStatusPending}
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	f.scheduler.runCycle(ctx)

	updated, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", updated.Status)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("failed job carries no error message")
	}
}

func TestCycleSurvivesHandlerPanic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	panicking := seedProcessingJob(t, f)

	healthy := &domain.Job{ID: "job-bad-type", Type: "no_such_type", Status: domain.JobStatusPending}
	if err := f.jobs.CreateJob(ctx, healthy); err != nil {
		t.Fatal(err)
	}

	f.scheduler.runCycle(ctx)

	updated, err := f.jobs.GetJob(ctx, panicking.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed after panic", updated.Status)
	}

	// The job after the panicking one must still be handled.
	second, err := f.jobs.GetJob(ctx, healthy.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != domain.JobStatusFailed {
		t.Fatalf("second job status = %q, want failed", second.Status)
	}
}

// conflictingJobs simulates another scheduler instance winning the claim for
// one job.
type conflictingJobs struct {
	repository.JobsRepository
	stolen string
}

func (r *conflictingJobs) Claim(ctx context.Context, jobID string) error {
	if jobID == r.stolen {
		return repository.ErrConflict
	}
	return r.JobsRepository.Claim(ctx, jobID)
}

func TestCycleSkipsLostClaims(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	job := seedProcessingJob(t, f)

	other := &domain.Job{ID: "job-stolen", Type: domain.JobTypeETLProcessing, Status: domain.JobStatusPending}
	if err := f.jobs.CreateJob(ctx, other); err != nil {
		t.Fatal(err)
	}

	f.scheduler.jobs = &conflictingJobs{JobsRepository: f.jobs, stolen: other.ID}
	f.scheduler.runCycle(ctx)

	stolen, err := f.jobs.GetJob(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stolen.Status != domain.JobStatusPending {
		t.Fatalf("stolen job status = %q, must stay untouched", stolen.Status)
	}

	claimed, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if claimed.Status != domain.JobStatusCompleted {
		t.Fatalf("claimed job status = %q, want completed", claimed.Status)
	}
}

// flakyStore fails EnsureBuckets a configured number of times.
type flakyStore struct {
	storage.ObjectStore
	failures int32
}

func (s *flakyStore) EnsureBuckets(ctx context.Context) error {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return errors.New("storage not ready")
	}
	return s.ObjectStore.EnsureBuckets(ctx)
}

func TestEnsureBucketsRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, false)
	store := &flakyStore{ObjectStore: f.store, failures: 1}
	f.scheduler.store = store

	f.scheduler.ensureBuckets(context.Background())

	if !f.store.IsPublic(storage.BucketTiles) {
		t.Fatal("buckets not provisioned after retry")
	}
}

func TestEnsureBucketsExhaustionIsNonFatal(t *testing.T) {
	f := newFixture(t, false)
	f.scheduler.store = &flakyStore{ObjectStore: f.store, failures: 100}

	done := make(chan struct{})
	go func() {
		f.scheduler.ensureBuckets(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ensureBuckets did not give up")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
