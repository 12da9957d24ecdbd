package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/geolumen/nightlights/internal/acquisition"
	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/config"
	"github.com/geolumen/nightlights/internal/executor"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/scheduler"
	"github.com/geolumen/nightlights/internal/storage"
)

func main() {
	logger := log.New(os.Stdout, "[nightlights-scheduler] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	store := setupStorage(ctx, cfg, logger)
	timeseriesCache, cacheCloser := setupCache(ctx, cfg, logger)
	defer cacheCloser()

	engine := raster.NewEngine(store, setupTiler(cfg, logger), raster.EngineConfig{
		MinZoom: cfg.TileMinZoom,
		MaxZoom: cfg.TileMaxZoom,
	}, logger)

	exec := executor.New(
		repos.areas,
		repos.jobs,
		repos.timeseries,
		engine,
		setupAcquisition(cfg, store, logger),
		timeseriesCache,
		cfg.LitThreshold,
		logger,
	)

	logger.Printf("scheduler starting poll_interval=%s batch_size=%d", cfg.PollInterval, cfg.BatchSize)
	scheduler.New(repos.jobs, store, exec, scheduler.Config{
		PollInterval:       cfg.PollInterval,
		BatchSize:          cfg.BatchSize,
		BucketInitAttempts: cfg.BucketInitAttempts,
	}, logger).Run(ctx)
	logger.Printf("scheduler stopped")
}

type repositories struct {
	areas      repository.AreasRepository
	jobs       repository.JobsRepository
	timeseries repository.TimeseriesRepository
}

func setupRepositories(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (repositories, func()) {
	memory := repositories{
		areas:      repository.NewMemoryAreasRepository(),
		jobs:       repository.NewMemoryJobsRepository(),
		timeseries: repository.NewMemoryTimeseriesRepository(),
	}
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return memory, func() {}
	}

	pg, err := repository.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres, fallback to memory: %v", err)
		return memory, func() {}
	}
	if err := pg.Migrate(ctx); err != nil {
		logger.Printf("failed to migrate postgres, fallback to memory: %v", err)
		pg.Close()
		return memory, func() {}
	}
	logger.Printf("postgres repositories initialized")
	return repositories{
		areas:      pg.Areas(),
		jobs:       pg.Jobs(),
		timeseries: pg.Timeseries(),
	}, pg.Close
}

func setupStorage(ctx context.Context, cfg config.Config, logger *log.Logger) storage.ObjectStore {
	buckets := storage.Buckets{Rasters: cfg.BucketRasters, Tiles: cfg.BucketTiles}
	if cfg.StorageEndpoint == "" {
		logger.Printf("STORAGE_ENDPOINT not configured, using in-memory object store")
		return storage.NewMemoryStore(buckets)
	}

	s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:   cfg.StorageEndpoint,
		AccessKey:  cfg.StorageAccessKey,
		SecretKey:  cfg.StorageSecretKey,
		Region:     cfg.StorageRegion,
		Buckets:    buckets,
		MaxRetries: cfg.StorageMaxRetries,
	}, logger)
	if err != nil {
		logger.Printf("failed to initialize s3 store, fallback to memory: %v", err)
		return storage.NewMemoryStore(buckets)
	}
	logger.Printf("s3 object store initialized endpoint=%s", cfg.StorageEndpoint)
	return s3Store
}

func setupCache(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (cache.TimeseriesCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using in-memory cache")
		return cache.NewMemoryCache(cache.Config{TTL: cfg.CacheTTL}), func() {}
	}

	redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	}, logger)
	if err != nil {
		logger.Printf("failed to initialize redis cache, fallback to memory: %v", err)
		return cache.NewMemoryCache(cache.Config{TTL: cfg.CacheTTL}), func() {}
	}
	logger.Printf("redis cache initialized")
	return redisCache, func() {
		_ = redisCache.Close()
	}
}

func setupTiler(cfg config.Config, logger *log.Logger) raster.Tiler {
	if cfg.Tiler == "native" {
		logger.Printf("using native tiler")
		return raster.NativeTiler{}
	}
	logger.Printf("using gdal tiler")
	return raster.GDALTiler{Logger: logger}
}

func setupAcquisition(cfg config.Config, store storage.ObjectStore, logger *log.Logger) acquisition.Client {
	if cfg.AcquisitionBaseURL == "" || cfg.AcquisitionCredentials == "" {
		logger.Printf("acquisition provider not configured, using synthetic exports")
		return acquisition.NewSyntheticClient(store)
	}

	client, err := acquisition.NewCompositeClient(acquisition.CompositeClientConfig{
		BaseURL:         cfg.AcquisitionBaseURL,
		CredentialsFile: cfg.AcquisitionCredentials,
		ScaleMeters:     cfg.AcquisitionScaleMeters,
		Timeout:         cfg.AcquisitionTimeout,
		MaxRetries:      cfg.AcquisitionMaxRetries,
	}, store)
	if err != nil {
		logger.Printf("failed to initialize acquisition client, using synthetic exports: %v", err)
		return acquisition.NewSyntheticClient(store)
	}
	logger.Printf("acquisition client initialized endpoint=%s", cfg.AcquisitionBaseURL)
	return client
}
