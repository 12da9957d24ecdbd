package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/config"
	httpserver "github.com/geolumen/nightlights/internal/http"
	"github.com/geolumen/nightlights/internal/http/handlers"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/service"
)

func main() {
	logger := log.New(os.Stdout, "[nightlights-api] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, repoCloser := setupRepositories(ctx, cfg, logger)
	defer repoCloser()

	timeseriesCache, cacheCloser := setupCache(ctx, cfg, logger)
	defer cacheCloser()

	api := handlers.NewAPI(
		service.NewAreasService(repos.areas),
		service.NewExportsService(repos.areas, repos.jobs),
		service.NewJobsService(repos.jobs),
		service.NewTimeseriesService(repos.areas, repos.timeseries, timeseriesCache, cfg.StoragePublicEndpoint),
	)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
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
