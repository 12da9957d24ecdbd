package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config centralizes runtime settings for the API and the scheduler.
// It is constructed once in main and passed into components explicitly.
type Config struct {
	Port               string
	AuthToken          string
	CORSAllowedOrigins []string

	DatabaseURL string

	StorageEndpoint       string
	StorageAccessKey      string
	StorageSecretKey      string
	StorageRegion         string
	StoragePublicEndpoint string
	BucketRasters         string
	BucketTiles           string
	StorageMaxRetries     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	PollInterval       time.Duration
	BatchSize          int
	BucketInitAttempts int

	LitThreshold float64
	TileMinZoom  int
	TileMaxZoom  int
	Tiler        string

	AcquisitionBaseURL     string
	AcquisitionCredentials string
	AcquisitionScaleMeters int
	AcquisitionTimeout     time.Duration
	AcquisitionMaxRetries  int

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() Config {
	return Config{
		Port:               getEnv("PORT", "8080"),
		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageEndpoint:       getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey:      getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:      getEnv("STORAGE_SECRET_KEY", ""),
		StorageRegion:         getEnv("STORAGE_REGION", "us-east-1"),
		StoragePublicEndpoint: getEnv("STORAGE_PUBLIC_ENDPOINT", "http://localhost:9000"),
		BucketRasters:         getEnv("STORAGE_BUCKET_RASTERS", "rasters"),
		BucketTiles:           getEnv("STORAGE_BUCKET_TILES", "tiles"),
		StorageMaxRetries:     getEnvInt("STORAGE_MAX_RETRIES", 3),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SECONDS", 900)) * time.Second,

		PollInterval:       time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 300)) * time.Second,
		BatchSize:          getEnvInt("BATCH_SIZE", 10),
		BucketInitAttempts: getEnvInt("SCHEDULER_BUCKET_INIT_ATTEMPTS", 5),

		LitThreshold: getEnvFloat("LIT_THRESHOLD", 1.0),
		TileMinZoom:  getEnvInt("TILE_MIN_ZOOM", 8),
		TileMaxZoom:  getEnvInt("TILE_MAX_ZOOM", 14),
		Tiler:        getEnv("TILER", "gdal"),

		AcquisitionBaseURL:     getEnv("ACQUISITION_BASE_URL", ""),
		AcquisitionCredentials: getEnv("ACQUISITION_CREDENTIALS_FILE", ""),
		AcquisitionScaleMeters: getEnvInt("ACQUISITION_SCALE_METERS", 500),
		AcquisitionTimeout:     time.Duration(getEnvInt("ACQUISITION_TIMEOUT_MS", 60000)) * time.Millisecond,
		AcquisitionMaxRetries:  getEnvInt("ACQUISITION_MAX_RETRIES", 2),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
