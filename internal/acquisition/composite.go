package acquisition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/storage"
)

type CompositeClientConfig struct {
	BaseURL         string
	CredentialsFile string
	ScaleMeters     int
	Timeout         time.Duration
	MaxRetries      int
	HTTPClient      *http.Client
}

// CompositeClient requests monthly VIIRS composites from the imagery
// provider's export endpoint and stages the returned GeoTIFF in the rasters
// bucket.
type CompositeClient struct {
	baseURL     string
	credentials string
	scaleMeters int
	timeout     time.Duration
	maxRetries  int
	httpClient  *http.Client
	store       storage.ObjectStore
}

func NewCompositeClient(config CompositeClientConfig, store storage.ObjectStore) (*CompositeClient, error) {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.ScaleMeters <= 0 {
		config.ScaleMeters = 500
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	credentials := ""
	if path := strings.TrimSpace(config.CredentialsFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read acquisition credentials: %w", err)
		}
		credentials = strings.TrimSpace(string(raw))
	}

	return &CompositeClient{
		baseURL:     strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		credentials: credentials,
		scaleMeters: config.ScaleMeters,
		timeout:     config.Timeout,
		maxRetries:  config.MaxRetries,
		httpClient:  config.HTTPClient,
		store:       store,
	}, nil
}

func (c *CompositeClient) Available() bool {
	return c.baseURL != "" && c.credentials != ""
}

func (c *CompositeClient) ExportForArea(
	ctx context.Context,
	areaID int64,
	geom domain.Polygon,
	year int,
	month time.Month,
) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}

	geometry, err := geom.MarshalGeoJSON()
	if err != nil {
		return "", fmt.Errorf("encode export geometry: %w", err)
	}
	payload, err := json.Marshal(map[string]any{
		"geometry": json.RawMessage(geometry),
		"year":     year,
		"month":    int(month),
		"scale":    c.scaleMeters,
		"band":     "avg_rad",
	})
	if err != nil {
		return "", fmt.Errorf("marshal export payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		ref, callErr := c.callExportAPI(ctx, payload, areaID, year, month)
		if callErr == nil {
			return ref, nil
		}
		lastErr = callErr

		if !isRetryableExportError(callErr) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(500*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = ErrExportFailed
	}
	return "", lastErr
}

func (c *CompositeClient) callExportAPI(
	ctx context.Context,
	payload []byte,
	areaID int64,
	year int,
	month time.Month,
) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+"/v1/composites/export",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("create export request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.credentials)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "image/tiff")

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("export timeout: %w", err)
		}
		return "", fmt.Errorf("export transport error: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 700))
		return "", &exportHTTPError{
			StatusCode: response.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	tmpDir, err := os.MkdirTemp("", "acquisition-*")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, "export.tif")
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(file, response.Body); err != nil {
		file.Close()
		return "", fmt.Errorf("read export body: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	// Reject payloads the pipeline cannot process before they reach storage.
	if _, err := raster.DecodeGeoTIFF(localPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	key := rasterKey(areaID, year, month)
	ref, err := c.store.Upload(ctx, localPath, key, storage.BucketRasters, "image/tiff")
	if err != nil {
		return "", fmt.Errorf("stage export raster: %w", err)
	}
	return ref, nil
}

type exportHTTPError struct {
	StatusCode int
	Message    string
}

func (e *exportHTTPError) Error() string {
	return fmt.Sprintf("export status %d: %s", e.StatusCode, e.Message)
}

func isRetryableExportError(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *exportHTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "timeout") || strings.Contains(message, "tempor")
}
