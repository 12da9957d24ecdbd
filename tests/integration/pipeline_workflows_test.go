package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geolumen/nightlights/internal/acquisition"
	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/executor"
	httpserver "github.com/geolumen/nightlights/internal/http"
	"github.com/geolumen/nightlights/internal/http/handlers"
	"github.com/geolumen/nightlights/internal/raster"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/scheduler"
	"github.com/geolumen/nightlights/internal/service"
	"github.com/geolumen/nightlights/internal/storage"
)

type runtime struct {
	server *httptest.Server
	store  *storage.MemoryStore
	cancel context.CancelFunc
}

func startRuntime(t *testing.T) runtime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	areas := repository.NewMemoryAreasRepository()
	jobs := repository.NewMemoryJobsRepository()
	timeseries := repository.NewMemoryTimeseriesRepository()
	store := storage.NewMemoryStore(storage.Buckets{})
	timeseriesCache := cache.NewMemoryCache(cache.Config{TTL: time.Minute})

	engine := raster.NewEngine(store, raster.NativeTiler{}, raster.EngineConfig{MinZoom: 1, MaxZoom: 1}, logger)
	exec := executor.New(
		areas, jobs, timeseries, engine,
		acquisition.NewSyntheticClient(store),
		timeseriesCache, 1.0, logger,
	)
	go scheduler.New(jobs, store, exec, scheduler.Config{
		PollInterval:       10 * time.Millisecond,
		BatchSize:          10,
		BucketInitAttempts: 1,
		BucketInitBackoff:  time.Millisecond,
	}, logger).Run(ctx)

	api := handlers.NewAPI(
		service.NewAreasService(areas),
		service.NewExportsService(areas, jobs),
		service.NewJobsService(jobs),
		service.NewTimeseriesService(areas, timeseries, timeseriesCache, "http://storage.local"),
	)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	server := httptest.NewServer(router)
	return runtime{server: server, store: store, cancel: cancel}
}

func (r runtime) close() {
	r.cancel()
	r.server.Close()
}

func postJSON(t *testing.T, url, payload string) map[string]any {
	t.Helper()
	response, err := http.Post(url, "application/json", bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer response.Body.Close()
	if response.StatusCode >= 400 {
		body, _ := io.ReadAll(response.Body)
		t.Fatalf("post %s status %d: %s", url, response.StatusCode, body)
	}
	var decoded map[string]any
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer response.Body.Close()
	var decoded map[string]any
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

func waitForJob(t *testing.T, baseURL, jobID, wantStatus string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		body := getJSON(t, baseURL+"/v1/jobs/"+jobID)
		if body["status"] == wantStatus {
			return body
		}
		if body["status"] == "failed" && wantStatus != "failed" {
			t.Fatalf("job %s failed: %v", jobID, body["error"])
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, wantStatus)
	return nil
}

func TestExportToTimeseriesWorkflow(t *testing.T) {
	rt := startRuntime(t)
	defer rt.close()
	base := rt.server.URL

	created := postJSON(t, base+"/v1/areas", `{
		"name": "harbor district",
		"geometry": {"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
	}`)
	areaID := int64(created["area_id"].(float64))

	exported := postJSON(t, fmt.Sprintf("%s/v1/areas/%d/export", base, areaID),
		`{"start_date":"2023-01-01","end_date":"2023-02-01"}`)
	parentID := exported["job_id"].(string)

	waitForJob(t, base, parentID, "completed")

	// The export fans out one processing job per month; wait for both.
	deadline := time.Now().Add(10 * time.Second)
	for {
		body := getJSON(t, base+fmt.Sprintf("/v1/jobs?area_id=%d&type=etl_processing&status=completed", areaID))
		jobs, _ := body["jobs"].([]any)
		if len(jobs) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("processing jobs never completed: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	series := getJSON(t, base+fmt.Sprintf("/v1/areas/%d/timeseries", areaID))
	records, _ := series["timeseries"].([]any)
	if len(records) != 2 {
		t.Fatalf("timeseries records = %d, want 2", len(records))
	}
	first := records[0].(map[string]any)
	if first["month"] != "2023_01" {
		t.Fatalf("first month = %v, want 2023_01", first["month"])
	}
	if first["mean_brightness"].(float64) <= 0 {
		t.Fatalf("mean brightness = %v", first["mean_brightness"])
	}

	// Tiles land in the public bucket, masked rasters in the private one.
	tiles, err := rt.store.List(context.Background(), fmt.Sprintf("%d/2023_01/", areaID), storage.BucketTiles)
	if err != nil || len(tiles) == 0 {
		t.Fatalf("no tiles stored (err=%v)", err)
	}
	if _, ok := rt.store.Get(storage.BucketRasters, fmt.Sprintf("%d/2023_01/masked.tif", areaID)); !ok {
		t.Fatal("masked raster not stored")
	}
	if !rt.store.IsPublic(storage.BucketTiles) {
		t.Fatal("tiles bucket must be public")
	}
}

func TestSingleMonthExportDefaultsEndToStart(t *testing.T) {
	rt := startRuntime(t)
	defer rt.close()
	base := rt.server.URL

	created := postJSON(t, base+"/v1/areas", `{
		"name": "offshore box",
		"geometry": {"type":"Polygon","coordinates":[[[50,50],[51,50],[51,51],[50,51],[50,50]]]}
	}`)
	areaID := int64(created["area_id"].(float64))

	exported := postJSON(t, fmt.Sprintf("%s/v1/areas/%d/export", base, areaID),
		`{"start_date":"2023-05-01"}`)
	parentID := exported["job_id"].(string)
	waitForJob(t, base, parentID, "completed")

	deadline := time.Now().Add(10 * time.Second)
	for {
		body := getJSON(t, base+fmt.Sprintf("/v1/jobs?area_id=%d&type=etl_processing", areaID))
		jobs, _ := body["jobs"].([]any)
		if len(jobs) == 1 {
			job := jobs[0].(map[string]any)
			if job["status"] == "completed" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("processing job never settled: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}

	series := getJSON(t, base+fmt.Sprintf("/v1/areas/%d/timeseries", areaID))
	records, _ := series["timeseries"].([]any)
	if len(records) != 1 {
		t.Fatalf("timeseries records = %d, want 1", len(records))
	}
}
