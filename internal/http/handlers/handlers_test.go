package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geolumen/nightlights/internal/cache"
	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/service"
)

const validGeometry = `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`

type fixture struct {
	api        *API
	areas      *repository.MemoryAreasRepository
	jobs       *repository.MemoryJobsRepository
	timeseries *repository.MemoryTimeseriesRepository
}

func newFixture() *fixture {
	areas := repository.NewMemoryAreasRepository()
	jobs := repository.NewMemoryJobsRepository()
	timeseries := repository.NewMemoryTimeseriesRepository()
	timeseriesCache := cache.NewMemoryCache(cache.Config{TTL: time.Minute})

	api := NewAPI(
		service.NewAreasService(areas),
		service.NewExportsService(areas, jobs),
		service.NewJobsService(jobs),
		service.NewTimeseriesService(areas, timeseries, timeseriesCache, "https://cdn.example.com"),
	)
	return &fixture{api: api, areas: areas, jobs: jobs, timeseries: timeseries}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func createAreaViaAPI(t *testing.T, f *fixture) int64 {
	t.Helper()
	payload := `{"name":"metro region","geometry":` + validGeometry + `}`
	request := httptest.NewRequest(http.MethodPost, "/v1/areas", strings.NewReader(payload))
	recorder := httptest.NewRecorder()
	f.api.Areas(recorder, request)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create area status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	return int64(body["area_id"].(float64))
}

func TestCreateAreaAndGet(t *testing.T) {
	f := newFixture()
	areaID := createAreaViaAPI(t, f)

	request := httptest.NewRequest(http.MethodGet, "/v1/areas/1", nil)
	recorder := httptest.NewRecorder()
	f.api.AreaSubroutes(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get area status = %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if int64(body["area_id"].(float64)) != areaID {
		t.Fatalf("area_id = %v", body["area_id"])
	}
	if body["name"] != "metro region" {
		t.Fatalf("name = %v", body["name"])
	}
	geometry, ok := body["geometry"].(map[string]any)
	if !ok || geometry["type"] != "Polygon" {
		t.Fatalf("geometry = %v", body["geometry"])
	}
}

func TestCreateAreaRejectsInvalidGeometry(t *testing.T) {
	f := newFixture()
	payload := `{"name":"bad","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,1],[0,0]]]}}`
	request := httptest.NewRequest(http.MethodPost, "/v1/areas", strings.NewReader(payload))
	recorder := httptest.NewRecorder()
	f.api.Areas(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if _, ok := body["error"]; !ok {
		t.Fatal("error payload missing")
	}
	if _, ok := body["request_id"]; !ok {
		t.Fatal("request_id missing from error payload")
	}
}

func TestGetAreaNotFound(t *testing.T) {
	f := newFixture()
	request := httptest.NewRequest(http.MethodGet, "/v1/areas/42", nil)
	recorder := httptest.NewRecorder()
	f.api.AreaSubroutes(recorder, request)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestCreateExportEnqueuesJob(t *testing.T) {
	f := newFixture()
	createAreaViaAPI(t, f)

	payload := `{"start_date":"2023-01-01","end_date":"2023-03-01"}`
	request := httptest.NewRequest(http.MethodPost, "/v1/areas/1/export", strings.NewReader(payload))
	recorder := httptest.NewRecorder()
	f.api.AreaSubroutes(recorder, request)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	if body["status"] != string(domain.JobStatusPending) {
		t.Fatalf("status = %v, want pending", body["status"])
	}
	if body["type"] != string(domain.JobTypeAcquisitionExport) {
		t.Fatalf("type = %v", body["type"])
	}

	jobID, _ := body["job_id"].(string)
	stored, err := f.jobs.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.Status != domain.JobStatusPending {
		t.Fatalf("stored status = %q", stored.Status)
	}
}

func TestCreateExportRequiresStartDate(t *testing.T) {
	f := newFixture()
	createAreaViaAPI(t, f)

	request := httptest.NewRequest(http.MethodPost, "/v1/areas/1/export", strings.NewReader(`{}`))
	recorder := httptest.NewRecorder()
	f.api.AreaSubroutes(recorder, request)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
}

func TestJobStatusRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	job := &domain.Job{
		ID:           "job-1",
		AreaID:       1,
		Type:         domain.JobTypeETLProcessing,
		Status:       domain.JobStatusFailed,
		ErrorMessage: "mask raster: polygon does not overlap raster",
	}
	if err := f.jobs.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil)
	recorder := httptest.NewRecorder()
	f.api.JobStatus(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["status"] != string(domain.JobStatusFailed) {
		t.Fatalf("status = %v", body["status"])
	}
	errorBody, ok := body["error"].(map[string]any)
	if !ok || errorBody["message"] == "" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestJobsListFilters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, job := range []*domain.Job{
		{ID: "a", AreaID: 1, Type: domain.JobTypeETLProcessing, Status: domain.JobStatusPending},
		{ID: "b", AreaID: 1, Type: domain.JobTypeAcquisitionExport, Status: domain.JobStatusCompleted},
		{ID: "c", AreaID: 2, Type: domain.JobTypeETLProcessing, Status: domain.JobStatusPending},
	} {
		if err := f.jobs.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/jobs?area_id=1&status=pending", nil)
	recorder := httptest.NewRecorder()
	f.api.Jobs(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	jobs, ok := body["jobs"].([]any)
	if !ok || len(jobs) != 1 {
		t.Fatalf("jobs = %v", body["jobs"])
	}
}

func TestTimeseriesEndpointRewritesTileURLs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	createAreaViaAPI(t, f)

	record := &domain.TimeseriesRecord{
		AreaID:          1,
		Month:           time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
		MeanBrightness:  7.5,
		TilePathPattern: "tiles/1/2023_02/{z}/{x}/{y}.png",
	}
	if err := f.timeseries.Upsert(ctx, record); err != nil {
		t.Fatal(err)
	}

	request := httptest.NewRequest(http.MethodGet, "/v1/areas/1/timeseries?from=2023-01-01&to=2023-12-01", nil)
	recorder := httptest.NewRecorder()
	f.api.AreaSubroutes(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	series, ok := body["timeseries"].([]any)
	if !ok || len(series) != 1 {
		t.Fatalf("timeseries = %v", body["timeseries"])
	}
	item := series[0].(map[string]any)
	if item["month"] != "2023_02" {
		t.Fatalf("month = %v", item["month"])
	}
	pattern, _ := item["tile_path_pattern"].(string)
	if !strings.HasPrefix(pattern, "https://cdn.example.com/tiles/") || !strings.Contains(pattern, "{z}/{x}/{y}.png") {
		t.Fatalf("tile pattern = %q", pattern)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture()
	request := httptest.NewRequest(http.MethodDelete, "/v1/areas", nil)
	recorder := httptest.NewRecorder()
	f.api.Areas(recorder, request)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", recorder.Code)
	}
}
