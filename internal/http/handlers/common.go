package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geolumen/nightlights/internal/domain"
	"github.com/geolumen/nightlights/internal/http/middleware"
	"github.com/geolumen/nightlights/internal/repository"
	"github.com/geolumen/nightlights/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	areasService      *service.AreasService
	exportsService    *service.ExportsService
	jobsService       *service.JobsService
	timeseriesService *service.TimeseriesService
}

func NewAPI(
	areasService *service.AreasService,
	exportsService *service.ExportsService,
	jobsService *service.JobsService,
	timeseriesService *service.TimeseriesService,
) *API {
	return &API{
		areasService:      areasService,
		exportsService:    exportsService,
		jobsService:       jobsService,
		timeseriesService: timeseriesService,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeServiceError maps the common service/repository failures onto HTTP
// responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", notFoundMessage)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "request failed")
	}
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

func parseAreaID(raw string) (int64, error) {
	areaID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || areaID <= 0 {
		return 0, errInvalidPayload
	}
	return areaID, nil
}

// parseOptionalDate accepts YYYY-MM-DD or RFC 3339.
func parseOptionalDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse("2006-01-02", trimmed); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, errInvalidPayload
	}
	return &parsed, nil
}

func jobResponse(job *domain.Job) map[string]any {
	response := map[string]any{
		"job_id":     job.ID,
		"area_id":    job.AreaID,
		"type":       job.Type,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.StartDate != nil {
		response["start_date"] = job.StartDate.Format("2006-01-02")
	}
	if job.EndDate != nil {
		response["end_date"] = job.EndDate.Format("2006-01-02")
	}
	if len(job.Metadata) > 0 {
		response["metadata"] = job.Metadata
	}
	if strings.TrimSpace(job.ErrorMessage) != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorMessage,
		}
	}
	return response
}

func areaResponse(area *domain.Area) map[string]any {
	geometry, _ := area.Geometry.MarshalGeoJSON()
	response := map[string]any{
		"area_id":    area.ID,
		"name":       area.Name,
		"geometry":   json.RawMessage(geometry),
		"created_at": area.CreatedAt,
	}
	if len(area.Metadata) > 0 {
		response["metadata"] = area.Metadata
	}
	return response
}

func timeseriesResponse(record domain.TimeseriesRecord) map[string]any {
	return map[string]any{
		"area_id":           record.AreaID,
		"month":             domain.MonthKey(record.Month),
		"mean_brightness":   record.MeanBrightness,
		"median_brightness": record.MedianBrightness,
		"sum_brightness":    record.SumBrightness,
		"lit_pixel_count":   record.LitPixelCount,
		"lit_percentage":    record.LitPercentage,
		"tile_path_pattern": record.TilePathPattern,
		"raster_path":       record.RasterPath,
		"min_zoom":          record.MinZoom,
		"max_zoom":          record.MaxZoom,
		"bounding_box":      record.BoundingBox,
		"metadata":          record.Metadata,
	}
}
