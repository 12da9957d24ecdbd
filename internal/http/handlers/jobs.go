package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/geolumen/nightlights/internal/domain"
)

// Jobs handles GET /v1/jobs with optional area_id, status and type filters.
func (api *API) Jobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	filter := domain.JobFilter{
		Status: domain.JobStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Type:   domain.JobType(strings.TrimSpace(r.URL.Query().Get("type"))),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("area_id")); raw != "" {
		areaID, err := parseAreaID(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "area_id must be a positive integer")
			return
		}
		filter.AreaID = areaID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	jobs, err := api.jobsService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "job not found")
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobResponse(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": items})
}

// JobStatus handles GET /v1/jobs/{id}.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
	if jobID == "" {
		api.Jobs(w, r)
		return
	}

	job, err := api.jobsService.Get(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, r, err, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}
