package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/geolumen/nightlights/internal/service"
)

type createAreaRequest struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

type createExportRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// Areas handles the /v1/areas collection.
func (api *API) Areas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.createArea(w, r)
	case http.MethodGet:
		api.listAreas(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// AreaSubroutes dispatches /v1/areas/{id}, /v1/areas/{id}/export and
// /v1/areas/{id}/timeseries.
func (api *API) AreaSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/areas/")
	idPart, action, _ := strings.Cut(strings.Trim(rest, "/"), "/")
	areaID, err := parseAreaID(idPart)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "area id must be a positive integer")
		return
	}

	switch action {
	case "":
		api.getArea(w, r, areaID)
	case "export":
		api.createExport(w, r, areaID)
	case "timeseries":
		api.listTimeseries(w, r, areaID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (api *API) createArea(w http.ResponseWriter, r *http.Request) {
	var request createAreaRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	area, err := api.areasService.Create(r.Context(), service.CreateAreaInput{
		Name:     request.Name,
		Geometry: request.Geometry,
		Metadata: request.Metadata,
	})
	if err != nil {
		writeServiceError(w, r, err, "area not found")
		return
	}
	writeJSON(w, http.StatusCreated, areaResponse(area))
}

func (api *API) listAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := api.areasService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "area not found")
		return
	}
	items := make([]map[string]any, 0, len(areas))
	for _, area := range areas {
		items = append(items, areaResponse(area))
	}
	writeJSON(w, http.StatusOK, map[string]any{"areas": items})
}

func (api *API) getArea(w http.ResponseWriter, r *http.Request, areaID int64) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	area, err := api.areasService.Get(r.Context(), areaID)
	if err != nil {
		writeServiceError(w, r, err, "area not found")
		return
	}
	writeJSON(w, http.StatusOK, areaResponse(area))
}

func (api *API) createExport(w http.ResponseWriter, r *http.Request, areaID int64) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request createExportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	start, err := parseOptionalDate(request.StartDate)
	if err != nil || start == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "start_date is required (YYYY-MM-DD)")
		return
	}
	var end *time.Time
	if end, err = parseOptionalDate(request.EndDate); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "end_date must be YYYY-MM-DD")
		return
	}

	job, err := api.exportsService.CreateExport(r.Context(), areaID, *start, end)
	if err != nil {
		writeServiceError(w, r, err, "area not found")
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse(job))
}

func (api *API) listTimeseries(w http.ResponseWriter, r *http.Request, areaID int64) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	from, err := parseOptionalDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "from must be YYYY-MM-DD")
		return
	}
	to, err := parseOptionalDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "to must be YYYY-MM-DD")
		return
	}

	records, err := api.timeseriesService.ListByArea(r.Context(), areaID, from, to)
	if err != nil {
		writeServiceError(w, r, err, "area not found")
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, timeseriesResponse(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"area_id": areaID, "timeseries": items})
}
