package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/registry"
)

type jobView struct {
	JobID       string           `json:"job_id"`
	DisplayName string           `json:"display_name"`
	Status      domain.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	Stage       string           `json:"stage,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

func toJobView(record domain.JobRecord) jobView {
	return jobView{
		JobID:       record.ID,
		DisplayName: record.DisplayName,
		Status:      record.Status,
		Progress:    record.Progress,
		Stage:       record.Stage,
		Result:      record.Result,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   record.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// Jobs serves GET /v1/jobs (tracked jobs in submission order) and
// DELETE /v1/jobs (dismiss all local tracking).
func (api *API) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := api.registry.Snapshot()
		views := make([]jobView, 0, len(records))
		for _, record := range records {
			views = append(views, toJobView(record))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
	case http.MethodDelete:
		api.registry.Clear()
		writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// JobDetail serves GET /v1/jobs/{id}, including the raw update log for
// audit and detail views.
func (api *API) JobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	jobID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	record, err := api.registry.Get(jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "job not tracked")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		return
	}

	response := map[string]any{
		"job":     toJobView(record),
		"updates": record.Updates,
	}
	writeJSON(w, http.StatusOK, response)
}
