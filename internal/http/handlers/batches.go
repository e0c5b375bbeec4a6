package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aaronfeingold/invoice-track/internal/aggregate"
	"github.com/aaronfeingold/invoice-track/internal/domain"
	"github.com/aaronfeingold/invoice-track/internal/submit"
)

type batchRequest struct {
	Items   []domain.BatchItem   `json:"items"`
	Options domain.SubmitOptions `json:"options"`
}

// Batches serves POST /v1/batches. An Idempotency-Key header makes a
// retried submission replay the original job IDs instead of creating a
// second batch; a reused key with a different payload is rejected.
func (api *API) Batches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request batchRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if err := domain.ValidateItems(request.Items); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := request.Options.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "confidence_threshold must be in [0,1] and model_provider must be a known provider")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	payloadHash := hashPayload(request)
	if idempotencyKey != "" {
		if entry, ok := api.idempotency.Get(idempotencyKey); ok {
			if entry.PayloadHash != payloadHash {
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"job_ids": entry.JobIDs, "replayed": true})
			return
		}
	}

	result, err := api.orchestrator.Submit(r.Context(), request.Items, request.Options)
	if err != nil {
		switch {
		case errors.Is(err, submit.ErrNotConnected):
			writeError(w, r, http.StatusServiceUnavailable, "not_connected", "event session is not connected")
		case errors.Is(err, domain.ErrInvalidOptions):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid processing options")
		default:
			if api.logger != nil {
				api.logger.Printf("handlers: batch submission failed: %v", err)
			}
			writeError(w, r, http.StatusBadGateway, "submission_failed", "batch creation failed; no jobs were created")
		}
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Put(idempotencyKey, payloadHash, result.JobIDs)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job_ids": result.JobIDs})
}

// BatchProgress serves GET /v1/batches/progress?ids=j1,j2 with the
// aggregate view for one submission's jobs.
func (api *API) BatchProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "ids query parameter is required")
		return
	}
	jobIDs := make([]string, 0, 8)
	for _, id := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			jobIDs = append(jobIDs, trimmed)
		}
	}

	result := aggregate.ForBatch(api.registry.Snapshot(), jobIDs)
	writeJSON(w, http.StatusOK, result)
}
