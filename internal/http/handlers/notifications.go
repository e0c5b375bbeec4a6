package handlers

import (
	"net/http"
	"strings"
)

// Unread serves GET /v1/notifications/unread. With ?refresh=true the
// backend's authoritative count is pulled first and wins over the local
// counter.
func (api *API) Unread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	if r.URL.Query().Get("refresh") == "true" {
		if err := api.notifier.Refresh(r.Context()); err != nil && api.logger != nil {
			// Serve the local value; the next refresh reconciles.
			api.logger.Printf("handlers: unread refresh failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread_count": api.notifier.Unread()})
}

type markReadRequest struct {
	JobID string `json:"job_id,omitempty"`
}

// MarkRead serves POST /v1/notifications/mark-as-read. An empty body or
// empty job_id marks everything read.
func (api *API) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request markReadRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &request); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
			return
		}
	}

	var err error
	if strings.TrimSpace(request.JobID) == "" {
		err = api.notifier.MarkAllRead(r.Context())
	} else {
		err = api.notifier.MarkJobRead(r.Context(), request.JobID)
	}
	if err != nil && api.logger != nil {
		// Local counter already updated optimistically.
		api.logger.Printf("handlers: mark-as-read confirmation failed: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"unread_count": api.notifier.Unread()})
}

// Recent serves GET /v1/notifications/recent, newest first.
func (api *API) Recent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": api.notifier.Recent()})
}
