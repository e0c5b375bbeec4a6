package handlers

import "net/http"

// Health reports process liveness only; event-connection health is on
// /v1/summary so a disconnected session never fails a health probe.
func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
