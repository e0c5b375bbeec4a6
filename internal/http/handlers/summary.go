package handlers

import (
	"net/http"

	"github.com/aaronfeingold/invoice-track/internal/aggregate"
)

// Summary serves GET /v1/summary: dashboard tiles plus connection state.
// A down session shows up here as connected=false, never as an error.
func (api *API) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	records := api.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs_total":    len(records),
		"status_counts": aggregate.StatusCounts(records),
		"connection": map[string]any{
			"connected":     api.session.Connected(),
			"subscriptions": api.session.SubscriptionCount(),
		},
		"unread_count": api.notifier.Unread(),
	})
}
