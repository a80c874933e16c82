package handlers

import (
	"net/http"
	"time"

	"manimd/internal/httpkit"
)

// Health is a liveness probe. It deliberately checks no dependencies;
// the render and notification collaborators are reached lazily per job.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "manimd",
		"version":   Version,
		"jobs":      h.store.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
