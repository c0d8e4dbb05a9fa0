package handler

import (
	"net/http"

	natsclient "github.com/zuora-seed/catalog-assistant/internal/nats"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	nats *natsclient.Client
}

// NewHealthHandler creates a health handler. The NATS client may be nil when
// no event feed is configured.
func NewHealthHandler(nats *natsclient.Client) *HealthHandler {
	return &HealthHandler{nats: nats}
}

// Health reports process liveness.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness. A configured but disconnected event feed makes
// the service not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.nats != nil && !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "event feed disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
