// Package http provides the HTTP server and handlers for the certificate IdP.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/openclave/certidp/internal/ca"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	caStore *ca.Store
}

// NewHealthHandler creates a new HealthHandler. A nil ca.Store reports
// ready unconditionally.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// WithCAStore makes readiness reflect whether the CA hierarchy exists.
func (h *HealthHandler) WithCAStore(caStore *ca.Store) *HealthHandler {
	h.caStore = caStore
	return h
}

// Healthz handles the /healthz endpoint.
// Returns 200 OK if the server is alive.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readyz handles the /readyz endpoint. The service is ready once it can
// serve its core purpose, which requires an initialized CA; before that
// only the admin init endpoint is useful.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.caStore != nil {
		initialized, err := h.caStore.Initialized(r.Context())
		if err != nil || !initialized {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "not ready",
				"reason": "certificate authority not initialized",
			})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
