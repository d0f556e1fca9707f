// Package handler holds the HTTP handlers for the operational endpoints.
// All product interaction happens over Socket Mode; this surface exists for
// orchestrators and scrapers only.
package handler

import (
	"encoding/json"
	"net/http"
)

// Readiness reports whether the bot's Slack connection is up.
type Readiness interface {
	Connected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	readiness Readiness
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(readiness Readiness) *HealthHandler {
	return &HealthHandler{
		readiness: readiness,
	}
}

// Health handles GET /health. Liveness only: the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil || !h.readiness.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "Slack Socket Mode not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
