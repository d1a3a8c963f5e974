package handler

import (
	"context"
	"net/http"
	"time"
)

// DependencyChecker reports the health of each wired backing service.
type DependencyChecker interface {
	DeepHealthCheck(ctx context.Context) map[string]string
}

// HealthHandler serves liveness and dependency-depth health probes.
type HealthHandler struct {
	checker DependencyChecker
}

func NewHealthHandler(checker DependencyChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health handles GET /health, a cheap liveness probe.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "stream-service",
	})
}

// DeepHealth handles GET /health/deep and pings every backing service.
func (h *HealthHandler) DeepHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	checks := h.checker.DeepHealthCheck(ctx)
	status := http.StatusOK
	overall := "healthy"
	for _, result := range checks {
		if result != "healthy" && result != "disabled" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			break
		}
	}

	respondWithJSON(w, status, map[string]interface{}{
		"status":  overall,
		"service": "stream-service",
		"checks":  checks,
	})
}
