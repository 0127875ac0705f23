package handler

import (
	"context"
	"net/http"

	"github.com/stockflow/stockflow-backend/pkg/httputil"
)

// HealthCheck reports the status of one dependency. The map carries at least
// a "status" key of "up" or "down".
type HealthCheck func(ctx context.Context) map[string]string

// HealthHandler reports service liveness and dependency status
type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{service: service, checks: checks}
}

// Check runs every dependency check
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": h.service,
	}
	code := http.StatusOK
	for name, check := range h.checks {
		res := check(r.Context())
		body[name] = res
		if res["status"] != "up" {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	httputil.JSON(w, code, body)
}
