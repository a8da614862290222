package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// probeTimeout bounds each dependency check so a hung backend cannot stall
// the health endpoint.
const probeTimeout = 2 * time.Second

// Probe checks one backing dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// HealthHandler serves the health-check endpoint with per-dependency status.
type HealthHandler struct {
	probes map[string]Probe
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. Probes are keyed by dependency
// name (for example "postgres", "redis") and may be nil when the deployment
// has nothing to check.
func NewHealthHandler(logger *slog.Logger, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{probes: probes, logger: logger}
}

// HealthCheck reports overall service health. The endpoint returns 200 as
// long as the process serves traffic and 503 when any dependency probe
// fails, so load balancers drain instances with a broken backend.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.probes))

	for name, probe := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := probe(ctx)
		cancel()

		if err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			h.logger.Warn("health probe failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}
