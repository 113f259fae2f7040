package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Version is the application version, set at build time via
// -ldflags "-X nodelock/internal/transport/http.Version=...".
var Version = "dev"

// HealthHandler serves liveness and version endpoints. Both stay
// outside the license gate so an unlicensed installation can still be
// probed and activated.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// Health answers GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// VersionInfo answers GET /api/version.
func (h *HealthHandler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"version": Version,
	})
}
