package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/tracecrud/internal/storage"
)

// Handlers serves the endpoints that are not tied to a resource.
type Handlers struct {
	store     storage.Store
	logger    *slog.Logger
	startedAt time.Time
	version   string
	openapi   []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Store       storage.Store
	Logger      *slog.Logger
	Version     string
	OpenAPISpec []byte // optional; GET /openapi.yaml 404s without it
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		store:     d.Store,
		logger:    d.Logger,
		startedAt: time.Now(),
		version:   d.Version,
		openapi:   d.OpenAPISpec,
	}
}

// HandlePing handles GET /ping. It touches neither the store nor the tracer.
func (h *Handlers) HandlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "pong")
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Uptime   int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "health check: store ping failed", "error", err)
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:   status,
		Version:  h.version,
		Database: dbStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI document.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapi) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapi)
}
