package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/tracecrud/internal/ratelimit"
	"github.com/ashita-ai/tracecrud/internal/resource"
	"github.com/ashita-ai/tracecrud/internal/storage"
)

// Server is the tracecrud HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): TracerProvider, MeterProvider, Limiter,
// Middlewares, ExtraRoutes, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store    storage.Store
	Users    *resource.Service[int64]
	Products *resource.Service[uuid.UUID]
	Logger   *slog.Logger

	// Optional dependencies (nil = global providers / disabled).
	TracerProvider trace.TracerProvider
	MeterProvider  otelmetric.MeterProvider
	Limiter        ratelimit.Limiter

	// Middlewares wrap the mux inside the built-in chain, first listed outermost.
	Middlewares []func(http.Handler) http.Handler
	// ExtraRoutes registers additional routes on the mux.
	ExtraRoutes func(mux *http.ServeMux)

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// OpenAPISpec is served at GET /openapi.yaml when non-empty.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Store:       cfg.Store,
		Logger:      cfg.Logger,
		Version:     cfg.Version,
		OpenAPISpec: cfg.OpenAPISpec,
	})
	users := NewResourceHandlers(cfg.Users, cfg.Logger, cfg.MaxRequestBodyBytes)
	products := NewResourceHandlers(cfg.Products, cfg.Logger, cfg.MaxRequestBodyBytes)

	mux := http.NewServeMux()

	// Liveness and health (never rate limited).
	mux.HandleFunc("GET /ping", h.HandlePing)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	users.Register(mux)
	products.Register(mux)
	mux.HandleFunc("GET /products/{id}/quantity", products.HandleField("quantity"))

	if cfg.ExtraRoutes != nil {
		cfg.ExtraRoutes(mux)
	}

	var handler http.Handler = unmatchedJSONMiddleware(mux, mux)
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → rate limit → recovery → handler.
	handler = recoveryMiddleware(cfg.Logger, handler)
	if cfg.Limiter != nil {
		handler = ratelimit.Middleware(cfg.Limiter, rateLimitKey, cfg.Logger)(handler)
	}
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(newHTTPTelemetry(cfg.TracerProvider, cfg.MeterProvider), mux, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// rateLimitKey exempts the liveness endpoints and keys everything else by IP.
func rateLimitKey(r *http.Request) string {
	if r.URL.Path == "/ping" || r.URL.Path == "/health" {
		return ""
	}
	return ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
