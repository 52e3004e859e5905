package tracecrud

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Callers use the With* functions.
type resolvedOptions struct {
	port            int
	databaseURL     string
	logger          *slog.Logger
	version         string
	store           Store
	tracerProvider  trace.TracerProvider
	meterProvider   metric.MeterProvider
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// WithPort overrides the TCP port from config (TRACECRUD_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the Postgres connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, a JSON logger on stdout at TRACECRUD_LOG_LEVEL is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithStore supplies the store instead of opening the configured database.
// The App does not close a supplied store.
func WithStore(s Store) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithTracerProvider replaces the OTLP tracer provider built from config.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *resolvedOptions) { o.tracerProvider = tp }
}

// WithMeterProvider replaces the OTLP meter provider built from config.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *resolvedOptions) { o.meterProvider = mp }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an HTTP middleware around the routed handler.
// Applied in registration order: the first-registered middleware is outermost.
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
