package tracecrud

import (
	"context"
	"net/http"
)

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the middleware chain and OTEL instrumentation with the
// built-in resource routes. It is called once during New after those routes
// are registered.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the routed handler. It runs inside the built-in chain, so
// requests already carry a request ID and a server span.
// Multiple middlewares are applied in registration order (first-registered = outermost).
type Middleware func(http.Handler) http.Handler

// Store is the data-access capability behind the resource services. Supply
// one with WithStore to bypass the configured database driver.
// Statements use @name placeholders bound from params.
type Store interface {
	Exec(ctx context.Context, statement string, params map[string]any) (int64, error)
	Query(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error)
	Ping(ctx context.Context) error
	System() string
	Close()
}
