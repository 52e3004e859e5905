// Package tracecrud is the public API for embedding the traced CRUD server.
//
//	app, err := tracecrud.New(
//	    tracecrud.WithVersion(version),
//	    tracecrud.WithLogger(logger),
//	    tracecrud.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph is one-way: tracecrud (root) imports internal/*, but
// internal/* never imports tracecrud (root).
package tracecrud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/tracecrud/api"
	"github.com/ashita-ai/tracecrud/internal/config"
	"github.com/ashita-ai/tracecrud/internal/ratelimit"
	"github.com/ashita-ai/tracecrud/internal/resource"
	"github.com/ashita-ai/tracecrud/internal/server"
	"github.com/ashita-ai/tracecrud/internal/storage"
	"github.com/ashita-ai/tracecrud/internal/telemetry"
	"github.com/ashita-ai/tracecrud/migrations"
)

// App is the server lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg       config.Config
	store     storage.Store
	ownsStore bool
	srv       *server.Server
	limiter   ratelimit.Limiter
	providers *telemetry.Providers
	logger    *slog.Logger
	version   string

	shutdownOnce sync.Once
	shutdownErr  error
}

// New loads configuration, connects the store, runs migrations and wires the
// resource services and HTTP server. It does NOT accept HTTP connections;
// call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		cfg.DatabaseDriver = config.DriverPostgres
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tracecrud starting", "version", version, "port", cfg.Port, "driver", cfg.DatabaseDriver)

	ctx := context.Background()
	providers, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	var tp trace.TracerProvider = providers.TracerProvider
	if o.tracerProvider != nil {
		tp = o.tracerProvider
	}
	var mp metric.MeterProvider = providers.MeterProvider
	if o.meterProvider != nil {
		mp = o.meterProvider
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    logger,
		version:   version,
	}

	if o.store != nil {
		a.store = o.store
	} else {
		store, err := openStore(ctx, cfg, logger)
		if err != nil {
			_ = providers.Shutdown(ctx)
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.store = store
		a.ownsStore = true
	}

	if pg, ok := a.store.(*storage.Postgres); ok {
		if err := pg.RegisterPoolMetrics(mp.Meter("tracecrud/storage")); err != nil {
			logger.Warn("pool metrics unavailable", "error", err)
		}
	}

	if cfg.SkipMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := runMigrations(ctx, a.store, logger); err != nil {
		a.release(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	recorder := telemetry.NewOTelRecorder(tp.Tracer(cfg.ServiceName))
	meter := mp.Meter("tracecrud/resource")

	users, err := resource.NewService(resource.Users(), a.store, recorder, resource.WithMeter(meter))
	if err != nil {
		a.release(ctx)
		return nil, err
	}
	products, err := resource.NewService(resource.Products(), a.store, recorder, resource.WithMeter(meter))
	if err != nil {
		a.release(ctx)
		return nil, err
	}

	if cfg.RateLimitEnabled {
		a.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting enabled", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	}

	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}
	registrars := o.routeRegistrars

	srvCfg := server.ServerConfig{
		Store:               a.store,
		Users:               users,
		Products:            products,
		Logger:              logger,
		TracerProvider:      tp,
		MeterProvider:       mp,
		Limiter:             a.limiter,
		Middlewares:         middlewares,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	}
	if len(registrars) > 0 {
		srvCfg.ExtraRoutes = func(mux *http.ServeMux) {
			for _, register := range registrars {
				register(mux)
			}
		}
	}
	a.srv = server.New(srvCfg)

	return a, nil
}

// Handler returns the root HTTP handler, for tests and for mounting the app
// inside another server.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// the App down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, then releases the limiter, the
// store (when the App opened it) and the telemetry providers. Safe to call
// more than once; later calls return the first result.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		a.logger.Info("tracecrud shutting down")
		var errs []error
		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Error("http shutdown error", "error", err)
			errs = append(errs, err)
		}
		if a.limiter != nil {
			_ = a.limiter.Close()
		}
		a.release(ctx)
		a.logger.Info("tracecrud stopped")
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}

// release closes the owned store and flushes telemetry.
func (a *App) release(ctx context.Context) {
	if a.ownsStore && a.store != nil {
		a.store.Close()
	}
	if err := a.providers.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown error", "error", err)
	}
}

// openStore connects the database selected by cfg.DatabaseDriver.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.DatabaseDriver == config.DriverSQLite {
		s, err := storage.NewSQLite(ctx, cfg.SQLitePath, cfg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "dsn", cfg.SQLitePath)
		return s, nil
	}
	p, err := storage.NewPostgres(ctx, cfg.DatabaseURL, int32(cfg.MaxOpenConns), logger) //nolint:gosec // small positive from config
	if err != nil {
		return nil, err
	}
	return p, nil
}

func runMigrations(ctx context.Context, store storage.Store, logger *slog.Logger) error {
	dir, err := migrations.For(store.System())
	if err != nil {
		return err
	}
	return storage.RunMigrations(ctx, store, dir, logger)
}
