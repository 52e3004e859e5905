package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
)

// SystemPostgres is the db.system value reported by Postgres.
const SystemPostgres = "postgresql"

// Initial ping retry policy.
const (
	connectRetries   = 4
	connectBaseDelay = 250 * time.Millisecond
)

// Postgres implements Store on a pgxpool.Pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a connection pool for dsn and verifies it with a ping.
// maxConns <= 0 keeps the pgxpool default.
func NewPostgres(ctx context.Context, dsn string, maxConns int32, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	// The database may still be starting (compose, fresh containers).
	if err := WithRetry(ctx, connectRetries, connectBaseDelay, func() error {
		return pool.Ping(ctx)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Exec runs statement with params bound as pgx.NamedArgs.
// Without params the statement goes over the simple protocol, which allows
// multi-statement scripts such as migrations.
func (p *Postgres) Exec(ctx context.Context, statement string, params Params) (int64, error) {
	tag, err := p.pool.Exec(ctx, statement, namedArgs(params)...)
	if err != nil {
		return 0, fmt.Errorf("storage: exec: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Query runs statement and collects every row into a column-keyed map.
func (p *Postgres) Query(ctx context.Context, statement string, params Params) ([]Row, error) {
	rows, err := p.pool.Query(ctx, statement, namedArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("storage: collect rows: %w", err)
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

// Ping checks connectivity to the database.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// System returns "postgresql".
func (p *Postgres) System() string { return SystemPostgres }

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// RegisterPoolMetrics exports pgxpool statistics as observable gauges.
func (p *Postgres) RegisterPoolMetrics(meter metric.Meter) error {
	acquired, err := meter.Int64ObservableGauge("db.pool.acquired_conns",
		metric.WithDescription("Connections currently checked out of the pool"))
	if err != nil {
		return fmt.Errorf("storage: acquired gauge: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("db.pool.idle_conns",
		metric.WithDescription("Idle connections in the pool"))
	if err != nil {
		return fmt.Errorf("storage: idle gauge: %w", err)
	}
	total, err := meter.Int64ObservableGauge("db.pool.total_conns",
		metric.WithDescription("Total connections owned by the pool"))
	if err != nil {
		return fmt.Errorf("storage: total gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := p.pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		o.ObserveInt64(total, int64(stat.TotalConns()))
		return nil
	}, acquired, idle, total)
	if err != nil {
		return fmt.Errorf("storage: register pool callback: %w", err)
	}
	return nil
}

// namedArgs returns no arguments for an empty params map so pgx keeps the
// simple protocol; otherwise a single pgx.NamedArgs.
func namedArgs(params Params) []any {
	if len(params) == 0 {
		return nil
	}
	return []any{pgx.NamedArgs(params)}
}
