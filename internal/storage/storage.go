// Package storage provides the relational store behind the resource services.
//
// Two implementations satisfy Store: Postgres (pgxpool, for deployments) and
// SQLite (database/sql through sqlx with the pure-Go modernc driver, for local
// runs and tests). Statements use @name placeholders and every Params key must
// match a placeholder in the statement exactly.
package storage

import "context"

// Params maps placeholder names (without the leading '@') to bound values.
type Params = map[string]any

// Row is a single result row keyed by column name.
type Row = map[string]any

// Store executes single parameterized statements. Implementations must be safe
// for concurrent use; pooling is their concern, not the caller's.
type Store interface {
	// Exec runs a statement that returns no rows and reports the affected-row count.
	Exec(ctx context.Context, statement string, params Params) (int64, error)

	// Query runs a statement and returns all result rows. An empty result is
	// not an error.
	Query(ctx context.Context, statement string, params Params) ([]Row, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// System names the database product using OpenTelemetry db.system values.
	System() string

	// Close releases pooled connections.
	Close()
}
