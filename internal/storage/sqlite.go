package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SystemSQLite is the db.system value reported by SQLite.
const SystemSQLite = "sqlite"

// SQLite implements Store on a sqlx.DB backed by the modernc SQLite driver.
type SQLite struct {
	db *sqlx.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens dsn (a file path or "file:" URI) and verifies it with a ping.
// In-memory databases are pinned to a single connection: every new
// connection to ":memory:" would otherwise see its own empty database.
func NewSQLite(ctx context.Context, dsn string, maxOpenConns int) (*SQLite, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || maxOpenConns <= 0 {
		maxOpenConns = 1
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: enable sqlite foreign keys: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB returns the underlying sqlx handle.
func (s *SQLite) DB() *sqlx.DB {
	return s.db
}

// Exec runs statement with params bound as sql.NamedArg values.
func (s *SQLite) Exec(ctx context.Context, statement string, params Params) (int64, error) {
	res, err := s.db.ExecContext(ctx, statement, sqlNamedArgs(params)...)
	if err != nil {
		return 0, fmt.Errorf("storage: exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage: rows affected: %w", err)
	}
	return n, nil
}

// Query runs statement and scans every row into a column-keyed map.
func (s *SQLite) Query(ctx context.Context, statement string, params Params) ([]Row, error) {
	rows, err := s.db.QueryxContext(ctx, statement, sqlNamedArgs(params)...)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		out = append(out, Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate rows: %w", err)
	}
	return out, nil
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// System returns "sqlite".
func (s *SQLite) System() string { return SystemSQLite }

// Close closes the database handle.
func (s *SQLite) Close() {
	_ = s.db.Close()
}

// sqlNamedArgs converts params to sql.NamedArg values in key order so the
// driver binds them to the matching @name placeholders.
func sqlNamedArgs(params Params) []any {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = sql.Named(k, params[k])
	}
	return args
}
