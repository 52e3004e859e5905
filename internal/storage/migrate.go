package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// RunMigrations executes unapplied SQL migration files from the provided filesystem in order.
// It tracks applied migrations in a schema_migrations table to ensure each file runs at most once.
// This is a simple forward-only migration runner for development and testing.
// The DDL it issues is portable across the Postgres and SQLite stores.
func RunMigrations(ctx context.Context, store Store, migrationsFS fs.FS, logger *slog.Logger) error {
	// Ensure the tracking table exists. This is idempotent.
	if _, err := store.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`, nil); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := loadAppliedMigrations(ctx, store)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		name := entry.Name()
		if applied[name] {
			logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		logger.Info("running migration", "file", name, "system", store.System())
		if _, err := store.Exec(ctx, string(content), nil); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}

		if _, err := store.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES (@version) ON CONFLICT DO NOTHING`,
			Params{"version": name},
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}

	return nil
}

// loadAppliedMigrations returns the set of migration filenames already recorded
// in the schema_migrations table.
func loadAppliedMigrations(ctx context.Context, store Store) (map[string]bool, error) {
	rows, err := store.Query(ctx, `SELECT version FROM schema_migrations`, nil)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(rows))
	for _, row := range rows {
		switch v := row["version"].(type) {
		case string:
			applied[v] = true
		case []byte:
			applied[string(v)] = true
		}
	}
	return applied, nil
}
