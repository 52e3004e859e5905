// Package migrations embeds SQL migration files for use at runtime.
// Migrations are embedded so they work regardless of working directory.
// Each supported store dialect has its own directory.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

// FS is the embedded migrations filesystem.
// Contains postgres/*.sql and sqlite/*.sql (e.g. postgres/001_initial.sql).
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// For returns the migration directory for a store system name as reported
// by storage.Store.System ("postgresql" or "sqlite").
func For(system string) (fs.FS, error) {
	switch system {
	case "postgresql":
		return fs.Sub(FS, "postgres")
	case "sqlite":
		return fs.Sub(FS, "sqlite")
	default:
		return nil, fmt.Errorf("migrations: no migrations for system %q", system)
	}
}
