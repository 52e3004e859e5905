package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Failure classes reported by Classify. They are low-cardinality and safe to
// use as span attributes and metric labels.
const (
	FailureConstraint = "constraint_violation"
	FailureConnection = "connection"
	FailureCanceled   = "canceled"
	FailureTimeout    = "timeout"
	FailureStatement  = "statement"
)

// Classify maps a store error onto one of the Failure* classes.
func Classify(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return FailureTimeout
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return FailureConnection
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"): // integrity_constraint_violation
			return FailureConstraint
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return FailureConnection
		default:
			return FailureStatement
		}
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return FailureConstraint
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_BUSY, sqlite3.SQLITE_IOERR:
			return FailureConnection
		default:
			return FailureStatement
		}
	}

	if strings.Contains(err.Error(), "sql: database is closed") || strings.Contains(err.Error(), "closed pool") {
		return FailureConnection
	}
	return FailureStatement
}
