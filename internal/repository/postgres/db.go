// Package postgres implements the service repositories on PostgreSQL using
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so a repository can run
// inside a caller's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// uniqueViolation is the SQLSTATE raised for a unique index conflict.
const uniqueViolation = "23505"

// invalidTextRepresentation is raised when a value cannot be cast to the
// column type, e.g. a malformed UUID.
const invalidTextRepresentation = "22P02"

func isUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

// isMalformedKey reports a lookup key that cannot match any row.
func isMalformedKey(err error) bool {
	return hasCode(err, invalidTextRepresentation)
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// rowScanner is the common part of *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
