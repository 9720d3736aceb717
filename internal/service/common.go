// Package service implements entity CRUD over the State Store.
//
// Services own the SQL for their tables and coordinate with the identifier
// allocator: identifiers are reserved before a row is written and released
// only after the row that held them is gone.
package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueConstraint reports whether err is a unique constraint violation.
// SQLite says "UNIQUE constraint failed", PostgreSQL "violates unique constraint".
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

func now() int64 {
	return time.Now().UTC().Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// notFoundOr maps sql.ErrNoRows to notFound and wraps anything else.
func notFoundOr(err, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
