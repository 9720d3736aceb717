// Package store owns the State Store connection: opening the database for
// either supported driver, the schema lifecycle, and instrumented query
// helpers used by the service layer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/metrics"
)

const (
	// DriverSQLite selects the embedded modernc.org/sqlite backend.
	DriverSQLite = "sqlite"

	// DriverPostgres selects PostgreSQL through the pgx stdlib adapter.
	DriverPostgres = "postgres"
)

// Store wraps a database handle with placeholder rebinding and query metrics.
type Store struct {
	db      *sql.DB
	driver  string
	profile config.Profile
	logger  *zap.Logger
}

// Open connects to the database described by cfg and verifies the connection.
//
// For sqlite, a bare path is expanded into a DSN with WAL journaling, a busy
// timeout and foreign keys enabled. In-memory sqlite databases are limited to
// a single connection so every query sees the same database.
//
// Parameters:
//   - ctx: Context for the initial ping
//   - cfg: Driver and DSN
//   - profile: Runtime profile, consulted by RecreateSchema
//   - logger: Logger for lifecycle messages
//
// Returns:
//   - *Store: Open store
//   - error: Unsupported driver or connection failure
func Open(ctx context.Context, cfg config.DatabaseConfig, profile config.Profile, logger *zap.Logger) (*Store, error) {
	var (
		driverName string
		dsn        = cfg.DSN
		memory     bool
	)

	switch cfg.Driver {
	case DriverSQLite, "":
		driverName = "sqlite"
		memory = strings.Contains(dsn, ":memory:")
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
			if !memory {
				dsn += "&_pragma=journal_mode(WAL)"
			}
		}
	case DriverPostgres:
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	logger.Info("database connection established", zap.String("driver", driver))

	return &Store{db: db, driver: driver, profile: profile, logger: logger}, nil
}

// OpenMemory opens a migrated in-memory sqlite store, for tests and tooling.
func OpenMemory(ctx context.Context, profile config.Profile, logger *zap.Logger) (*Store, error) {
	s, err := Open(ctx, config.DatabaseConfig{Driver: DriverSQLite, DSN: ":memory:"}, profile, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// DB exposes the underlying handle for tooling that needs raw access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Rebind rewrites ? placeholders into the driver's native form.
func (s *Store) Rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ExecContext runs a statement outside a transaction.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, s.Rebind(query), args...)
	s.observe(query, start, err)
	return res, err
}

// QueryContext runs a query outside a transaction.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	res, err := s.db.QueryContext(ctx, s.Rebind(query), args...)
	s.observe(query, start, err)
	return res, err
}

// QueryRowContext runs a single-row query outside a transaction.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := s.db.QueryRowContext(ctx, s.Rebind(query), args...)
	s.observe(query, start, row.Err())
	return row
}

// BeginTx starts a transaction. Callers defer Rollback and call Commit.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.DBQueriesTotal.WithLabelValues("begin", "error").Inc()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, store: s}, nil
}

// Tx is a transaction with the same rebinding and metrics as Store.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// ExecContext runs a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := t.tx.ExecContext(ctx, t.store.Rebind(query), args...)
	t.store.observe(query, start, err)
	return res, err
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	res, err := t.tx.QueryContext(ctx, t.store.Rebind(query), args...)
	t.store.observe(query, start, err)
	return res, err
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.tx.QueryRowContext(ctx, t.store.Rebind(query), args...)
	t.store.observe(query, start, row.Err())
	return row
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		metrics.DBQueriesTotal.WithLabelValues("commit", "error").Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Querier is satisfied by both Store and Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) observe(query string, start time.Time, err error) {
	op := operation(query)
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.DBQueriesTotal.WithLabelValues(op, status).Inc()
	metrics.RecordDBStats(s.db.Stats())
}

// operation returns the lowercased leading SQL keyword, used as a metric label.
func operation(query string) string {
	q := strings.TrimSpace(query)
	if i := strings.IndexAny(q, " \t\n"); i > 0 {
		q = q[:i]
	}
	switch op := strings.ToLower(q); op {
	case "select", "insert", "update", "delete", "create", "drop", "vacuum", "analyze":
		return op
	default:
		return "other"
	}
}
