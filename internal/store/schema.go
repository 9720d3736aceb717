package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/models"
)

// Tables lists every table in dependency order, parents first.
var Tables = []string{
	"datacenters",
	"device_configs",
	"workspaces",
	"virtual_networks",
}

// migration is a named, idempotent schema statement.
type migration struct {
	name string
	sql  string
}

// Both drivers accept this DDL: TEXT ids, BIGINT unix timestamps, and
// UNIQUE constraints that treat NULL tags as distinct.
var migrations = []migration{
	{
		name: "001_create_datacenters",
		sql: `
			CREATE TABLE IF NOT EXISTS datacenters (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				address_min INTEGER NOT NULL,
				address_max INTEGER NOT NULL,
				tag_min INTEGER NOT NULL,
				tag_max INTEGER NOT NULL,
				cluster TEXT NOT NULL DEFAULT 'default',
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)
		`,
	},
	{
		name: "002_create_device_configs",
		sql: `
			CREATE TABLE IF NOT EXISTS device_configs (
				id TEXT PRIMARY KEY,
				datacenter_id TEXT NOT NULL,
				name TEXT NOT NULL,
				payload TEXT NOT NULL DEFAULT '{}',
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				UNIQUE (datacenter_id, name),
				FOREIGN KEY (datacenter_id) REFERENCES datacenters(id) ON DELETE CASCADE
			)
		`,
	},
	{
		name: "003_create_workspaces",
		sql: `
			CREATE TABLE IF NOT EXISTS workspaces (
				id TEXT PRIMARY KEY,
				datacenter_id TEXT NOT NULL,
				address INTEGER NOT NULL,
				name TEXT NOT NULL,
				status TEXT,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				UNIQUE (datacenter_id, address),
				FOREIGN KEY (datacenter_id) REFERENCES datacenters(id) ON DELETE CASCADE
			)
		`,
	},
	{
		name: "004_create_virtual_networks",
		sql: `
			CREATE TABLE IF NOT EXISTS virtual_networks (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				datacenter_id TEXT NOT NULL,
				net_index INTEGER NOT NULL,
				tag INTEGER,
				overlay_id TEXT,
				name TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL,
				UNIQUE (workspace_id, net_index),
				UNIQUE (datacenter_id, tag),
				FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE,
				FOREIGN KEY (datacenter_id) REFERENCES datacenters(id) ON DELETE CASCADE
			)
		`,
	},
	{
		name: "005_index_workspaces_datacenter",
		sql:  `CREATE INDEX IF NOT EXISTS idx_workspaces_datacenter ON workspaces (datacenter_id)`,
	},
	{
		name: "006_index_networks_workspace",
		sql:  `CREATE INDEX IF NOT EXISTS idx_virtual_networks_workspace ON virtual_networks (workspace_id)`,
	},
	{
		name: "007_index_datacenters_cluster",
		sql:  `CREATE INDEX IF NOT EXISTS idx_datacenters_cluster ON datacenters (cluster)`,
	},
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	s.logger.Debug("schema migrated", zap.Int("migrations", len(migrations)))
	return nil
}

// RowCounts returns the number of rows in each table.
func (s *Store) RowCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(Tables))
	for _, table := range Tables {
		var n int64
		if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: count %s: %v", models.ErrDatabaseError, table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Populated reports whether any table holds rows.
func (s *Store) Populated(ctx context.Context) (bool, error) {
	counts, err := s.RowCounts(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range counts {
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

// RecreateSchema drops every table and creates the schema again.
//
// In the production profile a populated store is only reset when confirm is
// true; otherwise ErrConfirmationRequired is returned and nothing changes.
// Repeating the call on an empty store is harmless.
//
// Parameters:
//   - ctx: Context for cancellation
//   - confirm: Explicit operator confirmation
//
// Returns:
//   - error: ErrConfirmationRequired, ErrStoreNotEmpty if any table still has
//     rows afterwards, or a database error
func (s *Store) RecreateSchema(ctx context.Context, confirm bool) error {
	// Tables may not exist yet on a fresh database.
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	if s.profile == config.ProfileProduction && !confirm {
		populated, err := s.Populated(ctx)
		if err != nil {
			return err
		}
		if populated {
			return fmt.Errorf("%w: store is populated and profile is %s", models.ErrConfirmationRequired, s.profile)
		}
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := len(Tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+Tables[i]); err != nil {
			return fmt.Errorf("failed to drop %s: %w", Tables[i], err)
		}
	}
	for _, m := range migrations {
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	counts, err := s.RowCounts(ctx)
	if err != nil {
		return err
	}
	for table, n := range counts {
		if n != 0 {
			return fmt.Errorf("%w: %s has %d rows", models.ErrStoreNotEmpty, table, n)
		}
	}

	s.logger.Warn("schema recreated", zap.String("profile", string(s.profile)))
	return nil
}

// Compact reclaims free space and refreshes planner statistics.
func (s *Store) Compact(ctx context.Context) error {
	stmts := []string{"VACUUM", "ANALYZE"}
	if s.driver == DriverPostgres {
		stmts = []string{"VACUUM ANALYZE"}
	}
	for _, stmt := range stmts {
		if _, err := s.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s failed: %w", stmt, err)
		}
	}
	return nil
}

// SizeBytes reports the sqlite database file size; postgres returns the
// size of the current database.
func (s *Store) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	if s.driver == DriverPostgres {
		err := s.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&size)
		return size, err
	}

	var pageCount, pageSize int64
	if err := s.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}
	return pageCount * pageSize, nil
}
