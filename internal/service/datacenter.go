package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/config"
	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

// DatacenterService provides operations for managing datacenters.
//
// Pools and the serving cluster are copied from configuration when a
// datacenter is created and are fixed afterwards, so later configuration
// changes or renames never move identifiers that are already handed out.
type DatacenterService struct {
	store  *store.Store
	alloc  *allocator.Allocator
	cfg    *config.Config
	logger *zap.Logger

	// createMu serializes the tag pool overlap check with the insert.
	createMu sync.Mutex
}

// NewDatacenterService creates a new DatacenterService.
//
// Parameters:
//   - st: State Store
//   - alloc: Identifier allocator, invalidated when a datacenter is deleted
//   - cfg: Configuration supplying default and per-datacenter pools
//   - logger: Zap logger for structured logging
func NewDatacenterService(st *store.Store, alloc *allocator.Allocator, cfg *config.Config, logger *zap.Logger) *DatacenterService {
	return &DatacenterService{
		store:  st,
		alloc:  alloc,
		cfg:    cfg,
		logger: logger,
	}
}

const datacenterColumns = `id, name, description, address_min, address_max, tag_min, tag_max, cluster, created_at, updated_at`

// Create inserts a new datacenter.
//
// Parameters:
//   - ctx: Request context for cancellation
//   - req: Creation request; pools default to the configured ones
//
// Returns:
//   - *models.Datacenter: The stored datacenter
//   - error: ErrValidationFailed for bad pools or a tag pool overlapping
//     another datacenter on the same cluster, or a database error
func (s *DatacenterService) Create(ctx context.Context, req *models.DatacenterCreateRequest) (*models.Datacenter, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidationFailed)
	}

	addrPool, tagPool := s.cfg.PoolsFor(req.Name)
	if req.AddressPool != nil {
		addrPool = *req.AddressPool
	}
	if req.TagPool != nil {
		tagPool = *req.TagPool
	}
	if err := config.ValidatePools(addrPool, tagPool); err != nil {
		return nil, err
	}
	clusterName, _ := s.cfg.ClusterFor(req.Name)

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if err := s.checkTagPoolFree(ctx, clusterName, tagPool); err != nil {
		return nil, err
	}

	ts := now()
	dc := &models.Datacenter{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		AddressPool: addrPool,
		TagPool:     tagPool,
		Cluster:     clusterName,
		CreatedAt:   fromUnix(ts),
		UpdatedAt:   fromUnix(ts),
	}

	_, err := s.store.ExecContext(ctx, `
		INSERT INTO datacenters (`+datacenterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, dc.ID, dc.Name, dc.Description, addrPool.Min, addrPool.Max, tagPool.Min, tagPool.Max, clusterName, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert datacenter: %w", err)
	}

	s.logger.Info("datacenter created",
		zap.String(logging.FieldDatacenterID, dc.ID),
		zap.String("name", dc.Name),
		zap.String("cluster", dc.Cluster),
	)
	return dc, nil
}

// checkTagPoolFree rejects a tag pool that overlaps the pool of another
// datacenter served by the same cluster. VLAN tags are shared by every
// node of a cluster.
func (s *DatacenterService) checkTagPoolFree(ctx context.Context, clusterName string, pool models.Range) error {
	var (
		name   string
		lo, hi int
	)
	err := s.store.QueryRowContext(ctx, `
		SELECT name, tag_min, tag_max FROM datacenters
		WHERE cluster = ? AND tag_min <= ? AND tag_max >= ?
		ORDER BY name LIMIT 1
	`, clusterName, pool.Max, pool.Min).Scan(&name, &lo, &hi)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check tag pools: %w", err)
	}
	return fmt.Errorf("%w: tag pool %d-%d overlaps pool %d-%d of datacenter %q on cluster %q",
		models.ErrValidationFailed, pool.Min, pool.Max, lo, hi, name, clusterName)
}

// Get returns a datacenter by ID.
func (s *DatacenterService) Get(ctx context.Context, id string) (*models.Datacenter, error) {
	row := s.store.QueryRowContext(ctx, `SELECT `+datacenterColumns+` FROM datacenters WHERE id = ?`, id)
	dc, err := scanDatacenter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDatacenterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load datacenter: %w", err)
	}
	return dc, nil
}

// List returns every datacenter ordered by name.
func (s *DatacenterService) List(ctx context.Context) (*models.DatacenterListResponse, error) {
	rows, err := s.store.QueryContext(ctx, `SELECT `+datacenterColumns+` FROM datacenters ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datacenters: %w", err)
	}
	defer rows.Close()

	out := []models.Datacenter{}
	for rows.Next() {
		dc, err := scanDatacenter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan datacenter: %w", err)
		}
		out = append(out, *dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datacenters: %w", err)
	}

	return &models.DatacenterListResponse{Datacenters: out, Total: len(out)}, nil
}

// IDs returns the IDs of every datacenter.
func (s *DatacenterService) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.QueryContext(ctx, `SELECT id FROM datacenters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datacenter ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update applies a partial update. Only name and description are writable;
// renaming never moves a datacenter to another cluster.
//
// Returns:
//   - *models.Datacenter: The full updated datacenter
//   - error: ErrDatacenterNotFound, ErrValidationFailed, or a database error
func (s *DatacenterService) Update(ctx context.Context, id string, partial patch.Partial[models.Datacenter]) (*models.Datacenter, error) {
	dc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := patch.Apply(dc, partial); err != nil {
		return nil, err
	}

	ts := now()
	res, err := s.store.ExecContext(ctx, `
		UPDATE datacenters SET name = ?, description = ?, updated_at = ? WHERE id = ?
	`, dc.Name, dc.Description, ts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update datacenter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, models.ErrDatacenterNotFound
	}

	dc.UpdatedAt = fromUnix(ts)
	return dc, nil
}

// Delete removes a datacenter together with its workspaces, networks and
// device templates, then drops its cached pools.
func (s *DatacenterService) Delete(ctx context.Context, id string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Children first; ON DELETE CASCADE covers stores created without
	// foreign key enforcement too.
	for _, q := range []string{
		`DELETE FROM virtual_networks WHERE datacenter_id = ?`,
		`DELETE FROM workspaces WHERE datacenter_id = ?`,
		`DELETE FROM device_configs WHERE datacenter_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("failed to delete datacenter children: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM datacenters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete datacenter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrDatacenterNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if err := s.alloc.Invalidate(ctx, id); err != nil {
		s.logger.Warn("failed to drop cached pools",
			zap.String(logging.FieldDatacenterID, id),
			zap.Error(err),
		)
	}

	s.logger.Info("datacenter deleted", zap.String(logging.FieldDatacenterID, id))
	return nil
}

func scanDatacenter(r rowScanner) (*models.Datacenter, error) {
	var (
		dc               models.Datacenter
		created, updated int64
	)
	err := r.Scan(&dc.ID, &dc.Name, &dc.Description,
		&dc.AddressPool.Min, &dc.AddressPool.Max, &dc.TagPool.Min, &dc.TagPool.Max,
		&dc.Cluster, &created, &updated)
	if err != nil {
		return nil, err
	}
	dc.CreatedAt = fromUnix(created)
	dc.UpdatedAt = fromUnix(updated)
	return &dc, nil
}
