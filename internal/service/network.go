package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

// NetworkService provides operations for managing virtual networks.
//
// A network may be created without a VLAN tag; the reconciler assigns one
// through the allocator on its next pass.
type NetworkService struct {
	store  *store.Store
	alloc  *allocator.Allocator
	logger *zap.Logger
}

// NewNetworkService creates a new NetworkService.
func NewNetworkService(st *store.Store, alloc *allocator.Allocator, logger *zap.Logger) *NetworkService {
	return &NetworkService{
		store:  st,
		alloc:  alloc,
		logger: logger,
	}
}

const networkColumns = `id, workspace_id, net_index, tag, overlay_id, name, created_at, updated_at`

// Create inserts a network into a workspace.
//
// Parameters:
//   - ctx: Request context for cancellation
//   - workspaceID: Owning workspace
//   - req: Creation request; a nil index takes the lowest free slot and a nil
//     tag leaves the network unassigned
//
// Returns:
//   - *models.VirtualNetwork: The stored network
//   - error: ErrWorkspaceNotFound, ErrIdentifierInUse, ErrValidationFailed,
//     ErrContendedAllocation, or a database error
func (s *NetworkService) Create(ctx context.Context, workspaceID string, req *models.VirtualNetworkCreateRequest) (*models.VirtualNetwork, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidationFailed)
	}
	if req.Index != nil && *req.Index < 0 {
		return nil, fmt.Errorf("%w: index must not be negative", models.ErrValidationFailed)
	}

	datacenterID, status, err := s.owner(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if status == models.WorkspaceDeleting {
		return nil, fmt.Errorf("%w: workspace is being deleted", models.ErrValidationFailed)
	}

	index := 0
	if req.Index != nil {
		index = *req.Index
	} else if index, err = s.nextIndex(ctx, workspaceID); err != nil {
		return nil, err
	}

	if req.Tag != nil {
		if err := s.alloc.ClaimTag(ctx, datacenterID, *req.Tag); err != nil {
			return nil, err
		}
	}

	ts := now()
	n := &models.VirtualNetwork{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Index:       index,
		Tag:         req.Tag,
		Name:        req.Name,
		CreatedAt:   fromUnix(ts),
		UpdatedAt:   fromUnix(ts),
	}

	_, err = s.store.ExecContext(ctx, `
		INSERT INTO virtual_networks (id, workspace_id, datacenter_id, net_index, tag, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, workspaceID, datacenterID, n.Index, nullInt(n.Tag), n.Name, ts, ts)
	if err != nil {
		if n.Tag != nil {
			releaseIdentifier(ctx, s.alloc, s.logger, datacenterID, allocator.KindTag, *n.Tag)
		}
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: index %d", models.ErrIdentifierInUse, n.Index)
		}
		return nil, fmt.Errorf("failed to insert network: %w", err)
	}

	fields := []zap.Field{
		zap.String(logging.FieldWorkspaceID, workspaceID),
		zap.String(logging.FieldNetworkID, n.ID),
		zap.Int("index", n.Index),
	}
	if n.Tag != nil {
		fields = append(fields, zap.Int(logging.FieldTag, *n.Tag))
	}
	s.logger.Info("network created", fields...)
	return n, nil
}

// Get returns a network by ID.
func (s *NetworkService) Get(ctx context.Context, id string) (*models.VirtualNetwork, error) {
	row := s.store.QueryRowContext(ctx, `SELECT `+networkColumns+` FROM virtual_networks WHERE id = ?`, id)
	n, err := scanNetwork(row)
	if err != nil {
		return nil, notFoundOr(err, models.ErrNetworkNotFound, "failed to load network")
	}
	return n, nil
}

// List returns the networks of a workspace ordered by index.
func (s *NetworkService) List(ctx context.Context, workspaceID string) (*models.VirtualNetworkListResponse, error) {
	if _, _, err := s.owner(ctx, workspaceID); err != nil {
		return nil, err
	}

	out, err := s.query(ctx,
		`SELECT `+networkColumns+` FROM virtual_networks WHERE workspace_id = ? ORDER BY net_index, id`, workspaceID)
	if err != nil {
		return nil, err
	}
	return &models.VirtualNetworkListResponse{Networks: out, Total: len(out)}, nil
}

// ListByDatacenter returns every network in a datacenter.
func (s *NetworkService) ListByDatacenter(ctx context.Context, datacenterID string) ([]models.VirtualNetwork, error) {
	return s.query(ctx,
		`SELECT `+networkColumns+` FROM virtual_networks WHERE datacenter_id = ? ORDER BY workspace_id, net_index`, datacenterID)
}

// Update applies a partial update.
//
// A new tag must lie in the datacenter's tag pool and is claimed before the
// row changes. The previous tag is released once the change is stored.
func (s *NetworkService) Update(ctx context.Context, id string, partial patch.Partial[models.VirtualNetwork]) (*models.VirtualNetwork, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldTag := n.Tag

	datacenterID, _, err := s.owner(ctx, n.WorkspaceID)
	if err != nil {
		return nil, err
	}
	var pool models.Range
	err = s.store.QueryRowContext(ctx, `SELECT tag_min, tag_max FROM datacenters WHERE id = ?`, datacenterID).
		Scan(&pool.Min, &pool.Max)
	if err != nil {
		return nil, notFoundOr(err, models.ErrDatacenterNotFound, "failed to load tag pool")
	}

	inPool := func(n *models.VirtualNetwork) error {
		if n.Tag != nil && !pool.Contains(*n.Tag) {
			return fmt.Errorf("%w: tag %d outside pool %d-%d", models.ErrValidationFailed, *n.Tag, pool.Min, pool.Max)
		}
		return nil
	}
	if err := patch.Apply(n, partial, inPool); err != nil {
		return nil, err
	}

	newTag := n.Tag
	tagChanged := !sameTag(oldTag, newTag)
	if tagChanged && newTag != nil {
		if err := s.alloc.ClaimTag(ctx, datacenterID, *newTag); err != nil {
			return nil, err
		}
	}

	ts := now()
	_, err = s.store.ExecContext(ctx, `
		UPDATE virtual_networks SET name = ?, net_index = ?, tag = ?, updated_at = ? WHERE id = ?
	`, n.Name, n.Index, nullInt(newTag), ts, id)
	if err != nil {
		if tagChanged && newTag != nil {
			releaseIdentifier(ctx, s.alloc, s.logger, datacenterID, allocator.KindTag, *newTag)
		}
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: index %d", models.ErrIdentifierInUse, n.Index)
		}
		return nil, fmt.Errorf("failed to update network: %w", err)
	}

	if tagChanged && oldTag != nil {
		releaseIdentifier(ctx, s.alloc, s.logger, datacenterID, allocator.KindTag, *oldTag)
	}

	n.UpdatedAt = fromUnix(ts)
	return n, nil
}

// Delete removes a network and returns its tag to the pool. The VLAN left on
// the cluster is removed by the next reconciliation pass.
func (s *NetworkService) Delete(ctx context.Context, id string) error {
	var (
		datacenterID string
		tag          *int64
	)
	err := s.store.QueryRowContext(ctx, `SELECT datacenter_id, tag FROM virtual_networks WHERE id = ?`, id).
		Scan(&datacenterID, &tag)
	if err != nil {
		return notFoundOr(err, models.ErrNetworkNotFound, "failed to load network")
	}

	res, err := s.store.ExecContext(ctx, `DELETE FROM virtual_networks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete network: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNetworkNotFound
	}

	if tag != nil {
		releaseIdentifier(ctx, s.alloc, s.logger, datacenterID, allocator.KindTag, int(*tag))
	}
	s.logger.Info("network deleted", zap.String(logging.FieldNetworkID, id))
	return nil
}

// AssignTag stores an allocated tag on a network that has none. It fails
// with ErrIdentifierInUse if the network was deleted or tagged meanwhile.
func (s *NetworkService) AssignTag(ctx context.Context, id string, tag int) error {
	res, err := s.store.ExecContext(ctx,
		`UPDATE virtual_networks SET tag = ?, updated_at = ? WHERE id = ? AND tag IS NULL`, tag, now(), id)
	if err != nil {
		if isUniqueConstraint(err) {
			return fmt.Errorf("%w: tag %d", models.ErrIdentifierInUse, tag)
		}
		return fmt.Errorf("failed to assign tag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: network %s is gone or already tagged", models.ErrIdentifierInUse, id)
	}
	return nil
}

// SetOverlayID records the overlay network created for a network.
func (s *NetworkService) SetOverlayID(ctx context.Context, id, overlayID string) error {
	res, err := s.store.ExecContext(ctx,
		`UPDATE virtual_networks SET overlay_id = ?, updated_at = ? WHERE id = ?`, overlayID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set overlay id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNetworkNotFound
	}
	return nil
}

// owner returns the datacenter and status of a workspace.
func (s *NetworkService) owner(ctx context.Context, workspaceID string) (string, models.WorkspaceStatus, error) {
	var (
		datacenterID string
		status       *string
	)
	err := s.store.QueryRowContext(ctx, `SELECT datacenter_id, status FROM workspaces WHERE id = ?`, workspaceID).
		Scan(&datacenterID, &status)
	if err != nil {
		return "", "", notFoundOr(err, models.ErrWorkspaceNotFound, "failed to load workspace")
	}
	if status == nil {
		return datacenterID, "", nil
	}
	return datacenterID, models.WorkspaceStatus(*status), nil
}

// nextIndex returns the lowest unused index in a workspace.
func (s *NetworkService) nextIndex(ctx context.Context, workspaceID string) (int, error) {
	rows, err := s.store.QueryContext(ctx,
		`SELECT net_index FROM virtual_networks WHERE workspace_id = ? ORDER BY net_index`, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to load network indexes: %w", err)
	}
	defer rows.Close()

	next := 0
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return 0, fmt.Errorf("failed to scan index: %w", err)
		}
		if idx > next {
			break
		}
		next = idx + 1
	}
	return next, rows.Err()
}

func (s *NetworkService) query(ctx context.Context, query string, args ...any) ([]models.VirtualNetwork, error) {
	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	defer rows.Close()

	out := []models.VirtualNetwork{}
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan network: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate networks: %w", err)
	}
	return out, nil
}

func sameTag(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func scanNetwork(r rowScanner) (*models.VirtualNetwork, error) {
	var (
		n                models.VirtualNetwork
		tag              sql.NullInt64
		overlay          sql.NullString
		created, updated int64
	)
	if err := r.Scan(&n.ID, &n.WorkspaceID, &n.Index, &tag, &overlay, &n.Name, &created, &updated); err != nil {
		return nil, err
	}
	n.Tag = intPtr(tag)
	n.OverlayID = stringPtr(overlay)
	n.CreatedAt = fromUnix(created)
	n.UpdatedAt = fromUnix(updated)
	return &n, nil
}
