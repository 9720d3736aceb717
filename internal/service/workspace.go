package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

// WorkspaceService provides operations for managing workspaces.
//
// Every workspace holds one address from its datacenter's address pool. The
// address is reserved through the allocator before the row is written and
// returned to the pool only once the row is deleted.
type WorkspaceService struct {
	store  *store.Store
	alloc  *allocator.Allocator
	logger *zap.Logger
}

// NewWorkspaceService creates a new WorkspaceService.
//
// Parameters:
//   - st: State Store
//   - alloc: Identifier allocator for workspace addresses and network tags
//   - logger: Zap logger for structured logging
func NewWorkspaceService(st *store.Store, alloc *allocator.Allocator, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{
		store:  st,
		alloc:  alloc,
		logger: logger,
	}
}

const workspaceColumns = `id, datacenter_id, address, name, status, created_at, updated_at`

// Create inserts a new workspace in the created state.
//
// Parameters:
//   - ctx: Request context for cancellation
//   - datacenterID: Owning datacenter
//   - req: Creation request; a nil address means lowest free
//
// Returns:
//   - *models.Workspace: The stored workspace
//   - error: ErrDatacenterNotFound, ErrPoolExhausted, ErrContendedAllocation,
//     ErrIdentifierInUse, ErrValidationFailed, or a database error
func (s *WorkspaceService) Create(ctx context.Context, datacenterID string, req *models.WorkspaceCreateRequest) (*models.Workspace, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidationFailed)
	}
	if err := s.ensureDatacenter(ctx, datacenterID); err != nil {
		return nil, err
	}

	var address int
	if req.Address != nil {
		if err := s.alloc.ClaimAddress(ctx, datacenterID, *req.Address); err != nil {
			return nil, err
		}
		address = *req.Address
	} else {
		a, err := s.alloc.AllocateAddress(ctx, datacenterID)
		if err != nil {
			return nil, err
		}
		address = a
	}

	ts := now()
	ws := &models.Workspace{
		ID:           uuid.New().String(),
		DatacenterID: datacenterID,
		Address:      address,
		Name:         req.Name,
		Status:       models.StatusPtr(models.WorkspaceCreated),
		CreatedAt:    fromUnix(ts),
		UpdatedAt:    fromUnix(ts),
	}

	_, err := s.store.ExecContext(ctx, `
		INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ws.ID, ws.DatacenterID, ws.Address, ws.Name, string(*ws.Status), ts, ts)
	if err != nil {
		s.release(ctx, datacenterID, allocator.KindAddress, address)
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: address %d", models.ErrIdentifierInUse, address)
		}
		return nil, fmt.Errorf("failed to insert workspace: %w", err)
	}

	s.logger.Info("workspace created",
		zap.String(logging.FieldDatacenterID, datacenterID),
		zap.String(logging.FieldWorkspaceID, ws.ID),
		zap.Int(logging.FieldAddress, address),
	)
	return ws, nil
}

// Get returns a workspace by ID.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*models.Workspace, error) {
	row := s.store.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id)
	ws, err := scanWorkspace(row)
	if err != nil {
		return nil, notFoundOr(err, models.ErrWorkspaceNotFound, "failed to load workspace")
	}
	return ws, nil
}

// List returns the workspaces of a datacenter ordered by address.
func (s *WorkspaceService) List(ctx context.Context, datacenterID string) (*models.WorkspaceListResponse, error) {
	if err := s.ensureDatacenter(ctx, datacenterID); err != nil {
		return nil, err
	}

	out, err := s.ListByDatacenter(ctx, datacenterID)
	if err != nil {
		return nil, err
	}
	return &models.WorkspaceListResponse{Workspaces: out, Total: len(out)}, nil
}

// ListByDatacenter returns the workspaces of a datacenter without checking
// that the datacenter exists.
func (s *WorkspaceService) ListByDatacenter(ctx context.Context, datacenterID string) ([]models.Workspace, error) {
	rows, err := s.store.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE datacenter_id = ? ORDER BY address, id`, datacenterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	out := []models.Workspace{}
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, *ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workspaces: %w", err)
	}
	return out, nil
}

// Update applies a partial update.
//
// A new address is claimed before the row changes; the old one is released
// after the change is stored.
//
// Returns:
//   - *models.Workspace: The full updated workspace
//   - error: ErrWorkspaceNotFound, ErrValidationFailed, ErrIdentifierInUse,
//     ErrContendedAllocation, or a database error
func (s *WorkspaceService) Update(ctx context.Context, id string, partial patch.Partial[models.Workspace]) (*models.Workspace, error) {
	ws, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldAddress := ws.Address

	if err := patch.Apply(ws, partial); err != nil {
		return nil, err
	}

	addressChanged := ws.Address != oldAddress
	if addressChanged {
		if err := s.alloc.ClaimAddress(ctx, ws.DatacenterID, ws.Address); err != nil {
			return nil, err
		}
	}

	ts := now()
	_, err = s.store.ExecContext(ctx, `
		UPDATE workspaces SET name = ?, address = ?, status = ?, updated_at = ? WHERE id = ?
	`, ws.Name, ws.Address, statusValue(ws.Status), ts, id)
	if err != nil {
		if addressChanged {
			s.release(ctx, ws.DatacenterID, allocator.KindAddress, ws.Address)
		}
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: address %d", models.ErrIdentifierInUse, ws.Address)
		}
		return nil, fmt.Errorf("failed to update workspace: %w", err)
	}

	if addressChanged {
		s.release(ctx, ws.DatacenterID, allocator.KindAddress, oldAddress)
	}

	ws.UpdatedAt = fromUnix(ts)
	return ws, nil
}

// Delete asks for a workspace to be torn down. The workspace is moved to the
// deleting state and the reconciler removes its networks from the cluster
// before purging it. With force the workspace is purged immediately.
func (s *WorkspaceService) Delete(ctx context.Context, id string, force bool) (*models.Workspace, error) {
	if force {
		ws, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.Purge(ctx, id); err != nil {
			return nil, err
		}
		return ws, nil
	}

	if err := s.SetStatus(ctx, id, models.WorkspaceDeleting); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// SetStatus updates the lifecycle state of a workspace.
func (s *WorkspaceService) SetStatus(ctx context.Context, id string, status models.WorkspaceStatus) error {
	res, err := s.store.ExecContext(ctx,
		`UPDATE workspaces SET status = ?, updated_at = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return fmt.Errorf("failed to update workspace status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrWorkspaceNotFound
	}
	return nil
}

// Purge deletes a workspace and its networks, then returns the workspace
// address and the network tags to their pools.
func (s *WorkspaceService) Purge(ctx context.Context, id string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var (
		datacenterID string
		address      int
	)
	err = tx.QueryRowContext(ctx, `SELECT datacenter_id, address FROM workspaces WHERE id = ?`, id).
		Scan(&datacenterID, &address)
	if err != nil {
		return notFoundOr(err, models.ErrWorkspaceNotFound, "failed to load workspace")
	}

	rows, err := tx.QueryContext(ctx, `SELECT tag FROM virtual_networks WHERE workspace_id = ? AND tag IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to load workspace tags: %w", err)
	}
	var tags []int
	for rows.Next() {
		var tag int
		if err := rows.Scan(&tag); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tags: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM virtual_networks WHERE workspace_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete workspace networks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, tag := range tags {
		s.release(ctx, datacenterID, allocator.KindTag, tag)
	}
	s.release(ctx, datacenterID, allocator.KindAddress, address)

	s.logger.Info("workspace purged",
		zap.String(logging.FieldDatacenterID, datacenterID),
		zap.String(logging.FieldWorkspaceID, id),
		zap.Int(logging.FieldAddress, address),
		zap.Ints("tags", tags),
	)
	return nil
}

func (s *WorkspaceService) ensureDatacenter(ctx context.Context, datacenterID string) error {
	var one int
	err := s.store.QueryRowContext(ctx, `SELECT 1 FROM datacenters WHERE id = ?`, datacenterID).Scan(&one)
	if err != nil {
		return notFoundOr(err, models.ErrDatacenterNotFound, "failed to load datacenter")
	}
	return nil
}

// release returns an identifier to its pool. The row holding it is already
// gone, so a failure only delays reuse until the pool is reloaded.
func (s *WorkspaceService) release(ctx context.Context, datacenterID string, kind allocator.Kind, value int) {
	releaseIdentifier(ctx, s.alloc, s.logger, datacenterID, kind, value)
}

func releaseIdentifier(ctx context.Context, alloc *allocator.Allocator, logger *zap.Logger, datacenterID string, kind allocator.Kind, value int) {
	var err error
	switch kind {
	case allocator.KindAddress:
		err = alloc.ReleaseAddress(ctx, datacenterID, value)
	case allocator.KindTag:
		err = alloc.ReleaseTag(ctx, datacenterID, value)
	}
	if err != nil && !errors.Is(err, models.ErrDatacenterNotFound) {
		logger.Warn("failed to release identifier",
			zap.String(logging.FieldDatacenterID, datacenterID),
			zap.String("pool", string(kind)),
			zap.Int("value", value),
			zap.Error(err),
		)
	}
}

func statusValue(s *models.WorkspaceStatus) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func scanWorkspace(r rowScanner) (*models.Workspace, error) {
	var (
		ws               models.Workspace
		status           *string
		created, updated int64
	)
	if err := r.Scan(&ws.ID, &ws.DatacenterID, &ws.Address, &ws.Name, &status, &created, &updated); err != nil {
		return nil, err
	}
	if status != nil {
		ws.Status = models.StatusPtr(models.WorkspaceStatus(*status))
	}
	ws.CreatedAt = fromUnix(created)
	ws.UpdatedAt = fromUnix(updated)
	return &ws, nil
}
