package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/patch"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

// DeviceConfigService provides operations for datacenter device templates.
type DeviceConfigService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewDeviceConfigService creates a new DeviceConfigService.
func NewDeviceConfigService(st *store.Store, logger *zap.Logger) *DeviceConfigService {
	return &DeviceConfigService{store: st, logger: logger}
}

const deviceConfigColumns = `id, datacenter_id, name, payload, created_at, updated_at`

// Create stores a device template. An empty payload is stored as {}.
func (s *DeviceConfigService) Create(ctx context.Context, datacenterID string, req *models.DeviceConfigCreateRequest) (*models.DeviceConfig, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidationFailed)
	}
	payload := req.Payload
	if payload == "" {
		payload = "{}"
	}
	if err := validPayload(payload); err != nil {
		return nil, err
	}

	ts := now()
	dc := &models.DeviceConfig{
		ID:           uuid.New().String(),
		DatacenterID: datacenterID,
		Name:         req.Name,
		Payload:      payload,
		CreatedAt:    fromUnix(ts),
		UpdatedAt:    fromUnix(ts),
	}

	var one int
	err := s.store.QueryRowContext(ctx, `SELECT 1 FROM datacenters WHERE id = ?`, datacenterID).Scan(&one)
	if err != nil {
		return nil, notFoundOr(err, models.ErrDatacenterNotFound, "failed to load datacenter")
	}

	_, err = s.store.ExecContext(ctx, `
		INSERT INTO device_configs (`+deviceConfigColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`, dc.ID, dc.DatacenterID, dc.Name, dc.Payload, ts, ts)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: device config %q already exists", models.ErrIdentifierInUse, req.Name)
		}
		return nil, fmt.Errorf("failed to insert device config: %w", err)
	}

	s.logger.Info("device config created",
		zap.String(logging.FieldDatacenterID, datacenterID),
		zap.String("device_config_id", dc.ID),
	)
	return dc, nil
}

// Get returns a device template by ID.
func (s *DeviceConfigService) Get(ctx context.Context, id string) (*models.DeviceConfig, error) {
	row := s.store.QueryRowContext(ctx, `SELECT `+deviceConfigColumns+` FROM device_configs WHERE id = ?`, id)
	dc, err := scanDeviceConfig(row)
	if err != nil {
		return nil, notFoundOr(err, models.ErrDeviceConfigNotFound, "failed to load device config")
	}
	return dc, nil
}

// List returns the device templates of a datacenter.
func (s *DeviceConfigService) List(ctx context.Context, datacenterID string) (*models.DeviceConfigListResponse, error) {
	var one int
	err := s.store.QueryRowContext(ctx, `SELECT 1 FROM datacenters WHERE id = ?`, datacenterID).Scan(&one)
	if err != nil {
		return nil, notFoundOr(err, models.ErrDatacenterNotFound, "failed to load datacenter")
	}

	rows, err := s.store.QueryContext(ctx,
		`SELECT `+deviceConfigColumns+` FROM device_configs WHERE datacenter_id = ? ORDER BY name`, datacenterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device configs: %w", err)
	}
	defer rows.Close()

	out := []models.DeviceConfig{}
	for rows.Next() {
		dc, err := scanDeviceConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device config: %w", err)
		}
		out = append(out, *dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device configs: %w", err)
	}
	return &models.DeviceConfigListResponse{DeviceConfigs: out, Total: len(out)}, nil
}

// Update applies a partial update to a device template.
func (s *DeviceConfigService) Update(ctx context.Context, id string, partial patch.Partial[models.DeviceConfig]) (*models.DeviceConfig, error) {
	dc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	payloadIsJSON := func(d *models.DeviceConfig) error { return validPayload(d.Payload) }
	if err := patch.Apply(dc, partial, payloadIsJSON); err != nil {
		return nil, err
	}

	ts := now()
	_, err = s.store.ExecContext(ctx,
		`UPDATE device_configs SET name = ?, payload = ?, updated_at = ? WHERE id = ?`, dc.Name, dc.Payload, ts, id)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, fmt.Errorf("%w: device config %q already exists", models.ErrIdentifierInUse, dc.Name)
		}
		return nil, fmt.Errorf("failed to update device config: %w", err)
	}

	dc.UpdatedAt = fromUnix(ts)
	return dc, nil
}

// Delete removes a device template.
func (s *DeviceConfigService) Delete(ctx context.Context, id string) error {
	res, err := s.store.ExecContext(ctx, `DELETE FROM device_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrDeviceConfigNotFound
	}
	return nil
}

func validPayload(payload string) error {
	if !json.Valid([]byte(payload)) {
		return fmt.Errorf("%w: payload must be valid JSON", models.ErrValidationFailed)
	}
	return nil
}

func scanDeviceConfig(r rowScanner) (*models.DeviceConfig, error) {
	var (
		dc               models.DeviceConfig
		created, updated int64
	)
	if err := r.Scan(&dc.ID, &dc.DatacenterID, &dc.Name, &dc.Payload, &created, &updated); err != nil {
		return nil, err
	}
	dc.CreatedAt = fromUnix(created)
	dc.UpdatedAt = fromUnix(updated)
	return &dc, nil
}
