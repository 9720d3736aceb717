package service

import (
	"context"
	"fmt"

	"github.com/yaroslav/microdc/internal/allocator"
	"github.com/yaroslav/microdc/internal/store"
	"github.com/yaroslav/microdc/models"
)

// PoolSource loads allocator pools from the State Store.
type PoolSource struct {
	store *store.Store
}

// NewPoolSource creates a PoolSource.
func NewPoolSource(st *store.Store) *PoolSource {
	return &PoolSource{store: st}
}

// LoadPool implements allocator.Source.
func (p *PoolSource) LoadPool(ctx context.Context, datacenterID string, kind allocator.Kind) (models.Range, []int, error) {
	var bounds models.Range
	var usedQuery string

	switch kind {
	case allocator.KindAddress:
		err := p.store.QueryRowContext(ctx,
			`SELECT address_min, address_max FROM datacenters WHERE id = ?`, datacenterID,
		).Scan(&bounds.Min, &bounds.Max)
		if err != nil {
			return bounds, nil, notFoundOr(err, models.ErrDatacenterNotFound, "failed to load address pool")
		}
		usedQuery = `SELECT address FROM workspaces WHERE datacenter_id = ?`
	case allocator.KindTag:
		err := p.store.QueryRowContext(ctx,
			`SELECT tag_min, tag_max FROM datacenters WHERE id = ?`, datacenterID,
		).Scan(&bounds.Min, &bounds.Max)
		if err != nil {
			return bounds, nil, notFoundOr(err, models.ErrDatacenterNotFound, "failed to load tag pool")
		}
		usedQuery = `SELECT tag FROM virtual_networks WHERE datacenter_id = ? AND tag IS NOT NULL`
	default:
		return bounds, nil, fmt.Errorf("unknown pool kind %q", kind)
	}

	rows, err := p.store.QueryContext(ctx, usedQuery, datacenterID)
	if err != nil {
		return bounds, nil, fmt.Errorf("failed to load %s occupancy: %w", kind, err)
	}
	defer rows.Close()

	var used []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return bounds, nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		used = append(used, v)
	}
	return bounds, used, rows.Err()
}
