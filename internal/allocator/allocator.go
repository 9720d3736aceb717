// Package allocator hands out datacenter-unique workspace addresses and VLAN
// tags.
//
// Each datacenter has two independent pools. A pool is loaded lazily from
// the State Store the first time it is touched and is then kept in memory;
// every mutation of a pool goes through this package. Access to a pool is
// serialized by a per-pool lock whose acquisition is bounded by a timeout.
package allocator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/internal/metrics"
	"github.com/yaroslav/microdc/models"
)

// Kind names one of the two pools of a datacenter.
type Kind string

const (
	// KindAddress is the workspace address pool.
	KindAddress Kind = "address"

	// KindTag is the VLAN tag pool.
	KindTag Kind = "tag"
)

// DefaultLockTimeout bounds how long a caller waits for a pool lock.
const DefaultLockTimeout = 2 * time.Second

// Source loads the bounds and current occupancy of a pool from durable state.
type Source interface {
	LoadPool(ctx context.Context, datacenterID string, kind Kind) (models.Range, []int, error)
}

// Usage is a point-in-time view of a pool.
type Usage struct {
	Kind      Kind         `json:"kind"`
	Bounds    models.Range `json:"bounds"`
	Allocated []int        `json:"allocated"`
	Free      int          `json:"free"`
}

type poolKey struct {
	datacenterID string
	kind         Kind
}

type pool struct {
	// sem is a one-slot semaphore; holding it grants exclusive access to the
	// fields below.
	sem    chan struct{}
	loaded bool
	bounds models.Range
	used   map[int]struct{}
}

// Allocator manages the address and tag pools of every datacenter.
type Allocator struct {
	source      Source
	logger      *zap.Logger
	lockTimeout time.Duration

	mu    sync.Mutex
	pools map[poolKey]*pool
}

// New creates an allocator backed by source. A non-positive lockTimeout
// selects DefaultLockTimeout.
func New(source Source, lockTimeout time.Duration, logger *zap.Logger) *Allocator {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Allocator{
		source:      source,
		logger:      logger.With(zap.String(logging.FieldComponent, "allocator")),
		lockTimeout: lockTimeout,
		pools:       make(map[poolKey]*pool),
	}
}

// AllocateAddress returns the lowest free address of the datacenter.
func (a *Allocator) AllocateAddress(ctx context.Context, datacenterID string) (int, error) {
	return a.allocate(ctx, datacenterID, KindAddress)
}

// ReleaseAddress returns an address to the pool. Releasing a free address is a no-op.
func (a *Allocator) ReleaseAddress(ctx context.Context, datacenterID string, address int) error {
	return a.release(ctx, datacenterID, KindAddress, address)
}

// ClaimAddress reserves a specific address.
func (a *Allocator) ClaimAddress(ctx context.Context, datacenterID string, address int) error {
	return a.claim(ctx, datacenterID, KindAddress, address)
}

// AllocateTag returns the lowest free VLAN tag of the datacenter.
func (a *Allocator) AllocateTag(ctx context.Context, datacenterID string) (int, error) {
	return a.allocate(ctx, datacenterID, KindTag)
}

// ReleaseTag returns a VLAN tag to the pool. Releasing a free tag is a no-op.
func (a *Allocator) ReleaseTag(ctx context.Context, datacenterID string, tag int) error {
	return a.release(ctx, datacenterID, KindTag, tag)
}

// ClaimTag reserves a specific VLAN tag.
func (a *Allocator) ClaimTag(ctx context.Context, datacenterID string, tag int) error {
	return a.claim(ctx, datacenterID, KindTag, tag)
}

// Usage reports the occupancy of one pool.
func (a *Allocator) Usage(ctx context.Context, datacenterID string, kind Kind) (*Usage, error) {
	p, unlock, err := a.acquire(ctx, datacenterID, kind)
	if err != nil {
		return nil, err
	}
	defer unlock()

	allocated := make([]int, 0, len(p.used))
	for v := range p.used {
		allocated = append(allocated, v)
	}
	sort.Ints(allocated)

	return &Usage{
		Kind:      kind,
		Bounds:    p.bounds,
		Allocated: allocated,
		Free:      p.bounds.Size() - len(allocated),
	}, nil
}

// Invalidate forgets the cached pools of a datacenter so they are reloaded
// from the store on next use. Call it after the datacenter is deleted.
//
// The pool entry itself stays in place: callers already waiting on its lock
// keep sharing it with later callers, and the first of them reloads it.
func (a *Allocator) Invalidate(ctx context.Context, datacenterID string) error {
	for _, kind := range []Kind{KindAddress, KindTag} {
		a.mu.Lock()
		p, ok := a.pools[poolKey{datacenterID, kind}]
		a.mu.Unlock()
		if !ok {
			continue
		}

		if err := a.lock(ctx, p, kind); err != nil {
			return err
		}
		p.loaded = false
		p.bounds = models.Range{}
		p.used = nil
		<-p.sem

		metrics.AllocatedIdentifiers.DeleteLabelValues(datacenterID, string(kind))
	}
	return nil
}

func (a *Allocator) allocate(ctx context.Context, datacenterID string, kind Kind) (int, error) {
	p, unlock, err := a.acquire(ctx, datacenterID, kind)
	if err != nil {
		return 0, err
	}
	defer unlock()

	for v := p.bounds.Min; v <= p.bounds.Max; v++ {
		if _, taken := p.used[v]; taken {
			continue
		}
		p.used[v] = struct{}{}
		a.observe(datacenterID, kind, p)
		a.logger.Debug("identifier allocated",
			zap.String(logging.FieldDatacenterID, datacenterID),
			zap.String("pool", string(kind)),
			zap.Int("value", v),
		)
		return v, nil
	}

	metrics.AllocationErrors.WithLabelValues(string(kind), "exhausted").Inc()
	return 0, fmt.Errorf("%w: %s pool %d-%d of datacenter %s is full",
		models.ErrPoolExhausted, kind, p.bounds.Min, p.bounds.Max, datacenterID)
}

func (a *Allocator) release(ctx context.Context, datacenterID string, kind Kind, value int) error {
	p, unlock, err := a.acquire(ctx, datacenterID, kind)
	if err != nil {
		return err
	}
	defer unlock()

	delete(p.used, value)
	a.observe(datacenterID, kind, p)
	return nil
}

func (a *Allocator) claim(ctx context.Context, datacenterID string, kind Kind, value int) error {
	p, unlock, err := a.acquire(ctx, datacenterID, kind)
	if err != nil {
		return err
	}
	defer unlock()

	if !p.bounds.Contains(value) {
		metrics.AllocationErrors.WithLabelValues(string(kind), "out_of_range").Inc()
		return fmt.Errorf("%w: %s %d outside pool %d-%d",
			models.ErrValidationFailed, kind, value, p.bounds.Min, p.bounds.Max)
	}
	if _, taken := p.used[value]; taken {
		metrics.AllocationErrors.WithLabelValues(string(kind), "in_use").Inc()
		return fmt.Errorf("%w: %s %d", models.ErrIdentifierInUse, kind, value)
	}

	p.used[value] = struct{}{}
	a.observe(datacenterID, kind, p)
	return nil
}

// acquire locks the pool and loads it from the source if needed. The
// returned function releases the lock.
func (a *Allocator) acquire(ctx context.Context, datacenterID string, kind Kind) (*pool, func(), error) {
	key := poolKey{datacenterID, kind}

	a.mu.Lock()
	p, ok := a.pools[key]
	if !ok {
		p = &pool{sem: make(chan struct{}, 1)}
		a.pools[key] = p
	}
	a.mu.Unlock()

	if err := a.lock(ctx, p, kind); err != nil {
		return nil, nil, err
	}
	unlock := func() { <-p.sem }

	if !p.loaded {
		bounds, used, err := a.source.LoadPool(ctx, datacenterID, kind)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		p.bounds = bounds
		p.used = make(map[int]struct{}, len(used))
		for _, v := range used {
			p.used[v] = struct{}{}
		}
		p.loaded = true
		a.observe(datacenterID, kind, p)
	}

	return p, unlock, nil
}

func (a *Allocator) lock(ctx context.Context, p *pool, kind Kind) error {
	start := time.Now()
	timer := time.NewTimer(a.lockTimeout)
	defer timer.Stop()

	select {
	case p.sem <- struct{}{}:
		metrics.AllocatorLockWait.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		return nil
	case <-timer.C:
		metrics.AllocationErrors.WithLabelValues(string(kind), "contended").Inc()
		return fmt.Errorf("%w: %s pool lock not acquired within %s",
			models.ErrContendedAllocation, kind, a.lockTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Allocator) observe(datacenterID string, kind Kind, p *pool) {
	metrics.AllocatedIdentifiers.WithLabelValues(datacenterID, string(kind)).Set(float64(len(p.used)))
}

// ParseKind converts a user-supplied pool name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAddress, KindTag:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown pool %q", models.ErrValidationFailed, s)
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}
