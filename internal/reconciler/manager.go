package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yaroslav/microdc/internal/logging"
	"github.com/yaroslav/microdc/models"
)

// DatacenterLister lists the datacenters to reconcile.
type DatacenterLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// Manager schedules reconciliation passes.
//
// The manager handles:
// - A ticker-driven pass over every datacenter, run once at start
// - On-demand passes for a single datacenter
// - At most one pass in flight per datacenter
// - The last result of each datacenter
type Manager struct {
	reconciler *Reconciler
	lister     DatacenterLister
	interval   time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	slots map[string]chan struct{}
	last  map[string]*models.ReconcileResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new reconcile manager.
//
// Parameters:
//   - reconciler: runs the passes
//   - lister: source of datacenter IDs
//   - interval: time between scheduled rounds; zero disables the loop
//   - logger: Zap logger
//
// Returns:
//   - Configured Manager
func NewManager(reconciler *Reconciler, lister DatacenterLister, interval time.Duration, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		reconciler: reconciler,
		lister:     lister,
		interval:   interval,
		logger:     logger.With(zap.String(logging.FieldComponent, "reconcile-manager")),
		slots:      make(map[string]chan struct{}),
		last:       make(map[string]*models.ReconcileResult),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the scheduling loop. It is a no-op when the interval is zero.
func (m *Manager) Start() {
	if m.interval <= 0 {
		m.logger.Info("scheduled reconciliation disabled")
		return
	}

	m.logger.Info("starting reconcile manager", zap.Duration("interval", m.interval))

	m.wg.Add(1)
	go m.loop()
}

// Stop cancels running passes and waits for them to return.
func (m *Manager) Stop() {
	m.logger.Info("stopping reconcile manager")
	m.cancel()
	m.wg.Wait()
}

// loop is the background goroutine driving scheduled rounds.
func (m *Manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run once immediately
	m.Tick()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick starts a pass for every datacenter that has none in flight.
// Passes for different datacenters run in parallel; Tick does not wait for them.
func (m *Manager) Tick() {
	ids, err := m.lister.IDs(m.ctx)
	if err != nil {
		m.logger.Error("failed to list datacenters", zap.Error(err))
		return
	}

	for _, id := range ids {
		slot := m.slot(id)
		select {
		case slot <- struct{}{}:
		default:
			m.logger.Debug("pass still running, skipping", zap.String(logging.FieldDatacenterID, id))
			continue
		}

		m.wg.Add(1)
		go func(id string) {
			defer m.wg.Done()
			defer func() { <-slot }()
			m.run(m.ctx, id)
		}(id)
	}
}

// Trigger runs a pass for one datacenter now. If a pass is already in
// flight it waits for it to finish, bounded by ctx.
func (m *Manager) Trigger(ctx context.Context, datacenterID string) (*models.ReconcileResult, error) {
	slot := m.slot(datacenterID)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", models.ErrReconcileInProgress, ctx.Err())
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
	defer func() { <-slot }()

	// Stop must still cancel an on-demand pass.
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	return m.run(passCtx, datacenterID)
}

// Last returns the result of the most recent pass over a datacenter.
func (m *Manager) Last(datacenterID string) (*models.ReconcileResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.last[datacenterID]
	return res, ok
}

// Forget drops the bookkeeping of a deleted datacenter.
func (m *Manager) Forget(datacenterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, datacenterID)
}

func (m *Manager) run(ctx context.Context, datacenterID string) (*models.ReconcileResult, error) {
	res, err := m.reconciler.Run(ctx, datacenterID)
	if err != nil {
		if errors.Is(err, models.ErrDatacenterNotFound) {
			m.Forget(datacenterID)
		}
		return nil, err
	}

	m.mu.Lock()
	m.last[datacenterID] = res
	m.mu.Unlock()
	return res, nil
}

// slot returns the single-entry semaphore of a datacenter.
func (m *Manager) slot(datacenterID string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[datacenterID]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[datacenterID] = s
	}
	return s
}
