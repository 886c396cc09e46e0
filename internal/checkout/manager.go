package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vipcontent/vipcheckout/internal/metrics"
	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

// janitorInterval is how often idle sessions are evicted.
const janitorInterval = time.Minute

// purger is implemented by session stores that need explicit expiry.
type purger interface {
	Purge() (int, error)
}

// Manager owns the live checkout sessions of this process.
type Manager struct {
	logger   *logger.Logger
	checkout models.CheckoutI
	store    models.SessionStore
	metrics  *metrics.CheckoutMetrics
	opts     MachineOptions

	mu       sync.Mutex
	machines map[string]*Machine
}

func NewManager(checkout models.CheckoutI, store models.SessionStore, metrics *metrics.CheckoutMetrics, opts MachineOptions, logger *logger.Logger) *Manager {
	return &Manager{
		logger:   logger,
		checkout: checkout,
		store:    store,
		metrics:  metrics,
		opts:     opts,
		machines: make(map[string]*Machine),
	}
}

// Create opens a session and submits the buyer. The snapshot is returned
// even when issuance fails, so the form can show the error.
func (m *Manager) Create(ctx context.Context, buyer *models.Buyer) (models.CheckoutSnapshot, error) {
	id := uuid.New().String()
	machine := newMachine(id, m.checkout, m.store, m.opts, m.settled, m.logger)

	m.mu.Lock()
	m.machines[id] = machine
	m.mu.Unlock()

	err := machine.Submit(ctx, buyer)
	return machine.Snapshot(), err
}

// Submit retries issuance on a session that is back in form.
func (m *Manager) Submit(ctx context.Context, id string, buyer *models.Buyer) (models.CheckoutSnapshot, error) {
	machine, err := m.machine(ctx, id)
	if err != nil {
		return models.CheckoutSnapshot{}, err
	}
	err = machine.Submit(ctx, buyer)
	return machine.Snapshot(), err
}

// Get returns the session, restoring it from the store when it is not live
// in this process.
func (m *Manager) Get(ctx context.Context, id string) (models.CheckoutSnapshot, error) {
	machine, err := m.machine(ctx, id)
	if err != nil {
		return models.CheckoutSnapshot{}, err
	}
	return machine.Snapshot(), nil
}

// Close dismisses the session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	machine, ok := m.machines[id]
	delete(m.machines, id)
	m.mu.Unlock()

	if ok {
		machine.Close()
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrSessionNotFound) {
		return err
	}
	return nil
}

func (m *Manager) machine(ctx context.Context, id string) (*Machine, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrSessionNotFound
	}

	m.mu.Lock()
	machine, ok := m.machines[id]
	m.mu.Unlock()
	if ok {
		return machine, nil
	}

	snap, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	restored := restoreMachine(ctx, snap, m.checkout, m.store, m.opts, m.settled, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	// another request may have restored it meanwhile
	if machine, ok := m.machines[id]; ok {
		restored.stopIdle()
		return machine, nil
	}
	m.machines[id] = restored
	m.logger.Info("Checkout session restored", "session_id", id, "state", restored.State())
	return restored, nil
}

func (m *Manager) settled(snap models.CheckoutSnapshot) {
	m.logger.Info("Checkout settled",
		"session_id", snap.ID,
		"email", snap.Buyer.Email,
		"order_bump", snap.Buyer.OrderBump)
}

// Start evicts idle sessions and purges expired stored ones until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evict()
			if p, ok := m.store.(purger); ok {
				n, err := p.Purge()
				if err != nil {
					m.logger.Error("Failed to purge checkout sessions", "error", err)
				} else if n > 0 {
					m.logger.Debug("Purged checkout sessions", "count", n)
				}
			}
		}
	}
}

// evict drops machines that are settled or idle past the TTL. Their stored
// snapshot stays until it expires so a reload can still find it.
func (m *Manager) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[models.CheckoutState]int{}
	for id, machine := range m.machines {
		snap := machine.Snapshot()
		idle := time.Since(snap.UpdatedAt) > m.opts.SessionTTL
		if snap.State == models.StateSettled || idle {
			machine.stopIdle()
			delete(m.machines, id)
			continue
		}
		counts[snap.State]++
	}
	for _, state := range []models.CheckoutState{
		models.StateForm,
		models.StateAwaitingCode,
		models.StateCodeDisplayed,
		models.StateConfirming,
		models.StateSettled,
	} {
		m.metrics.SessionsGauge.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

// Shutdown stops every live session without touching the store, so sessions
// can be resumed after a restart.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, machine := range m.machines {
		machine.stopIdle()
		delete(m.machines, id)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.machines)
}
