package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vipcontent/vipcheckout/internal/models"
	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const saveTimeout = 5 * time.Second

// MachineOptions are the timings of a checkout session.
type MachineOptions struct {
	// PollInterval is the fixed delay between status polls.
	PollInterval time.Duration
	// ConfirmDelay is how long the confirming step is shown before settling.
	ConfirmDelay time.Duration
	// SessionTTL is the age after which a stored session is not resumed.
	SessionTTL time.Duration
}

// Machine drives one checkout session:
// form → awaiting_code → code_displayed → confirming → settled.
//
// At most one status poll is in flight at any time. Ticks that fire while a
// poll is running are skipped, not queued.
type Machine struct {
	logger   *logger.Logger
	checkout models.CheckoutI
	store    models.SessionStore
	opts     MachineOptions

	// onSettled is called once when the session reaches settled.
	onSettled func(models.CheckoutSnapshot)

	mu     sync.Mutex
	snap   models.CheckoutSnapshot
	closed bool
	stop   chan struct{}
	settle *time.Timer

	polling atomic.Bool
	now     func() time.Time
}

func newMachine(id string, checkout models.CheckoutI, store models.SessionStore, opts MachineOptions, onSettled func(models.CheckoutSnapshot), logger *logger.Logger) *Machine {
	now := time.Now()
	return &Machine{
		logger:    logger.With("session_id", id),
		checkout:  checkout,
		store:     store,
		opts:      opts,
		onSettled: onSettled,
		now:       time.Now,
		snap: models.CheckoutSnapshot{
			ID:        id,
			State:     models.StateForm,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() models.CheckoutSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copySnapshot()
}

func (m *Machine) copySnapshot() models.CheckoutSnapshot {
	snap := m.snap
	if m.snap.Charge != nil {
		charge := *m.snap.Charge
		snap.Charge = &charge
	}
	return snap
}

// State returns the current state.
func (m *Machine) State() models.CheckoutState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.State
}

// Submit issues a charge for the buyer. On failure the session returns to
// form with the error message attached and the error is returned.
func (m *Machine) Submit(ctx context.Context, buyer *models.Buyer) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	if m.snap.State != models.StateForm {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.snap.Buyer = *buyer
	m.snap.Error = ""
	m.transition(models.StateAwaitingCode)
	m.mu.Unlock()

	// the charge may be created even if the caller goes away
	charge, err := m.checkout.IssueCharge(context.WithoutCancel(ctx), buyer)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSessionClosed
	}
	if err != nil {
		m.snap.Error = UserMessage(err)
		m.transition(models.StateForm)
		return err
	}
	m.snap.Charge = charge
	m.transition(models.StateCodeDisplayed)
	m.startPolling()
	return nil
}

// Close ends the session. The poll timer stops at once; a poll already in
// flight finishes but its result is discarded. An unsettled session is
// removed from the store.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.halt() {
		return
	}
	if m.snap.State != models.StateSettled && m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := m.store.Delete(ctx, m.snap.ID); err != nil {
			m.logger.Warn("Failed to delete checkout session", "error", err)
		}
	}
	m.logger.Debug("Checkout session closed", "state", m.snap.State)
}

// stopIdle stops the session timers but keeps the stored snapshot.
func (m *Machine) stopIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halt()
}

// halt must be called with mu held. It reports whether the machine was running.
func (m *Machine) halt() bool {
	if m.closed {
		return false
	}
	m.closed = true
	m.stopPolling()
	if m.settle != nil {
		m.settle.Stop()
	}
	return true
}

// startPolling must be called with mu held.
func (m *Machine) startPolling() {
	if m.stop != nil {
		return
	}
	stop := make(chan struct{})
	m.stop = stop
	go m.pollLoop(stop)
}

// stopPolling must be called with mu held.
func (m *Machine) stopPolling() {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

func (m *Machine) pollLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Poll(context.Background())
		}
	}
}

// Poll checks the charge once. It returns false without calling the gateway
// when another poll is in flight or the session is not showing a code.
func (m *Machine) Poll(ctx context.Context) bool {
	if !m.polling.CompareAndSwap(false, true) {
		m.logger.Debug("Poll in flight, skipping tick")
		return false
	}
	defer m.polling.Store(false)

	m.mu.Lock()
	if m.closed || m.snap.State != models.StateCodeDisplayed || m.snap.Charge == nil {
		m.mu.Unlock()
		return false
	}
	transactionID := m.snap.Charge.TransactionID
	email := m.snap.Buyer.Email
	m.mu.Unlock()

	status, err := m.checkout.CheckStatus(ctx, transactionID)
	if err != nil {
		// transient: keep the state and try again next tick
		m.logger.Debug("Status poll failed", "transaction_id", transactionID, "error", err)
		return true
	}

	m.mu.Lock()
	if m.closed || m.snap.State != models.StateCodeDisplayed {
		m.mu.Unlock()
		return true
	}
	switch {
	case status.Status.IsPaid():
		m.stopPolling()
		m.transition(models.StateConfirming)
	case status.Status.IsFinal():
		m.stopPolling()
		m.snap.Charge = nil
		m.snap.Error = msgExpired
		m.transition(models.StateForm)
		m.mu.Unlock()
		return true
	default:
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	paidAt := m.now()
	if status.PaidAt != nil {
		paidAt = *status.PaidAt
	}
	if err := m.checkout.ConfirmPayment(ctx, email, transactionID, paidAt); err != nil {
		m.logger.Warn("Failed to record confirmed payment", "transaction_id", transactionID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.settle = time.AfterFunc(m.opts.ConfirmDelay, m.finish)
	}
	return true
}

func (m *Machine) finish() {
	m.mu.Lock()
	if m.closed || m.snap.State != models.StateConfirming {
		m.mu.Unlock()
		return
	}
	m.transition(models.StateSettled)
	snap := m.copySnapshot()
	m.mu.Unlock()

	if m.onSettled != nil {
		m.onSettled(snap)
	}
}

// transition must be called with mu held.
func (m *Machine) transition(state models.CheckoutState) {
	m.logger.Debug("Checkout transition", "from", m.snap.State, "to", state)
	m.snap.State = state
	m.snap.UpdatedAt = m.now()
	m.save()
}

// save must be called with mu held.
func (m *Machine) save() {
	if m.store == nil {
		return
	}
	snap := m.copySnapshot()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := m.store.Save(ctx, &snap); err != nil {
		m.logger.Warn("Failed to save checkout session", "error", err)
	}
}

// restoreMachine rebuilds a machine from a stored snapshot. Sessions older
// than the TTL go back to form. A session that was showing a code is
// re-validated with one poll before polling resumes.
func restoreMachine(ctx context.Context, snap *models.CheckoutSnapshot, checkout models.CheckoutI, store models.SessionStore, opts MachineOptions, onSettled func(models.CheckoutSnapshot), logger *logger.Logger) *Machine {
	m := newMachine(snap.ID, checkout, store, opts, onSettled, logger)
	m.snap = *snap

	m.mu.Lock()
	switch {
	case m.snap.State == models.StateSettled:
		m.mu.Unlock()
		return m
	case m.now().Sub(m.snap.UpdatedAt) > opts.SessionTTL:
		m.logger.Info("Checkout session expired", "state", m.snap.State, "updated_at", m.snap.UpdatedAt)
		m.snap.Charge = nil
		m.snap.Error = ""
		m.transition(models.StateForm)
		m.mu.Unlock()
		return m
	case m.snap.State == models.StateAwaitingCode:
		// issuance did not finish before the session was stored
		m.snap.Error = msgUnavailable
		m.transition(models.StateForm)
		m.mu.Unlock()
		return m
	case m.snap.State == models.StateForm:
		m.mu.Unlock()
		return m
	}

	if m.snap.Charge == nil {
		m.snap.Error = ""
		m.transition(models.StateForm)
		m.mu.Unlock()
		return m
	}
	// confirming is not trusted either: the poll below confirms it again
	m.snap.State = models.StateCodeDisplayed
	m.mu.Unlock()

	m.Poll(ctx)

	m.mu.Lock()
	if m.snap.State == models.StateCodeDisplayed && !m.closed {
		m.startPolling()
	}
	m.mu.Unlock()
	return m
}
