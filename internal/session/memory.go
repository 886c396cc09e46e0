package session

import (
	"context"
	"sync"
	"time"

	"github.com/vipcontent/vipcheckout/internal/models"
)

type memoryEntry struct {
	snapshot  models.CheckoutSnapshot
	expiresAt time.Time
}

// MemoryStore keeps snapshots in process. Sessions do not survive a restart.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, snapshot *models.CheckoutSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[snapshot.ID] = memoryEntry{snapshot: *snapshot, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*models.CheckoutSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, models.ErrSessionNotFound
	}
	snapshot := entry.snapshot
	return &snapshot, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Purge drops expired entries and returns how many were removed.
func (m *MemoryStore) Purge() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
