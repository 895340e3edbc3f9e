package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps alerts and snapshots in process memory. It backs the CLI
// when no database is configured and the service tests.
type MemoryStore struct {
	mu        sync.Mutex
	alerts    []PriceAlert
	snapshots []PriceSnapshot
	locks     map[int64]bool
	nextID    int64
	now       func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[int64]bool), now: time.Now}
}

// Close is a no-op.
func (m *MemoryStore) Close() {}

// CreateAlert registers an active alert.
func (m *MemoryStore) CreateAlert(_ context.Context, alert PriceAlert) (PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.alerts {
		if existing.IsActive && existing.Origin == alert.Origin && existing.Destination == alert.Destination {
			return PriceAlert{}, ErrDuplicateAlert
		}
	}
	alert = prepareAlert(alert, m.now())
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// GetAlert loads one alert.
func (m *MemoryStore) GetAlert(_ context.Context, id uuid.UUID) (PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, alert := range m.alerts {
		if alert.ID == id {
			return alert, nil
		}
	}
	return PriceAlert{}, ErrAlertNotFound
}

// ListAlerts lists alerts in creation order.
func (m *MemoryStore) ListAlerts(_ context.Context, activeOnly bool) ([]PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PriceAlert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if activeOnly && !alert.IsActive {
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

// DeactivateAlert switches an alert off.
func (m *MemoryStore) DeactivateAlert(_ context.Context, id uuid.UUID, triggeredAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID != id {
			continue
		}
		m.alerts[i].IsActive = false
		if triggeredAt != nil {
			at := triggeredAt.UTC()
			m.alerts[i].TriggeredAt = &at
		}
		return nil
	}
	return ErrAlertNotFound
}

// InsertSnapshot records an observed price.
func (m *MemoryStore) InsertSnapshot(_ context.Context, snapshot PriceSnapshot) (PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	snapshot.ID = m.nextID
	if snapshot.ObservedAt.IsZero() {
		snapshot.ObservedAt = m.now().UTC()
	}
	m.snapshots = append(m.snapshots, snapshot)
	return snapshot, nil
}

// ListRecentSnapshots lists the newest snapshots first.
func (m *MemoryStore) ListRecentSnapshots(_ context.Context, limit int) ([]PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PriceSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.After(out[j].ObservedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TryAdvisoryLock emulates a process-local advisory lock.
func (m *MemoryStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}, true, nil
}

var _ Repository = (*MemoryStore)(nil)
