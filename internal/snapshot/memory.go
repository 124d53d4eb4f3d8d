package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// MemoryStore is an in-process Store for tests and dry runs
type MemoryStore struct {
	mu     sync.RWMutex
	byUniv map[string][]*contracts.SnapshotRecord // 날짜 오름차순
	now    func() time.Time
	newID  func() string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUniv: make(map[string][]*contracts.SnapshotRecord),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func clone(r *contracts.SnapshotRecord) *contracts.SnapshotRecord {
	c := *r
	c.Assets = r.Assets.Clone()
	c.AssetsAdded = append([]string{}, r.AssetsAdded...)
	c.AssetsRemoved = append([]string{}, r.AssetsRemoved...)
	return &c
}

// index returns the position of date and whether it exists
func (m *MemoryStore) index(universeID string, date time.Time) (int, bool) {
	list := m.byUniv[universeID]
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].SnapshotDate.Before(date)
	})
	return i, i < len(list) && list[i].SnapshotDate.Equal(date)
}

// Create implements Store
func (m *MemoryStore) Create(ctx context.Context, in contracts.SnapshotInput, overwrite bool) (*contracts.SnapshotRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := newRecord(m.newID(), in, m.now())
	i, exists := m.index(in.UniverseID, rec.SnapshotDate)
	if exists && !overwrite {
		return nil, false, duplicateErr(in.UniverseID, rec.SnapshotDate)
	}

	list := m.byUniv[in.UniverseID]
	var prev *contracts.SnapshotRecord
	if i > 0 {
		prev = list[i-1]
	}
	Derive(prev, rec)

	if exists {
		list[i] = rec
	} else {
		list = append(list, nil)
		copy(list[i+1:], list[i:])
		list[i] = rec
	}
	m.byUniv[in.UniverseID] = list

	return clone(rec), exists, nil
}

// GetByDate implements Store
func (m *MemoryStore) GetByDate(ctx context.Context, universeID string, date time.Time) (*contracts.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	date = calendar.Date(date)
	i, ok := m.index(universeID, date)
	if !ok {
		return nil, notFoundAt(universeID, date)
	}
	return clone(m.byUniv[universeID][i]), nil
}

// Exists implements Store
func (m *MemoryStore) Exists(ctx context.Context, universeID string, date time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.index(universeID, calendar.Date(date))
	return ok, nil
}

// GetLatest implements Store
func (m *MemoryStore) GetLatest(ctx context.Context, universeID string) (*contracts.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byUniv[universeID]
	if len(list) == 0 {
		return nil, contracts.NotFound("snapshot", universeID+"@latest")
	}
	return clone(list[len(list)-1]), nil
}

// GetRange implements Store; both bounds are inclusive
func (m *MemoryStore) GetRange(ctx context.Context, universeID string, start, end time.Time) ([]*contracts.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start, end = calendar.Date(start), calendar.Date(end)
	out := make([]*contracts.SnapshotRecord, 0)
	for _, r := range m.byUniv[universeID] {
		if r.SnapshotDate.Before(start) || r.SnapshotDate.After(end) {
			continue
		}
		out = append(out, clone(r))
	}
	return out, nil
}

// GetNearestAtOrBefore implements Store
func (m *MemoryStore) GetNearestAtOrBefore(ctx context.Context, universeID string, target time.Time) (*contracts.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target = calendar.Date(target)
	i, exact := m.index(universeID, target)
	if exact {
		return clone(m.byUniv[universeID][i]), nil
	}
	if i == 0 {
		return nil, notFoundAt(universeID, target)
	}
	return clone(m.byUniv[universeID][i-1]), nil
}

// List implements Store
func (m *MemoryStore) List(ctx context.Context, universeID string) ([]*contracts.SnapshotRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*contracts.SnapshotRecord, 0, len(m.byUniv[universeID]))
	for _, r := range m.byUniv[universeID] {
		out = append(out, clone(r))
	}
	return out, nil
}

// UpdateDerived implements Store
func (m *MemoryStore) UpdateDerived(ctx context.Context, rec *contracts.SnapshotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.byUniv[rec.UniverseID] {
		if r.ID == rec.ID {
			r.TurnoverRate = rec.TurnoverRate
			r.AssetsAdded = append([]string{}, rec.AssetsAdded...)
			r.AssetsRemoved = append([]string{}, rec.AssetsRemoved...)
			return nil
		}
	}
	return contracts.NotFound("snapshot", rec.ID)
}

// DeleteAllForUniverse implements Store
func (m *MemoryStore) DeleteAllForUniverse(ctx context.Context, universeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.byUniv[universeID]))
	delete(m.byUniv, universeID)
	return n, nil
}
