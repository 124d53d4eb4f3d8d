// Package realtime pushes snapshot lifecycle events to websocket subscribers.
package realtime

import (
	"sync"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// LatestEvents keeps the newest event per universe for late subscribers
// ⭐ SSOT: 유니버스별 최신 이벤트 캐시
type LatestEvents struct {
	mu     sync.RWMutex
	events map[string]contracts.SnapshotEvent
}

// NewLatestEvents creates an empty cache
func NewLatestEvents() *LatestEvents {
	return &LatestEvents{events: make(map[string]contracts.SnapshotEvent)}
}

// Update stores ev unless a newer event for the universe is already held.
// A deletion clears the universe.
func (c *LatestEvents) Update(ev contracts.SnapshotEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.events[ev.UniverseID]
	if ok && ev.OccurredAt.Before(existing.OccurredAt) {
		return false
	}
	if ev.Type == contracts.EventUniverseDeleted {
		delete(c.events, ev.UniverseID)
		return true
	}
	c.events[ev.UniverseID] = ev
	return true
}

// Get returns the latest event of a universe
func (c *LatestEvents) Get(universeID string) (contracts.SnapshotEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[universeID]
	return ev, ok
}

// Len returns the number of universes tracked
func (c *LatestEvents) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}
