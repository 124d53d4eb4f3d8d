package contracts

import "time"

// EventType names a snapshot lifecycle event
type EventType string

const (
	EventSnapshotCreated  EventType = "snapshot.created"
	EventSnapshotReplaced EventType = "snapshot.replaced"
	EventUniverseDeleted  EventType = "universe.deleted"
)

// SnapshotEvent is broadcast to realtime subscribers
type SnapshotEvent struct {
	Type         EventType `json:"type"`
	UniverseID   string    `json:"universe_id"`
	SnapshotID   string    `json:"snapshot_id,omitempty"`
	SnapshotDate time.Time `json:"snapshot_date,omitempty"`
	TurnoverRate float64   `json:"turnover_rate"`
	AssetCount   int       `json:"asset_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}
