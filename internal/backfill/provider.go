package backfill

import (
	"context"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// CompositionProvider supplies the composition to record for one backfill date
type CompositionProvider interface {
	CompositionAt(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error)
}

// ProviderFunc adapts a function to CompositionProvider
type ProviderFunc func(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error)

// CompositionAt implements CompositionProvider
func (f ProviderFunc) CompositionAt(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error) {
	return f(ctx, universeID, date)
}

// StaticComposition records the same composition on every date
type StaticComposition struct {
	Assets   contracts.Composition
	Criteria map[string]interface{}
}

// CompositionAt implements CompositionProvider
func (s StaticComposition) CompositionAt(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error) {
	return s.Assets.Clone(), s.Criteria, nil
}

// Directory is the current-composition source of a universe
type Directory interface {
	CurrentComposition(ctx context.Context, universeID string) (contracts.Composition, map[string]interface{}, error)
}

// UniverseComposition records the universe's current composition on every date.
// The composition is read once per run so all dates see the same state.
type UniverseComposition struct {
	directory Directory

	loaded   bool
	assets   contracts.Composition
	criteria map[string]interface{}
}

// NewUniverseComposition creates a provider backed by the universe directory
func NewUniverseComposition(d Directory) *UniverseComposition {
	return &UniverseComposition{directory: d}
}

// CompositionAt implements CompositionProvider
func (u *UniverseComposition) CompositionAt(ctx context.Context, universeID string, date time.Time) (contracts.Composition, map[string]interface{}, error) {
	if !u.loaded {
		assets, criteria, err := u.directory.CurrentComposition(ctx, universeID)
		if err != nil {
			return nil, nil, err
		}
		u.assets, u.criteria, u.loaded = assets, criteria, true
	}
	return u.assets.Clone(), u.criteria, nil
}
