// Package temporal answers point-in-time questions about universe composition.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// Confidence windows in days
const (
	highConfidenceDays   = 7
	mediumConfidenceDays = 31
)

// Resolver returns the historically accurate composition for a date.
// It never substitutes the current composition and never interpolates.
// ⭐ SSOT: 시점 구성 조회 (생존 편향 제거)
type Resolver struct {
	store    snapshot.Store
	tracker  *evolution.Tracker
	cache    *redis.Cache
	cacheTTL time.Duration
	metrics  *metrics.Recorder
	logger   *logger.Logger
}

// NewResolver creates a resolver; cache may be nil
func NewResolver(store snapshot.Store, tracker *evolution.Tracker, cache *redis.Cache, cacheTTL time.Duration, rec *metrics.Recorder, log *logger.Logger) *Resolver {
	if tracker == nil {
		tracker = evolution.NewTracker(evolution.DefaultTrackerConfig())
	}
	if log == nil {
		log = logger.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = redis.TTLMedium
	}
	return &Resolver{
		store:    store,
		tracker:  tracker,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  rec,
		logger:   log.WithComponent("resolver"),
	}
}

// ConfidenceFor grades the gap between a target date and the snapshot used
func ConfidenceFor(days int) contracts.Confidence {
	switch {
	case days <= highConfidenceDays:
		return contracts.ConfidenceHigh
	case days <= mediumConfidenceDays:
		return contracts.ConfidenceMedium
	}
	return contracts.ConfidenceLow
}

// Resolve returns the composition of the nearest snapshot at or before target
func (r *Resolver) Resolve(ctx context.Context, universeID string, target time.Time) (*contracts.PointInTimeComposition, error) {
	target = calendar.Date(target)

	key, cacheable := r.cacheKey(ctx, universeID, target)
	if cacheable {
		var cached contracts.PointInTimeComposition
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			r.logger.WithError(err).Warn("resolver cache read failed")
		}
		r.metrics.CacheLookup(found)
		if found {
			return &cached, nil
		}
	}

	rec, err := r.store.GetNearestAtOrBefore(ctx, universeID, target)
	if errors.Is(err, contracts.ErrNotFound) {
		return nil, &contracts.NotFoundError{
			Resource: "snapshot",
			ID:       universeID + "@" + calendar.Format(target),
			Hint:     "no snapshot at or before this date; create a historical snapshot or run a backfill",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve composition: %w", err)
	}

	days := calendar.DaysBetween(rec.SnapshotDate, target)
	pit := &contracts.PointInTimeComposition{
		UniverseID:        universeID,
		TargetDate:        target,
		SnapshotID:        rec.ID,
		SnapshotDate:      rec.SnapshotDate,
		Assets:            rec.Assets,
		DaysSinceSnapshot: days,
		Confidence:        ConfidenceFor(days),
	}

	if cacheable {
		if err := r.cache.Set(ctx, key, pit, r.cacheTTL); err != nil {
			r.logger.WithError(err).Warn("resolver cache write failed")
		}
	}
	return pit, nil
}

// Invalidate bumps the universe's cache version so older entries are never read again
func (r *Resolver) Invalidate(ctx context.Context, universeID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.BumpVersion(ctx, redis.UniverseNamespace(universeID))
}

func (r *Resolver) cacheKey(ctx context.Context, universeID string, target time.Time) (string, bool) {
	if r.cache == nil {
		return "", false
	}
	version, err := r.cache.Version(ctx, redis.UniverseNamespace(universeID))
	if err != nil {
		r.logger.WithError(err).Warn("resolver cache version failed")
		return "", false
	}
	return redis.CompositionKey(universeID, version, calendar.Format(target)), true
}

// Compare resolves both dates and analyzes the change between them
func (r *Resolver) Compare(ctx context.Context, universeID string, from, to time.Time) (*contracts.ChangeAnalysis, error) {
	if to.Before(from) {
		return nil, contracts.Invalid("date_range", "from %s is after to %s", calendar.Format(from), calendar.Format(to))
	}

	older, err := r.Resolve(ctx, universeID, from)
	if err != nil {
		return nil, err
	}
	newer, err := r.Resolve(ctx, universeID, to)
	if err != nil {
		return nil, err
	}

	analysis := r.tracker.AnalyzeCompositions(older.SnapshotDate, older.Assets, newer.SnapshotDate, newer.Assets)
	return &analysis, nil
}
