package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Publisher receives snapshot lifecycle events
type Publisher interface {
	Publish(event contracts.SnapshotEvent)
}

// Invalidator drops cached reads of a universe after a write
type Invalidator interface {
	Invalidate(ctx context.Context, universeID string) error
}

// Directory supplies a universe's current composition and owns its lifecycle
type Directory interface {
	CurrentComposition(ctx context.Context, universeID string) (contracts.Composition, map[string]interface{}, error)
	Delete(ctx context.Context, universeID string) error
}

// CreateRequest asks for a snapshot now.
// Nil Assets means "use the universe's current composition".
type CreateRequest struct {
	UniverseID         string
	SnapshotDate       *time.Time
	Assets             contracts.Composition
	ScreeningCriteria  map[string]interface{}
	PerformanceMetrics map[string]interface{}
	Force              bool
}

// Service is the entry point for snapshot writes and reads
// ⭐ SSOT: 스냅샷 생성/삭제 흐름은 여기서만
type Service struct {
	store     Store
	directory Directory
	publisher Publisher
	cache     Invalidator
	metrics   *metrics.Recorder
	logger    *logger.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithDirectory sets the universe directory
func WithDirectory(d Directory) Option { return func(s *Service) { s.directory = d } }

// WithPublisher sets the event publisher
func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithInvalidator sets the cache invalidator
func WithInvalidator(i Invalidator) Option { return func(s *Service) { s.cache = i } }

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a snapshot service
func NewService(store Store, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		store:  store,
		logger: log.WithComponent("snapshot"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store to read-side components
func (s *Service) Store() Store {
	return s.store
}

// CreateSnapshot validates the composition and persists it
func (s *Service) CreateSnapshot(ctx context.Context, req CreateRequest) (*contracts.SnapshotRecord, error) {
	defer s.metrics.ObserveSince("snapshot.create", time.Now())

	if req.UniverseID == "" {
		return nil, contracts.Invalid("universe_id", "required")
	}

	assets := req.Assets
	criteria := req.ScreeningCriteria
	if assets == nil {
		if s.directory == nil {
			return nil, contracts.Invalid("assets", "required when no universe directory is configured")
		}
		current, currentCriteria, err := s.directory.CurrentComposition(ctx, req.UniverseID)
		if err != nil {
			return nil, fmt.Errorf("current composition: %w", err)
		}
		assets = current
		if criteria == nil {
			criteria = currentCriteria
		}
	}

	if err := assets.Validate(); err != nil {
		return nil, err
	}

	date := calendar.Date(s.now())
	if req.SnapshotDate != nil {
		date = calendar.Date(*req.SnapshotDate)
	}

	rec, replaced, err := s.store.Create(ctx, contracts.SnapshotInput{
		UniverseID:         req.UniverseID,
		SnapshotDate:       date,
		Assets:             assets,
		ScreeningCriteria:  criteria,
		PerformanceMetrics: req.PerformanceMetrics,
	}, req.Force)
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, rec, replaced)
	return rec, nil
}

func (s *Service) afterWrite(ctx context.Context, rec *contracts.SnapshotRecord, replaced bool) {
	s.metrics.SnapshotWritten(replaced)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, rec.UniverseID); err != nil {
			s.logger.WithError(err).WithField("universe_id", rec.UniverseID).Warn("cache invalidation failed")
		}
	}

	eventType := contracts.EventSnapshotCreated
	if replaced {
		eventType = contracts.EventSnapshotReplaced
	}
	if s.publisher != nil {
		s.publisher.Publish(contracts.SnapshotEvent{
			Type:         eventType,
			UniverseID:   rec.UniverseID,
			SnapshotID:   rec.ID,
			SnapshotDate: rec.SnapshotDate,
			TurnoverRate: rec.TurnoverRate,
			AssetCount:   len(rec.Assets),
			OccurredAt:   s.now(),
		})
	}

	s.logger.WithFields(map[string]interface{}{
		"universe_id":   rec.UniverseID,
		"snapshot_date": calendar.Format(rec.SnapshotDate),
		"turnover_rate": rec.TurnoverRate,
		"added":         len(rec.AssetsAdded),
		"removed":       len(rec.AssetsRemoved),
		"replaced":      replaced,
	}).Info("snapshot stored")
}

// Latest returns the most recent snapshot
func (s *Service) Latest(ctx context.Context, universeID string) (*contracts.SnapshotRecord, error) {
	return s.store.GetLatest(ctx, universeID)
}

// Range returns snapshots between start and end inclusive, ascending
func (s *Service) Range(ctx context.Context, universeID string, start, end time.Time) ([]*contracts.SnapshotRecord, error) {
	if end.Before(start) {
		return nil, contracts.Invalid("date_range", "start %s is after end %s", calendar.Format(start), calendar.Format(end))
	}
	return s.store.GetRange(ctx, universeID, start, end)
}

// DeleteUniverse removes every snapshot of the universe, then the universe itself
func (s *Service) DeleteUniverse(ctx context.Context, universeID string) (int64, error) {
	n, err := s.store.DeleteAllForUniverse(ctx, universeID)
	if err != nil {
		return 0, err
	}

	if s.directory != nil {
		if err := s.directory.Delete(ctx, universeID); err != nil && !errors.Is(err, contracts.ErrNotFound) {
			return n, fmt.Errorf("delete universe: %w", err)
		}
	}

	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, universeID)
	}
	if s.publisher != nil {
		s.publisher.Publish(contracts.SnapshotEvent{
			Type:       contracts.EventUniverseDeleted,
			UniverseID: universeID,
			OccurredAt: s.now(),
		})
	}

	s.logger.WithFields(map[string]interface{}{
		"universe_id": universeID,
		"snapshots":   n,
	}).Info("universe deleted")
	return n, nil
}

// RederiveChain recomputes turnover and diff fields of every snapshot in date order.
// Needed after a forced overwrite or an out-of-order insert left successors stale.
// Returns the number of records that changed.
func (s *Service) RederiveChain(ctx context.Context, universeID string) (int, error) {
	list, err := s.store.List(ctx, universeID)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SnapshotDate.Before(list[j].SnapshotDate)
	})

	changed := 0
	var prev *contracts.SnapshotRecord
	for _, rec := range list {
		derived := *rec
		Derive(prev, &derived)
		if !sameDerived(rec, &derived) {
			if err := s.store.UpdateDerived(ctx, &derived); err != nil {
				return changed, fmt.Errorf("rederive %s: %w", calendar.Format(rec.SnapshotDate), err)
			}
			changed++
		}
		prev = rec
	}

	if changed > 0 && s.cache != nil {
		_ = s.cache.Invalidate(ctx, universeID)
	}

	s.logger.WithFields(map[string]interface{}{
		"universe_id": universeID,
		"snapshots":   len(list),
		"changed":     changed,
	}).Info("snapshot chain rederived")
	return changed, nil
}

func sameDerived(a, b *contracts.SnapshotRecord) bool {
	if a.TurnoverRate != b.TurnoverRate {
		return false
	}
	return equalStrings(a.AssetsAdded, b.AssetsAdded) && equalStrings(a.AssetsRemoved, b.AssetsRemoved)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
