package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/v13/timeline/internal/calendar"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
)

// PostgresStore persists snapshots in universe_snapshots
// ⭐ SSOT: 스냅샷 저장/조회 SQL은 여기서만
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const snapshotColumns = `
	id::text, universe_id::text, snapshot_date, assets, screening_criteria,
	turnover_rate, assets_added, assets_removed, performance_metrics, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*contracts.SnapshotRecord, error) {
	var (
		rec          contracts.SnapshotRecord
		assetsJSON   []byte
		criteriaJSON []byte
		perfJSON     []byte
		turnover     *float64
	)

	err := row.Scan(
		&rec.ID, &rec.UniverseID, &rec.SnapshotDate, &assetsJSON, &criteriaJSON,
		&turnover, &rec.AssetsAdded, &rec.AssetsRemoved, &perfJSON, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(assetsJSON, &rec.Assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}
	if err := json.Unmarshal(criteriaJSON, &rec.ScreeningCriteria); err != nil {
		return nil, fmt.Errorf("unmarshal screening criteria: %w", err)
	}
	if err := json.Unmarshal(perfJSON, &rec.PerformanceMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal performance metrics: %w", err)
	}
	if turnover != nil {
		rec.TurnoverRate = *turnover
	}
	rec.SnapshotDate = calendar.Date(rec.SnapshotDate)
	if rec.AssetsAdded == nil {
		rec.AssetsAdded = []string{}
	}
	if rec.AssetsRemoved == nil {
		rec.AssetsRemoved = []string{}
	}
	return &rec, nil
}

// Create implements Store.
// 유니버스 단위 advisory lock으로 "선행 조회 → diff → INSERT"를 직렬화
func (s *PostgresStore) Create(ctx context.Context, in contracts.SnapshotInput, overwrite bool) (*contracts.SnapshotRecord, bool, error) {
	if !database.IsUUID(in.UniverseID) {
		return nil, false, contracts.NotFound("universe", in.UniverseID)
	}
	rec := newRecord(uuid.NewString(), in, time.Now())

	assetsJSON, err := json.Marshal(rec.Assets)
	if err != nil {
		return nil, false, fmt.Errorf("marshal assets: %w", err)
	}
	criteriaJSON, err := json.Marshal(rec.ScreeningCriteria)
	if err != nil {
		return nil, false, fmt.Errorf("marshal screening criteria: %w", err)
	}
	perfJSON, err := json.Marshal(rec.PerformanceMetrics)
	if err != nil {
		return nil, false, fmt.Errorf("marshal performance metrics: %w", err)
	}

	replaced := false
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.UniverseID); err != nil {
			return fmt.Errorf("lock universe: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM universe_snapshots
			WHERE universe_id = $1 AND snapshot_date = $2 AND $3::boolean
		`, rec.UniverseID, rec.SnapshotDate, overwrite)
		if err != nil {
			return fmt.Errorf("replace snapshot: %w", err)
		}
		replaced = tag.RowsAffected() > 0

		prev, err := scanSnapshot(tx.QueryRow(ctx, `
			SELECT `+snapshotColumns+`
			FROM universe_snapshots
			WHERE universe_id = $1 AND snapshot_date < $2
			ORDER BY snapshot_date DESC
			LIMIT 1
		`, rec.UniverseID, rec.SnapshotDate))
		if errors.Is(err, pgx.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("query predecessor: %w", err)
		}

		Derive(prev, rec)

		_, err = tx.Exec(ctx, `
			INSERT INTO universe_snapshots (
				id, universe_id, snapshot_date, assets, screening_criteria,
				turnover_rate, assets_added, assets_removed, performance_metrics, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			rec.ID, rec.UniverseID, rec.SnapshotDate, assetsJSON, criteriaJSON,
			rec.TurnoverRate, rec.AssetsAdded, rec.AssetsRemoved, perfJSON, rec.CreatedAt,
		)
		if err != nil {
			return err
		}
		return nil
	})

	switch {
	case err == nil:
		return rec, replaced, nil
	case database.IsUniqueViolation(err):
		return nil, false, duplicateErr(rec.UniverseID, rec.SnapshotDate)
	case database.IsForeignKeyViolation(err):
		return nil, false, contracts.NotFound("universe", rec.UniverseID)
	}
	return nil, false, fmt.Errorf("insert snapshot: %w", err)
}

// queryOne and queryMany take the universe id as $1
func (s *PostgresStore) queryOne(ctx context.Context, notFound error, query string, universeID string, args ...any) (*contracts.SnapshotRecord, error) {
	if !database.IsUUID(universeID) {
		return nil, notFound
	}
	args = append([]any{universeID}, args...)
	rec, err := scanSnapshot(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) queryMany(ctx context.Context, query string, universeID string, args ...any) ([]*contracts.SnapshotRecord, error) {
	if !database.IsUUID(universeID) {
		return []*contracts.SnapshotRecord{}, nil
	}
	args = append([]any{universeID}, args...)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]*contracts.SnapshotRecord, 0)
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// GetByDate implements Store
func (s *PostgresStore) GetByDate(ctx context.Context, universeID string, date time.Time) (*contracts.SnapshotRecord, error) {
	date = calendar.Date(date)
	return s.queryOne(ctx, notFoundAt(universeID, date), `
		SELECT `+snapshotColumns+`
		FROM universe_snapshots
		WHERE universe_id = $1 AND snapshot_date = $2
	`, universeID, date)
}

// Exists implements Store
func (s *PostgresStore) Exists(ctx context.Context, universeID string, date time.Time) (bool, error) {
	if !database.IsUUID(universeID) {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM universe_snapshots WHERE universe_id = $1 AND snapshot_date = $2
		)
	`, universeID, calendar.Date(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return exists, nil
}

// GetLatest implements Store
func (s *PostgresStore) GetLatest(ctx context.Context, universeID string) (*contracts.SnapshotRecord, error) {
	return s.queryOne(ctx, contracts.NotFound("snapshot", universeID+"@latest"), `
		SELECT `+snapshotColumns+`
		FROM universe_snapshots
		WHERE universe_id = $1
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, universeID)
}

// GetRange implements Store; both bounds are inclusive
func (s *PostgresStore) GetRange(ctx context.Context, universeID string, start, end time.Time) ([]*contracts.SnapshotRecord, error) {
	return s.queryMany(ctx, `
		SELECT `+snapshotColumns+`
		FROM universe_snapshots
		WHERE universe_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date ASC
	`, universeID, calendar.Date(start), calendar.Date(end))
}

// GetNearestAtOrBefore implements Store
func (s *PostgresStore) GetNearestAtOrBefore(ctx context.Context, universeID string, target time.Time) (*contracts.SnapshotRecord, error) {
	target = calendar.Date(target)
	return s.queryOne(ctx, notFoundAt(universeID, target), `
		SELECT `+snapshotColumns+`
		FROM universe_snapshots
		WHERE universe_id = $1 AND snapshot_date <= $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, universeID, target)
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, universeID string) ([]*contracts.SnapshotRecord, error) {
	return s.queryMany(ctx, `
		SELECT `+snapshotColumns+`
		FROM universe_snapshots
		WHERE universe_id = $1
		ORDER BY snapshot_date ASC
	`, universeID)
}

// UpdateDerived implements Store
func (s *PostgresStore) UpdateDerived(ctx context.Context, rec *contracts.SnapshotRecord) error {
	if !database.IsUUID(rec.ID) {
		return contracts.NotFound("snapshot", rec.ID)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE universe_snapshots
		SET turnover_rate = $2, assets_added = $3, assets_removed = $4
		WHERE id = $1
	`, rec.ID, rec.TurnoverRate, rec.AssetsAdded, rec.AssetsRemoved)
	if err != nil {
		return fmt.Errorf("update derived fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("snapshot", rec.ID)
	}
	return nil
}

// DeleteAllForUniverse implements Store
func (s *PostgresStore) DeleteAllForUniverse(ctx context.Context, universeID string) (int64, error) {
	if !database.IsUUID(universeID) {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM universe_snapshots WHERE universe_id = $1`, universeID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
