package universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Universe is a named, owned asset list with its screening criteria
type Universe struct {
	ID                string                 `json:"id"`
	OwnerID           string                 `json:"owner_id"`
	Name              string                 `json:"name"`
	ScreeningCriteria map[string]interface{} `json:"screening_criteria"`
	Assets            contracts.Composition  `json:"assets"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// Repository reads and writes universes and their current assets
type Repository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewRepository creates a new Repository instance
func NewRepository(db *pgxpool.Pool, log *logger.Logger) *Repository {
	if log == nil {
		log = logger.NewNop()
	}
	return &Repository{db: db, logger: log.WithComponent("universe")}
}

// Create stores a universe and its assets in one transaction
func (r *Repository) Create(ctx context.Context, u *Universe) error {
	if u.Name == "" {
		return contracts.Invalid("name", "required")
	}
	if u.OwnerID == "" {
		return contracts.Invalid("owner_id", "required")
	}
	if err := u.Assets.Validate(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if !database.IsUUID(u.ID) {
		return contracts.Invalid("id", "%q is not a UUID", u.ID)
	}
	if u.ScreeningCriteria == nil {
		u.ScreeningCriteria = map[string]interface{}{}
	}
	criteriaJSON, err := json.Marshal(u.ScreeningCriteria)
	if err != nil {
		return fmt.Errorf("marshal screening criteria: %w", err)
	}

	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO universes (id, owner_id, name, screening_criteria)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`, u.ID, u.OwnerID, u.Name, criteriaJSON).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("universe %s: %w", u.ID, contracts.ErrConflict)
			}
			return fmt.Errorf("insert universe: %w", err)
		}
		return insertAssets(ctx, tx, u.ID, u.Assets)
	})
}

// ReplaceAssets swaps the current composition of a universe
func (r *Repository) ReplaceAssets(ctx context.Context, universeID string, assets contracts.Composition) error {
	if !database.IsUUID(universeID) {
		return contracts.NotFound("universe", universeID)
	}
	if err := assets.Validate(); err != nil {
		return err
	}
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE universes SET updated_at = NOW() WHERE id = $1`, universeID)
		if err != nil {
			return fmt.Errorf("touch universe: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return contracts.NotFound("universe", universeID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM universe_assets WHERE universe_id = $1`, universeID); err != nil {
			return fmt.Errorf("clear assets: %w", err)
		}
		return insertAssets(ctx, tx, universeID, assets)
	})
	if err != nil {
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"universe_id": universeID,
		"assets":      len(assets),
	}).Info("universe assets replaced")
	return nil
}

func insertAssets(ctx context.Context, tx pgx.Tx, universeID string, assets contracts.Composition) error {
	batch := &pgx.Batch{}
	for i, a := range assets {
		batch.Queue(`
			INSERT INTO universe_assets (universe_id, symbol, name, weight, sector, asset_id, position)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		`, universeID, a.Symbol, a.Name, a.Weight, a.Sector, a.AssetRef, i)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert assets: %w", err)
	}
	return nil
}

// Get returns the universe with its current assets
func (r *Repository) Get(ctx context.Context, universeID string) (*Universe, error) {
	u := &Universe{ID: universeID}
	var criteriaJSON []byte
	err := r.db.QueryRow(ctx, `
		SELECT owner_id, name, screening_criteria, created_at, updated_at
		FROM universes
		WHERE id::text = $1
	`, universeID).Scan(&u.OwnerID, &u.Name, &criteriaJSON, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.NotFound("universe", universeID)
		}
		return nil, fmt.Errorf("query universe: %w", err)
	}
	if err := json.Unmarshal(criteriaJSON, &u.ScreeningCriteria); err != nil {
		return nil, fmt.Errorf("unmarshal screening criteria: %w", err)
	}

	u.Assets, err = r.assets(ctx, universeID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) assets(ctx context.Context, universeID string) (contracts.Composition, error) {
	rows, err := r.db.Query(ctx, `
		SELECT symbol, name, weight, COALESCE(sector, ''), COALESCE(asset_id, '')
		FROM universe_assets
		WHERE universe_id::text = $1
		ORDER BY position, symbol
	`, universeID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	out := make(contracts.Composition, 0)
	for rows.Next() {
		var a contracts.Asset
		if err := rows.Scan(&a.Symbol, &a.Name, &a.Weight, &a.Sector, &a.AssetRef); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Exists reports whether the universe is defined
func (r *Repository) Exists(ctx context.Context, universeID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM universes WHERE id::text = $1)`, universeID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check universe: %w", err)
	}
	return ok, nil
}

// CurrentComposition returns the screened current assets and the criteria used
func (r *Repository) CurrentComposition(ctx context.Context, universeID string) (contracts.Composition, map[string]interface{}, error) {
	u, err := r.Get(ctx, universeID)
	if err != nil {
		return nil, nil, err
	}

	criteria, err := CriteriaFromMap(u.ScreeningCriteria)
	if err != nil {
		return nil, nil, err
	}
	screener, err := NewScreener(criteria)
	if err != nil {
		return nil, nil, err
	}
	res := screener.Screen(u.Assets)

	if len(res.Excluded) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"universe_id": universeID,
			"kept":        len(res.Assets),
			"excluded":    len(res.Excluded),
		}).Debug("screening applied")
	}
	return res.Assets, u.ScreeningCriteria, nil
}

// Delete removes the universe; assets cascade
func (r *Repository) Delete(ctx context.Context, universeID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM universes WHERE id::text = $1`, universeID)
	if err != nil {
		return fmt.Errorf("delete universe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("universe", universeID)
	}
	return nil
}
