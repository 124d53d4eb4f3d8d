package transition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
)

// PlanRepository stores transition plans
type PlanRepository interface {
	Get(ctx context.Context, id string) (*contracts.TransitionPlan, error)
	Put(ctx context.Context, p *contracts.TransitionPlan) error
	List(ctx context.Context, universeID string) ([]*contracts.TransitionPlan, error)
	Delete(ctx context.Context, id string) error
}

// MemoryRepository is an in-process PlanRepository
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string][]byte
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string][]byte)}
}

// 저장본과 공유되지 않도록 JSON으로 복제
func decodePlan(data []byte) (*contracts.TransitionPlan, error) {
	var p contracts.TransitionPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}

// Get implements PlanRepository
func (r *MemoryRepository) Get(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.plans[id]
	if !ok {
		return nil, contracts.NotFound("transition plan", id)
	}
	return decodePlan(data)
}

// Put implements PlanRepository
func (r *MemoryRepository) Put(ctx context.Context, p *contracts.TransitionPlan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = data
	return nil
}

// List implements PlanRepository; newest first
func (r *MemoryRepository) List(ctx context.Context, universeID string) ([]*contracts.TransitionPlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*contracts.TransitionPlan, 0)
	for _, data := range r.plans {
		p, err := decodePlan(data)
		if err != nil {
			return nil, err
		}
		if universeID == "" || p.UniverseID == universeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements PlanRepository
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[id]; !ok {
		return contracts.NotFound("transition plan", id)
	}
	delete(r.plans, id)
	return nil
}

// PostgresRepository persists plans in transition_plans
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const planColumns = `
	id::text, universe_id::text, strategy, status, rule, portfolio_value,
	from_weights, to_weights, steps, total_expected_cost, total_actual_cost,
	warnings, created_at, updated_at`

func scanPlan(row pgx.Row) (*contracts.TransitionPlan, error) {
	var (
		p                          contracts.TransitionPlan
		strategy, status           string
		ruleJSON, fromJSON, toJSON []byte
		stepsJSON                  []byte
	)
	err := row.Scan(
		&p.ID, &p.UniverseID, &strategy, &status, &ruleJSON, &p.PortfolioValue,
		&fromJSON, &toJSON, &stepsJSON, &p.TotalExpectedCost, &p.TotalActualCost,
		&p.Warnings, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Strategy = contracts.TransitionStrategy(strategy)
	p.Status = contracts.PlanStatus(status)

	for _, f := range []struct {
		name string
		data []byte
		dest interface{}
	}{
		{"rule", ruleJSON, &p.Rule},
		{"from_weights", fromJSON, &p.FromWeights},
		{"to_weights", toJSON, &p.ToWeights},
		{"steps", stepsJSON, &p.Steps},
	} {
		if err := json.Unmarshal(f.data, f.dest); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", f.name, err)
		}
	}
	return &p, nil
}

// Get implements PlanRepository
func (r *PostgresRepository) Get(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	if !database.IsUUID(id) {
		return nil, contracts.NotFound("transition plan", id)
	}
	p, err := scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM transition_plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("transition plan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

// Put implements PlanRepository
func (r *PostgresRepository) Put(ctx context.Context, p *contracts.TransitionPlan) error {
	if !database.IsUUID(p.UniverseID) {
		return contracts.NotFound("universe", p.UniverseID)
	}
	ruleJSON, err := json.Marshal(p.Rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}
	fromJSON, err := json.Marshal(p.FromWeights)
	if err != nil {
		return fmt.Errorf("marshal from weights: %w", err)
	}
	toJSON, err := json.Marshal(p.ToWeights)
	if err != nil {
		return fmt.Errorf("marshal to weights: %w", err)
	}
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	warnings := p.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO transition_plans (
			id, universe_id, strategy, status, rule, portfolio_value, from_weights,
			to_weights, steps, total_expected_cost, total_actual_cost, warnings,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			steps = EXCLUDED.steps,
			total_actual_cost = EXCLUDED.total_actual_cost,
			warnings = EXCLUDED.warnings,
			updated_at = EXCLUDED.updated_at
	`,
		p.ID, p.UniverseID, string(p.Strategy), string(p.Status), ruleJSON, p.PortfolioValue, fromJSON,
		toJSON, stepsJSON, p.TotalExpectedCost, p.TotalActualCost, warnings,
		p.CreatedAt, p.UpdatedAt,
	)
	if database.IsForeignKeyViolation(err) {
		return contracts.NotFound("universe", p.UniverseID)
	}
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

// List implements PlanRepository; newest first
func (r *PostgresRepository) List(ctx context.Context, universeID string) ([]*contracts.TransitionPlan, error) {
	if universeID != "" && !database.IsUUID(universeID) {
		return []*contracts.TransitionPlan{}, nil
	}
	query := `SELECT ` + planColumns + ` FROM transition_plans`
	args := []interface{}{}
	if universeID != "" {
		query += ` WHERE universe_id = $1`
		args = append(args, universeID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	out := make([]*contracts.TransitionPlan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return out, nil
}

// Delete implements PlanRepository
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !database.IsUUID(id) {
		return contracts.NotFound("transition plan", id)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM transition_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("transition plan", id)
	}
	return nil
}
