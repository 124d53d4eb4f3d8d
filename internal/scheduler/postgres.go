package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
)

// PostgresRepository stores schedules in snapshot_schedules / schedule_executions
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const scheduleColumns = `
	id::text, universe_id::text, frequency, start_date, end_date, execution_time,
	timezone_name, status, metadata, consecutive_failures, created_at, updated_at`

func scanSchedule(row pgx.Row) (*contracts.Schedule, error) {
	var (
		s        contracts.Schedule
		endDate  *time.Time
		metaJSON []byte
	)
	err := row.Scan(
		&s.ID, &s.UniverseID, &s.Frequency, &s.StartDate, &endDate, &s.ExecutionTime,
		&s.TimezoneName, &s.Status, &metaJSON, &s.ConsecutiveFailures, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.EndDate = endDate
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &s, nil
}

// Get implements Repository
func (r *PostgresRepository) Get(ctx context.Context, id string) (*contracts.Schedule, error) {
	if !database.IsUUID(id) {
		return nil, contracts.NotFound("schedule", id)
	}
	s, err := scanSchedule(r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM snapshot_schedules
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.NotFound("schedule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}

	execs, err := r.executions(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Executions = execs
	return s, nil
}

func (r *PostgresRepository) executions(ctx context.Context, scheduleID string) ([]contracts.ScheduleExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, schedule_id::text, planned_date, actual_date, status, result, error
		FROM schedule_executions
		WHERE schedule_id = $1
		ORDER BY seq ASC
	`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	out := make([]contracts.ScheduleExecution, 0)
	for rows.Next() {
		var (
			e          contracts.ScheduleExecution
			resultJSON []byte
		)
		if err := rows.Scan(&e.ID, &e.ScheduleID, &e.PlannedDate, &e.ActualDate, &e.Status, &resultJSON, &e.Error); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &e.Result); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Put implements Repository
func (r *PostgresRepository) Put(ctx context.Context, s *contracts.Schedule) error {
	if !database.IsUUID(s.UniverseID) {
		return contracts.NotFound("universe", s.UniverseID)
	}
	meta := s.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO snapshot_schedules (
			id, universe_id, frequency, start_date, end_date, execution_time,
			timezone_name, status, metadata, consecutive_failures, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			execution_time = EXCLUDED.execution_time,
			timezone_name = EXCLUDED.timezone_name,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			consecutive_failures = EXCLUDED.consecutive_failures,
			updated_at = EXCLUDED.updated_at
	`,
		s.ID, s.UniverseID, string(s.Frequency), s.StartDate, s.EndDate, s.ExecutionTime,
		s.TimezoneName, string(s.Status), metaJSON, s.ConsecutiveFailures, s.CreatedAt, s.UpdatedAt,
	)
	if database.IsForeignKeyViolation(err) {
		return contracts.NotFound("universe", s.UniverseID)
	}
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// List implements Repository
func (r *PostgresRepository) List(ctx context.Context) ([]*contracts.Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM snapshot_schedules
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}

	out := make([]*contracts.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}

	for _, s := range out {
		execs, err := r.executions(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Executions = execs
	}
	return out, nil
}

// Delete implements Repository
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !database.IsUUID(id) {
		return contracts.NotFound("schedule", id)
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM snapshot_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.NotFound("schedule", id)
	}
	return nil
}

// AppendExecution implements Repository
func (r *PostgresRepository) AppendExecution(ctx context.Context, e contracts.ScheduleExecution) error {
	if !database.IsUUID(e.ScheduleID) {
		return contracts.NotFound("schedule", e.ScheduleID)
	}
	result := e.Result
	if result == nil {
		result = map[string]interface{}{}
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO schedule_executions (id, schedule_id, planned_date, actual_date, status, result, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ScheduleID, e.PlannedDate, e.ActualDate, string(e.Status), resultJSON, e.Error)
	if database.IsForeignKeyViolation(err) {
		return contracts.NotFound("schedule", e.ScheduleID)
	}
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}
