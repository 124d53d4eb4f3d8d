package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Executor performs the work of one due schedule occurrence
type Executor interface {
	Execute(ctx context.Context, s *contracts.Schedule, planned time.Time) (contracts.ExecutionStatus, map[string]interface{}, error)
}

// SnapshotCreator is the snapshot write path used by SnapshotExecutor
type SnapshotCreator interface {
	CreateSnapshot(ctx context.Context, req snapshot.CreateRequest) (*contracts.SnapshotRecord, error)
}

// SnapshotExecutor snapshots the universe's current composition on the planned date
type SnapshotExecutor struct {
	creator SnapshotCreator
}

// NewSnapshotExecutor creates an executor backed by the snapshot service
func NewSnapshotExecutor(creator SnapshotCreator) *SnapshotExecutor {
	return &SnapshotExecutor{creator: creator}
}

// Execute creates the snapshot; an existing snapshot on that date is a skip, not a failure
func (e *SnapshotExecutor) Execute(ctx context.Context, s *contracts.Schedule, planned time.Time) (contracts.ExecutionStatus, map[string]interface{}, error) {
	date := PlannedDate(s, planned)
	rec, err := e.creator.CreateSnapshot(ctx, snapshot.CreateRequest{
		UniverseID:   s.UniverseID,
		SnapshotDate: &date,
	})
	if errors.Is(err, contracts.ErrDuplicateSnapshot) {
		return contracts.ExecutionSkipped, map[string]interface{}{
			"snapshot_date": date.Format("2006-01-02"),
			"reason":        "snapshot already exists",
		}, nil
	}
	if err != nil {
		return contracts.ExecutionFailed, nil, err
	}
	return contracts.ExecutionSuccess, map[string]interface{}{
		"snapshot_id":   rec.ID,
		"snapshot_date": date.Format("2006-01-02"),
		"asset_count":   len(rec.Assets),
		"turnover_rate": rec.TurnoverRate,
	}, nil
}

// DispatchJob polls for due schedules and runs them through an Executor
// ⭐ SSOT: 스케줄 → 스냅샷 실행 연결은 여기서만
type DispatchJob struct {
	manager  *Manager
	executor Executor
	spec     string
	logger   *logger.Logger
	now      func() time.Time
}

// NewDispatchJob creates the dispatcher; spec is a 6-field cron tick
func NewDispatchJob(manager *Manager, executor Executor, spec string, log *logger.Logger) *DispatchJob {
	if log == nil {
		log = logger.NewNop()
	}
	if spec == "" {
		spec = "0 * * * * *"
	}
	return &DispatchJob{
		manager:  manager,
		executor: executor,
		spec:     spec,
		logger:   log.WithComponent("dispatch"),
		now:      time.Now,
	}
}

// Name returns job name
func (j *DispatchJob) Name() string {
	return "schedule_dispatch"
}

// Schedule returns cron schedule
func (j *DispatchJob) Schedule() string {
	return j.spec
}

// Run executes every schedule due now. Individual failures are recorded
// against their schedule and do not fail the tick.
func (j *DispatchJob) Run(ctx context.Context) error {
	ref := j.now()
	due, err := j.manager.DueSchedules(ctx, ref)
	if err != nil {
		return fmt.Errorf("due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	j.logger.WithField("count", len(due)).Info("dispatching due schedules")

	var recordErrs []error
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, result, execErr := j.executor.Execute(ctx, d.Schedule, d.Planned)
		errMsg := ""
		if execErr != nil {
			errMsg = execErr.Error()
			j.logger.WithError(execErr).WithField("schedule_id", d.Schedule.ID).Warn("scheduled snapshot failed")
		}

		if _, err := j.manager.RecordExecution(ctx, d.Schedule.ID, d.Planned, j.now(), status, result, errMsg); err != nil {
			recordErrs = append(recordErrs, fmt.Errorf("record %s: %w", d.Schedule.ID, err))
		}
	}
	return errors.Join(recordErrs...)
}
