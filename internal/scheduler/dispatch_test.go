package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
)

type fakeExecutor struct {
	calls []time.Time
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, s *contracts.Schedule, planned time.Time) (contracts.ExecutionStatus, map[string]interface{}, error) {
	f.calls = append(f.calls, planned)
	if f.err != nil {
		return contracts.ExecutionFailed, nil, f.err
	}
	return contracts.ExecutionSuccess, map[string]interface{}{"ok": true}, nil
}

func TestDispatchJob_RunsDueOncePerOccurrence(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(3)
	s := createDaily(t, m, "u1", utc(2024, 1, 1, 0, 0))

	exec := &fakeExecutor{}
	job := NewDispatchJob(m, exec, "", nil)
	job.now = func() time.Time { return utc(2024, 1, 3, 10, 0) }
	assert.Equal(t, "0 * * * * *", job.Schedule())

	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	require.Len(t, exec.calls, 1)
	assert.Equal(t, utc(2024, 1, 3, 9, 0), exec.calls[0])

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Executions, 1)
	assert.Equal(t, contracts.ExecutionSuccess, got.Executions[0].Status)
	assert.Equal(t, time.Hour, got.Executions[0].Delay())
}

func TestDispatchJob_FailuresAreRecorded(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(1)
	s := createDaily(t, m, "u1", utc(2024, 1, 1, 0, 0))

	exec := &fakeExecutor{err: errors.New("directory offline")}
	job := NewDispatchJob(m, exec, "", nil)
	job.now = func() time.Time { return utc(2024, 1, 1, 9, 30) }

	require.NoError(t, job.Run(ctx))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.ScheduleFailed, got.Status)
	require.Len(t, got.Executions, 1)
	assert.Equal(t, "directory offline", got.Executions[0].Error)
}

type staticDirectory struct {
	assets contracts.Composition
}

func (d staticDirectory) CurrentComposition(ctx context.Context, universeID string) (contracts.Composition, map[string]interface{}, error) {
	return d.assets, nil, nil
}

func (d staticDirectory) Delete(ctx context.Context, universeID string) error { return nil }

func TestSnapshotExecutor(t *testing.T) {
	ctx := context.Background()
	svc := snapshot.NewService(snapshot.NewMemoryStore(), nil, snapshot.WithDirectory(staticDirectory{
		assets: contracts.Composition{
			{Symbol: "AAPL", Name: "Apple", Weight: 0.6},
			{Symbol: "MSFT", Name: "Microsoft", Weight: 0.4},
		},
	}))
	exec := NewSnapshotExecutor(svc)
	s := newSchedule(contracts.FrequencyDaily, utc(2024, 1, 1, 0, 0))

	status, result, err := exec.Execute(ctx, s, utc(2024, 1, 2, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, contracts.ExecutionSuccess, status)
	assert.Equal(t, "2024-01-02", result["snapshot_date"])
	assert.Equal(t, 2, result["asset_count"])

	status, _, err = exec.Execute(ctx, s, utc(2024, 1, 2, 9, 0))
	require.NoError(t, err)
	assert.Equal(t, contracts.ExecutionSkipped, status)

	rec, err := svc.Store().GetByDate(ctx, "u1", utc(2024, 1, 2, 0, 0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, rec.Assets.Symbols())
}
