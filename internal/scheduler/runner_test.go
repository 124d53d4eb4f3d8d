package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	calls   int32
	failFor int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return "0 0 0 1 1 *" }

func (j *countingJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if n <= j.failFor {
		return errors.New("transient")
	}
	return nil
}

func TestRunner_RunNowRecordsHistory(t *testing.T) {
	r := NewRunner(nil)
	job := &countingJob{name: "count"}
	require.NoError(t, r.AddJob(job))
	assert.Error(t, r.AddJob(job))

	res, err := r.RunNow("count")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)

	stats := r.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].TotalRuns)
	assert.Equal(t, 1.0, stats[0].SuccessRate)
	assert.NotNil(t, stats[0].LastRun)

	_, err = r.RunNow("missing")
	assert.Error(t, err)
}

func TestRunner_Retries(t *testing.T) {
	r := NewRunner(nil, WithRetries(2, time.Millisecond))
	job := &countingJob{name: "flaky", failFor: 2}
	require.NoError(t, r.AddJob(job))

	res, err := r.RunNow("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)

	job.failFor = 100
	res, _ = r.RunNow("flaky")
	assert.False(t, res.Success)
	assert.Equal(t, "transient", res.Error)
	assert.Equal(t, 1, r.Stats()[0].FailureCount)
}

func TestRunner_RejectsBadSpec(t *testing.T) {
	r := NewRunner(nil)
	err := r.AddJob(NewDispatchJob(nil, nil, "every minute", nil))
	assert.Error(t, err)
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < historyLimit+10; i++ {
		h.Add(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.Len(t, h.Latest(5), 5)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
}
