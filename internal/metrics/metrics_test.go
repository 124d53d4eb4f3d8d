package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.SnapshotWritten(false)
	r.SnapshotWritten(false)
	r.SnapshotWritten(true)
	r.BackfillOutcome("SKIPPED")
	r.CacheLookup(true)
	r.CacheLookup(false)
	r.CacheLookup(false)
	r.ScheduleExecution("FAILED")
	r.PlanStatus("COMPLETED")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.snapshots.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshots.WithLabelValues("replaced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.backfill.WithLabelValues("SKIPPED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.executions.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.plans.WithLabelValues("COMPLETED")))
}

func TestRecorder_Latency(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.ObserveSince("backfill", time.Now().Add(-time.Second))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SnapshotWritten(true)
		r.BackfillOutcome("CREATED")
		r.ScheduleExecution("SUCCESS")
		r.CacheLookup(true)
		r.PlanStatus("PENDING")
		r.ObserveSince("x", time.Now())
	})
}
