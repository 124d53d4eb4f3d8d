// Package metrics exports engine counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records engine metrics. A nil *Recorder is a valid no-op.
type Recorder struct {
	snapshots  *prometheus.CounterVec
	backfill   *prometheus.CounterVec
	executions *prometheus.CounterVec
	cache      *prometheus.CounterVec
	plans      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// New registers the engine metrics on reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_snapshots_total",
				Help: "Snapshots written, by outcome (created, replaced)",
			},
			[]string{"outcome"},
		),
		backfill: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_backfill_dates_total",
				Help: "Backfill dates processed, by outcome",
			},
			[]string{"outcome"},
		),
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_schedule_executions_total",
				Help: "Scheduled snapshot executions, by status",
			},
			[]string{"status"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_resolver_cache_total",
				Help: "Point-in-time resolver cache lookups, by result",
			},
			[]string{"result"},
		),
		plans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "timeline_transition_plans_total",
				Help: "Transition plan status changes, by status",
			},
			[]string{"status"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "timeline_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// SnapshotWritten records a created or replaced snapshot
func (r *Recorder) SnapshotWritten(replaced bool) {
	if r == nil {
		return
	}
	outcome := "created"
	if replaced {
		outcome = "replaced"
	}
	r.snapshots.WithLabelValues(outcome).Inc()
}

// BackfillOutcome records one processed backfill date
func (r *Recorder) BackfillOutcome(outcome string) {
	if r == nil {
		return
	}
	r.backfill.WithLabelValues(outcome).Inc()
}

// ScheduleExecution records one schedule run
func (r *Recorder) ScheduleExecution(status string) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(status).Inc()
}

// CacheLookup records a resolver cache hit or miss
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

// PlanStatus records a transition plan reaching status
func (r *Recorder) PlanStatus(status string) {
	if r == nil {
		return
	}
	r.plans.WithLabelValues(status).Inc()
}

// ObserveSince records the latency of op started at start
func (r *Recorder) ObserveSince(op string, start time.Time) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
