package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Runner triggers jobs on cron schedules and keeps their run history
// ⭐ SSOT: 주기 실행은 이 Runner에서만
type Runner struct {
	cron    *cron.Cron
	logger  *logger.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	mu      sync.RWMutex

	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRetries retries a failed run up to n more times, waiting delay between attempts
func WithRetries(n int, delay time.Duration) RunnerOption {
	return func(r *Runner) {
		r.maxRetries = n
		r.retryDelay = delay
	}
}

// WithJobTimeout bounds each run's context
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// NewRunner creates a runner with second-resolution cron specs
func NewRunner(log *logger.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	r := &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  log.WithComponent("runner"),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		history: make(map[string]*JobHistory),
		timeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddJob registers a job
func (r *Runner) AddJob(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := job.Name()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := r.cron.AddFunc(job.Schedule(), func() {
		r.run(job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	r.jobs[name] = job
	r.entries[name] = id
	r.history[name] = &JobHistory{}

	r.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("job registered")
	return nil
}

// Start begins triggering jobs
func (r *Runner) Start() {
	r.logger.Info("runner starting")
	r.cron.Start()
}

// Stop waits for running jobs to finish
func (r *Runner) Stop() {
	r.logger.Info("runner stopping")
	<-r.cron.Stop().Done()
	r.logger.Info("runner stopped")
}

// RunNow runs a job synchronously outside its schedule
func (r *Runner) RunNow(name string) (JobResult, error) {
	r.mu.RLock()
	job, exists := r.jobs[name]
	r.mu.RUnlock()

	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return r.run(job), nil
}

func (r *Runner) run(job Job) JobResult {
	name := job.Name()
	start := time.Now()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		lastErr = job.Run(ctx)
		cancel()
		if lastErr == nil {
			break
		}

		r.logger.WithFields(map[string]interface{}{
			"job":     name,
			"attempt": attempts,
		}).WithError(lastErr).Warn("job run failed")

		if attempt < r.maxRetries {
			time.Sleep(r.retryDelay)
		}
	}

	end := time.Now()
	result := JobResult{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   lastErr == nil,
		Attempts:  attempts,
	}
	if lastErr != nil {
		result.Error = lastErr.Error()
	}

	r.mu.Lock()
	if h, ok := r.history[name]; ok {
		h.Add(result)
	}
	r.mu.Unlock()

	log := r.logger.WithFields(map[string]interface{}{
		"job":      name,
		"duration": result.Duration,
	})
	if result.Success {
		log.Debug("job completed")
	} else {
		log.WithField("error", result.Error).Error("job failed after all attempts")
	}
	return result
}

// JobStats summarizes one job's history
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Stats returns per-job statistics ordered by name
func (r *Runner) Stats() []JobStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]JobStats, 0, len(r.jobs))
	for name, job := range r.jobs {
		h := r.history[name]
		st := JobStats{
			JobName:      name,
			Schedule:     job.Schedule(),
			TotalRuns:    len(h.Results),
			FailureCount: h.Failures(),
			SuccessRate:  h.SuccessRate(),
		}
		if latest := h.Latest(1); len(latest) == 1 {
			t := latest[0].StartTime
			st.LastRun = &t
			st.LastError = latest[0].Error
		}
		if entry := r.cron.Entry(r.entries[name]); !entry.Next.IsZero() {
			next := entry.Next
			st.NextRun = &next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobName < out[j].JobName })
	return out
}
