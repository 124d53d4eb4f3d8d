package transition

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// Manager owns plan lifecycle: PENDING → IN_PROGRESS → COMPLETED, with
// PAUSED and CANCELLED as operator actions
// ⭐ SSOT: 전환 계획 상태 전이는 여기서만
type Manager struct {
	planner *Planner
	repo    PlanRepository
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time
}

// NewManager creates a plan manager
func NewManager(planner *Planner, repo PlanRepository, rec *metrics.Recorder, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		planner: planner,
		repo:    repo,
		metrics: rec,
		logger:  log.WithComponent("transition"),
		now:     time.Now,
	}
}

// Create plans and stores a new PENDING plan
func (m *Manager) Create(ctx context.Context, req PlanRequest) (*contracts.TransitionPlan, error) {
	plan, err := m.planner.CreatePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Put(ctx, plan); err != nil {
		return nil, err
	}
	m.metrics.PlanStatus(string(plan.Status))
	return plan, nil
}

// Get returns a plan
func (m *Manager) Get(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	return m.repo.Get(ctx, id)
}

// List returns plans, optionally of one universe
func (m *Manager) List(ctx context.Context, universeID string) ([]*contracts.TransitionPlan, error) {
	return m.repo.List(ctx, universeID)
}

// Progress returns the completed share of steps in percent
func (m *Manager) Progress(ctx context.Context, id string) (float64, error) {
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Progress(), nil
}

// ExecuteStep marks step number index (1-based) executed. Steps run in order;
// a nil actualCost records the expected cost.
func (m *Manager) ExecuteStep(ctx context.Context, id string, index int, actualCost *float64) (*contracts.TransitionPlan, error) {
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.IsTerminal() || p.Status == contracts.PlanPaused {
		return nil, fmt.Errorf("plan %s is %s: %w", id, p.Status, contracts.ErrInvalidState)
	}
	if index < 1 || index > len(p.Steps) {
		return nil, contracts.Invalid("step", "plan has steps 1..%d, got %d", len(p.Steps), index)
	}
	next := p.CompletedSteps() + 1
	if index != next {
		return nil, fmt.Errorf("step %d cannot run before step %d: %w", index, next, contracts.ErrInvalidState)
	}
	if actualCost != nil && *actualCost < 0 {
		return nil, contracts.Invalid("actual_cost", "must not be negative")
	}

	now := m.now()
	step := &p.Steps[index-1]
	cost := step.ExpectedCost
	if actualCost != nil {
		cost = *actualCost
	}
	step.ActualCost = &cost
	step.Status = contracts.StepCompleted
	step.ExecutedAt = &now
	p.TotalActualCost += cost

	prev := p.Status
	p.Status = contracts.PlanInProgress
	if p.CompletedSteps() == len(p.Steps) {
		p.Status = contracts.PlanCompleted
	}
	p.UpdatedAt = now

	if err := m.repo.Put(ctx, p); err != nil {
		return nil, err
	}

	log := m.logger.WithFields(map[string]interface{}{
		"plan_id":  id,
		"step":     index,
		"of":       len(p.Steps),
		"cost":     cost,
		"progress": p.Progress(),
	})
	if p.Status != prev {
		m.metrics.PlanStatus(string(p.Status))
		log.WithField("status", p.Status).Info("Transition plan status changed")
	} else {
		log.Debug("Transition step executed")
	}
	return p, nil
}

func (m *Manager) setStatus(ctx context.Context, id string, to contracts.PlanStatus, from ...contracts.PlanStatus) (*contracts.TransitionPlan, error) {
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsTerminal() {
		return nil, fmt.Errorf("plan %s is already %s: %w", id, p.Status, contracts.ErrInvalidState)
	}
	allowed := false
	for _, f := range from {
		if p.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("plan %s is %s, cannot become %s: %w", id, p.Status, to, contracts.ErrInvalidState)
	}

	prev := p.Status
	p.Status = to
	p.UpdatedAt = m.now()
	if err := m.repo.Put(ctx, p); err != nil {
		return nil, err
	}
	m.metrics.PlanStatus(string(to))
	m.logger.WithFields(map[string]interface{}{
		"plan_id": id,
		"from":    prev,
		"to":      to,
	}).Info("Transition plan status changed")
	return p, nil
}

// Pause holds a plan that has not finished
func (m *Manager) Pause(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	return m.setStatus(ctx, id, contracts.PlanPaused, contracts.PlanPending, contracts.PlanInProgress)
}

// Resume continues a paused plan where it stopped
func (m *Manager) Resume(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	to := contracts.PlanPending
	if p.CompletedSteps() > 0 {
		to = contracts.PlanInProgress
	}
	return m.setStatus(ctx, id, to, contracts.PlanPaused)
}

// Cancel is terminal; completed steps stay recorded
func (m *Manager) Cancel(ctx context.Context, id string) (*contracts.TransitionPlan, error) {
	return m.setStatus(ctx, id, contracts.PlanCancelled, contracts.PlanPending, contracts.PlanInProgress, contracts.PlanPaused)
}
