// Package transition plans gradual rebalancing between two compositions and
// estimates what it costs.
package transition

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
)

// stepTolerance absorbs float error when counting required steps
const stepTolerance = 1e-9

// DefaultRule is used when a request carries no rule
func DefaultRule() contracts.TransitionRule {
	return contracts.TransitionRule{
		MaxDailyTurnover:        0.20,
		MaxSinglePositionChange: 0.05,
		MaxTotalCost:            0.005,
		MaxSteps:                20,
	}
}

// PlanRequest describes a rebalance to plan
type PlanRequest struct {
	UniverseID     string
	From           map[string]float64
	To             map[string]float64
	Strategy       string
	Rule           *contracts.TransitionRule
	PortfolioValue float64 // 0이면 1로 간주 (비용은 포트폴리오 대비 비율)
	Overrides      map[string]CostOverride
}

// Planner turns a rebalance request into ordered steps
// ⭐ SSOT: 전환 단계 계산은 여기서만
type Planner struct {
	analyzer    *ImpactAnalyzer
	defaultRule contracts.TransitionRule
	logger      *logger.Logger
	now         func() time.Time
}

// NewPlanner creates a planner; a zero rule means DefaultRule
func NewPlanner(analyzer *ImpactAnalyzer, rule contracts.TransitionRule, log *logger.Logger) *Planner {
	if analyzer == nil {
		analyzer = NewImpactAnalyzer(DefaultImpactConfig())
	}
	if rule == (contracts.TransitionRule{}) {
		rule = DefaultRule()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Planner{
		analyzer:    analyzer,
		defaultRule: rule,
		logger:      log.WithComponent("transition"),
		now:         time.Now,
	}
}

// ParseStrategy is case-insensitive; empty means GRADUAL
func ParseStrategy(s string) (contracts.TransitionStrategy, error) {
	switch contracts.TransitionStrategy(strings.ToUpper(strings.TrimSpace(s))) {
	case "", contracts.StrategyGradual:
		return contracts.StrategyGradual, nil
	case contracts.StrategyImmediate:
		return contracts.StrategyImmediate, nil
	case contracts.StrategyCostOptimized:
		return contracts.StrategyCostOptimized, nil
	}
	return "", contracts.Invalid("strategy", "unknown strategy %q", s)
}

// RequiredSteps is the fewest equal steps that respect both per-step limits.
// The count is checked against rule.MaxSteps before it is converted to int.
func RequiredSteps(from, to map[string]float64, rule contracts.TransitionRule) (int, error) {
	turnover := evolution.WeightTurnover(from, to)
	maxDelta := 0.0
	for _, sym := range contracts.SortedSymbols(from, to) {
		maxDelta = math.Max(maxDelta, math.Abs(to[sym]-from[sym]))
	}

	need := math.Max(
		math.Ceil(turnover/rule.MaxDailyTurnover-stepTolerance),
		math.Ceil(maxDelta/rule.MaxSinglePositionChange-stepTolerance),
	)
	if math.IsNaN(need) || need > float64(rule.MaxSteps) {
		return 0, contracts.Invalid("rule", "transition needs %.0f steps but max_steps is %d", need, rule.MaxSteps)
	}
	if need < 1 {
		return 1, nil
	}
	return int(need), nil
}

// stepWeights is from + (to-from)·k/n; the last step is exactly to.
// Symbols at zero weight are dropped.
func stepWeights(from, to map[string]float64, k, n int) map[string]float64 {
	out := make(map[string]float64)
	if k == n {
		for sym, w := range to {
			if w > weightEpsilon {
				out[sym] = w
			}
		}
		return out
	}
	f := float64(k) / float64(n)
	for _, sym := range contracts.SortedSymbols(from, to) {
		w := from[sym] + (to[sym]-from[sym])*f
		if w > weightEpsilon {
			out[sym] = w
		}
	}
	return out
}

// expectedCost of moving in n equal steps, as a money amount
func (p *Planner) expectedCost(from, to map[string]float64, n int, value float64, overrides map[string]CostOverride) float64 {
	total := 0.0
	prev := from
	for k := 1; k <= n; k++ {
		next := stepWeights(from, to, k, n)
		total += totalCost(p.analyzer.TradeCosts(prev, next, value, overrides))
		prev = next
	}
	return total
}

// CreatePlan builds a PENDING plan; it does not persist it
func (p *Planner) CreatePlan(ctx context.Context, req PlanRequest) (*contracts.TransitionPlan, error) {
	if req.UniverseID == "" {
		return nil, contracts.Invalid("universe_id", "required")
	}
	strategy, err := ParseStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := ValidateWeights("from", req.From); err != nil {
		return nil, err
	}
	if err := ValidateWeights("to", req.To); err != nil {
		return nil, err
	}
	if len(req.To) == 0 {
		return nil, contracts.Invalid("to", "target composition is empty")
	}

	rule := p.defaultRule
	if req.Rule != nil {
		rule = *req.Rule
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	value := req.PortfolioValue
	if value < 0 {
		return nil, contracts.Invalid("portfolio_value", "must not be negative")
	}
	if value == 0 {
		value = 1
	}

	var warnings []string
	var n int
	switch strategy {
	case contracts.StrategyImmediate:
		n = 1
	case contracts.StrategyGradual, contracts.StrategyCostOptimized:
		n, err = RequiredSteps(req.From, req.To, rule)
		if err != nil {
			return nil, err
		}
	}

	cost := p.expectedCost(req.From, req.To, n, value, req.Overrides)
	if strategy == contracts.StrategyCostOptimized && rule.MaxTotalCost > 0 {
		// 단계 수를 늘리면 시장 충격 비용이 1/sqrt(n)로 줄어듦
		for cost/value > rule.MaxTotalCost && n < rule.MaxSteps {
			n++
			cost = p.expectedCost(req.From, req.To, n, value, req.Overrides)
		}
	}
	if rule.MaxTotalCost > 0 && cost/value > rule.MaxTotalCost+stepTolerance {
		warnings = append(warnings, fmt.Sprintf(
			"expected cost %.4f%% of portfolio exceeds max_total_cost %.4f%% with %d steps",
			cost/value*100, rule.MaxTotalCost*100, n))
	}

	now := p.now()
	plan := &contracts.TransitionPlan{
		ID:             uuid.NewString(),
		UniverseID:     req.UniverseID,
		Strategy:       strategy,
		Rule:           rule,
		PortfolioValue: value,
		FromWeights:    copyWeights(req.From),
		ToWeights:      copyWeights(req.To),
		Steps:          make([]contracts.TransitionStep, 0, n),
		Status:         contracts.PlanPending,
		Warnings:       warnings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	prev := req.From
	for k := 1; k <= n; k++ {
		next := stepWeights(req.From, req.To, k, n)
		step := contracts.TransitionStep{
			Index:         k,
			TargetWeights: next,
			Turnover:      evolution.WeightTurnover(prev, next),
			ExpectedCost:  totalCost(p.analyzer.TradeCosts(prev, next, value, req.Overrides)),
			Status:        contracts.StepPending,
		}
		plan.TotalExpectedCost += step.ExpectedCost
		plan.Steps = append(plan.Steps, step)
		prev = next
	}

	p.logger.WithFields(map[string]interface{}{
		"plan_id":       plan.ID,
		"universe_id":   plan.UniverseID,
		"strategy":      strategy,
		"steps":         n,
		"expected_cost": plan.TotalExpectedCost,
		"warnings":      len(warnings),
	}).Info("Transition plan created")
	return plan, nil
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
