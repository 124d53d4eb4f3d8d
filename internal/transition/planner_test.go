package transition

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

func rule(daily, single, cost float64, steps int) *contracts.TransitionRule {
	return &contracts.TransitionRule{
		MaxDailyTurnover:        daily,
		MaxSinglePositionChange: single,
		MaxTotalCost:            cost,
		MaxSteps:                steps,
	}
}

func newPlanner() *Planner {
	return NewPlanner(NewImpactAnalyzer(DefaultImpactConfig()), contracts.TransitionRule{}, nil)
}

func TestPlanner_Immediate(t *testing.T) {
	plan, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
		UniverseID: "u",
		From:       map[string]float64{"A": 0.5, "B": 0.5},
		To:         map[string]float64{"A": 0.5, "C": 0.5},
		Strategy:   "immediate",
	})
	require.NoError(t, err)

	assert.Equal(t, contracts.StrategyImmediate, plan.Strategy)
	assert.Equal(t, contracts.PlanPending, plan.Status)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, map[string]float64{"A": 0.5, "C": 0.5}, plan.Steps[0].TargetWeights)
	assert.InDelta(t, 0.5, plan.Steps[0].Turnover, 1e-12)
	assert.Equal(t, 1, plan.Steps[0].Index)
}

func TestPlanner_GradualRespectsLimits(t *testing.T) {
	tests := []struct {
		name      string
		rule      *contracts.TransitionRule
		wantSteps int
	}{
		{"turnover bound", rule(0.2, 0.5, 0, 20), 3},
		{"position bound", rule(0.2, 0.1, 0, 20), 5},
		{"loose", rule(1, 1, 0, 20), 1},
	}

	from := map[string]float64{"A": 0.5, "B": 0.5}
	to := map[string]float64{"A": 0.5, "C": 0.5}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
				UniverseID: "u", From: from, To: to, Strategy: "GRADUAL", Rule: tt.rule,
			})
			require.NoError(t, err)
			require.Len(t, plan.Steps, tt.wantSteps)

			prev := from
			for _, step := range plan.Steps {
				assert.LessOrEqual(t, step.Turnover, tt.rule.MaxDailyTurnover+1e-12)
				for _, sym := range contracts.SortedSymbols(prev, step.TargetWeights) {
					change := math.Abs(step.TargetWeights[sym] - prev[sym])
					assert.LessOrEqual(t, change, tt.rule.MaxSinglePositionChange+1e-12, sym)
				}
				prev = step.TargetWeights
			}

			last := plan.Steps[len(plan.Steps)-1].TargetWeights
			assert.Equal(t, to, last)
			assert.NotContains(t, last, "B")
		})
	}
}

func TestPlanner_StepsMoveMonotonically(t *testing.T) {
	from := map[string]float64{"A": 0.6, "B": 0.4}
	to := map[string]float64{"A": 0.2, "B": 0.3, "C": 0.5}
	plan, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
		UniverseID: "u", From: from, To: to, Rule: rule(0.1, 0.1, 0, 50),
	})
	require.NoError(t, err)
	require.Greater(t, len(plan.Steps), 1)

	for _, sym := range []string{"A", "B", "C"} {
		prev := from[sym]
		for _, step := range plan.Steps {
			w := step.TargetWeights[sym]
			if to[sym] >= from[sym] {
				assert.GreaterOrEqual(t, w, prev-1e-12, sym)
			} else {
				assert.LessOrEqual(t, w, prev+1e-12, sym)
			}
			prev = w
		}
		assert.InDelta(t, to[sym], prev, 1e-12, sym)
	}
}

func TestPlanner_CostOptimized(t *testing.T) {
	from := map[string]float64{"A": 1}
	to := map[string]float64{"B": 1}

	// n steps: spread+commission 1300, impact 20000/sqrt(n) on a 1M portfolio
	plan, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
		UniverseID: "u", From: from, To: to, Strategy: "cost_optimized",
		Rule: rule(1, 1, 0.01, 20), PortfolioValue: 1_000_000,
	})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 6)
	assert.Empty(t, plan.Warnings)
	assert.LessOrEqual(t, plan.TotalExpectedCost, 10_000.0)
	assert.InDelta(t, 1300+20000/math.Sqrt(6), plan.TotalExpectedCost, 1e-6)

	capped, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
		UniverseID: "u", From: from, To: to, Strategy: "cost_optimized",
		Rule: rule(1, 1, 0.01, 3), PortfolioValue: 1_000_000,
	})
	require.NoError(t, err)
	assert.Len(t, capped.Steps, 3)
	require.Len(t, capped.Warnings, 1)
	assert.Contains(t, capped.Warnings[0], "exceeds max_total_cost")

	gradual, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
		UniverseID: "u", From: from, To: to, Strategy: "gradual",
		Rule: rule(1, 1, 0.01, 20), PortfolioValue: 1_000_000,
	})
	require.NoError(t, err)
	assert.Len(t, gradual.Steps, 1)
	assert.Len(t, gradual.Warnings, 1)
	assert.Greater(t, gradual.TotalExpectedCost, plan.TotalExpectedCost)
}

func TestPlanner_Rejects(t *testing.T) {
	from := map[string]float64{"A": 0.5, "B": 0.5}
	to := map[string]float64{"A": 0.5, "C": 0.5}

	tests := []struct {
		name string
		req  PlanRequest
	}{
		{"missing universe", PlanRequest{From: from, To: to}},
		{"unknown strategy", PlanRequest{UniverseID: "u", From: from, To: to, Strategy: "yolo"}},
		{"weight above one", PlanRequest{UniverseID: "u", From: from, To: map[string]float64{"A": 1.5}}},
		{"negative weight", PlanRequest{UniverseID: "u", From: map[string]float64{"A": -0.1}, To: to}},
		{"empty target", PlanRequest{UniverseID: "u", From: from, To: map[string]float64{}}},
		{"bad rule", PlanRequest{UniverseID: "u", From: from, To: to, Rule: rule(0, 0.1, 0, 10)}},
		{"too many steps", PlanRequest{UniverseID: "u", From: from, To: to, Rule: rule(0.01, 1, 0, 20)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newPlanner().CreatePlan(context.Background(), tt.req)
			assert.ErrorIs(t, err, contracts.ErrInvalidInput)
		})
	}
}

func TestRequiredSteps_NoChange(t *testing.T) {
	w := map[string]float64{"A": 1}
	n, err := RequiredSteps(w, w, DefaultRule())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequiredSteps_TinyLimitsRejected(t *testing.T) {
	from := map[string]float64{"A": 1}
	to := map[string]float64{"B": 1}
	tiny := rule(1e-20, 1e-20, 0, 20)
	require.NoError(t, tiny.Validate())

	_, err := RequiredSteps(from, to, *tiny)
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)

	for _, strategy := range []string{"gradual", "cost_optimized"} {
		plan, err := newPlanner().CreatePlan(context.Background(), PlanRequest{
			UniverseID: "u",
			From:       from,
			To:         to,
			Strategy:   strategy,
			Rule:       tiny,
		})
		assert.ErrorIs(t, err, contracts.ErrInvalidInput, strategy)
		assert.Nil(t, plan)
	}
}

func TestRequiredSteps_ExactlyMaxSteps(t *testing.T) {
	from := map[string]float64{"A": 1}
	to := map[string]float64{"B": 1}

	n, err := RequiredSteps(from, to, *rule(0.1, 1, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = RequiredSteps(from, to, *rule(0.1, 1, 0, 9))
	assert.ErrorIs(t, err, contracts.ErrInvalidInput)
}
