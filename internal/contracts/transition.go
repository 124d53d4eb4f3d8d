package contracts

import (
	"sort"
	"time"
)

// TransitionStrategy selects how a plan is stepped
type TransitionStrategy string

const (
	StrategyImmediate     TransitionStrategy = "IMMEDIATE"
	StrategyGradual       TransitionStrategy = "GRADUAL"
	StrategyCostOptimized TransitionStrategy = "COST_OPTIMIZED"
)

// PlanStatus is the lifecycle state of a transition plan
type PlanStatus string

const (
	PlanPending    PlanStatus = "PENDING"
	PlanInProgress PlanStatus = "IN_PROGRESS"
	PlanPaused     PlanStatus = "PAUSED"
	PlanCompleted  PlanStatus = "COMPLETED"
	PlanCancelled  PlanStatus = "CANCELLED"
)

// StepStatus is the state of one step
type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepCompleted StepStatus = "COMPLETED"
)

// TransitionRule bounds each step of a plan
type TransitionRule struct {
	MaxDailyTurnover        float64 `json:"max_daily_turnover" yaml:"max_daily_turnover"`
	MaxSinglePositionChange float64 `json:"max_single_position_change" yaml:"max_single_position_change"`
	MaxTotalCost            float64 `json:"max_total_cost" yaml:"max_total_cost"` // 포트폴리오 대비 비율
	MaxSteps                int     `json:"max_steps" yaml:"max_steps"`
}

// Validate checks the rule bounds
func (r TransitionRule) Validate() error {
	if r.MaxDailyTurnover <= 0 || r.MaxDailyTurnover > 1 {
		return Invalid("max_daily_turnover", "must be in (0, 1], got %v", r.MaxDailyTurnover)
	}
	if r.MaxSinglePositionChange <= 0 || r.MaxSinglePositionChange > 1 {
		return Invalid("max_single_position_change", "must be in (0, 1], got %v", r.MaxSinglePositionChange)
	}
	if r.MaxTotalCost < 0 {
		return Invalid("max_total_cost", "must be >= 0")
	}
	if r.MaxSteps < 1 {
		return Invalid("max_steps", "must be >= 1")
	}
	return nil
}

// TransitionStep is one intermediate composition
type TransitionStep struct {
	Index         int                `json:"index"`
	TargetWeights map[string]float64 `json:"target_weights"`
	Turnover      float64            `json:"turnover"`
	ExpectedCost  float64            `json:"expected_cost"`
	ActualCost    *float64           `json:"actual_cost,omitempty"`
	Status        StepStatus         `json:"status"`
	ExecutedAt    *time.Time         `json:"executed_at,omitempty"`
}

// TransitionPlan moves a universe from one weight map to another
// ⭐ SSOT: 리밸런싱 전환 계획
type TransitionPlan struct {
	ID                string             `json:"id"`
	UniverseID        string             `json:"universe_id"`
	Strategy          TransitionStrategy `json:"strategy"`
	Rule              TransitionRule     `json:"rule"`
	PortfolioValue    float64            `json:"portfolio_value"`
	FromWeights       map[string]float64 `json:"from_weights"`
	ToWeights         map[string]float64 `json:"to_weights"`
	Steps             []TransitionStep   `json:"steps"`
	Status            PlanStatus         `json:"status"`
	TotalExpectedCost float64            `json:"total_expected_cost"`
	TotalActualCost   float64            `json:"total_actual_cost"`
	Warnings          []string           `json:"warnings,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// CompletedSteps counts executed steps
func (p *TransitionPlan) CompletedSteps() int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// Progress returns the completed share in percent
func (p *TransitionPlan) Progress() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	return float64(p.CompletedSteps()) / float64(len(p.Steps)) * 100
}

// IsTerminal reports whether no further transitions are allowed
func (p *TransitionPlan) IsTerminal() bool {
	return p.Status == PlanCompleted || p.Status == PlanCancelled
}

// TradeSide is the direction of a trade
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ImpactSeverity grades a rebalance
type ImpactSeverity string

const (
	SeverityLow      ImpactSeverity = "LOW"
	SeverityMedium   ImpactSeverity = "MEDIUM"
	SeverityHigh     ImpactSeverity = "HIGH"
	SeverityCritical ImpactSeverity = "CRITICAL"
)

// TradeCost is the estimated cost of trading one symbol
type TradeCost struct {
	Symbol       string    `json:"symbol"`
	Side         TradeSide `json:"side"`
	WeightChange float64   `json:"weight_change"`
	TradeValue   float64   `json:"trade_value"`
	SpreadCost   float64   `json:"spread_cost"`
	Commission   float64   `json:"commission"`
	MarketImpact float64   `json:"market_impact"`
	TotalCost    float64   `json:"total_cost"`
}

// RiskImpact compares portfolio risk before and after
type RiskImpact struct {
	ConcentrationBefore float64        `json:"concentration_before"`
	ConcentrationAfter  float64        `json:"concentration_after"`
	VolatilityBefore    float64        `json:"volatility_before,omitempty"`
	VolatilityAfter     float64        `json:"volatility_after,omitempty"`
	RiskChange          float64        `json:"risk_change"`
	Severity            ImpactSeverity `json:"severity"`
}

// ImpactAnalysis is the full cost and risk estimate of a rebalance
type ImpactAnalysis struct {
	PortfolioValue       float64        `json:"portfolio_value"`
	Turnover             float64        `json:"turnover"`
	TradeCosts           []TradeCost    `json:"trade_costs"`
	TotalTransactionCost float64        `json:"total_transaction_cost"`
	TotalCostBps         float64        `json:"total_cost_bps"`
	Risk                 RiskImpact     `json:"risk"`
	Severity             ImpactSeverity `json:"severity"`
}

// ScenarioResult is one ranked rebalance candidate
type ScenarioResult struct {
	Name     string         `json:"name"`
	Rank     int            `json:"rank"`
	Score    float64        `json:"score"`
	Analysis ImpactAnalysis `json:"analysis"`
}

// ScenarioComparison ranks candidate target compositions
type ScenarioComparison struct {
	Scenarios      []ScenarioResult `json:"scenarios"`
	Best           string           `json:"best"`
	Recommendation string           `json:"recommendation"`
}

// SortedSymbols returns the union of keys of the weight maps, sorted
func SortedSymbols(maps ...map[string]float64) []string {
	set := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
