package transition

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
)

// weightEpsilon below which a weight change is not traded
const weightEpsilon = 1e-9

// CostModel prices one trade as a fraction of its value.
// Market impact grows with the square root of the traded weight, so the
// impact cost of a trade grows with size^1.5.
type CostModel struct {
	SpreadBps         float64 `yaml:"spread_bps" json:"spread_bps"`                 // 호가 스프레드 (5 = 0.05%)
	CommissionBps     float64 `yaml:"commission_bps" json:"commission_bps"`         // 수수료
	ImpactCoefficient float64 `yaml:"impact_coefficient" json:"impact_coefficient"` // impact = coef × sqrt(|Δw|)
}

// CostOverride replaces parts of the cost model for one symbol
type CostOverride struct {
	SpreadBps         *float64 `json:"spread_bps,omitempty"`
	CommissionBps     *float64 `json:"commission_bps,omitempty"`
	ImpactCoefficient *float64 `json:"impact_coefficient,omitempty"`
}

// SeverityThresholds grade a rebalance. A tier is reached when either the
// cost (bps of portfolio) or the relative risk change reaches it.
type SeverityThresholds struct {
	MediumCostBps    float64 `yaml:"medium_cost_bps"`
	HighCostBps      float64 `yaml:"high_cost_bps"`
	CriticalCostBps  float64 `yaml:"critical_cost_bps"`
	MediumRiskChange float64 `yaml:"medium_risk_change"`
	HighRiskChange   float64 `yaml:"high_risk_change"`
	CriticalRisk     float64 `yaml:"critical_risk_change"`
}

// ScoreWeights combine normalized scenario metrics; lower scores rank first
type ScoreWeights struct {
	Cost     float64 `yaml:"cost"`
	Risk     float64 `yaml:"risk"`
	Turnover float64 `yaml:"turnover"`
}

// ImpactConfig tunes the analyzer
type ImpactConfig struct {
	Costs    CostModel          `yaml:"costs"`
	Severity SeverityThresholds `yaml:"severity"`
	Scoring  ScoreWeights       `yaml:"scoring"`
}

// DefaultImpactConfig returns the standard cost model
func DefaultImpactConfig() ImpactConfig {
	return ImpactConfig{
		Costs: CostModel{
			SpreadBps:         5,
			CommissionBps:     1.5,
			ImpactCoefficient: 0.01,
		},
		Severity: SeverityThresholds{
			MediumCostBps:    10,
			HighCostBps:      30,
			CriticalCostBps:  75,
			MediumRiskChange: 0.10,
			HighRiskChange:   0.25,
			CriticalRisk:     0.50,
		},
		Scoring: ScoreWeights{Cost: 0.5, Risk: 0.3, Turnover: 0.2},
	}
}

// AnalyzeOptions carries per-call inputs
type AnalyzeOptions struct {
	Overrides  map[string]CostOverride `json:"overrides,omitempty"`
	Volatility map[string]float64      `json:"volatility,omitempty"` // 연율화 변동성; 있으면 위험 지표로 사용
}

// ImpactAnalyzer estimates transaction cost and risk change of a rebalance
// ⭐ SSOT: 리밸런싱 비용/위험 추정은 여기서만
type ImpactAnalyzer struct {
	config ImpactConfig
}

// NewImpactAnalyzer creates an analyzer
func NewImpactAnalyzer(config ImpactConfig) *ImpactAnalyzer {
	return &ImpactAnalyzer{config: config}
}

// Config returns the analyzer configuration
func (a *ImpactAnalyzer) Config() ImpactConfig {
	return a.config
}

func (a *ImpactAnalyzer) modelFor(symbol string, overrides map[string]CostOverride) CostModel {
	m := a.config.Costs
	o, ok := overrides[symbol]
	if !ok {
		return m
	}
	if o.SpreadBps != nil {
		m.SpreadBps = *o.SpreadBps
	}
	if o.CommissionBps != nil {
		m.CommissionBps = *o.CommissionBps
	}
	if o.ImpactCoefficient != nil {
		m.ImpactCoefficient = *o.ImpactCoefficient
	}
	return m
}

// TradeCosts prices every symbol whose weight changes, ordered by symbol
func (a *ImpactAnalyzer) TradeCosts(from, to map[string]float64, portfolioValue float64, overrides map[string]CostOverride) []contracts.TradeCost {
	out := make([]contracts.TradeCost, 0)
	for _, sym := range contracts.SortedSymbols(from, to) {
		delta := to[sym] - from[sym]
		size := math.Abs(delta)
		if size <= weightEpsilon {
			continue
		}

		m := a.modelFor(sym, overrides)
		value := size * portfolioValue
		tc := contracts.TradeCost{
			Symbol:       sym,
			Side:         contracts.SideBuy,
			WeightChange: delta,
			TradeValue:   value,
			SpreadCost:   value * m.SpreadBps / 10_000,
			Commission:   value * m.CommissionBps / 10_000,
			MarketImpact: value * m.ImpactCoefficient * math.Sqrt(size),
		}
		if delta < 0 {
			tc.Side = contracts.SideSell
		}
		tc.TotalCost = tc.SpreadCost + tc.Commission + tc.MarketImpact
		out = append(out, tc)
	}
	return out
}

func totalCost(costs []contracts.TradeCost) float64 {
	total := 0.0
	for _, c := range costs {
		total += c.TotalCost
	}
	return total
}

// Concentration is the Herfindahl index of the normalized weights
func Concentration(weights map[string]float64) float64 {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	hhi := 0.0
	for _, w := range weights {
		s := w / sum
		hhi += s * s
	}
	return hhi
}

// volatilityProxy assumes uncorrelated assets: sqrt(Σ w²σ²)
func volatilityProxy(weights, vol map[string]float64) float64 {
	v := 0.0
	for sym, w := range weights {
		s := vol[sym]
		v += w * w * s * s
	}
	return math.Sqrt(v)
}

func relativeChange(before, after float64) float64 {
	if before == 0 {
		return after
	}
	return (after - before) / before
}

// Risk compares concentration, and volatility when provided, before and after
func (a *ImpactAnalyzer) Risk(from, to map[string]float64, vol map[string]float64) contracts.RiskImpact {
	r := contracts.RiskImpact{
		ConcentrationBefore: Concentration(from),
		ConcentrationAfter:  Concentration(to),
	}
	if len(vol) > 0 {
		r.VolatilityBefore = volatilityProxy(from, vol)
		r.VolatilityAfter = volatilityProxy(to, vol)
		r.RiskChange = relativeChange(r.VolatilityBefore, r.VolatilityAfter)
	} else {
		r.RiskChange = relativeChange(r.ConcentrationBefore, r.ConcentrationAfter)
	}
	r.Severity = a.riskSeverity(r.RiskChange)
	return r
}

func (a *ImpactAnalyzer) riskSeverity(change float64) contracts.ImpactSeverity {
	t := a.config.Severity
	// 위험 감소는 심각도에 반영하지 않음
	switch {
	case change >= t.CriticalRisk:
		return contracts.SeverityCritical
	case change >= t.HighRiskChange:
		return contracts.SeverityHigh
	case change >= t.MediumRiskChange:
		return contracts.SeverityMedium
	}
	return contracts.SeverityLow
}

func (a *ImpactAnalyzer) costSeverity(bps float64) contracts.ImpactSeverity {
	t := a.config.Severity
	switch {
	case bps >= t.CriticalCostBps:
		return contracts.SeverityCritical
	case bps >= t.HighCostBps:
		return contracts.SeverityHigh
	case bps >= t.MediumCostBps:
		return contracts.SeverityMedium
	}
	return contracts.SeverityLow
}

var severityRank = map[contracts.ImpactSeverity]int{
	contracts.SeverityLow:      0,
	contracts.SeverityMedium:   1,
	contracts.SeverityHigh:     2,
	contracts.SeverityCritical: 3,
}

func maxSeverity(a, b contracts.ImpactSeverity) contracts.ImpactSeverity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// ValidateWeights rejects non-finite weights and weights outside [0, 1]
func ValidateWeights(field string, weights map[string]float64) error {
	for sym, w := range weights {
		if strings.TrimSpace(sym) == "" {
			return contracts.Invalid(field, "empty symbol")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 || w > 1 {
			return contracts.Invalid(field, "weight of %s must be in [0, 1], got %v", sym, w)
		}
	}
	return nil
}

// Analyze estimates the full cost and risk impact of moving from → to
func (a *ImpactAnalyzer) Analyze(from, to map[string]float64, portfolioValue float64, opts AnalyzeOptions) (*contracts.ImpactAnalysis, error) {
	if portfolioValue <= 0 {
		return nil, contracts.Invalid("portfolio_value", "must be positive, got %v", portfolioValue)
	}
	if err := ValidateWeights("current_weights", from); err != nil {
		return nil, err
	}
	if err := ValidateWeights("target_weights", to); err != nil {
		return nil, err
	}

	costs := a.TradeCosts(from, to, portfolioValue, opts.Overrides)
	total := totalCost(costs)
	bps := total / portfolioValue * 10_000
	risk := a.Risk(from, to, opts.Volatility)

	return &contracts.ImpactAnalysis{
		PortfolioValue:       portfolioValue,
		Turnover:             evolution.WeightTurnover(from, to),
		TradeCosts:           costs,
		TotalTransactionCost: total,
		TotalCostBps:         bps,
		Risk:                 risk,
		Severity:             maxSeverity(a.costSeverity(bps), risk.Severity),
	}, nil
}

// Scenario is one candidate target composition
type Scenario struct {
	Name    string             `json:"name" validate:"required"`
	Weights map[string]float64 `json:"weights" validate:"required"`
}

// CompareRebalanceScenarios ranks candidate targets by a composite score of
// normalized cost, risk increase and turnover. Rank 1 is best.
func (a *ImpactAnalyzer) CompareRebalanceScenarios(current map[string]float64, scenarios []Scenario, portfolioValue float64, opts AnalyzeOptions) (*contracts.ScenarioComparison, error) {
	if len(scenarios) == 0 {
		return nil, contracts.Invalid("scenarios", "at least one scenario is required")
	}

	results := make([]contracts.ScenarioResult, 0, len(scenarios))
	maxCost, maxRisk := 0.0, 0.0
	seen := make(map[string]struct{}, len(scenarios))
	for i, sc := range scenarios {
		name := sc.Name
		if name == "" {
			name = fmt.Sprintf("scenario-%d", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, contracts.Invalid("scenarios", "duplicate scenario name %q", name)
		}
		seen[name] = struct{}{}

		analysis, err := a.Analyze(current, sc.Weights, portfolioValue, opts)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		maxCost = math.Max(maxCost, analysis.TotalTransactionCost)
		maxRisk = math.Max(maxRisk, math.Max(0, analysis.Risk.RiskChange))
		results = append(results, contracts.ScenarioResult{Name: name, Analysis: *analysis})
	}

	w := a.config.Scoring
	for i := range results {
		an := results[i].Analysis
		score := w.Turnover * an.Turnover
		if maxCost > 0 {
			score += w.Cost * an.TotalTransactionCost / maxCost
		}
		if maxRisk > 0 {
			score += w.Risk * math.Max(0, an.Risk.RiskChange) / maxRisk
		}
		results[i].Score = score
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Name < results[j].Name
		}
		return results[i].Score < results[j].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	best := results[0]
	return &contracts.ScenarioComparison{
		Scenarios:      results,
		Best:           best.Name,
		Recommendation: recommend(best, len(results)),
	}, nil
}

func recommend(best contracts.ScenarioResult, n int) string {
	an := best.Analysis
	var b strings.Builder
	fmt.Fprintf(&b, "%s ranks first of %d (score %.3f): cost %.1f bps, turnover %.1f%%, risk change %+.1f%%.",
		best.Name, n, best.Score, an.TotalCostBps, an.Turnover*100, an.Risk.RiskChange*100)
	switch an.Severity {
	case contracts.SeverityHigh, contracts.SeverityCritical:
		b.WriteString(" Impact is " + strings.ToLower(string(an.Severity)) + "; consider a GRADUAL or COST_OPTIMIZED transition.")
	default:
		b.WriteString(" Impact is " + strings.ToLower(string(an.Severity)) + ".")
	}
	return b.String()
}
