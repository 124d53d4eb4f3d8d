package engineconfig

import (
	"fmt"
	"math"

	"github.com/robfig/cron/v3"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Evolution ===
	if cfg.Evolution.WeightEpsilon < 0 {
		return ValidationError{"evolution.weight_epsilon", "must be >= 0"}
	}
	if cfg.Evolution.ChurnThreshold < 0 {
		return ValidationError{"evolution.churn_threshold", "must be >= 0"}
	}

	// === Transition ===
	if err := cfg.Transition.Validate(); err != nil {
		return ValidationError{"transition", err.Error()}
	}

	// === Impact ===
	c := cfg.Impact.Costs
	if c.SpreadBps < 0 || c.CommissionBps < 0 || c.ImpactCoefficient < 0 {
		return ValidationError{"impact.costs", "costs must be >= 0"}
	}
	s := cfg.Impact.Severity
	if !(s.MediumCostBps <= s.HighCostBps && s.HighCostBps <= s.CriticalCostBps) {
		return ValidationError{"impact.severity", "cost tiers must be ascending"}
	}
	if !(s.MediumRiskChange <= s.HighRiskChange && s.HighRiskChange <= s.CriticalRisk) {
		return ValidationError{"impact.severity", "risk tiers must be ascending"}
	}
	w := cfg.Impact.Scoring
	if w.Cost < 0 || w.Risk < 0 || w.Turnover < 0 {
		return ValidationError{"impact.scoring", "weights must be >= 0"}
	}
	if err := validateWeightsSum([]float64{w.Cost, w.Risk, w.Turnover}, 1.0, 1e-6); err != nil {
		return ValidationError{"impact.scoring", err.Error()}
	}

	// === Scheduler ===
	if cfg.Scheduler.FailureThreshold < 0 {
		return ValidationError{"scheduler.failure_threshold", "must be >= 0"}
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(cfg.Scheduler.Tick); err != nil {
		return ValidationError{"scheduler.tick", err.Error()}
	}

	// === Resolver ===
	if cfg.Resolver.CacheTTL < 0 {
		return ValidationError{"resolver.cache_ttl", "must be >= 0"}
	}

	// === Backfill ===
	if cfg.Backfill.MaxDates < 1 {
		return ValidationError{"backfill.max_dates", "must be >= 1"}
	}
	if cfg.Backfill.LockTTL <= 0 {
		return ValidationError{"backfill.lock_ttl", "must be > 0"}
	}

	return nil
}

func validateWeightsSum(weights []float64, expected, tolerance float64) error {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-expected) > tolerance {
		return fmt.Errorf("weights sum to %.6f, expected %.1f", sum, expected)
	}
	return nil
}
