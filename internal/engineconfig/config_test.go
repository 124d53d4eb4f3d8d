package engineconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoad_SampleFile(t *testing.T) {
	path := "../../config/engine.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Skip("config file not found")
	}

	cfg, data, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	// 샘플 파일은 기본값과 동일
	want, err := Hash(Default())
	require.NoError(t, err)
	got, err := Hash(cfg)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParse_PartialOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
transition:
  max_daily_turnover: 0.1
  max_single_position_change: 0.05
  max_total_cost: 0
  max_steps: 40
resolver:
  cache_ttl: 1m
`))
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Transition.MaxDailyTurnover)
	assert.Equal(t, 40, cfg.Transition.MaxSteps)
	assert.Equal(t, time.Minute, cfg.Resolver.CacheTTL)
	// 나머지는 기본값
	assert.Equal(t, Default().Backfill, cfg.Backfill)
	assert.Equal(t, Default().Impact, cfg.Impact)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("backfill:\n  max_date: 10\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(c *Config)
	}{
		{"negative epsilon", "evolution.weight_epsilon", func(c *Config) { c.Evolution.WeightEpsilon = -1 }},
		{"bad rule", "transition", func(c *Config) { c.Transition.MaxSteps = 0 }},
		{"negative cost", "impact.costs", func(c *Config) { c.Impact.Costs.SpreadBps = -1 }},
		{"cost tiers", "impact.severity", func(c *Config) { c.Impact.Severity.HighCostBps = 100 }},
		{"risk tiers", "impact.severity", func(c *Config) { c.Impact.Severity.MediumRiskChange = 0.9 }},
		{"score sum", "impact.scoring", func(c *Config) { c.Impact.Scoring.Cost = 0.9 }},
		{"bad tick", "scheduler.tick", func(c *Config) { c.Scheduler.Tick = "every minute" }},
		{"max dates", "backfill.max_dates", func(c *Config) { c.Backfill.MaxDates = 0 }},
		{"lock ttl", "backfill.lock_ttl", func(c *Config) { c.Backfill.LockTTL = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)

			var verr ValidationError
			require.True(t, errors.As(Validate(cfg), &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestHash(t *testing.T) {
	a, err := Hash(Default())
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, _ := Hash(Default())
	assert.Equal(t, a, b, "hash not deterministic")

	changed := Default()
	changed.Backfill.MaxDates = 10
	c, _ := Hash(changed)
	assert.NotEqual(t, a, c)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  failure_threshold: 5\n"), 0o600))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scheduler.FailureThreshold)
	assert.Equal(t, "0 * * * * *", cfg.Scheduler.Tick)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
