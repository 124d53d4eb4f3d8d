// Package engineconfig loads the YAML tuning file of the timeline engine.
package engineconfig

import (
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/backfill"
	"github.com/wonny/aegis/v13/timeline/internal/contracts"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
	"github.com/wonny/aegis/v13/timeline/internal/scheduler"
	"github.com/wonny/aegis/v13/timeline/internal/transition"
)

// Config is the full tuning file
// ⭐ SSOT: 엔진 튜닝 값은 이 구조체로만 전달
type Config struct {
	Evolution  evolution.TrackerConfig  `yaml:"evolution" json:"evolution"`
	Transition contracts.TransitionRule `yaml:"transition" json:"transition"`
	Impact     transition.ImpactConfig  `yaml:"impact" json:"impact"`
	Scheduler  SchedulerConfig          `yaml:"scheduler" json:"scheduler"`
	Resolver   ResolverConfig           `yaml:"resolver" json:"resolver"`
	Backfill   backfill.Config          `yaml:"backfill" json:"backfill"`
}

// SchedulerConfig tunes the dispatcher
type SchedulerConfig struct {
	scheduler.ManagerConfig `yaml:",inline"`
	Tick                    string `yaml:"tick" json:"tick"` // cron 스펙 (초 포함)
}

// ResolverConfig tunes point-in-time lookups
type ResolverConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// Default returns the built-in tuning
func Default() *Config {
	return &Config{
		Evolution:  evolution.DefaultTrackerConfig(),
		Transition: transition.DefaultRule(),
		Impact:     transition.DefaultImpactConfig(),
		Scheduler: SchedulerConfig{
			ManagerConfig: scheduler.ManagerConfig{FailureThreshold: scheduler.DefaultFailureThreshold},
			Tick:          "0 * * * * *",
		},
		Resolver: ResolverConfig{CacheTTL: 10 * time.Minute},
		Backfill: backfill.Config{
			MaxDates: backfill.DefaultMaxDates,
			LockTTL:  backfill.DefaultLockTTL,
		},
	}
}
