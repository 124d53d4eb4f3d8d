package evolution

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Default tracker tuning
const (
	DefaultWeightEpsilon  = 1e-6
	DefaultChurnThreshold = 1
)

// TrackerConfig tunes change classification
type TrackerConfig struct {
	WeightEpsilon  float64 `yaml:"weight_epsilon"`  // 이보다 작은 비중 변화는 무시
	ChurnThreshold int     `yaml:"churn_threshold"` // 편입/편출 횟수가 이를 넘으면 volatile
}

// DefaultTrackerConfig returns the standard tuning
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		WeightEpsilon:  DefaultWeightEpsilon,
		ChurnThreshold: DefaultChurnThreshold,
	}
}

// Tracker compares snapshots and aggregates turnover over series
// ⭐ SSOT: 구성 변화 분석은 여기서만
type Tracker struct {
	config TrackerConfig
}

// NewTracker creates a tracker; non-positive settings fall back to defaults
func NewTracker(config TrackerConfig) *Tracker {
	if config.WeightEpsilon <= 0 {
		config.WeightEpsilon = DefaultWeightEpsilon
	}
	if config.ChurnThreshold < 1 {
		config.ChurnThreshold = DefaultChurnThreshold
	}
	return &Tracker{config: config}
}

// Analyze compares two snapshots
func (t *Tracker) Analyze(older, newer *contracts.SnapshotRecord) contracts.ChangeAnalysis {
	return t.AnalyzeCompositions(older.SnapshotDate, older.Assets, newer.SnapshotDate, newer.Assets)
}

// AnalyzeCompositions compares two dated compositions
func (t *Tracker) AnalyzeCompositions(fromDate time.Time, from contracts.Composition, toDate time.Time, to contracts.Composition) contracts.ChangeAnalysis {
	oldAssets := from.BySymbol()
	newAssets := to.BySymbol()

	added, removed := SymbolDiff(from.Symbols(), to.Symbols())

	result := contracts.ChangeAnalysis{
		FromDate:            fromDate,
		ToDate:              toDate,
		AssetsAdded:         added,
		AssetsRemoved:       removed,
		AssetsWeightChanged: make([]contracts.WeightChange, 0),
		AssetsUnchanged:     make([]string, 0),
		SectorChanges:       make(map[string]contracts.SectorChange),
	}

	common := make([]string, 0, len(newAssets))
	for sym := range newAssets {
		if _, ok := oldAssets[sym]; ok {
			common = append(common, sym)
		}
	}
	sort.Strings(common)

	for _, sym := range common {
		ow := oldAssets[sym].Weight
		nw := newAssets[sym].Weight
		delta := nw - ow
		result.WeightDrift += math.Abs(delta)

		if math.Abs(delta) > t.config.WeightEpsilon {
			result.AssetsWeightChanged = append(result.AssetsWeightChanged, contracts.WeightChange{
				Symbol:    sym,
				OldWeight: ow,
				NewWeight: nw,
				Delta:     delta,
			})
			continue
		}
		result.AssetsUnchanged = append(result.AssetsUnchanged, sym)
	}

	for _, sym := range added {
		sector := newAssets[sym].SectorOrUnknown()
		sc := result.SectorChanges[sector]
		sc.Added = append(sc.Added, sym)
		result.SectorChanges[sector] = sc
	}
	for _, sym := range removed {
		sector := oldAssets[sym].SectorOrUnknown()
		sc := result.SectorChanges[sector]
		sc.Removed = append(sc.Removed, sym)
		result.SectorChanges[sector] = sc
	}
	for sector, sc := range result.SectorChanges {
		if sc.Added == nil {
			sc.Added = []string{}
		}
		if sc.Removed == nil {
			sc.Removed = []string{}
		}
		result.SectorChanges[sector] = sc
	}

	result.TurnoverRate = Turnover(from.Symbols(), to.Symbols())
	result.CompositionStability = Stability(result.TurnoverRate, result.WeightDrift)
	return result
}

// Stability is (1 - turnover) * (1 - min(1, drift/2)).
// Drift of 2 is the largest possible reweighting of fully invested portfolios.
func Stability(turnover, weightDrift float64) float64 {
	driftPenalty := math.Min(1, math.Max(0, weightDrift)/2)
	return clamp01((1 - clamp01(turnover)) * (1 - driftPenalty))
}

// CalculateTurnoverMetrics aggregates turnover over a snapshot series.
// Fewer than two snapshots are reported as insufficient data, not an error.
func (t *Tracker) CalculateTurnoverMetrics(universeID string, snapshots []*contracts.SnapshotRecord, period string) contracts.TurnoverMetrics {
	ordered := make([]*contracts.SnapshotRecord, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SnapshotDate.Before(ordered[j].SnapshotDate)
	})

	metrics := contracts.TurnoverMetrics{
		UniverseID:      universeID,
		Period:          period,
		SnapshotCount:   len(ordered),
		PeriodTurnovers: make([]contracts.PeriodTurnover, 0),
		CoreAssets:      make([]string, 0),
		VolatileAssets:  make([]string, 0),
	}

	if len(ordered) < 2 {
		metrics.InsufficientData = true
		if len(ordered) == 1 {
			metrics.CoreAssets = sortedSymbols(ordered[0].Assets)
		}
		return metrics
	}

	sum := 0.0
	for i := 1; i < len(ordered); i++ {
		to := Turnover(ordered[i-1].Assets.Symbols(), ordered[i].Assets.Symbols())
		metrics.PeriodTurnovers = append(metrics.PeriodTurnovers, contracts.PeriodTurnover{
			FromDate: ordered[i-1].SnapshotDate,
			ToDate:   ordered[i].SnapshotDate,
			Turnover: to,
		})
		sum += to
		if to > metrics.MaxTurnover {
			metrics.MaxTurnover = to
		}
	}
	metrics.AverageTurnover = sum / float64(len(metrics.PeriodTurnovers))

	// 종목별 등장 횟수와 편입/편출 전환 횟수
	presence := make(map[string]int)
	changes := make(map[string]int)
	prev := map[string]struct{}{}
	for i, snap := range ordered {
		cur := toSet(snap.Assets.Symbols())
		for sym := range cur {
			presence[sym]++
			if _, ok := prev[sym]; !ok && i > 0 {
				changes[sym]++
			}
		}
		for sym := range prev {
			if _, ok := cur[sym]; !ok {
				changes[sym]++
			}
		}
		prev = cur
	}

	for sym, n := range presence {
		if n == len(ordered) {
			metrics.CoreAssets = append(metrics.CoreAssets, sym)
			continue
		}
		if changes[sym] > t.config.ChurnThreshold {
			metrics.VolatileAssets = append(metrics.VolatileAssets, sym)
		}
	}
	sort.Strings(metrics.CoreAssets)
	sort.Strings(metrics.VolatileAssets)
	return metrics
}

func sortedSymbols(c contracts.Composition) []string {
	out := c.Symbols()
	sort.Strings(out)
	return out
}
