package contracts

import (
	"sort"
	"strings"
	"time"
)

// UnknownSector is used when an asset carries no sector
const UnknownSector = "Unknown"

// Asset is one holding of a universe at a point in time
// ⭐ SSOT: 구성 종목 값 타입
type Asset struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Sector   string  `json:"sector,omitempty"`
	AssetRef string  `json:"asset_id,omitempty"`
}

// NewAsset builds a validated asset
func NewAsset(symbol, name string, weight float64, sector string) (Asset, error) {
	a := Asset{
		Symbol: strings.TrimSpace(symbol),
		Name:   strings.TrimSpace(name),
		Weight: weight,
		Sector: strings.TrimSpace(sector),
	}
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}
	return a, nil
}

// Validate checks the required fields
func (a Asset) Validate() error {
	if strings.TrimSpace(a.Symbol) == "" {
		return Invalid("assets.symbol", "symbol is required")
	}
	if strings.TrimSpace(a.Name) == "" {
		return Invalid("assets.name", "name is required for %s", a.Symbol)
	}
	if a.Weight < 0 {
		return Invalid("assets.weight", "negative weight %v for %s", a.Weight, a.Symbol)
	}
	return nil
}

// SectorOrUnknown returns the sector or UnknownSector
func (a Asset) SectorOrUnknown() string {
	if a.Sector == "" {
		return UnknownSector
	}
	return a.Sector
}

// Composition is the ordered asset list of a snapshot
type Composition []Asset

// Validate rejects malformed entries and duplicate symbols
func (c Composition) Validate() error {
	seen := make(map[string]struct{}, len(c))
	for _, a := range c {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.Symbol]; dup {
			return Invalid("assets", "duplicate symbol %s", a.Symbol)
		}
		seen[a.Symbol] = struct{}{}
	}
	return nil
}

// Symbols returns the symbols in composition order
func (c Composition) Symbols() []string {
	out := make([]string, 0, len(c))
	for _, a := range c {
		out = append(out, a.Symbol)
	}
	return out
}

// Weights returns symbol → weight
func (c Composition) Weights() map[string]float64 {
	out := make(map[string]float64, len(c))
	for _, a := range c {
		out[a.Symbol] = a.Weight
	}
	return out
}

// BySymbol indexes assets by symbol
func (c Composition) BySymbol() map[string]Asset {
	out := make(map[string]Asset, len(c))
	for _, a := range c {
		out[a.Symbol] = a
	}
	return out
}

// TotalWeight sums all weights
func (c Composition) TotalWeight() float64 {
	total := 0.0
	for _, a := range c {
		total += a.Weight
	}
	return total
}

// Clone returns an independent copy
func (c Composition) Clone() Composition {
	if c == nil {
		return nil
	}
	out := make(Composition, len(c))
	copy(out, c)
	return out
}

// CompositionFromWeights builds a composition sorted by symbol; names default to the symbol
func CompositionFromWeights(weights map[string]float64) Composition {
	out := make(Composition, 0, len(weights))
	for sym, w := range weights {
		out = append(out, Asset{Symbol: sym, Name: sym, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SnapshotInput is what callers supply to create a snapshot
type SnapshotInput struct {
	UniverseID         string                 `json:"universe_id"`
	SnapshotDate       time.Time              `json:"snapshot_date"`
	Assets             Composition            `json:"assets"`
	ScreeningCriteria  map[string]interface{} `json:"screening_criteria,omitempty"`
	PerformanceMetrics map[string]interface{} `json:"performance_metrics,omitempty"`
}

// SnapshotRecord is an immutable dated composition of a universe
// ⭐ SSOT: (universe_id, snapshot_date) 당 1건
type SnapshotRecord struct {
	ID                 string                 `json:"id"`
	UniverseID         string                 `json:"universe_id"`
	SnapshotDate       time.Time              `json:"snapshot_date"`
	Assets             Composition            `json:"assets"`
	ScreeningCriteria  map[string]interface{} `json:"screening_criteria"`
	TurnoverRate       float64                `json:"turnover_rate"`
	AssetsAdded        []string               `json:"assets_added"`
	AssetsRemoved      []string               `json:"assets_removed"`
	PerformanceMetrics map[string]interface{} `json:"performance_metrics"`
	CreatedAt          time.Time              `json:"created_at"`
}

// WeightChange is a symbol held on both sides whose weight moved
type WeightChange struct {
	Symbol    string  `json:"symbol"`
	OldWeight float64 `json:"old_weight"`
	NewWeight float64 `json:"new_weight"`
	Delta     float64 `json:"delta"`
}

// SectorChange lists symbols entering and leaving one sector
type SectorChange struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// ChangeAnalysis compares two compositions
type ChangeAnalysis struct {
	FromDate             time.Time               `json:"from_date"`
	ToDate               time.Time               `json:"to_date"`
	AssetsAdded          []string                `json:"assets_added"`
	AssetsRemoved        []string                `json:"assets_removed"`
	AssetsWeightChanged  []WeightChange          `json:"assets_weight_changed"`
	AssetsUnchanged      []string                `json:"assets_unchanged"`
	TurnoverRate         float64                 `json:"turnover_rate"`
	WeightDrift          float64                 `json:"weight_drift"`
	CompositionStability float64                 `json:"composition_stability"`
	SectorChanges        map[string]SectorChange `json:"sector_changes"`
}

// PeriodTurnover is the turnover between two consecutive snapshots
type PeriodTurnover struct {
	FromDate time.Time `json:"from_date"`
	ToDate   time.Time `json:"to_date"`
	Turnover float64   `json:"turnover"`
}

// TurnoverMetrics aggregates turnover over a snapshot series
type TurnoverMetrics struct {
	UniverseID       string           `json:"universe_id"`
	Period           string           `json:"period"`
	SnapshotCount    int              `json:"snapshot_count"`
	PeriodTurnovers  []PeriodTurnover `json:"period_turnovers"`
	AverageTurnover  float64          `json:"average_turnover"`
	MaxTurnover      float64          `json:"max_turnover"`
	CoreAssets       []string         `json:"core_assets"`
	VolatileAssets   []string         `json:"volatile_assets"`
	InsufficientData bool             `json:"insufficient_data"`
}

// Confidence grades how far a resolved snapshot lies from its target date
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PointInTimeComposition is the composition in force on a target date
type PointInTimeComposition struct {
	UniverseID        string      `json:"universe_id"`
	TargetDate        time.Time   `json:"target_date"`
	SnapshotID        string      `json:"snapshot_id"`
	SnapshotDate      time.Time   `json:"snapshot_date"`
	Assets            Composition `json:"assets"`
	DaysSinceSnapshot int         `json:"days_since_snapshot"`
	Confidence        Confidence  `json:"confidence"`
}

// Timeline is an ordered snapshot series with aggregate turnover
type Timeline struct {
	UniverseID string            `json:"universe_id"`
	StartDate  time.Time         `json:"start_date"`
	EndDate    time.Time         `json:"end_date"`
	Frequency  Frequency         `json:"frequency,omitempty"`
	Snapshots  []*SnapshotRecord `json:"snapshots"`
	Metrics    TurnoverMetrics   `json:"metrics"`
}
