// Package universe reads universe definitions and screens their assets.
package universe

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

// Criteria is the typed form of a universe's screening_criteria
type Criteria struct {
	ExcludeSectors      []string `json:"exclude_sectors,omitempty" yaml:"exclude_sectors"`
	ExcludeSymbols      []string `json:"exclude_symbols,omitempty" yaml:"exclude_symbols"`
	ExcludeNamePatterns []string `json:"exclude_name_patterns,omitempty" yaml:"exclude_name_patterns"` // 예: SPAC 명칭 패턴
	MinWeight           float64  `json:"min_weight,omitempty" yaml:"min_weight"`
	MaxAssets           int      `json:"max_assets,omitempty" yaml:"max_assets"`
	Normalize           bool     `json:"normalize,omitempty" yaml:"normalize"` // 남은 비중 합을 1로
}

// CriteriaFromMap decodes recorded criteria; unknown keys are ignored
func CriteriaFromMap(m map[string]interface{}) (Criteria, error) {
	var c Criteria
	if len(m) == 0 {
		return c, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return c, fmt.Errorf("encode criteria: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, contracts.Invalid("screening_criteria", "%v", err)
	}
	return c, nil
}

// Result is a screened composition and why the rest was dropped
type Result struct {
	Assets   contracts.Composition `json:"assets"`
	Excluded map[string]string     `json:"excluded"` // symbol → reason
}

// Screener applies Criteria to candidate assets
// ⭐ SSOT: 유니버스 편입/제외 판정은 여기서만
type Screener struct {
	criteria Criteria
	patterns []*regexp.Regexp
	sectors  map[string]struct{}
	symbols  map[string]struct{}
}

// NewScreener compiles the criteria
func NewScreener(c Criteria) (*Screener, error) {
	if c.MinWeight < 0 {
		return nil, contracts.Invalid("min_weight", "must not be negative")
	}
	if c.MaxAssets < 0 {
		return nil, contracts.Invalid("max_assets", "must not be negative")
	}

	s := &Screener{
		criteria: c,
		sectors:  make(map[string]struct{}, len(c.ExcludeSectors)),
		symbols:  make(map[string]struct{}, len(c.ExcludeSymbols)),
	}
	for _, p := range c.ExcludeNamePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, contracts.Invalid("exclude_name_patterns", "bad pattern %q: %v", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	for _, sec := range c.ExcludeSectors {
		s.sectors[strings.ToLower(strings.TrimSpace(sec))] = struct{}{}
	}
	for _, sym := range c.ExcludeSymbols {
		s.symbols[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	return s, nil
}

// checkExclusion returns why an asset is dropped, or "" when it passes
func (s *Screener) checkExclusion(a contracts.Asset) string {
	// 우선순위 순서로 체크

	// 1. 제외 종목
	if _, ok := s.symbols[strings.ToUpper(a.Symbol)]; ok {
		return "excluded symbol"
	}

	// 2. 종목명 패턴
	for _, re := range s.patterns {
		if re.MatchString(a.Name) {
			return fmt.Sprintf("name matches %s", re.String())
		}
	}

	// 3. 제외 섹터
	if _, ok := s.sectors[strings.ToLower(a.SectorOrUnknown())]; ok {
		return fmt.Sprintf("excluded sector (%s)", a.SectorOrUnknown())
	}

	// 4. 최소 비중 미달
	if a.Weight < s.criteria.MinWeight {
		return fmt.Sprintf("weight %.4f below minimum %.4f", a.Weight, s.criteria.MinWeight)
	}

	return ""
}

// Screen filters candidates in order, caps the count by weight, and optionally
// renormalizes. Candidate order is kept for the survivors.
func (s *Screener) Screen(candidates contracts.Composition) Result {
	res := Result{
		Assets:   make(contracts.Composition, 0, len(candidates)),
		Excluded: make(map[string]string),
	}
	for _, a := range candidates {
		if reason := s.checkExclusion(a); reason != "" {
			res.Excluded[a.Symbol] = reason
			continue
		}
		res.Assets = append(res.Assets, a)
	}

	if max := s.criteria.MaxAssets; max > 0 && len(res.Assets) > max {
		ranked := make([]int, len(res.Assets))
		for i := range ranked {
			ranked[i] = i
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return res.Assets[ranked[i]].Weight > res.Assets[ranked[j]].Weight
		})
		keep := make(map[int]bool, max)
		for _, idx := range ranked[:max] {
			keep[idx] = true
		}
		kept := make(contracts.Composition, 0, max)
		for i, a := range res.Assets {
			if keep[i] {
				kept = append(kept, a)
			} else {
				res.Excluded[a.Symbol] = fmt.Sprintf("outside top %d by weight", max)
			}
		}
		res.Assets = kept
	}

	if s.criteria.Normalize {
		if total := res.Assets.TotalWeight(); total > 0 {
			for i := range res.Assets {
				res.Assets[i].Weight /= total
			}
		}
	}
	return res
}
