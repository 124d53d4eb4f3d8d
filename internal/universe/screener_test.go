package universe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

func candidates() contracts.Composition {
	return contracts.Composition{
		{Symbol: "AAPL", Name: "Apple", Weight: 0.30, Sector: "Tech"},
		{Symbol: "XOM", Name: "Exxon", Weight: 0.20, Sector: "Energy"},
		{Symbol: "SPK1", Name: "Acme Acquisition Corp", Weight: 0.05, Sector: "Financials"},
		{Symbol: "JPM", Name: "JPMorgan", Weight: 0.25, Sector: "Financials"},
		{Symbol: "TINY", Name: "Tiny Co", Weight: 0.01},
		{Symbol: "MSFT", Name: "Microsoft", Weight: 0.19, Sector: "Tech"},
	}
}

func TestScreener_Screen(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
		excluded map[string]string
	}{
		{
			name:     "empty criteria keeps everything",
			criteria: Criteria{},
			want:     []string{"AAPL", "XOM", "SPK1", "JPM", "TINY", "MSFT"},
			excluded: map[string]string{},
		},
		{
			name:     "excluded symbols are case-insensitive",
			criteria: Criteria{ExcludeSymbols: []string{"xom"}},
			want:     []string{"AAPL", "SPK1", "JPM", "TINY", "MSFT"},
			excluded: map[string]string{"XOM": "excluded symbol"},
		},
		{
			name:     "name pattern",
			criteria: Criteria{ExcludeNamePatterns: []string{`(?i)acquisition`}},
			want:     []string{"AAPL", "XOM", "JPM", "TINY", "MSFT"},
			excluded: map[string]string{"SPK1": "name matches (?i)acquisition"},
		},
		{
			name:     "sector includes unknown",
			criteria: Criteria{ExcludeSectors: []string{"energy", "Unknown"}},
			want:     []string{"AAPL", "SPK1", "JPM", "MSFT"},
			excluded: map[string]string{
				"XOM":  "excluded sector (Energy)",
				"TINY": "excluded sector (Unknown)",
			},
		},
		{
			name:     "minimum weight",
			criteria: Criteria{MinWeight: 0.1},
			want:     []string{"AAPL", "XOM", "JPM", "MSFT"},
			excluded: map[string]string{
				"SPK1": "weight 0.0500 below minimum 0.1000",
				"TINY": "weight 0.0100 below minimum 0.1000",
			},
		},
		{
			name:     "max assets keeps heaviest in original order",
			criteria: Criteria{MaxAssets: 3},
			want:     []string{"AAPL", "XOM", "JPM"},
			excluded: map[string]string{
				"SPK1": "outside top 3 by weight",
				"TINY": "outside top 3 by weight",
				"MSFT": "outside top 3 by weight",
			},
		},
		{
			name:     "symbol rule wins over weight rule",
			criteria: Criteria{ExcludeSymbols: []string{"TINY"}, MinWeight: 0.1},
			want:     []string{"AAPL", "XOM", "JPM", "MSFT"},
			excluded: map[string]string{
				"TINY": "excluded symbol",
				"SPK1": "weight 0.0500 below minimum 0.1000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScreener(tt.criteria)
			require.NoError(t, err)

			res := s.Screen(candidates())
			assert.Equal(t, tt.want, res.Assets.Symbols())
			assert.Equal(t, tt.excluded, res.Excluded)
		})
	}
}

func TestScreener_Normalize(t *testing.T) {
	s, err := NewScreener(Criteria{ExcludeSectors: []string{"Tech"}, Normalize: true})
	require.NoError(t, err)

	in := candidates()
	res := s.Screen(in)
	assert.InDelta(t, 1.0, res.Assets.TotalWeight(), 1e-9)
	assert.InDelta(t, 0.20/0.51, res.Assets.Weights()["XOM"], 1e-9)

	// 입력은 변경되지 않음
	assert.Equal(t, 0.20, in[1].Weight)
}

func TestNewScreener_Rejects(t *testing.T) {
	for name, c := range map[string]Criteria{
		"negative weight": {MinWeight: -0.1},
		"negative max":    {MaxAssets: -1},
		"bad pattern":     {ExcludeNamePatterns: []string{"("}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewScreener(c)
			assert.True(t, errors.Is(err, contracts.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestCriteriaFromMap(t *testing.T) {
	c, err := CriteriaFromMap(map[string]interface{}{
		"exclude_sectors": []interface{}{"Energy"},
		"min_weight":      0.02,
		"max_assets":      50,
		"normalize":       true,
		"source":          "manual", // 모르는 키는 무시
	})
	require.NoError(t, err)
	assert.Equal(t, Criteria{
		ExcludeSectors: []string{"Energy"},
		MinWeight:      0.02,
		MaxAssets:      50,
		Normalize:      true,
	}, c)

	empty, err := CriteriaFromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, Criteria{}, empty)

	_, err = CriteriaFromMap(map[string]interface{}{"max_assets": "many"})
	assert.True(t, errors.Is(err, contracts.ErrInvalidInput))
}
