package models

import "fmt"

// RiskLimits bound sizing for one cycle.
type RiskLimits struct {
	MaxPositionPct          float64 `json:"max_position_pct"`
	MaxPortfolioExposurePct float64 `json:"max_portfolio_exposure_pct"`
	MaxNames                int     `json:"max_names,omitempty"` // 0 = no cap
	LongOnly                bool    `json:"long_only"`
}

// DefaultRiskLimits mirrors the configuration defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{MaxPositionPct: 0.05, MaxPortfolioExposurePct: 0.90}
}

func (r RiskLimits) Validate() error {
	if r.MaxPositionPct < 0 || r.MaxPositionPct > 1 {
		return fmt.Errorf("%w: max_position_pct must be in [0,1], got %v", ErrConfig, r.MaxPositionPct)
	}
	if r.MaxPortfolioExposurePct < 0 {
		return fmt.Errorf("%w: max_portfolio_exposure_pct must be >= 0, got %v", ErrConfig, r.MaxPortfolioExposurePct)
	}
	if r.MaxNames < 0 {
		return fmt.Errorf("%w: max_names must be >= 0, got %d", ErrConfig, r.MaxNames)
	}
	return nil
}

// Constraints are pre-evaluation universe filters. Nil pointers disable a check.
type Constraints struct {
	MaxNames       *int           `json:"max_names,omitempty"`
	MinAvgVolume   *float64       `json:"min_avg_volume,omitempty"`
	MinPrice       *float64       `json:"min_price,omitempty"`
	ExcludeSymbols []string       `json:"exclude_symbols,omitempty"`
	Extras         map[string]any `json:"extras,omitempty"`
}

// Excludes reports whether symbol is on the manual exclusion list.
func (c Constraints) Excludes(symbol string) bool {
	for _, s := range c.ExcludeSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func (c Constraints) Validate() error {
	if c.MaxNames != nil && *c.MaxNames < 0 {
		return fmt.Errorf("%w: constraints.max_names must be >= 0", ErrConfig)
	}
	if c.MinPrice != nil && *c.MinPrice < 0 {
		return fmt.Errorf("%w: constraints.min_price must be >= 0", ErrConfig)
	}
	if c.MinAvgVolume != nil && *c.MinAvgVolume < 0 {
		return fmt.Errorf("%w: constraints.min_avg_volume must be >= 0", ErrConfig)
	}
	return nil
}
