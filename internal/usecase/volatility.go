package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	domrepo "Conductor/internal/domain/repository"
	domsvc "Conductor/internal/domain/service"
	"Conductor/internal/services/features"
	applogger "Conductor/pkg/logger"
)

const (
	volLookbackBars = 20
	volMinBars      = 5
	volFloor        = 0.01
)

// BarVolatilityEstimator estimates annualized close-to-close volatility from
// the trailing bars of each symbol.
type BarVolatilityEstimator struct {
	store      domrepo.BarStore
	tf         domrepo.Timeframe
	defaultVol float64
	l          *applogger.Logger
}

func NewBarVolatilityEstimator(store domrepo.BarStore, tf domrepo.Timeframe, defaultVol float64, l *applogger.Logger) *BarVolatilityEstimator {
	if defaultVol <= 0 {
		defaultVol = DefaultVol
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &BarVolatilityEstimator{store: store, tf: tf, defaultVol: defaultVol, l: l}
}

// Estimate returns a positive volatility for every symbol. Symbols with fewer
// than five bars or two usable returns get the default; estimates are floored
// at 0.01.
func (e *BarVolatilityEstimator) Estimate(ctx context.Context, symbols []string, asOf time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	annualize := math.Sqrt(features.BarsPerYear(e.tf))
	defaults := 0

	for _, sym := range symbols {
		bars, err := e.store.Window(ctx, sym, e.tf, asOf, volLookbackBars)
		if err != nil {
			return nil, fmt.Errorf("volatility window %s: %w", sym, err)
		}
		if len(bars) < volMinBars {
			e.l.Debug("vol_insufficient_bars",
				applogger.String("symbol", sym),
				applogger.Int("bars", len(bars)),
				applogger.Int("min_bars", volMinBars),
			)
			out[sym] = e.defaultVol
			defaults++
			continue
		}
		rets := features.ComputeLogReturns(bars)
		if len(rets) < 2 {
			out[sym] = e.defaultVol
			defaults++
			continue
		}
		out[sym] = math.Max(features.SampleStdev(rets)*annualize, volFloor)
	}

	e.l.Info("volatilities_estimated",
		applogger.Int("symbol_count", len(out)),
		applogger.Int("default_count", defaults),
	)
	return out, nil
}

var _ domsvc.VolatilityEstimator = (*BarVolatilityEstimator)(nil)
