// Package builtin holds the reference strategies shipped with Conductor.
package builtin

import (
	"context"
	"math"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

// Factory names used in strategy specs.
const (
	FactorySMACross      = "sma_cross"
	FactoryRSIReversion  = "rsi_reversion"
	FactoryDonchian      = "donchian_breakout"
	FactoryWeeklyCycle   = "weekly_cycle"
	defaultHorizonBars   = 5
	defaultStrategyScale = 10.0
)

// RegisterFactories makes every built-in factory available on r.
func RegisterFactories(r *strategy.Registry) {
	r.RegisterFactory(FactorySMACross, NewSMACrossFactory())
	r.RegisterFactory(FactoryRSIReversion, NewRSIReversionFactory())
	r.RegisterFactory(FactoryDonchian, NewDonchianFactory())
	r.RegisterFactory(FactoryWeeklyCycle, NewWeeklyCycleFactory())
}

// symbolsFor returns the universe, honouring the MaxNames constraint as a
// plain prefix cap.
func symbolsFor(sc *strategy.Context) []string {
	if sc.Constraints.MaxNames != nil && *sc.Constraints.MaxNames < len(sc.Universe) {
		return sc.Universe[:*sc.Constraints.MaxNames]
	}
	return sc.Universe
}

// eachWindow calls fn for every symbol that has at least n bars.
func eachWindow(ctx context.Context, sc *strategy.Context, tf domrepo.Timeframe, n int, fn func(symbol string, bars []models.Bar)) error {
	for _, sym := range symbolsFor(sc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars, err := sc.Data.Window(ctx, sym, tf, n)
		if err != nil {
			return err
		}
		if len(bars) < n {
			continue
		}
		fn(sym, bars)
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
