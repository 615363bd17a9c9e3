package usecase

import (
	"math"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	applogger "Conductor/pkg/logger"
)

// NormalizeOptions holds the calibration tables for NormalizeSignals. Missing
// entries default to a weight and edge scale of 1 and a cost of 0 bps.
type NormalizeOptions struct {
	StrategyWeights map[string]float64
	EdgeScales      map[string]float64
	CostBps         map[string]float64
}

// NormalizeSignals stamps a net alpha on a copy of every signal:
//
//	raw        = strength * confidence
//	calibrated = raw * weight * edge_scale
//	alpha_net  = calibrated - copysign(cost, calibrated), or 0 when |calibrated| <= cost
//
// where cost is the round-trip cost of tf in bps / 10000.
func NormalizeSignals(signals []models.Signal, tf domrepo.Timeframe, opts NormalizeOptions, l *applogger.Logger) []models.Signal {
	cost := lookup(opts.CostBps, string(tf), 0) / 10_000

	out := make([]models.Signal, 0, len(signals))
	zero := 0
	for _, s := range signals {
		raw := s.Strength * s.Confidence
		calibrated := raw * lookup(opts.StrategyWeights, s.StrategyID, 1) * lookup(opts.EdgeScales, s.StrategyID, 1)

		alpha := 0.0
		if math.Abs(calibrated) > cost {
			alpha = calibrated - math.Copysign(cost, calibrated)
		} else {
			zero++
		}
		out = append(out, s.WithAlphaNet(alpha))
	}

	if l != nil {
		l.Info("signals_normalized",
			applogger.Int("count", len(signals)),
			applogger.String("timeframe", string(tf)),
			applogger.Float64("cost_bps", cost*10_000),
			applogger.Int("zero_alpha", zero),
		)
	}
	return out
}

func lookup(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
