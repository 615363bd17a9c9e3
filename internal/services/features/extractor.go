package features

import (
	"math"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

// ComputeLogReturns computes close-to-close log returns r_t = ln(C_t / C_{t-1}).
// Pairs with a non-positive close are skipped, so the result may be shorter
// than len(bars)-1. Returns nil if there are fewer than two bars.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// SampleStdev is the n-1 standard deviation. It returns 0 for fewer than two values.
func SampleStdev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	return SampleStdev(logReturns[len(logReturns)-window:]) * math.Sqrt(barsPerYear)
}

// BarsPerYear returns the approximate number of bars per year for a timeframe,
// assuming 252 sessions of 6.5 hours.
func BarsPerYear(tf domrepo.Timeframe) float64 {
	switch tf {
	case domrepo.TF1Day:
		return 252
	case domrepo.TF5Min:
		return 252 * 78
	case domrepo.TF1Min:
		return 252 * 390
	case domrepo.TF1Hour:
		return 252 * 6.5
	default:
		return 252
	}
}
