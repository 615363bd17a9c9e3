package service

import (
	"context"
	"time"

	"Conductor/internal/domain/models"
)

// RegimeDetector detects market regimes based on returns time series.
type RegimeDetector interface {
	Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error)
}

// VolatilityEstimator returns annualized volatility per symbol as of a timestamp.
type VolatilityEstimator interface {
	Estimate(ctx context.Context, symbols []string, asOf time.Time) (map[string]float64, error)
}
