package analytics

import (
	"context"
	"fmt"
	"time"

	"Conductor/internal/domain/models"
	domsvc "Conductor/internal/domain/service"
)

// HTTPRegimeDetector asks the analytics service to label the market regime
// from a return series.
type HTTPRegimeDetector struct {
	base     *HTTPServiceBase
	attempts int
	now      func() time.Time
}

func NewHTTPRegimeDetector(baseURL string, timeout time.Duration) *HTTPRegimeDetector {
	return &HTTPRegimeDetector{
		base:     NewHTTPServiceBase(baseURL, timeout),
		attempts: 3,
		now:      time.Now,
	}
}

type regimeRequest struct {
	Symbol  string    `json:"symbol"`
	Returns []float64 `json:"returns"`
}

type regimeResponse struct {
	State      string    `json:"state"`
	Prob       []float64 `json:"prob"`
	Confidence float64   `json:"confidence"`
}

func (d *HTTPRegimeDetector) Detect(ctx context.Context, symbol string, returns []float64) (models.Regime, error) {
	var rr regimeResponse
	err := d.base.PostJSONWithRetry(ctx, "/regime/detect", regimeRequest{Symbol: symbol, Returns: returns}, &rr, d.attempts)
	if err != nil {
		return models.Regime{}, fmt.Errorf("post regime: %w", err)
	}
	if rr.State == "" {
		return models.Regime{}, fmt.Errorf("regime response for %s has no state", symbol)
	}
	return models.Regime{
		Symbol:     symbol,
		Timestamp:  d.now().UTC(),
		State:      rr.State,
		Prob:       rr.Prob,
		Confidence: rr.Confidence,
	}, nil
}

var _ domsvc.RegimeDetector = (*HTTPRegimeDetector)(nil)
