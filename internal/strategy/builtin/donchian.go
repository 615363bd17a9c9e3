package builtin

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

type DonchianParams struct {
	Period      int `mapstructure:"period"`
	HorizonBars int `mapstructure:"horizon_bars"`
}

func DefaultDonchianParams() DonchianParams {
	return DonchianParams{Period: 20, HorizonBars: 10}
}

// Donchian trades closes outside the prior N-bar high/low channel. The
// opposite channel edge is the stop.
type Donchian struct {
	id string
	p  DonchianParams
}

func NewDonchian(id string, p DonchianParams) (*Donchian, error) {
	if p.Period < 2 {
		return nil, fmt.Errorf("donchian_breakout: period must be >= 2")
	}
	if p.HorizonBars <= 0 {
		return nil, fmt.Errorf("donchian_breakout: horizon_bars must be > 0")
	}
	return &Donchian{id: id, p: p}, nil
}

func NewDonchianFactory() strategy.Factory {
	return func(id string, decode strategy.Decoder) (strategy.Strategy, error) {
		p := DefaultDonchianParams()
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewDonchian(id, p)
	}
}

func (s *Donchian) ID() string { return s.id }
func (s *Donchian) Version() string { return "1.0.0" }
func (s *Donchian) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (s *Donchian) LookbackBars() int { return s.p.Period + 1 }

func (s *Donchian) Params() map[string]interface{} {
	return map[string]interface{}{"period": s.p.Period, "horizon_bars": s.p.HorizonBars}
}

func (s *Donchian) Run(ctx context.Context, sc *strategy.Context) ([]models.Signal, error) {
	var out []models.Signal
	err := eachWindow(ctx, sc, sc.Timeframe, s.p.Period+1, func(sym string, bars []models.Bar) {
		n := len(bars)
		// channel over the bars before the latest one
		upper := talib.Max(models.Highs(bars[:n-1]), s.p.Period)
		lower := talib.Min(models.Lows(bars[:n-1]), s.p.Period)
		hi, lo := upper[len(upper)-1], lower[len(lower)-1]
		width := hi - lo
		if width <= 0 {
			return
		}
		price := bars[n-1].Close

		switch {
		case price > hi:
			sig := models.NewSignal(s.id, sym, models.SideLong, (price-hi)/width+0.3, 0.6, s.p.HorizonBars)
			sig.Entry = models.EntryStop
			sig.StopPrice = models.Float64Ptr(round4(lo))
			sig.Tags = []string{"breakout"}
			sig.Explain = fmt.Sprintf("close %.2f above %d-bar high %.2f", price, s.p.Period, hi)
			out = append(out, sig)
		case price < lo:
			sig := models.NewSignal(s.id, sym, models.SideShort, -((lo-price)/width + 0.3), 0.6, s.p.HorizonBars)
			sig.Entry = models.EntryStop
			sig.StopPrice = models.Float64Ptr(round4(hi))
			sig.Tags = []string{"breakout"}
			sig.Explain = fmt.Sprintf("close %.2f below %d-bar low %.2f", price, s.p.Period, lo)
			out = append(out, sig)
		}
	})
	return out, err
}
