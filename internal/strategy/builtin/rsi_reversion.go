package builtin

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

type RSIReversionParams struct {
	Period      int     `mapstructure:"period"`
	Oversold    float64 `mapstructure:"oversold"`
	Overbought  float64 `mapstructure:"overbought"`
	HorizonBars int     `mapstructure:"horizon_bars"`
	TakeProfit  float64 `mapstructure:"take_profit_pct"`
}

func DefaultRSIReversionParams() RSIReversionParams {
	return RSIReversionParams{
		Period:      14,
		Oversold:    30,
		Overbought:  70,
		HorizonBars: 3,
		TakeProfit:  0.03,
	}
}

// RSIReversion fades RSI extremes.
type RSIReversion struct {
	id string
	p  RSIReversionParams
}

func NewRSIReversion(id string, p RSIReversionParams) (*RSIReversion, error) {
	if p.Period < 2 {
		return nil, fmt.Errorf("rsi_reversion: period must be >= 2")
	}
	if p.Oversold <= 0 || p.Overbought >= 100 || p.Oversold >= p.Overbought {
		return nil, fmt.Errorf("rsi_reversion: need 0 < oversold < overbought < 100")
	}
	if p.HorizonBars <= 0 {
		return nil, fmt.Errorf("rsi_reversion: horizon_bars must be > 0")
	}
	return &RSIReversion{id: id, p: p}, nil
}

func NewRSIReversionFactory() strategy.Factory {
	return func(id string, decode strategy.Decoder) (strategy.Strategy, error) {
		p := DefaultRSIReversionParams()
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewRSIReversion(id, p)
	}
}

func (s *RSIReversion) ID() string { return s.id }
func (s *RSIReversion) Version() string { return "1.0.0" }
func (s *RSIReversion) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (s *RSIReversion) LookbackBars() int { return s.p.Period*3 + 1 }

func (s *RSIReversion) Params() map[string]interface{} {
	return map[string]interface{}{
		"period":          s.p.Period,
		"oversold":        s.p.Oversold,
		"overbought":      s.p.Overbought,
		"horizon_bars":    s.p.HorizonBars,
		"take_profit_pct": s.p.TakeProfit,
	}
}

func (s *RSIReversion) Run(ctx context.Context, sc *strategy.Context) ([]models.Signal, error) {
	var out []models.Signal
	err := eachWindow(ctx, sc, sc.Timeframe, s.p.Period+1, func(sym string, bars []models.Bar) {
		closes := models.Closes(bars)
		rsi := talib.Rsi(closes, s.p.Period)
		v := rsi[len(rsi)-1]
		price := closes[len(closes)-1]

		switch {
		case v < s.p.Oversold:
			depth := (s.p.Oversold - v) / s.p.Oversold
			sig := models.NewSignal(s.id, sym, models.SideLong, depth, 0.4+0.4*depth, s.p.HorizonBars)
			sig.Entry = models.EntryLimit
			sig.EntryPriceHint = models.Float64Ptr(round4(price))
			sig.TakeProfitPrice = models.Float64Ptr(round4(price * (1 + s.p.TakeProfit)))
			sig.Tags = []string{"mean_reversion"}
			sig.Explain = fmt.Sprintf("RSI(%d)=%.1f below %.0f", s.p.Period, v, s.p.Oversold)
			out = append(out, sig)
		case v > s.p.Overbought:
			depth := (v - s.p.Overbought) / (100 - s.p.Overbought)
			sig := models.NewSignal(s.id, sym, models.SideShort, -depth, 0.4+0.4*depth, s.p.HorizonBars)
			sig.Entry = models.EntryLimit
			sig.EntryPriceHint = models.Float64Ptr(round4(price))
			sig.TakeProfitPrice = models.Float64Ptr(round4(price * (1 - s.p.TakeProfit)))
			sig.Tags = []string{"mean_reversion"}
			sig.Explain = fmt.Sprintf("RSI(%d)=%.1f above %.0f", s.p.Period, v, s.p.Overbought)
			out = append(out, sig)
		}
	})
	return out, err
}
