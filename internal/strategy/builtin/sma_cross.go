package builtin

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

// SMACrossParams configures SMACross.
type SMACrossParams struct {
	Fast        int     `mapstructure:"fast"`
	Slow        int     `mapstructure:"slow"`
	HorizonBars int     `mapstructure:"horizon_bars"`
	Scale       float64 `mapstructure:"scale"`
	StopPct     float64 `mapstructure:"stop_pct"`
	// LongOnly turns bearish crosses into exits instead of shorts.
	LongOnly bool `mapstructure:"long_only"`
}

func DefaultSMACrossParams() SMACrossParams {
	return SMACrossParams{
		Fast:        10,
		Slow:        30,
		HorizonBars: defaultHorizonBars,
		Scale:       defaultStrategyScale,
		StopPct:     0.05,
	}
}

// SMACross goes with the trend when the fast SMA sits above or below the slow one.
type SMACross struct {
	id string
	p  SMACrossParams
}

func NewSMACross(id string, p SMACrossParams) (*SMACross, error) {
	if p.Fast < 2 || p.Slow <= p.Fast {
		return nil, fmt.Errorf("sma_cross: need 2 <= fast < slow, got fast=%d slow=%d", p.Fast, p.Slow)
	}
	if p.HorizonBars <= 0 {
		return nil, fmt.Errorf("sma_cross: horizon_bars must be > 0")
	}
	return &SMACross{id: id, p: p}, nil
}

func NewSMACrossFactory() strategy.Factory {
	return func(id string, decode strategy.Decoder) (strategy.Strategy, error) {
		p := DefaultSMACrossParams()
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewSMACross(id, p)
	}
}

func (s *SMACross) ID() string { return s.id }
func (s *SMACross) Version() string { return "1.1.0" }
func (s *SMACross) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (s *SMACross) LookbackBars() int { return s.p.Slow + 5 }

func (s *SMACross) Params() map[string]interface{} {
	return map[string]interface{}{
		"fast":         s.p.Fast,
		"slow":         s.p.Slow,
		"horizon_bars": s.p.HorizonBars,
		"scale":        s.p.Scale,
		"stop_pct":     s.p.StopPct,
		"long_only":    s.p.LongOnly,
	}
}

func (s *SMACross) Run(ctx context.Context, sc *strategy.Context) ([]models.Signal, error) {
	horizon := sc.Int("horizon_bars", s.p.HorizonBars)
	var out []models.Signal
	err := eachWindow(ctx, sc, sc.Timeframe, s.p.Slow+1, func(sym string, bars []models.Bar) {
		closes := models.Closes(bars)
		fast := talib.Sma(closes, s.p.Fast)
		slow := talib.Sma(closes, s.p.Slow)
		last := len(closes) - 1
		f, sl := fast[last], slow[last]
		if sl == 0 {
			return
		}
		spread := f/sl - 1
		crossed := (fast[last-1]-slow[last-1])*(f-sl) < 0
		price := closes[last]

		conf := 0.5
		if crossed {
			conf = 0.7
		}
		switch {
		case spread > 0:
			sig := models.NewSignal(s.id, sym, models.SideLong, spread*s.p.Scale, conf, horizon)
			sig.StopPrice = models.Float64Ptr(round4(price * (1 - s.p.StopPct)))
			sig.Tags = []string{"trend"}
			sig.Explain = fmt.Sprintf("SMA%d %.2f above SMA%d %.2f (spread %.2f%%)", s.p.Fast, f, s.p.Slow, sl, spread*100)
			out = append(out, sig)
		case spread < 0 && s.p.LongOnly:
			if !crossed {
				return
			}
			sig := models.NewSignal(s.id, sym, models.SideFlat, -1, conf, 1)
			sig.Tags = []string{"trend", "exit"}
			sig.Explain = fmt.Sprintf("SMA%d crossed below SMA%d; exit", s.p.Fast, s.p.Slow)
			out = append(out, sig)
		case spread < 0:
			sig := models.NewSignal(s.id, sym, models.SideShort, spread*s.p.Scale, conf, horizon)
			sig.StopPrice = models.Float64Ptr(round4(price * (1 + s.p.StopPct)))
			sig.Tags = []string{"trend"}
			sig.Explain = fmt.Sprintf("SMA%d %.2f below SMA%d %.2f (spread %.2f%%)", s.p.Fast, f, s.p.Slow, sl, spread*100)
			out = append(out, sig)
		}
	})
	return out, err
}
