package builtin

import (
	"context"
	"fmt"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

// WeeklyCycleParams configures WeeklyCycle.
type WeeklyCycleParams struct {
	Symbol           string  `mapstructure:"symbol"`
	ProfitTarget     float64 `mapstructure:"profit_target"`
	WeakProfitTarget float64 `mapstructure:"weak_profit_target"`
	StopTrigger      float64 `mapstructure:"stop_trigger"`
	StopExit         float64 `mapstructure:"stop_exit"`
	StopOrder        bool    `mapstructure:"stop_order"`
}

func DefaultWeeklyCycleParams() WeeklyCycleParams {
	return WeeklyCycleParams{
		Symbol:           "TQQQ",
		ProfitTarget:     0.081,
		WeakProfitTarget: 0.025,
		StopTrigger:      -0.013,
		StopExit:         -0.015,
	}
}

// WeeklyCycle holds one symbol for at most one trading week: it enters on the
// first session, targets a profit, tightens the target when the entry day
// closes weak, and exits on a stop trigger or at week end.
type WeeklyCycle struct {
	id string
	p  WeeklyCycleParams
}

func NewWeeklyCycle(id string, p WeeklyCycleParams) (*WeeklyCycle, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("weekly_cycle: symbol is required")
	}
	if p.ProfitTarget <= 0 || p.WeakProfitTarget <= 0 {
		return nil, fmt.Errorf("weekly_cycle: profit targets must be > 0")
	}
	if p.StopTrigger >= 0 || p.StopExit >= 0 {
		return nil, fmt.Errorf("weekly_cycle: stop levels must be < 0")
	}
	return &WeeklyCycle{id: id, p: p}, nil
}

func NewWeeklyCycleFactory() strategy.Factory {
	return func(id string, decode strategy.Decoder) (strategy.Strategy, error) {
		p := DefaultWeeklyCycleParams()
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewWeeklyCycle(id, p)
	}
}

func (s *WeeklyCycle) ID() string { return s.id }
func (s *WeeklyCycle) Version() string { return "1.0.0" }
func (s *WeeklyCycle) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (s *WeeklyCycle) LookbackBars() int { return 10 }

func (s *WeeklyCycle) Params() map[string]interface{} {
	return map[string]interface{}{
		"symbol":             s.p.Symbol,
		"profit_target":      s.p.ProfitTarget,
		"weak_profit_target": s.p.WeakProfitTarget,
		"stop_trigger":       s.p.StopTrigger,
		"stop_exit":          s.p.StopExit,
		"stop_order":         s.p.StopOrder,
	}
}

func isoWeek(t time.Time) (int, int) {
	return t.ISOWeek()
}

func (s *WeeklyCycle) Run(ctx context.Context, sc *strategy.Context) ([]models.Signal, error) {
	sym := s.p.Symbol
	if !sc.InUniverse(sym) {
		return nil, nil
	}
	bars, err := sc.Data.Window(ctx, sym, domrepo.TF1Day, s.LookbackBars())
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}

	y, w := isoWeek(sc.Now)
	var week []models.Bar
	for _, b := range bars {
		if by, bw := isoWeek(b.Timestamp); by == y && bw == w {
			week = append(week, b)
		}
	}
	if len(week) == 0 {
		sig := models.NewSignal(s.id, sym, models.SideLong, 0.6, 0.7, 5)
		sig.Tags = []string{s.id, "entry"}
		sig.Explain = fmt.Sprintf("Weekly cycle entry: buy %s at market open.", sym)
		return []models.Signal{sig}, nil
	}

	entry := week[0].Open
	mode, target := "normal", entry*(1+s.p.ProfitTarget)
	if week[0].Close < entry {
		mode, target = "weakness", entry*(1+s.p.WeakProfitTarget)
	}
	stop := round4(entry * (1 + s.p.StopExit))

	if week[len(week)-1].Close <= entry*(1+s.p.StopTrigger) {
		sig := models.NewSignal(s.id, sym, models.SideFlat, -1, 0.9, 1)
		if s.p.StopOrder {
			sig.Entry = models.EntryStop
		}
		sig.StopPrice = models.Float64Ptr(stop)
		sig.Tags = []string{s.id, "exit", "stop"}
		sig.Explain = fmt.Sprintf("Stop triggered: close breached %.1f%% threshold.", s.p.StopTrigger*100)
		return []models.Signal{sig}, nil
	}

	if sc.Now.Weekday() == time.Friday || len(week) >= 5 {
		sig := models.NewSignal(s.id, sym, models.SideFlat, -1, 0.8, 1)
		sig.Tags = []string{s.id, "exit", "eow"}
		sig.Explain = fmt.Sprintf("End of week exit (mode=%s).", mode)
		return []models.Signal{sig}, nil
	}

	remaining := 5 - len(week)
	if remaining < 1 {
		remaining = 1
	}
	sig := models.NewSignal(s.id, sym, models.SideLong, 0.5, 0.7, remaining)
	sig.Entry = models.EntryLimit
	sig.TakeProfitPrice = models.Float64Ptr(round4(target))
	sig.StopPrice = models.Float64Ptr(stop)
	sig.TimeStopBars = &remaining
	sig.Tags = []string{s.id, "hold", "mode:" + mode}
	sig.Explain = fmt.Sprintf("Holding: mode=%s, target=$%.2f, stop=$%.2f.", mode, target, stop)
	return []models.Signal{sig}, nil
}
