package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/repository"
	"Conductor/internal/strategy"
)

var evalDay = time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)

// dailyBars builds n daily bars ending at end with close(i) for bar i.
func dailyBars(sym string, n int, end time.Time, price func(i int) float64, volume float64) []models.Bar {
	out := make([]models.Bar, n)
	for i := 0; i < n; i++ {
		c := price(i)
		v := volume
		out[i] = models.Bar{
			Symbol:    sym,
			Timeframe: string(domrepo.TF1Day),
			Timestamp: end.AddDate(0, 0, i-n+1),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    &v,
		}
	}
	return out
}

func flat(price float64) func(int) float64 {
	return func(int) float64 { return price }
}

func storeWith(series ...[]models.Bar) *repository.MemoryBarStore {
	s := repository.NewMemoryBarStore()
	for _, bars := range series {
		s.Add(bars...)
	}
	return s
}

// stubStrategy returns fixed signals and counts its invocations.
type stubStrategy struct {
	id      string
	signals []models.Signal
	calls   atomic.Int32
}

func (s *stubStrategy) ID() string { return s.id }
func (s *stubStrategy) Version() string { return "1.0.0" }
func (s *stubStrategy) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (s *stubStrategy) LookbackBars() int { return 5 }
func (s *stubStrategy) Params() map[string]interface{} { return map[string]interface{}{} }
func (s *stubStrategy) Run(context.Context, *strategy.Context) ([]models.Signal, error) {
	s.calls.Add(1)
	return s.signals, nil
}

func stub(id string, sigs ...models.Signal) *stubStrategy {
	return &stubStrategy{id: id, signals: sigs}
}

func long(strategyID, sym string, strength, conf float64) models.Signal {
	return models.NewSignal(strategyID, sym, models.SideLong, strength, conf, 5)
}

func short(strategyID, sym string, strength, conf float64) models.Signal {
	return models.NewSignal(strategyID, sym, models.SideShort, -strength, conf, 5)
}

func exit(strategyID, sym string, strength, conf float64) models.Signal {
	return models.NewSignal(strategyID, sym, models.SideFlat, -strength, conf, 1)
}

func intPtr(v int) *int { return &v }
