package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/repository"
	"Conductor/internal/strategy"
)

type fixedRegime struct {
	label string
	err   error
}

func (f fixedRegime) Regime(context.Context, time.Time) (string, error) { return f.label, f.err }

type failingIntentStore struct{ domrepo.IntentStore }

func (failingIntentStore) Save(context.Context, models.PortfolioIntent) error {
	return errors.New("disk full")
}

func testConfig() OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	cfg.MaxStaleness = map[domrepo.Timeframe]time.Duration{domrepo.TF1Day: 48 * time.Hour}
	return cfg
}

func cycleInput(strats ...strategy.Strategy) CycleInput {
	return CycleInput{
		Strategies: strats,
		Universe:   []string{"AAPL", "MSFT", "TSLA"},
		Portfolio:  models.PortfolioState{AsOf: evalDay, Equity: 100_000, Cash: 100_000},
		Limits:     models.RiskLimits{MaxPositionPct: 0.05, MaxPortfolioExposurePct: 0.90},
	}
}

func healthyStore() *repository.MemoryBarStore {
	return storeWith(
		dailyBars("AAPL", 30, evalDay, flat(180), 5e7),
		dailyBars("MSFT", 30, evalDay, flat(400), 2e7),
		dailyBars("TSLA", 30, evalDay, flat(200), 8e7),
	)
}

func newGormStore(t *testing.T) *repository.GormIntentStore {
	t.Helper()
	s, err := repository.NewGormIntentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOrchestrate_NoTradeWhenDataMissing(t *testing.T) {
	store := storeWith(dailyBars("AAPL", 30, evalDay, flat(180), 5e7))
	s := stub("a", long("a", "AAPL", 1, 1))

	intent, err := NewOrchestrator(store, nil, nil, nil, nil, testConfig(), nil).
		Orchestrate(context.Background(), cycleInput(s))
	require.NoError(t, err)

	assert.False(t, intent.TradeAllowed)
	assert.Empty(t, intent.Targets)
	assert.NotNil(t, intent.Targets)
	assert.Equal(t, int32(0), s.calls.Load(), "no strategy runs")
	assert.Equal(t, evalDay, intent.AsOf)
	assert.Equal(t, "NO_TRADE: 2/3 symbols stale/missing (67% > 50% threshold). Stale: [], Missing: [MSFT TSLA].", intent.Explain)
}

func TestOrchestrate_FullCycle(t *testing.T) {
	db := newGormStore(t)
	a := stub("strat-A", long("strat-A", "AAPL", 0.9, 0.9), long("strat-A", "MSFT", 0.5, 0.8))
	b := stub("strat-B", short("strat-B", "AAPL", 0.3, 0.5))

	in := cycleInput(a, b)
	in.Persist = true
	o := NewOrchestrator(healthyStore(), db, db, nil, nil, testConfig(), nil)
	intent, err := o.Orchestrate(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, intent.TradeAllowed)
	assert.Equal(t, evalDay, intent.AsOf)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, intent.Universe.Included)
	assert.Equal(t, models.SizingSignalWeighted, intent.SizingMethod)
	assert.NotEmpty(t, intent.StrategyRunID)
	assert.Empty(t, intent.StrategyErrors)

	require.Len(t, intent.SignalsUsed, 2)
	assert.Equal(t, "AAPL", intent.SignalsUsed[0].Symbol)
	require.Len(t, intent.SignalsDropped, 1)
	assert.Equal(t, "strat-B", intent.SignalsDropped[0].StrategyID)

	require.Len(t, intent.Targets, 2)
	total := 0.0
	for _, tp := range intent.Targets {
		assert.Greater(t, tp.TargetNotional, 0.0)
		assert.LessOrEqual(t, tp.TargetNotional, 5_000.0)
		total += tp.TargetNotional
	}
	assert.LessOrEqual(t, total, 90_000.0)

	assert.True(t, strings.HasPrefix(intent.Explain, "Cycle at 2024-03-01T21:00:00Z. Universe: 3/3 symbols after filtering."))
	assert.Contains(t, intent.Explain, "Strategies: 2 run, 0 errors.")
	assert.Contains(t, intent.Explain, "Signals: 3 raw -> 2 merged, 1 dropped.")
	assert.Contains(t, intent.Explain, "Targets: 2 positions, sizing=signal_weighted.")
	assert.GreaterOrEqual(t, intent.ElapsedMS, 0.0)

	saved, err := db.Get(context.Background(), intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, intent.IntentID, saved.IntentID)
	assert.Len(t, saved.Targets, 2)
}

func TestOrchestrate_StaleSymbolsExcludedFirst(t *testing.T) {
	store := storeWith(
		dailyBars("AAPL", 30, evalDay, flat(180), 5e7),
		dailyBars("MSFT", 30, evalDay.AddDate(0, 0, -5), flat(400), 2e7),
		dailyBars("TSLA", 30, evalDay, flat(2), 8e7),
	)
	in := cycleInput(stub("a", long("a", "AAPL", 1, 1)))
	in.Constraints = models.Constraints{MinPrice: models.Float64Ptr(5)}

	intent, err := NewOrchestrator(store, nil, nil, nil, nil, testConfig(), nil).Orchestrate(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, intent.TradeAllowed)
	assert.Equal(t, []string{"AAPL"}, intent.Universe.Included)
	require.Len(t, intent.Universe.Excluded, 2)
	assert.Equal(t, "MSFT", intent.Universe.Excluded[0].Symbol)
	assert.Equal(t, models.ExcludeDataTooStale, intent.Universe.Excluded[0].Reason)
	assert.Equal(t, "TSLA", intent.Universe.Excluded[1].Symbol)
	assert.Equal(t, models.ExcludeBelowMinPrice, intent.Universe.Excluded[1].Reason)
	assert.Contains(t, intent.Explain, "Universe: 1/2 symbols after filtering.")
}

func TestOrchestrate_ConfigErrorsBeforeStrategiesRun(t *testing.T) {
	s := stub("a", long("a", "AAPL", 1, 1))
	o := NewOrchestrator(healthyStore(), nil, nil, nil, nil, testConfig(), nil)

	in := cycleInput(s)
	in.SizingMethod = "kelly"
	_, err := o.Orchestrate(context.Background(), in)
	require.ErrorIs(t, err, models.ErrConfig)

	in = cycleInput(s)
	in.Limits.MaxPositionPct = 2
	_, err = o.Orchestrate(context.Background(), in)
	require.ErrorIs(t, err, models.ErrConfig)

	assert.Equal(t, int32(0), s.calls.Load())
}

func TestOrchestrate_AsOfOverrideSkipsFreshness(t *testing.T) {
	store := storeWith(dailyBars("AAPL", 30, evalDay, flat(180), 5e7))
	asOf := evalDay.AddDate(0, 0, -3)
	in := cycleInput(stub("a", long("a", "AAPL", 1, 1)))
	in.AsOf = &asOf

	intent, err := NewOrchestrator(store, nil, nil, nil, nil, testConfig(), nil).Orchestrate(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, intent.TradeAllowed)
	assert.Equal(t, asOf, intent.AsOf)
	assert.Equal(t, []string{"AAPL"}, intent.Universe.Included)
}

func TestOrchestrate_PersistFailureReturnsIntent(t *testing.T) {
	in := cycleInput(stub("a", long("a", "AAPL", 1, 1)))
	in.Persist = true

	intent, err := NewOrchestrator(healthyStore(), failingIntentStore{}, nil, nil, nil, testConfig(), nil).
		Orchestrate(context.Background(), in)
	require.ErrorIs(t, err, ErrPersistIntent)
	assert.Contains(t, err.Error(), "persist intent "+intent.IntentID)
	assert.NotEmpty(t, intent.IntentID)
	assert.Len(t, intent.Targets, 1)
}

func TestOrchestrate_VolTargetedAndRegime(t *testing.T) {
	zigzag := func(i int) float64 { return 100 + float64(i%2)*4 }
	store := storeWith(
		dailyBars("AAPL", 30, evalDay, zigzag, 5e7),
		dailyBars("MSFT", 30, evalDay, flat(400), 2e7),
		dailyBars("TSLA", 30, evalDay, flat(200), 8e7),
	)
	in := cycleInput(stub("a", long("a", "AAPL", 1, 1)))
	in.SizingMethod = "vol_targeted"

	o := NewOrchestrator(store, nil, nil, fixedRegime{label: "bull"}, nil, testConfig(), nil)
	intent, err := o.Orchestrate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, models.SizingVolTargeted, intent.SizingMethod)
	assert.Equal(t, "bull", intent.Regime)
	require.Len(t, intent.Targets, 1)
	assert.Contains(t, intent.Targets[0].Explain, "vol=")

	o = NewOrchestrator(store, nil, nil, fixedRegime{err: errors.New("down")}, nil, testConfig(), nil)
	intent, err = o.Orchestrate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, intent.Regime)
}

func TestOrchestrate_Deterministic(t *testing.T) {
	mk := func() []strategy.Strategy {
		return []strategy.Strategy{
			stub("a", long("a", "AAPL", 0.7, 0.9), short("a", "TSLA", 0.4, 0.6)),
			stub("b", long("b", "MSFT", 0.5, 0.5), long("b", "AAPL", 0.2, 0.4)),
			stub("c", exit("c", "TSLA", 0.9, 1)),
		}
	}
	run := func(workers int) models.PortfolioIntent {
		cfg := testConfig()
		cfg.Workers = workers
		cfg.Normalize = true
		cfg.CostBps = map[string]float64{"1Day": 5}
		intent, err := NewOrchestrator(healthyStore(), nil, nil, nil, nil, cfg, nil).
			Orchestrate(context.Background(), cycleInput(mk()...))
		require.NoError(t, err)
		return intent
	}

	seq, par := run(1), run(4)
	assert.Equal(t, seq.Targets, par.Targets)
	assert.Equal(t, seq.SignalsUsed, par.SignalsUsed)
	assert.Equal(t, seq.SignalsDropped, par.SignalsDropped)
	require.NotEmpty(t, seq.Targets)
	assert.Equal(t, "TSLA", seq.Targets[len(seq.Targets)-1].Symbol)
	assert.Equal(t, 0.0, seq.Targets[len(seq.Targets)-1].TargetNotional)
}
