package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
)

type recordingPublisher struct {
	mu      sync.Mutex
	intents []models.PortfolioIntent
	err     error
}

func (p *recordingPublisher) PublishIntent(_ context.Context, intent models.PortfolioIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, intent)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.intents)
}

func newCycleService(t *testing.T, intents domrepo.IntentStore, pub domrepo.IntentPublisher, persist bool) *CycleService {
	t.Helper()
	return cycleServiceOver(t, healthyStore(), intents, pub, persist,
		stub("a", long("a", "AAPL", 0.8, 0.9)),
		stub("b", long("b", "MSFT", 0.4, 0.5)),
	)
}

func cycleServiceOver(t *testing.T, store domrepo.BarStore, intents domrepo.IntentStore, pub domrepo.IntentPublisher, persist bool, strats ...strategy.Strategy) *CycleService {
	t.Helper()
	reg := strategy.NewRegistry()
	for _, s := range strats {
		require.NoError(t, reg.Register(s))
	}

	var runs domrepo.RunStore
	if rs, ok := intents.(domrepo.RunStore); ok {
		runs = rs
	}
	orch := NewOrchestrator(store, intents, runs, nil, nil, testConfig(), nil)
	return NewCycleService(orch, reg, CycleDefaults{
		Universe:  []string{"AAPL", "MSFT", "TSLA"},
		Portfolio: models.PortfolioState{Equity: 250_000},
		Limits:    models.RiskLimits{MaxPositionPct: 0.1, MaxPortfolioExposurePct: 0.5},
		Persist:   persist,
	}, intents, pub, nil, nil)
}

func TestCycleService_RunPersistsAndPublishes(t *testing.T) {
	db := newGormStore(t)
	pub := &recordingPublisher{}
	svc := newCycleService(t, db, pub, true)

	intent, err := svc.RunCycle(context.Background(), CycleRequest{})
	require.NoError(t, err)
	assert.True(t, intent.TradeAllowed)
	require.Len(t, intent.Targets, 2)
	assert.False(t, intent.PortfolioState.AsOf.IsZero())
	assert.Equal(t, 1, pub.count())

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, intent.IntentID, latest.IntentID)

	got, err := svc.Get(context.Background(), intent.IntentID)
	require.NoError(t, err)
	assert.Equal(t, intent.AsOf, got.AsOf)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrIntentNotFound)

	list, err := svc.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCycleService_NoPersistNoPublish(t *testing.T) {
	db := newGormStore(t)
	pub := &recordingPublisher{}
	svc := newCycleService(t, db, pub, true)

	off := false
	_, err := svc.RunCycle(context.Background(), CycleRequest{Persist: &off, SizingMethod: "equal_weight"})
	require.NoError(t, err)
	assert.Equal(t, 0, pub.count())

	_, err = svc.Latest(context.Background())
	assert.ErrorIs(t, err, models.ErrIntentNotFound)
}

func TestCycleService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newCycleService(t, newGormStore(t), pub, true)

	intent, err := svc.RunCycle(context.Background(), CycleRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, intent.IntentID)
	assert.Equal(t, 1, pub.count())
}

func TestCycleService_WithoutStore(t *testing.T) {
	svc := newCycleService(t, nil, nil, false)
	_, err := svc.RunCycle(context.Background(), CycleRequest{})
	require.NoError(t, err)

	_, err = svc.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoIntentStore)
	_, err = svc.List(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNoIntentStore)
}

func TestCycleService_Start(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newCycleService(t, newGormStore(t), pub, true)

	assert.ErrorIs(t, svc.Start(context.Background(), 0), models.ErrConfig)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type stubDetector struct {
	gotReturns int
	err        error
}

func (d *stubDetector) Detect(_ context.Context, symbol string, returns []float64) (models.Regime, error) {
	d.gotReturns = len(returns)
	if d.err != nil {
		return models.Regime{}, d.err
	}
	return models.Regime{Symbol: symbol, State: "trend"}, nil
}

func TestBarRegimeSource(t *testing.T) {
	det := &stubDetector{}
	src := NewBarRegimeSource(det, healthyStore(), "AAPL", 10, domrepo.TF1Day)

	label, err := src.Regime(context.Background(), evalDay)
	require.NoError(t, err)
	assert.Equal(t, "trend", label)
	assert.Equal(t, 10, det.gotReturns)

	_, err = NewBarRegimeSource(det, healthyStore(), "NONE", 10, domrepo.TF1Day).Regime(context.Background(), evalDay)
	assert.Error(t, err)

	det.err = errors.New("unavailable")
	_, err = src.Regime(context.Background(), evalDay)
	assert.Error(t, err)
}
