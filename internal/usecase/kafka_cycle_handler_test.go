package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

type recordingRunner struct {
	reqs []CycleRequest
	err  error
}

func (r *recordingRunner) RunCycle(_ context.Context, req CycleRequest) (models.PortfolioIntent, error) {
	r.reqs = append(r.reqs, req)
	return models.PortfolioIntent{IntentID: "i-1", TradeAllowed: true}, r.err
}

func TestKafkaCycleHandler(t *testing.T) {
	runner := &recordingRunner{}
	h := NewKafkaCycleHandler("bars.closed", domrepo.TF1Day, runner, nil, nil)
	assert.Equal(t, "bars.closed", h.Topic())

	// live bar-close: the store resolves eval_ts
	require.NoError(t, h.Handle(context.Background(), []byte(`{"as_of":"2024-03-01T21:00:00Z","timeframe":"1Day"}`)))
	require.Len(t, runner.reqs, 1)
	assert.Nil(t, runner.reqs[0].AsOf)

	// other timeframes are ignored
	require.NoError(t, h.Handle(context.Background(), []byte(`{"timeframe":"5Min"}`)))
	assert.Len(t, runner.reqs, 1)

	require.NoError(t, h.Handle(context.Background(), []byte(`{}`)))
	require.Len(t, runner.reqs, 2)
	assert.Nil(t, runner.reqs[1].AsOf)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"as_of":"2024-03-01T21:00:00Z","replay":true}`)))
	require.Len(t, runner.reqs, 3)
	require.NotNil(t, runner.reqs[2].AsOf)
	assert.Equal(t, evalDay, runner.reqs[2].AsOf.UTC())

	assert.Error(t, h.Handle(context.Background(), []byte(`not json`)))

	runner.err = errors.New("boom")
	assert.Error(t, h.Handle(context.Background(), []byte(`{}`)))

	// a cycle that ran but could not be saved is acked, not redelivered
	runner.err = fmt.Errorf("%w i-1: %w", ErrPersistIntent, errors.New("disk full"))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{}`)))
}

func TestKafkaCycleHandler_LiveTriggerHonoursStaleness(t *testing.T) {
	store := storeWith(dailyBars("AAPL", 30, evalDay, flat(180), 5e7))
	a := stub("a", long("a", "AAPL", 0.8, 0.9))
	svc := cycleServiceOver(t, store, newGormStore(t), nil, true, a)

	h := NewKafkaCycleHandler("bars.closed", domrepo.TF1Day, svc, nil, nil)
	require.NoError(t, h.Handle(context.Background(), []byte(`{"as_of":"2024-03-01T21:00:00Z","timeframe":"1Day"}`)))

	intent, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, intent.TradeAllowed)
	assert.Empty(t, intent.Targets)
	assert.Contains(t, intent.Explain, "Missing: [MSFT TSLA]")
	assert.Equal(t, int32(0), a.calls.Load())
}
