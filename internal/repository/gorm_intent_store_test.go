package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
)

func newTestGormStore(t *testing.T) *GormIntentStore {
	t.Helper()
	st, err := NewGormIntentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleIntent(id string, asOf time.Time) models.PortfolioIntent {
	return models.PortfolioIntent{
		IntentID:     id,
		AsOf:         asOf,
		SizingMethod: models.SizingSignalWeighted,
		TradeAllowed: true,
		Universe:     models.UniverseResult{Included: []string{"AAA"}, Excluded: []models.SymbolExclusion{}},
		Targets: []models.TargetPosition{{
			Symbol:         "AAA",
			TargetNotional: 5000,
			TargetPct:      0.05,
			Confidence:     0.8,
			HorizonBars:    5,
			StopHint:       models.Float64Ptr(95),
		}},
		Explain: "test",
	}
}

func TestGormIntentStore_SaveGetLatest(t *testing.T) {
	ctx := context.Background()
	st := newTestGormStore(t)
	t0 := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	require.NoError(t, st.Save(ctx, sampleIntent("a", t0)))
	require.NoError(t, st.Save(ctx, sampleIntent("b", t0.Add(24*time.Hour))))

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.IntentID)
	require.Len(t, got.Targets, 1)
	assert.Equal(t, 5000.0, got.Targets[0].TargetNotional)
	require.NotNil(t, got.Targets[0].StopHint)
	assert.Equal(t, 95.0, *got.Targets[0].StopHint)
	assert.True(t, got.AsOf.Equal(t0))

	latest, err := st.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.IntentID)

	list, err := st.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].IntentID)
}

func TestGormIntentStore_NotFound(t *testing.T) {
	ctx := context.Background()
	st := newTestGormStore(t)

	_, err := st.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrIntentNotFound)

	_, err = st.Latest(ctx)
	assert.ErrorIs(t, err, models.ErrIntentNotFound)
}

func TestGormIntentStore_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	st := newTestGormStore(t)
	t0 := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	in := sampleIntent("a", t0)
	require.NoError(t, st.Save(ctx, in))
	in.Explain = "updated"
	require.NoError(t, st.Save(ctx, in))

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Explain)
}

func TestGormIntentStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestGormStore(t)
	t0 := time.Date(2024, 1, 2, 21, 0, 0, 0, time.UTC)

	run := models.StrategyRun{
		RunID:        "run-1",
		EvalTS:       t0,
		Strategies:   []string{"s1", "s2"},
		UniverseSize: 3,
		StartedAt:    t0,
	}
	require.NoError(t, st.CreateRun(ctx, run))

	sigs := []models.Signal{
		models.NewSignal("s1", "AAA", models.SideLong, 0.5, 0.5, 5).WithRunMetadata("sig-1", "cycle", "1.0.0", "abc"),
		models.NewSignal("s2", "BBB", models.SideShort, -0.5, 0.5, 5).WithRunMetadata("sig-2", "cycle", "1.0.0", "def"),
	}
	n, err := st.SaveSignals(ctx, "run-1", sigs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	run.SignalsWritten = n
	run.Errors = 1
	run.ElapsedMS = 12.5
	require.NoError(t, st.CompleteRun(ctx, run))

	got, err := st.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, got.Strategies)
	assert.Equal(t, 2, got.SignalsWritten)
	assert.Equal(t, 1, got.Errors)
	assert.False(t, got.CompletedAt.IsZero())

	count, err := st.CountSignals(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Error(t, st.CompleteRun(ctx, models.StrategyRun{RunID: "nope"}))
}
