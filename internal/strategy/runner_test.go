package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	"Conductor/internal/repository"
)

var now = time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)

type recordingRunStore struct {
	mu        sync.Mutex
	created   []models.StrategyRun
	completed []models.StrategyRun
	saved     map[string][]models.Signal
}

func (s *recordingRunStore) CreateRun(_ context.Context, run models.StrategyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, run)
	return nil
}

func (s *recordingRunStore) CompleteRun(_ context.Context, run models.StrategyRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, run)
	return nil
}

func (s *recordingRunStore) SaveSignals(_ context.Context, runID string, sigs []models.Signal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string][]models.Signal{}
	}
	s.saved[runID] = sigs
	return len(sigs), nil
}

func sig(id, sym string, side models.Side, strength, conf float64) models.Signal {
	return models.NewSignal(id, sym, side, strength, conf, 5)
}

func runInput(strats ...Strategy) RunInput {
	return RunInput{
		Strategies: strats,
		Universe:   []string{"AAA", "BBB"},
		Store:      repository.NewMemoryBarStore(),
		Now:        now,
		CycleID:    "cycle-1",
	}
}

func TestRunner_IsolatesFailures(t *testing.T) {
	good := &fakeStrategy{id: "good", signals: []models.Signal{
		sig("good", "AAA", models.SideLong, 0.4, 0.5),
		sig("good", "BBB", models.SideShort, -0.9, 0.5),
	}}
	failing := &fakeStrategy{id: "failing", err: errBoom}
	panicking := &fakeStrategy{id: "panicking", panic: true}
	mismatched := &fakeStrategy{id: "mismatched", signals: []models.Signal{sig("other", "AAA", models.SideLong, 1, 1)}}

	for _, workers := range []int{1, 4} {
		r := NewRunner(RunnerOptions{Workers: workers, Timeout: time.Second})
		res, err := r.Run(context.Background(), runInput(failing, good, panicking, mismatched))
		require.NoError(t, err)

		assert.Equal(t, 4, res.StrategiesRun)
		require.Len(t, res.Signals, 2)
		assert.Equal(t, "BBB", res.Signals[0].Symbol, "sorted by |strength| desc")
		for _, s := range res.Signals {
			assert.Equal(t, "cycle-1", s.CycleID)
			assert.Equal(t, "1.0.0", s.StrategyVersion)
			assert.Equal(t, ParamsHash(good), s.ParamsHash)
			assert.Len(t, s.SignalID, 32)
		}

		require.Len(t, res.Errors, 3)
		assert.Equal(t, "failing", res.Errors[0].StrategyID)
		assert.Equal(t, models.ErrorTypeExecution, res.Errors[0].ErrorType)
		assert.Equal(t, "panicking", res.Errors[1].StrategyID)
		assert.Equal(t, models.ErrorTypePanic, res.Errors[1].ErrorType)
		assert.Equal(t, "mismatched", res.Errors[2].StrategyID)
		assert.Equal(t, models.ErrorTypeStrategy, res.Errors[2].ErrorType)
		assert.Contains(t, res.Errors[2].Message, "does not match")
	}
}

func TestRunner_Timeout(t *testing.T) {
	slow := &fakeStrategy{id: "slow", sleep: 300 * time.Millisecond, signals: []models.Signal{sig("slow", "AAA", models.SideLong, 1, 1)}}
	fast := &fakeStrategy{id: "fast", signals: []models.Signal{sig("fast", "AAA", models.SideLong, 0.5, 1)}}

	for _, workers := range []int{1, 2} {
		r := NewRunner(RunnerOptions{Workers: workers, Timeout: 50 * time.Millisecond})
		start := time.Now()
		res, err := r.Run(context.Background(), runInput(slow, fast))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 250*time.Millisecond)

		require.Len(t, res.Errors, 1)
		assert.Equal(t, models.ErrorTypeTimeout, res.Errors[0].ErrorType)
		assert.Equal(t, "slow exceeded time budget of 50ms", res.Errors[0].Message)
		require.Len(t, res.Signals, 1)
		assert.Equal(t, "fast", res.Signals[0].StrategyID)
	}
}

func TestRunner_DeterministicAcrossWorkerCounts(t *testing.T) {
	mk := func() []Strategy {
		return []Strategy{
			&fakeStrategy{id: "a", signals: []models.Signal{sig("a", "AAA", models.SideLong, 0.5, 0.5), sig("a", "BBB", models.SideLong, 0.5, 0.5)}},
			&fakeStrategy{id: "b", signals: []models.Signal{sig("b", "AAA", models.SideShort, -0.5, 0.5)}},
			&fakeStrategy{id: "c", signals: []models.Signal{sig("c", "BBB", models.SideLong, 0.7, 0.2)}},
		}
	}
	key := func(res models.RunResult) []string {
		out := make([]string, len(res.Signals))
		for i, s := range res.Signals {
			out[i] = s.StrategyID + "/" + s.Symbol
		}
		return out
	}

	seq, err := NewRunner(RunnerOptions{Workers: 1}).Run(context.Background(), runInput(mk()...))
	require.NoError(t, err)
	par, err := NewRunner(RunnerOptions{Workers: 3}).Run(context.Background(), runInput(mk()...))
	require.NoError(t, err)
	assert.Equal(t, key(seq), key(par))
	assert.Equal(t, []string{"c/BBB", "a/AAA", "b/AAA", "a/BBB"}, key(seq))
}

func TestRunner_PersistsRun(t *testing.T) {
	store := &recordingRunStore{}
	r := NewRunner(RunnerOptions{Workers: 1, Persist: true, RunStore: store})
	good := &fakeStrategy{id: "good", signals: []models.Signal{sig("good", "AAA", models.SideLong, 0.4, 0.5)}}
	failing := &fakeStrategy{id: "failing", err: errBoom}

	res, err := r.Run(context.Background(), runInput(good, failing))
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	require.Len(t, store.created, 1)
	assert.Equal(t, []string{"good", "failing"}, store.created[0].Strategies)
	assert.Equal(t, 2, store.created[0].UniverseSize)
	assert.Len(t, store.saved[res.RunID], 1)
	require.Len(t, store.completed, 1)
	assert.Equal(t, 1, store.completed[0].SignalsWritten)
	assert.Equal(t, 1, store.completed[0].Errors)
}

func TestRunner_EmptyResultsAreNonNil(t *testing.T) {
	res, err := NewRunner(RunnerOptions{}).Run(context.Background(), runInput())
	require.NoError(t, err)
	assert.NotNil(t, res.Signals)
	assert.NotNil(t, res.Errors)
	assert.Equal(t, 0, res.StrategiesRun)
}
