package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

func TestNormalizeSignals(t *testing.T) {
	in := []models.Signal{
		long("trend", "AAA", 0.8, 0.5),
		short("trend", "BBB", 0.8, 0.5),
		long("meanrev", "CCC", 0.01, 0.05),
	}
	opts := NormalizeOptions{
		StrategyWeights: map[string]float64{"trend": 2},
		EdgeScales:      map[string]float64{"meanrev": 1},
		CostBps:         map[string]float64{"1Day": 10},
	}

	out := NormalizeSignals(in, domrepo.TF1Day, opts, nil)
	require.Len(t, out, 3)

	require.NotNil(t, out[0].AlphaNet)
	assert.InDelta(t, 0.799, *out[0].AlphaNet, 1e-12)
	require.NotNil(t, out[1].AlphaNet)
	assert.InDelta(t, -0.799, *out[1].AlphaNet, 1e-12)
	require.NotNil(t, out[2].AlphaNet)
	assert.Equal(t, 0.0, *out[2].AlphaNet, "cost eats the whole edge")

	for _, s := range in {
		assert.Nil(t, s.AlphaNet, "inputs are not modified")
	}
}

func TestNormalizeSignals_UnknownTimeframeCostsNothing(t *testing.T) {
	out := NormalizeSignals([]models.Signal{long("x", "AAA", 0.5, 0.5)}, domrepo.TF1Hour,
		NormalizeOptions{CostBps: map[string]float64{"1Day": 50}}, nil)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.25, *out[0].AlphaNet, 1e-12)
}
