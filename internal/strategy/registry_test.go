package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
)

type thresholdParams struct {
	Threshold float64 `mapstructure:"threshold"`
	Window    int     `mapstructure:"window"`
}

func thresholdFactory() Factory {
	return func(id string, decode Decoder) (Strategy, error) {
		p := thresholdParams{Threshold: 0.5, Window: 10}
		if err := decode(&p); err != nil {
			return nil, err
		}
		if p.Window <= 0 {
			return nil, errors.New("window must be > 0")
		}
		return &fakeStrategy{id: id, params: map[string]interface{}{"threshold": p.Threshold, "window": p.Window}}, nil
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeStrategy{id: "zeta"}))
	require.NoError(t, r.Register(&fakeStrategy{id: "alpha"}))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ID())

	s, err := r.Get("zeta")
	require.NoError(t, err)
	assert.Equal(t, "zeta", s.ID())

	_, err = r.Get("nope")
	assert.Error(t, err)
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeStrategy{id: "a"}))

	tests := []struct {
		name string
		s    Strategy
	}{
		{"nil", nil},
		{"duplicate", &fakeStrategy{id: "a", version: "2.0.0"}},
		{"bad version", &fakeStrategy{id: "b", version: "1.0"}},
		{"empty id", &fakeStrategy{id: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.s)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_BuildDecodesParams(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("threshold", thresholdFactory())

	err := r.Build([]Spec{
		{ID: "t1", Factory: "threshold", Params: map[string]interface{}{"threshold": "0.8", "window": 20}},
		{ID: "t2", Factory: "threshold"},
	})
	require.NoError(t, err)

	s, err := r.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, s.Params()["threshold"])
	assert.Equal(t, 20, s.Params()["window"])

	s, err = r.Get("t2")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Params()["window"])
}

func TestRegistry_BuildAggregatesErrors(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("threshold", thresholdFactory())

	err := r.Build([]Spec{
		{ID: "bad-factory", Factory: "nope"},
		{ID: "bad-param", Factory: "threshold", Params: map[string]interface{}{"window": 0}},
		{ID: "unknown-key", Factory: "threshold", Params: map[string]interface{}{"colour": "red"}},
		{ID: "good", Factory: "threshold"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "bad-factory")
	assert.Contains(t, err.Error(), "bad-param")
	assert.Contains(t, err.Error(), "unknown-key")
	assert.Equal(t, []string{"good"}, r.Names())
}
