package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

// fakeStrategy returns fixed signals, errors, panics or sleeps on demand.
type fakeStrategy struct {
	id      string
	version string
	params  map[string]interface{}
	signals []models.Signal
	err     error
	panic   bool
	sleep   time.Duration
}

func (f *fakeStrategy) ID() string { return f.id }
func (f *fakeStrategy) Version() string {
	if f.version == "" {
		return "1.0.0"
	}
	return f.version
}
func (f *fakeStrategy) Timeframes() []domrepo.Timeframe { return []domrepo.Timeframe{domrepo.TF1Day} }
func (f *fakeStrategy) LookbackBars() int { return 5 }
func (f *fakeStrategy) Params() map[string]interface{} { return f.params }

func (f *fakeStrategy) Run(ctx context.Context, _ *Context) ([]models.Signal, error) {
	if f.sleep > 0 {
		time.Sleep(f.sleep)
	}
	if f.panic {
		panic("boom")
	}
	return f.signals, f.err
}

func TestParamsHash(t *testing.T) {
	a := &fakeStrategy{id: "s", params: map[string]interface{}{"a": 1, "b": "x"}}
	b := &fakeStrategy{id: "s", params: map[string]interface{}{"b": "x", "a": 1}}
	c := &fakeStrategy{id: "s", params: map[string]interface{}{"a": 2, "b": "x"}}
	d := &fakeStrategy{id: "s", version: "1.0.1", params: map[string]interface{}{"a": 1, "b": "x"}}

	h := ParamsHash(a)
	assert.Len(t, h, 16)
	assert.Equal(t, h, ParamsHash(b))
	assert.NotEqual(t, h, ParamsHash(c))
	assert.NotEqual(t, h, ParamsHash(d))
}

func TestValidVersion(t *testing.T) {
	assert.True(t, ValidVersion("1.2.3"))
	assert.True(t, ValidVersion("10.0.12"))
	assert.False(t, ValidVersion("1.2"))
	assert.False(t, ValidVersion("v1.2.3"))
	assert.False(t, ValidVersion("1.2.3-beta"))
}

func TestValidateSignals(t *testing.T) {
	ok := models.NewSignal("s", "AAA", models.SideLong, 0.5, 0.5, 5)
	nan := ok
	nan.Strength = math.NaN()

	tests := []struct {
		name    string
		sig     models.Signal
		wantErr string
	}{
		{"valid", ok, ""},
		{"nan clamped", nan, ""},
		{"wrong id", models.NewSignal("other", "AAA", models.SideLong, 0.5, 0.5, 5), `Signal strategy_id "other" does not match "s"`},
		{"bad side", models.NewSignal("s", "AAA", models.Side("up"), 0.5, 0.5, 5), "invalid side"},
		{"empty symbol", models.NewSignal("s", "", models.SideLong, 0.5, 0.5, 5), "empty symbol"},
		{"zero horizon", models.NewSignal("s", "AAA", models.SideLong, 0.5, 0.5, 0), "horizon_bars=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := validateSignals("s", []models.Signal{tt.sig})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.False(t, math.IsNaN(out[0].Strength))
		})
	}
}

func TestContextConfigAccessors(t *testing.T) {
	sc := &Context{
		Universe: []string{"AAA"},
		Config:   map[string]interface{}{"n": "7", "x": 1.5, "b": "true", "bad": []int{1}},
	}
	assert.Equal(t, 7, sc.Int("n", 1))
	assert.Equal(t, 1, sc.Int("missing", 1))
	assert.Equal(t, 1.5, sc.Float("x", 0))
	assert.Equal(t, 2.0, sc.Float("bad", 2))
	assert.True(t, sc.Bool("b", false))
	assert.True(t, sc.InUniverse("AAA"))
	assert.False(t, sc.InUniverse("BBB"))
}

var errBoom = errors.New("boom")
