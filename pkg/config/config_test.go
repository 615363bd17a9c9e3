package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
)

const minimal = `
universe: [AAPL, MSFT]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "1Day", c.Orchestrator.PrimaryTimeframe)
	assert.Equal(t, 0.5, c.Orchestrator.MaxStalePct)
	assert.Equal(t, "signal_weighted", c.Orchestrator.SizingMethod)
	assert.Equal(t, 30*time.Second, c.Orchestrator.StrategyTimeout)
	assert.True(t, c.Orchestrator.Persist)
	assert.Equal(t, 72*time.Hour, c.Orchestrator.MaxStaleness["1Day"])
	assert.Equal(t, []string{"do_not_trade"}, c.Orchestrator.VetoTags)
	assert.Equal(t, 0.05, c.Risk.MaxPositionPct)
	assert.Equal(t, 100000.0, c.Portfolio.Equity)
	assert.Nil(t, c.Constraints.MaxNames)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
universe: [AAPL]
orchestrator:
  persist: false
  sizing_method: vol_targeted
  max_staleness:
    1Hour: 90m
constraints:
  max_names: 0
strategies:
  - id: sma_20_50
    factory: sma_cross
    params:
      fast: 20
  - id: rsi_14
    factory: rsi_reversion
    enabled: false
`))
	require.NoError(t, err)

	assert.False(t, c.Orchestrator.Persist)
	assert.Equal(t, "vol_targeted", c.Orchestrator.SizingMethod)
	assert.Equal(t, map[string]time.Duration{"1Hour": 90 * time.Minute}, c.Orchestrator.MaxStaleness)
	require.NotNil(t, c.Constraints.MaxNames)
	assert.Equal(t, 0, *c.Constraints.MaxNames)

	require.Len(t, c.Strategies, 2)
	assert.True(t, c.Strategies[0].IsEnabled())
	assert.Equal(t, 20, c.Strategies[0].Params["fast"])
	assert.False(t, c.Strategies[1].IsEnabled())
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty universe", `universe: []`},
		{"unknown sizing method", "universe: [A]\norchestrator:\n  sizing_method: kelly"},
		{"unknown primary timeframe", "universe: [A]\norchestrator:\n  primary_timeframe: 2Day"},
		{"unknown staleness timeframe", "universe: [A]\norchestrator:\n  max_staleness:\n    3Min: 1m"},
		{"stale pct above one", "universe: [A]\norchestrator:\n  max_stale_pct: 1.5"},
		{"kafka without brokers", "universe: [A]\nkafka:\n  enabled: true\n  brokers: []"},
		{"analytics without url", "universe: [A]\nanalytics:\n  enabled: true"},
		{"duplicate strategy", "universe: [A]\nstrategies:\n  - {id: s, factory: sma_cross}\n  - {id: s, factory: donchian_breakout}"},
		{"strategy without factory", "universe: [A]\nstrategies:\n  - {id: s}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"CONDUCTOR_UNIVERSE":      "SPY, QQQ ,,IWM",
		"CONDUCTOR_WORKERS":       "8",
		"CONDUCTOR_MAX_STALE_PCT": "0.25",
		"CONDUCTOR_EQUITY":        "250000",
		"CONDUCTOR_PERSIST":       "false",
		"CONDUCTOR_SIZING_METHOD": "equal_weight",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, []string{"SPY", "QQQ", "IWM"}, c.Universe)
	assert.Equal(t, 8, c.Orchestrator.Workers)
	assert.Equal(t, 0.25, c.Orchestrator.MaxStalePct)
	assert.Equal(t, 250000.0, c.Portfolio.Equity)
	assert.False(t, c.Orchestrator.Persist)
	assert.Equal(t, "equal_weight", c.Orchestrator.SizingMethod)

	err = c.applyEnv(func(k string) string {
		if k == "CONDUCTOR_WORKERS" {
			return "many"
		}
		return ""
	})
	assert.ErrorContains(t, err, "CONDUCTOR_WORKERS")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o600))
	t.Setenv("CONDUCTOR_STORE_PATH", "/tmp/intents.db")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/intents.db", c.Store.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
