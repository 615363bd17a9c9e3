package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/pkg/config"
	"Conductor/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
universe: [AAPL, MSFT]
store:
  path: ":memory:"
orchestrator:
  sizing_method: equal_weight
  strategy_categories:
    sma_20_50: trend
constraints:
  min_price: 5
strategies:
  - id: sma_20_50
    factory: sma_cross
    params:
      fast: 20
      slow: 50
  - id: donchian_20
    factory: donchian_breakout
    enabled: false
`))
	require.NoError(t, err)
	return cfg
}

func TestProvideOrchestratorConfig(t *testing.T) {
	oc := ProvideOrchestratorConfig(testConfig(t))

	assert.Equal(t, domrepo.TF1Day, oc.PrimaryTimeframe)
	assert.Equal(t, models.SizingEqualWeight, oc.SizingMethod)
	assert.Equal(t, 72*time.Hour, oc.MaxStaleness[domrepo.TF1Day])
	assert.Equal(t, "trend", oc.StrategyCategories["sma_20_50"])
}

func TestProvideCycleDefaults(t *testing.T) {
	d := ProvideCycleDefaults(testConfig(t))

	assert.Equal(t, []string{"AAPL", "MSFT"}, d.Universe)
	assert.Equal(t, 100000.0, d.Portfolio.Equity)
	require.NotNil(t, d.Constraints.MinPrice)
	assert.Equal(t, 5.0, *d.Constraints.MinPrice)
	assert.Equal(t, 20, d.StrategyConfig["sma_20_50"]["fast"])
	assert.True(t, d.Persist)
}

func TestProvideStrategyRegistrySkipsDisabled(t *testing.T) {
	reg, err := ProvideStrategyRegistry(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"sma_20_50"}, reg.Names())
}

func TestProvideStrategyRegistryUnknownFactory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Strategies = append(cfg.Strategies, config.StrategyConfig{ID: "x", Factory: "nope"})
	_, err := ProvideStrategyRegistry(cfg)
	assert.Error(t, err)
}

func TestOptionalInfrastructureIsNilWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false

	assert.IsType(t, metrics.Nop{}, ProvideMetrics(cfg, ProvidePrometheusRegistry()))
	assert.Nil(t, ProvideIntentPublisher(cfg, nil))
	assert.Nil(t, ProvideRegimeSource(cfg, nil))

	producer, cleanup, err := ProvideKafkaProducer(cfg, ProvidePrometheusRegistry(), nil)
	require.NoError(t, err)
	assert.Nil(t, producer)
	cleanup()

	consumer, err := ProvideKafkaConsumer(cfg, ProvidePrometheusRegistry(), nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)
}
