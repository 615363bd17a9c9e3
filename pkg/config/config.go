package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"Conductor/internal/domain/models"
	"Conductor/internal/domain/repository"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
		Compress   bool   `yaml:"compress"`
		Collector  struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"conductor.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		IntentsTopic string   `yaml:"intents_topic" default:"conductor.intents"`
		TriggerTopic string   `yaml:"trigger_topic" default:"conductor.bars.closed"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"conductor"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"conductor"`
		Table            string        `yaml:"table" default:"bars"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host" default:"localhost"`
		Port     int           `yaml:"port" default:"6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"conductor"`
		TTL      time.Duration `yaml:"ttl" default:"10m"`
	} `yaml:"redis"`
	Store struct {
		Path string `yaml:"path" default:"data/conductor.db" validate:"required"`
	} `yaml:"store"`
	Analytics struct {
		Enabled          bool          `yaml:"enabled"`
		PythonServiceURL string        `yaml:"python_service_url"`
		Timeout          time.Duration `yaml:"timeout" default:"5s"`
		RegimeSymbol     string        `yaml:"regime_symbol" default:"SPY"`
		RegimeLookback   int           `yaml:"regime_lookback" default:"120" validate:"gte=2"`
	} `yaml:"analytics"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Risk         struct {
		MaxPositionPct          float64 `yaml:"max_position_pct" default:"0.05" validate:"gte=0,lte=1"`
		MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct" default:"0.9" validate:"gte=0"`
		MaxNames                int     `yaml:"max_names" validate:"gte=0"`
		LongOnly                bool    `yaml:"long_only"`
	} `yaml:"risk"`
	Constraints struct {
		MaxNames       *int     `yaml:"max_names" validate:"omitempty,gte=0"`
		MinAvgVolume   *float64 `yaml:"min_avg_volume" validate:"omitempty,gte=0"`
		MinPrice       *float64 `yaml:"min_price" validate:"omitempty,gte=0"`
		ExcludeSymbols []string `yaml:"exclude_symbols"`
	} `yaml:"constraints"`
	Portfolio struct {
		Equity      float64 `yaml:"equity" default:"100000"`
		Cash        float64 `yaml:"cash" default:"100000"`
		BuyingPower float64 `yaml:"buying_power" default:"100000"`
	} `yaml:"portfolio"`
	Universe   []string         `yaml:"universe" validate:"min=1,dive,required"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"dive"`
	Scheduler  struct {
		Enabled  bool          `yaml:"enabled" default:"true"`
		Interval time.Duration `yaml:"interval" default:"1m" validate:"gt=0"`
	} `yaml:"scheduler"`
}

// OrchestratorConfig tunes one decision cycle.
type OrchestratorConfig struct {
	PrimaryTimeframe   string                        `yaml:"primary_timeframe" default:"1Day"`
	MaxStaleness       map[string]time.Duration      `yaml:"max_staleness"`
	MaxStalePct        float64                       `yaml:"max_stale_pct" default:"0.5" validate:"gte=0,lte=1"`
	Workers            int                           `yaml:"workers" default:"4" validate:"gte=0"`
	StrategyTimeout    time.Duration                 `yaml:"strategy_timeout" default:"30s" validate:"gt=0"`
	SizingMethod       string                        `yaml:"sizing_method" default:"signal_weighted" validate:"oneof=equal_weight signal_weighted vol_targeted"`
	Normalize          bool                          `yaml:"normalize"`
	CostBps            map[string]float64            `yaml:"cost_bps"`
	EdgeScales         map[string]float64            `yaml:"edge_scales"`
	StrategyWeights    map[string]float64            `yaml:"strategy_weights"`
	StrategyCategories map[string]string             `yaml:"strategy_categories"`
	RegimeWeights      map[string]map[string]float64 `yaml:"regime_weights"`
	VetoTags           []string                      `yaml:"veto_tags"`
	MinSymbolAlpha     float64                       `yaml:"min_symbol_alpha" validate:"gte=0"`
	DefaultVol         float64                       `yaml:"default_vol" default:"0.3" validate:"gt=0"`
	Persist            bool                          `yaml:"persist" default:"true"`
}

// StrategyConfig declares one strategy instance built from a registered factory.
type StrategyConfig struct {
	ID      string                 `yaml:"id" validate:"required"`
	Factory string                 `yaml:"factory" validate:"required"`
	Enabled *bool                  `yaml:"enabled"`
	Params  map[string]interface{} `yaml:"params"`
}

// IsEnabled defaults to true when unset.
func (s StrategyConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	// defaults first so explicit zero values in YAML (false, 0) survive
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyMapDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("CONDUCTOR_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("CONDUCTOR_UNIVERSE"); v != "" {
		c.Universe = splitList(v)
	}
	if v := getenv("CONDUCTOR_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("CONDUCTOR_SIZING_METHOD"); v != "" {
		c.Orchestrator.SizingMethod = v
	}
	if v := getenv("CONDUCTOR_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("CONDUCTOR_WORKERS"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("%w: CONDUCTOR_WORKERS: %w", models.ErrConfig, err)
		}
		c.Orchestrator.Workers = n
	}
	if v := getenv("CONDUCTOR_MAX_STALE_PCT"); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("%w: CONDUCTOR_MAX_STALE_PCT: %w", models.ErrConfig, err)
		}
		c.Orchestrator.MaxStalePct = f
	}
	if v := getenv("CONDUCTOR_EQUITY"); v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("%w: CONDUCTOR_EQUITY: %w", models.ErrConfig, err)
		}
		c.Portfolio.Equity = f
	}
	if v := getenv("CONDUCTOR_PERSIST"); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("%w: CONDUCTOR_PERSIST: %w", models.ErrConfig, err)
		}
		c.Orchestrator.Persist = b
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) applyMapDefaults() {
	if c.Orchestrator.MaxStaleness == nil {
		c.Orchestrator.MaxStaleness = map[string]time.Duration{
			string(repository.TF1Min):  5 * time.Minute,
			string(repository.TF5Min):  15 * time.Minute,
			string(repository.TF15Min): 45 * time.Minute,
			string(repository.TF1Hour): 2 * time.Hour,
			string(repository.TF1Day):  72 * time.Hour,
		}
	}
	if len(c.Orchestrator.VetoTags) == 0 {
		c.Orchestrator.VetoTags = []string{"do_not_trade"}
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConfig, err)
	}
	if !repository.IsValidTimeframe(repository.Timeframe(c.Orchestrator.PrimaryTimeframe)) {
		return fmt.Errorf("%w: orchestrator.primary_timeframe %q is not supported", models.ErrConfig, c.Orchestrator.PrimaryTimeframe)
	}
	for tf, d := range c.Orchestrator.MaxStaleness {
		if !repository.IsValidTimeframe(repository.Timeframe(tf)) {
			return fmt.Errorf("%w: orchestrator.max_staleness: unknown timeframe %q", models.ErrConfig, tf)
		}
		if d < 0 {
			return fmt.Errorf("%w: orchestrator.max_staleness[%s] must be >= 0", models.ErrConfig, tf)
		}
	}
	for tf := range c.Orchestrator.CostBps {
		if !repository.IsValidTimeframe(repository.Timeframe(tf)) {
			return fmt.Errorf("%w: orchestrator.cost_bps: unknown timeframe %q", models.ErrConfig, tf)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers cannot be empty when kafka is enabled", models.ErrConfig)
	}
	if c.Analytics.Enabled && c.Analytics.PythonServiceURL == "" {
		return fmt.Errorf("%w: analytics.python_service_url is required when analytics is enabled", models.ErrConfig)
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: strategies: duplicate id %q", models.ErrConfig, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
