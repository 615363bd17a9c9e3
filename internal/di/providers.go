package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/handler/api"
	"Conductor/internal/repository"
	"Conductor/internal/services/analytics"
	"Conductor/internal/strategy"
	"Conductor/internal/strategy/builtin"
	"Conductor/internal/usecase"
	"Conductor/pkg/cache"
	pkgch "Conductor/pkg/clickhouse"
	"Conductor/pkg/config"
	xhttp "Conductor/pkg/http"
	"Conductor/pkg/http/middleware"
	pkgkafka "Conductor/pkg/kafka"
	applogger "Conductor/pkg/logger"
	"Conductor/pkg/metrics"
	"Conductor/pkg/server"
)

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// ProvidePrometheusRegistry creates the registry every metric is registered on
// and /metrics serves.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates the cycle metrics recorder.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

// ProvideBarStore reads bars from ClickHouse when enabled. Without it the
// store is an empty in-memory one and every cycle ends as NO_TRADE.
func ProvideBarStore(cfg *config.Config, l *applogger.Logger) (domrepo.BarStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		l.Warn("clickhouse disabled, using in-memory bar store")
		return repository.NewMemoryBarStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	store := repository.NewCHBarStore(client, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table, l)
	if err := store.InitSchema(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, cleanup, nil
}

// ProvideGormStore opens the sqlite database holding intents and strategy runs.
func ProvideGormStore(cfg *config.Config, l *applogger.Logger) (*repository.GormIntentStore, func(), error) {
	gs, err := repository.NewGormIntentStore(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("intent store: %w", err)
	}
	return gs, func() {
		if err := gs.Close(); err != nil {
			l.Warn("intent store close error", applogger.Error(err))
		}
	}, nil
}

// ProvideIntentStore adds a memory cache in front of the sqlite store, backed
// by Redis when enabled.
func ProvideIntentStore(cfg *config.Config, gs *repository.GormIntentStore, l *applogger.Logger) (domrepo.IntentStore, func(), error) {
	var l2 cache.Service
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPool(10, 2, 3*time.Second),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		l2 = rc
	}
	lc := cache.NewLayeredCache(l2, cache.WithLayeredMemorySize(256), cache.WithLayeredMemoryTTL(time.Minute))
	cleanup := func() {
		if err := lc.Close(); err != nil {
			l.Warn("intent cache close error", applogger.Error(err))
		}
	}
	return repository.NewCachedIntentStore(gs, lc, cfg.Redis.TTL, l), cleanup, nil
}

func ProvideRunStore(gs *repository.GormIntentStore) domrepo.RunStore {
	return gs
}

// ProvideKafkaProducer returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

// ProvideIntentPublisher is nil without a producer.
func ProvideIntentPublisher(cfg *config.Config, producer *pkgkafka.Producer) domrepo.IntentPublisher {
	if producer == nil {
		return nil
	}
	return repository.NewKafkaIntentPublisher(producer, cfg.Kafka.IntentsTopic)
}

// ProvideKafkaConsumer returns nil unless the trigger consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRegimeSource asks the analytics service for the regime of the
// configured benchmark. Nil when analytics is disabled.
func ProvideRegimeSource(cfg *config.Config, store domrepo.BarStore) usecase.RegimeSource {
	if !cfg.Analytics.Enabled {
		return nil
	}
	detector := analytics.NewHTTPRegimeDetector(cfg.Analytics.PythonServiceURL, cfg.Analytics.Timeout)
	return usecase.NewBarRegimeSource(detector, store, cfg.Analytics.RegimeSymbol, cfg.Analytics.RegimeLookback,
		domrepo.Timeframe(cfg.Orchestrator.PrimaryTimeframe))
}

// ProvideStrategyRegistry builds every enabled strategy from its factory.
func ProvideStrategyRegistry(cfg *config.Config) (*strategy.Registry, error) {
	reg := strategy.NewRegistry()
	builtin.RegisterFactories(reg)

	specs := make([]strategy.Spec, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		if !s.IsEnabled() {
			continue
		}
		specs = append(specs, strategy.Spec{ID: s.ID, Factory: s.Factory, Params: s.Params})
	}
	if err := reg.Build(specs); err != nil {
		return nil, err
	}
	return reg, nil
}

// ProvideOrchestratorConfig converts the string-keyed file config.
func ProvideOrchestratorConfig(cfg *config.Config) usecase.OrchestratorConfig {
	oc := cfg.Orchestrator
	staleness := make(map[domrepo.Timeframe]time.Duration, len(oc.MaxStaleness))
	for tf, d := range oc.MaxStaleness {
		staleness[domrepo.Timeframe(tf)] = d
	}
	return usecase.OrchestratorConfig{
		PrimaryTimeframe:   domrepo.Timeframe(oc.PrimaryTimeframe),
		MaxStaleness:       staleness,
		MaxStalePct:        oc.MaxStalePct,
		Workers:            oc.Workers,
		StrategyTimeout:    oc.StrategyTimeout,
		SizingMethod:       models.SizingMethod(oc.SizingMethod),
		Normalize:          oc.Normalize,
		CostBps:            oc.CostBps,
		EdgeScales:         oc.EdgeScales,
		StrategyWeights:    oc.StrategyWeights,
		StrategyCategories: oc.StrategyCategories,
		RegimeWeights:      oc.RegimeWeights,
		VetoTags:           oc.VetoTags,
		MinSymbolAlpha:     oc.MinSymbolAlpha,
		DefaultVol:         oc.DefaultVol,
	}
}

func ProvideOrchestrator(
	store domrepo.BarStore,
	intents domrepo.IntentStore,
	runs domrepo.RunStore,
	regime usecase.RegimeSource,
	m domrepo.Metrics,
	oc usecase.OrchestratorConfig,
	l *applogger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(store, intents, runs, regime, m, oc, l)
}

// ProvideCycleDefaults collects the per-cycle inputs fixed by configuration.
func ProvideCycleDefaults(cfg *config.Config) usecase.CycleDefaults {
	strategyCfg := make(map[string]map[string]interface{}, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		strategyCfg[s.ID] = s.Params
	}
	return usecase.CycleDefaults{
		Universe: cfg.Universe,
		Portfolio: models.PortfolioState{
			Equity:      cfg.Portfolio.Equity,
			Cash:        cfg.Portfolio.Cash,
			BuyingPower: cfg.Portfolio.BuyingPower,
		},
		Limits: models.RiskLimits{
			MaxPositionPct:          cfg.Risk.MaxPositionPct,
			MaxPortfolioExposurePct: cfg.Risk.MaxPortfolioExposurePct,
			MaxNames:                cfg.Risk.MaxNames,
			LongOnly:                cfg.Risk.LongOnly,
		},
		Constraints: models.Constraints{
			MaxNames:       cfg.Constraints.MaxNames,
			MinAvgVolume:   cfg.Constraints.MinAvgVolume,
			MinPrice:       cfg.Constraints.MinPrice,
			ExcludeSymbols: cfg.Constraints.ExcludeSymbols,
		},
		StrategyConfig: strategyCfg,
		Persist:        cfg.Orchestrator.Persist,
	}
}

func ProvideCycleService(
	orch *usecase.Orchestrator,
	reg *strategy.Registry,
	defaults usecase.CycleDefaults,
	intents domrepo.IntentStore,
	pub domrepo.IntentPublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.CycleService {
	return usecase.NewCycleService(orch, reg, defaults, intents, pub, m, l)
}

// ProvideCycleHandler runs a cycle for each bar-close event on the trigger topic.
func ProvideCycleHandler(cfg *config.Config, svc *usecase.CycleService, m domrepo.Metrics, l *applogger.Logger) *usecase.KafkaCycleHandler {
	return usecase.NewKafkaCycleHandler(cfg.Kafka.TriggerTopic, domrepo.Timeframe(cfg.Orchestrator.PrimaryTimeframe), svc, m, l)
}

// ProvideHTTPServer exposes intents, on-demand cycles, health and metrics.
func ProvideHTTPServer(cfg *config.Config, svc *usecase.CycleService, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	limiter := middleware.NewRateLimiter(5, 0.5)
	handlers := []xhttp.Handler{api.NewIntentsHandler(l, svc, limiter)}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(reg, reg),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the application and attaches the Kafka log collector
// when configured.
func ProvideApp(
	cfg *config.Config,
	svc *usecase.CycleService,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	handler *usecase.KafkaCycleHandler,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
) *server.App {
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.Threshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, svc, httpServer, consumer, handler, l)
}
