package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/strategy"
	applogger "Conductor/pkg/logger"
	"Conductor/pkg/metrics"
)

// Cycle outcomes recorded in metrics.
const (
	OutcomeTrade   = "trade"
	OutcomeNoTrade = "no_trade"
	OutcomeError   = "error"
)

// OrchestratorConfig tunes every cycle run by an Orchestrator.
type OrchestratorConfig struct {
	PrimaryTimeframe domrepo.Timeframe
	// MaxStaleness bounds, per timeframe, how far a symbol's latest bar may
	// trail the freshest one. Missing or zero disables the check.
	MaxStaleness map[domrepo.Timeframe]time.Duration
	// MaxStalePct is the stale+missing fraction above which no trade happens.
	MaxStalePct     float64
	Workers         int
	StrategyTimeout time.Duration
	SizingMethod    models.SizingMethod
	Normalize       bool

	CostBps            map[string]float64
	EdgeScales         map[string]float64
	StrategyWeights    map[string]float64
	StrategyCategories map[string]string
	RegimeWeights      map[string]map[string]float64
	VetoTags           []string
	MinSymbolAlpha     float64
	DefaultVol         float64
}

// DefaultOrchestratorConfig mirrors the configuration file defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		PrimaryTimeframe: domrepo.TF1Day,
		MaxStaleness:     map[domrepo.Timeframe]time.Duration{},
		MaxStalePct:      0.5,
		Workers:          1,
		StrategyTimeout:  30 * time.Second,
		SizingMethod:     models.SizingSignalWeighted,
		DefaultVol:       DefaultVol,
	}
}

// CycleInput is everything that varies between cycles.
type CycleInput struct {
	Strategies     []strategy.Strategy
	Universe       []string
	Portfolio      models.PortfolioState
	Limits         models.RiskLimits
	Constraints    models.Constraints
	StrategyConfig map[string]map[string]interface{}
	// AsOf overrides the resolved evaluation time and skips the freshness check.
	AsOf *time.Time
	// SizingMethod overrides OrchestratorConfig.SizingMethod when set.
	SizingMethod string
	// Regime forces a regime label; when empty the RegimeSource is asked.
	Regime  string
	Persist bool
}

// RegimeSource labels the market regime as of a timestamp.
type RegimeSource interface {
	Regime(ctx context.Context, asOf time.Time) (string, error)
}

// Orchestrator runs one decision cycle end to end.
type Orchestrator struct {
	store   domrepo.BarStore
	intents domrepo.IntentStore
	runs    domrepo.RunStore
	regime  RegimeSource
	metrics domrepo.Metrics
	cfg     OrchestratorConfig
	l       *applogger.Logger
	now     func() time.Time
	newID   func() string
}

// NewOrchestrator wires a cycle runner. intents, runs and regime may be nil;
// a nil metrics recorder discards measurements.
func NewOrchestrator(store domrepo.BarStore, intents domrepo.IntentStore, runs domrepo.RunStore, regime RegimeSource, m domrepo.Metrics, cfg OrchestratorConfig, l *applogger.Logger) *Orchestrator {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Orchestrator{
		store:   store,
		intents: intents,
		runs:    runs,
		regime:  regime,
		metrics: m,
		cfg:     cfg,
		l:       l,
		now:     time.Now,
		newID:   strategy.NewID,
	}
}

// WithClock replaces the wall clock used when no bar data exists.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Config returns the orchestrator settings.
func (o *Orchestrator) Config() OrchestratorConfig { return o.cfg }

func (o *Orchestrator) validate(in CycleInput) (models.SizingMethod, error) {
	method := o.cfg.SizingMethod
	if in.SizingMethod != "" {
		m, err := models.ParseSizingMethod(in.SizingMethod)
		if err != nil {
			return "", err
		}
		method = m
	}
	if method == "" {
		method = models.SizingSignalWeighted
	}
	if _, err := models.ParseSizingMethod(string(method)); err != nil {
		return "", err
	}
	if !domrepo.IsValidTimeframe(o.cfg.PrimaryTimeframe) {
		return "", fmt.Errorf("%w: unknown primary timeframe %q", models.ErrConfig, o.cfg.PrimaryTimeframe)
	}
	if o.cfg.MaxStalePct < 0 || o.cfg.MaxStalePct > 1 {
		return "", fmt.Errorf("%w: max_stale_pct must be in [0,1], got %v", models.ErrConfig, o.cfg.MaxStalePct)
	}
	if o.cfg.MinSymbolAlpha < 0 {
		return "", fmt.Errorf("%w: min_symbol_alpha must be >= 0", models.ErrConfig)
	}
	if err := in.Limits.Validate(); err != nil {
		return "", err
	}
	if err := in.Constraints.Validate(); err != nil {
		return "", err
	}
	for _, s := range in.Strategies {
		if s == nil {
			return "", fmt.Errorf("%w: nil strategy", models.ErrConfig)
		}
	}
	return method, nil
}

// Orchestrate executes one full decision cycle and returns the assembled
// intent. Configuration problems are reported before any strategy runs and
// produce no intent. A persistence failure returns the complete intent
// together with the error.
func (o *Orchestrator) Orchestrate(ctx context.Context, in CycleInput) (models.PortfolioIntent, error) {
	start := time.Now()
	method, err := o.validate(in)
	if err != nil {
		o.metrics.RecordCycle(OutcomeError, time.Since(start).Seconds())
		return models.PortfolioIntent{}, err
	}
	intentID := o.newID()
	tf := o.cfg.PrimaryTimeframe
	universe := append([]string(nil), in.Universe...)

	var (
		evalTS          time.Time
		staleExclusions []models.SymbolExclusion
	)
	if in.AsOf != nil {
		evalTS = in.AsOf.UTC()
	} else {
		ts, err := ResolveEvalTS(ctx, o.store, universe, tf, o.cfg.MaxStaleness[tf], o.now)
		if err != nil {
			o.metrics.RecordCycle(OutcomeError, time.Since(start).Seconds())
			return models.PortfolioIntent{}, fmt.Errorf("resolve eval ts: %w", err)
		}
		evalTS = ts.EvalTS
		o.l.Info("eval_ts_resolved",
			applogger.Time("eval_ts", evalTS),
			applogger.Int("fresh", len(ts.Fresh)),
			applogger.Int("stale", len(ts.Stale)),
			applogger.Int("missing", len(ts.Missing)),
			applogger.String("timeframe", string(tf)),
		)

		bad := len(ts.Stale) + len(ts.Missing)
		if len(universe) > 0 && float64(bad)/float64(len(universe)) > o.cfg.MaxStalePct {
			intent := o.noTrade(intentID, evalTS, in, method, ts, start)
			o.metrics.RecordCycle(OutcomeNoTrade, time.Since(start).Seconds())
			if in.Persist {
				if err := o.persist(ctx, intent); err != nil {
					return intent, err
				}
			}
			return intent, nil
		}

		for _, sym := range ts.Stale {
			staleExclusions = append(staleExclusions, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeDataTooStale,
				Detail: fmt.Sprintf("Latest bar too old for timeframe %s", tf),
			})
		}
		for _, sym := range ts.Missing {
			staleExclusions = append(staleExclusions, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeDataTooStale,
				Detail: fmt.Sprintf("No bars found for timeframe %s", tf),
			})
		}
		if len(staleExclusions) > 0 {
			drop := make(map[string]struct{}, len(staleExclusions))
			for _, e := range staleExclusions {
				drop[e.Symbol] = struct{}{}
			}
			kept := universe[:0:0]
			for _, s := range universe {
				if _, ok := drop[s]; !ok {
					kept = append(kept, s)
				}
			}
			universe = kept
		}
	}

	ol := o.l.With(
		applogger.String("intent_id", intentID),
		applogger.Time("as_of", evalTS),
		applogger.Int("strategy_count", len(in.Strategies)),
		applogger.Int("raw_universe", len(universe)),
	)
	ol.Info("orchestrate_start")

	// universe
	ur, err := NewUniverseFilter(o.store, ol).Filter(ctx, universe, in.Constraints, evalTS, tf)
	if err != nil {
		o.metrics.RecordCycle(OutcomeError, time.Since(start).Seconds())
		return models.PortfolioIntent{}, fmt.Errorf("filter universe: %w", err)
	}
	if len(staleExclusions) > 0 {
		ur.Excluded = append(staleExclusions, ur.Excluded...)
	}
	for reason, n := range countExclusions(ur.Excluded) {
		o.metrics.RecordExcluded(string(reason), n)
	}

	// strategies
	runner := strategy.NewRunner(strategy.RunnerOptions{
		Workers:  o.cfg.Workers,
		Timeout:  o.cfg.StrategyTimeout,
		Persist:  in.Persist,
		RunStore: o.runs,
		Metrics:  o.metrics,
		Logger:   ol,
	})
	run, err := runner.Run(ctx, strategy.RunInput{
		Strategies:  in.Strategies,
		Universe:    ur.Included,
		Store:       o.store,
		Now:         evalTS,
		CycleID:     intentID,
		Config:      in.StrategyConfig,
		Constraints: in.Constraints,
	})
	if err != nil {
		o.metrics.RecordCycle(OutcomeError, time.Since(start).Seconds())
		return models.PortfolioIntent{}, fmt.Errorf("run strategies: %w", err)
	}

	// normalize + deconflict
	signals := run.Signals
	if o.cfg.Normalize {
		signals = NormalizeSignals(signals, tf, NormalizeOptions{
			StrategyWeights: o.cfg.StrategyWeights,
			EdgeScales:      o.cfg.EdgeScales,
			CostBps:         o.cfg.CostBps,
		}, ol)
	}
	regime := o.resolveRegime(ctx, in.Regime, evalTS, ol)
	merged, dropped := Deconflict(signals, ur.Included, DeconflictOptions{
		StrategyWeights:    o.cfg.StrategyWeights,
		Regime:             regime,
		RegimeWeights:      o.cfg.RegimeWeights,
		StrategyCategories: o.cfg.StrategyCategories,
		VetoTags:           o.cfg.VetoTags,
		MinSymbolAlpha:     o.cfg.MinSymbolAlpha,
	}, ol)
	for reason, n := range countDrops(dropped) {
		o.metrics.RecordDropped(string(reason), n)
	}

	// size
	var vols map[string]float64
	if method == models.SizingVolTargeted {
		syms := make([]string, 0, len(merged))
		for _, m := range merged {
			if m.Side != models.SideFlat {
				syms = append(syms, m.Symbol)
			}
		}
		vols, err = NewBarVolatilityEstimator(o.store, tf, o.cfg.DefaultVol, ol).Estimate(ctx, syms, evalTS)
		if err != nil {
			o.metrics.RecordCycle(OutcomeError, time.Since(start).Seconds())
			return models.PortfolioIntent{}, fmt.Errorf("estimate volatility: %w", err)
		}
	}
	targets := ComputeTargets(merged, in.Portfolio, SizingOptions{
		Method:     method,
		Limits:     in.Limits,
		Vols:       vols,
		DefaultVol: o.cfg.DefaultVol,
	}, ol)
	o.metrics.RecordTargets(len(targets))

	// assemble
	elapsed := roundMS(time.Since(start))
	explain := strings.Join([]string{
		fmt.Sprintf("Cycle at %s.", evalTS.Format(time.RFC3339)),
		fmt.Sprintf("Universe: %d/%d symbols after filtering.", len(ur.Included), len(universe)),
		fmt.Sprintf("Strategies: %d run, %d errors.", run.StrategiesRun, len(run.Errors)),
		fmt.Sprintf("Signals: %d raw -> %d merged, %d dropped.", len(run.Signals), len(merged), len(dropped)),
		fmt.Sprintf("Targets: %d positions, sizing=%s.", len(targets), method),
	}, " ")

	intent := models.PortfolioIntent{
		IntentID:       intentID,
		AsOf:           evalTS,
		PortfolioState: in.Portfolio,
		Universe:       ur,
		SignalsUsed:    merged,
		SignalsDropped: dropped,
		Targets:        targets,
		SizingMethod:   method,
		StrategyRunID:  run.RunID,
		StrategyErrors: run.Errors,
		Regime:         regime,
		TradeAllowed:   true,
		ElapsedMS:      elapsed,
		Explain:        explain,
	}
	o.metrics.RecordCycle(OutcomeTrade, time.Since(start).Seconds())

	if in.Persist {
		if err := o.persist(ctx, intent); err != nil {
			return intent, err
		}
	}
	ol.Info("orchestrate_complete",
		applogger.Int("targets", len(targets)),
		applogger.Float64("elapsed_ms", elapsed),
	)
	return intent, nil
}

func (o *Orchestrator) noTrade(intentID string, evalTS time.Time, in CycleInput, method models.SizingMethod, ts TimestampResult, start time.Time) models.PortfolioIntent {
	bad := len(ts.Stale) + len(ts.Missing)
	n := len(in.Universe)
	explain := fmt.Sprintf(
		"NO_TRADE: %d/%d symbols stale/missing (%.0f%% > %.0f%% threshold). Stale: %v, Missing: %v.",
		bad, n, float64(bad)/float64(n)*100, o.cfg.MaxStalePct*100, ts.Stale, ts.Missing,
	)
	o.l.Warn("orchestrate_no_trade",
		applogger.String("intent_id", intentID),
		applogger.Int("stale", len(ts.Stale)),
		applogger.Int("missing", len(ts.Missing)),
		applogger.Float64("threshold", o.cfg.MaxStalePct),
	)
	return models.PortfolioIntent{
		IntentID:       intentID,
		AsOf:           evalTS,
		PortfolioState: in.Portfolio,
		Universe:       models.UniverseResult{Included: []string{}, Excluded: []models.SymbolExclusion{}},
		SignalsUsed:    []models.MergedSignal{},
		SignalsDropped: []models.DroppedSignal{},
		Targets:        []models.TargetPosition{},
		SizingMethod:   method,
		TradeAllowed:   false,
		ElapsedMS:      roundMS(time.Since(start)),
		Explain:        explain,
	}
}

func (o *Orchestrator) resolveRegime(ctx context.Context, forced string, asOf time.Time, l *applogger.Logger) string {
	if forced != "" || o.regime == nil {
		return forced
	}
	r, err := o.regime.Regime(ctx, asOf)
	if err != nil {
		l.Warn("regime_unavailable", applogger.Error(err))
		o.metrics.RecordError("regime")
		return ""
	}
	return r
}

func (o *Orchestrator) persist(ctx context.Context, intent models.PortfolioIntent) error {
	if o.intents == nil {
		return fmt.Errorf("%w %s: no intent store configured", ErrPersistIntent, intent.IntentID)
	}
	if err := o.intents.Save(ctx, intent); err != nil {
		o.metrics.RecordError("persist_intent")
		return fmt.Errorf("%w %s: %w", ErrPersistIntent, intent.IntentID, err)
	}
	return nil
}

func roundMS(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}

func countExclusions(ex []models.SymbolExclusion) map[models.ExclusionReason]int {
	out := map[models.ExclusionReason]int{}
	for _, e := range ex {
		out[e.Reason]++
	}
	return out
}

func countDrops(ds []models.DroppedSignal) map[models.DropReason]int {
	out := map[models.DropReason]int{}
	for _, d := range ds {
		out[d.Reason]++
	}
	return out
}
