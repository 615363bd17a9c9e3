package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	domsvc "Conductor/internal/domain/service"
	"Conductor/internal/services/features"
	"Conductor/internal/strategy"
	applogger "Conductor/pkg/logger"
	"Conductor/pkg/metrics"
)

// ErrNoIntentStore is returned by intent lookups when persistence is disabled.
var ErrNoIntentStore = errors.New("intent store not configured")

// ErrPersistIntent wraps failures to save a finished intent. The intent
// returned alongside it is complete but not durable, and is not published.
var ErrPersistIntent = errors.New("persist intent")

// CycleDefaults are the configured inputs reused by every cycle.
type CycleDefaults struct {
	Universe       []string
	Portfolio      models.PortfolioState
	Limits         models.RiskLimits
	Constraints    models.Constraints
	StrategyConfig map[string]map[string]interface{}
	Persist        bool
}

// CycleRequest carries per-call overrides. Zero values keep the defaults.
type CycleRequest struct {
	AsOf         *time.Time
	SizingMethod string
	Persist      *bool
}

// CycleService runs decision cycles on demand, on a schedule or per trigger
// event, and serves stored intents. Cycles never overlap.
type CycleService struct {
	orch      *Orchestrator
	registry  *strategy.Registry
	defaults  CycleDefaults
	intents   domrepo.IntentStore
	publisher domrepo.IntentPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger

	mu sync.Mutex
}

func NewCycleService(orch *Orchestrator, registry *strategy.Registry, defaults CycleDefaults, intents domrepo.IntentStore, publisher domrepo.IntentPublisher, m domrepo.Metrics, l *applogger.Logger) *CycleService {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CycleService{
		orch:      orch,
		registry:  registry,
		defaults:  defaults,
		intents:   intents,
		publisher: publisher,
		metrics:   m,
		l:         l,
	}
}

// RunCycle executes one cycle with the configured strategies and publishes
// the intent once it is persisted.
func (s *CycleService) RunCycle(ctx context.Context, req CycleRequest) (models.PortfolioIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persist := s.defaults.Persist
	if req.Persist != nil {
		persist = *req.Persist
	}
	portfolio := s.defaults.Portfolio
	if portfolio.AsOf.IsZero() {
		portfolio.AsOf = time.Now().UTC()
	}

	intent, err := s.orch.Orchestrate(ctx, CycleInput{
		Strategies:     s.registry.All(),
		Universe:       s.defaults.Universe,
		Portfolio:      portfolio,
		Limits:         s.defaults.Limits,
		Constraints:    s.defaults.Constraints,
		StrategyConfig: s.defaults.StrategyConfig,
		AsOf:           req.AsOf,
		SizingMethod:   req.SizingMethod,
		Persist:        persist,
	})
	if err != nil {
		s.l.Error("cycle failed", applogger.Error(err))
		return intent, err
	}

	if persist && s.publisher != nil {
		if err := s.publisher.PublishIntent(ctx, intent); err != nil {
			s.metrics.RecordError("publish_intent")
			s.l.Error("publish intent failed",
				applogger.String("intent_id", intent.IntentID),
				applogger.Error(err),
			)
		}
	}
	return intent, nil
}

// Start runs a cycle every interval until ctx is cancelled. A failed cycle is
// logged and the schedule continues.
func (s *CycleService) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: scheduler interval must be > 0", models.ErrConfig)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.l.Info("scheduler started", applogger.Duration("interval_ms", interval))
	for {
		select {
		case <-ctx.Done():
			s.l.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			intent, err := s.RunCycle(ctx, CycleRequest{})
			if err != nil {
				continue
			}
			s.l.Info("scheduled cycle complete",
				applogger.String("intent_id", intent.IntentID),
				applogger.Bool("trade_allowed", intent.TradeAllowed),
				applogger.Int("targets", len(intent.Targets)),
			)
		}
	}
}

func (s *CycleService) Latest(ctx context.Context) (models.PortfolioIntent, error) {
	if s.intents == nil {
		return models.PortfolioIntent{}, ErrNoIntentStore
	}
	return s.intents.Latest(ctx)
}

func (s *CycleService) Get(ctx context.Context, intentID string) (models.PortfolioIntent, error) {
	if s.intents == nil {
		return models.PortfolioIntent{}, ErrNoIntentStore
	}
	return s.intents.Get(ctx, intentID)
}

func (s *CycleService) List(ctx context.Context, limit int) ([]models.PortfolioIntent, error) {
	if s.intents == nil {
		return nil, ErrNoIntentStore
	}
	return s.intents.List(ctx, limit)
}

// BarRegimeSource labels the regime from the trailing returns of one
// benchmark symbol.
type BarRegimeSource struct {
	detector domsvc.RegimeDetector
	store    domrepo.BarStore
	symbol   string
	lookback int
	tf       domrepo.Timeframe
}

func NewBarRegimeSource(detector domsvc.RegimeDetector, store domrepo.BarStore, symbol string, lookback int, tf domrepo.Timeframe) *BarRegimeSource {
	return &BarRegimeSource{detector: detector, store: store, symbol: symbol, lookback: lookback, tf: tf}
}

func (r *BarRegimeSource) Regime(ctx context.Context, asOf time.Time) (string, error) {
	bars, err := r.store.Window(ctx, r.symbol, r.tf, asOf, r.lookback+1)
	if err != nil {
		return "", fmt.Errorf("regime window %s: %w", r.symbol, err)
	}
	rets := features.ComputeLogReturns(bars)
	if len(rets) < 2 {
		return "", fmt.Errorf("regime: not enough bars for %s (%d)", r.symbol, len(bars))
	}
	reg, err := r.detector.Detect(ctx, r.symbol, rets)
	if err != nil {
		return "", err
	}
	return reg.State, nil
}

var _ RegimeSource = (*BarRegimeSource)(nil)
