package repository

import (
	"context"

	"Conductor/internal/domain/models"
)

// IntentStore persists portfolio intents keyed by intent id.
type IntentStore interface {
	Save(ctx context.Context, intent models.PortfolioIntent) error
	Get(ctx context.Context, intentID string) (models.PortfolioIntent, error)
	Latest(ctx context.Context) (models.PortfolioIntent, error)
	List(ctx context.Context, limit int) ([]models.PortfolioIntent, error)
}

// RunStore records strategy runs and the signals they produced.
type RunStore interface {
	CreateRun(ctx context.Context, run models.StrategyRun) error
	CompleteRun(ctx context.Context, run models.StrategyRun) error
	SaveSignals(ctx context.Context, runID string, signals []models.Signal) (int, error)
}

// IntentPublisher fans finished intents out to downstream consumers.
type IntentPublisher interface {
	PublishIntent(ctx context.Context, intent models.PortfolioIntent) error
	Close() error
}

type Metrics interface {
	RecordCycle(outcome string, seconds float64)
	RecordStrategyError(strategyID, errorType string)
	RecordDropped(reason string, n int)
	RecordExcluded(reason string, n int)
	RecordTargets(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
