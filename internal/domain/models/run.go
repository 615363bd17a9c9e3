package models

import "time"

// Strategy failure kinds recorded in StrategyRunError.ErrorType.
const (
	ErrorTypeTimeout   = "TimeoutError"
	ErrorTypePanic     = "PanicError"
	ErrorTypeExecution = "ExecutionError"
	ErrorTypeStrategy  = "StrategyError"
)

// StrategyRunError is a structured record of a single strategy failure.
type StrategyRunError struct {
	StrategyID string `json:"strategy_id"`
	Version    string `json:"version"`
	ErrorType  string `json:"error_type"`
	Message    string `json:"error_message"`
}

// RunResult is the pooled output of one strategy run.
type RunResult struct {
	RunID         string             `json:"run_id,omitempty"`
	Signals       []Signal           `json:"signals"`
	Errors        []StrategyRunError `json:"errors"`
	ElapsedMS     float64            `json:"elapsed_ms"`
	StrategiesRun int                `json:"strategies_run"`
}

// StrategyRun is the persisted audit row of a runner invocation.
type StrategyRun struct {
	RunID          string    `json:"run_id"`
	EvalTS         time.Time `json:"eval_ts"`
	Strategies     []string  `json:"strategies"`
	UniverseSize   int       `json:"universe_size"`
	SignalsWritten int       `json:"signals_written"`
	Errors         int       `json:"errors"`
	ElapsedMS      float64   `json:"elapsed_ms"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}
