package models

import (
	"fmt"
	"time"
)

type SizingMethod string

const (
	SizingEqualWeight    SizingMethod = "equal_weight"
	SizingSignalWeighted SizingMethod = "signal_weighted"
	SizingVolTargeted    SizingMethod = "vol_targeted"
)

// ParseSizingMethod validates a configured method name.
func ParseSizingMethod(s string) (SizingMethod, error) {
	switch m := SizingMethod(s); m {
	case SizingEqualWeight, SizingSignalWeighted, SizingVolTargeted:
		return m, nil
	case "":
		return SizingSignalWeighted, nil
	default:
		return "", fmt.Errorf("%w: unknown sizing method %q", ErrConfig, s)
	}
}

// TargetPosition is the desired holding for one symbol. A notional of exactly 0
// closes the position; a symbol absent from the target set is left unchanged.
type TargetPosition struct {
	Symbol         string               `json:"symbol"`
	TargetNotional float64              `json:"target_notional"`
	TargetPct      float64              `json:"target_pct"`
	Confidence     float64              `json:"confidence"`
	HorizonBars    int                  `json:"horizon_bars"`
	StopHint       *float64             `json:"stop_hint,omitempty"`
	TPHint         *float64             `json:"tp_hint,omitempty"`
	Provenance     []SignalContribution `json:"provenance"`
	Explain        string               `json:"explain"`
}

// PortfolioIntent is the complete output of one decision cycle.
type PortfolioIntent struct {
	IntentID       string             `json:"intent_id"`
	AsOf           time.Time          `json:"as_of_ts"`
	PortfolioState PortfolioState     `json:"portfolio_state"`
	Universe       UniverseResult     `json:"universe"`
	SignalsUsed    []MergedSignal     `json:"signals_used"`
	SignalsDropped []DroppedSignal    `json:"signals_dropped"`
	Targets        []TargetPosition   `json:"targets"`
	SizingMethod   SizingMethod       `json:"sizing_method"`
	StrategyRunID  string             `json:"strategy_run_id,omitempty"`
	StrategyErrors []StrategyRunError `json:"strategy_errors,omitempty"`
	Regime         string             `json:"regime,omitempty"`
	TradeAllowed   bool               `json:"trade_allowed"`
	ElapsedMS      float64            `json:"elapsed_ms"`
	Explain        string             `json:"explain"`
}
