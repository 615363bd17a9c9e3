package models

type DropReason string

const (
	DropFlatSignal               DropReason = "flat_signal"
	DropConflictingSides         DropReason = "conflicting_sides"
	DropBelowConfidenceThreshold DropReason = "below_confidence_threshold"
	DropZeroStrength             DropReason = "zero_strength"
	DropSymbolExcluded           DropReason = "symbol_excluded"
	DropBelowCostThreshold       DropReason = "below_cost_threshold"
	DropBelowAlphaThreshold      DropReason = "below_alpha_threshold"
	DropVetoed                   DropReason = "vetoed"
)

// SignalContribution is one strategy's share of a merged decision.
type SignalContribution struct {
	StrategyID  string   `json:"strategy_id"`
	Side        Side     `json:"side"`
	Strength    float64  `json:"strength"`
	Confidence  float64  `json:"confidence"`
	Weight      float64  `json:"weight"`
	HorizonBars int      `json:"horizon_bars"`
	AlphaNet    *float64 `json:"alpha_net,omitempty"`
}

// DroppedSignal records a signal removed during deconfliction.
type DroppedSignal struct {
	StrategyID string     `json:"strategy_id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	Strength   float64    `json:"strength"`
	Confidence float64    `json:"confidence"`
	Reason     DropReason `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
}

// NewDroppedSignal captures the identifying fields of s under reason.
func NewDroppedSignal(s Signal, reason DropReason, detail string) DroppedSignal {
	return DroppedSignal{
		StrategyID: s.StrategyID,
		Symbol:     s.Symbol,
		Side:       s.Side,
		Strength:   s.Strength,
		Confidence: s.Confidence,
		Reason:     reason,
		Detail:     detail,
	}
}

// MergedSignal is the single per-symbol decision produced by deconfliction.
type MergedSignal struct {
	Symbol        string               `json:"symbol"`
	Side          Side                 `json:"side"`
	AggStrength   float64              `json:"agg_strength"`
	AggConfidence float64              `json:"agg_confidence"`
	AggAlpha      *float64             `json:"agg_alpha,omitempty"`
	HorizonBars   int                  `json:"horizon_bars"`
	StopHint      *float64             `json:"stop_hint,omitempty"`
	TPHint        *float64             `json:"tp_hint,omitempty"`
	Contributions []SignalContribution `json:"contributions"`
}

// RankWeight is |AggAlpha| when present, |AggStrength| otherwise.
func (m MergedSignal) RankWeight() float64 {
	if m.AggAlpha != nil {
		return abs(*m.AggAlpha)
	}
	return abs(m.AggStrength)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
