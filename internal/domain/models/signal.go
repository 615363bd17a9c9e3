package models

import (
	"math"
	"sort"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case SideLong, SideShort, SideFlat:
		return true
	default:
		return false
	}
}

type EntryType string

const (
	EntryMarket    EntryType = "market"
	EntryLimit     EntryType = "limit"
	EntryStop      EntryType = "stop"
	EntryStopLimit EntryType = "stop_limit"
)

// Signal is one strategy's intent for one symbol in a cycle.
// Values are never modified after construction; the With* helpers return copies.
type Signal struct {
	StrategyID      string    `json:"strategy_id"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Strength        float64   `json:"strength"`
	Confidence      float64   `json:"confidence"`
	HorizonBars     int       `json:"horizon_bars"`
	Entry           EntryType `json:"entry"`
	EntryPriceHint  *float64  `json:"entry_price_hint,omitempty"`
	StopPrice       *float64  `json:"stop_price,omitempty"`
	TakeProfitPrice *float64  `json:"take_profit_price,omitempty"`
	TimeStopBars    *int      `json:"time_stop_bars,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Explain         string    `json:"explain,omitempty"`

	// stamped by the runner
	SignalID        string `json:"signal_id,omitempty"`
	CycleID         string `json:"cycle_id,omitempty"`
	StrategyVersion string `json:"strategy_version,omitempty"`
	ParamsHash      string `json:"params_hash,omitempty"`

	// stamped by normalization
	AlphaNet *float64 `json:"alpha_net,omitempty"`
}

// NewSignal builds a signal with strength clamped to [-1, 1], confidence
// clamped to [0, 1] and market entry. NaN inputs become 0.
func NewSignal(strategyID, symbol string, side Side, strength, confidence float64, horizonBars int) Signal {
	return Signal{
		StrategyID:  strategyID,
		Symbol:      symbol,
		Side:        side,
		Strength:    ClampStrength(strength),
		Confidence:  ClampConfidence(confidence),
		HorizonBars: horizonBars,
		Entry:       EntryMarket,
	}
}

// ClampStrength bounds v to [-1, 1].
func ClampStrength(v float64) float64 {
	return clamp(v, -1, 1)
}

// ClampConfidence bounds v to [0, 1].
func ClampConfidence(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// Clamped returns a copy with strength and confidence forced into range.
func (s Signal) Clamped() Signal {
	s.Strength = ClampStrength(s.Strength)
	s.Confidence = ClampConfidence(s.Confidence)
	s.Tags = cloneStrings(s.Tags)
	return s
}

// IsExit reports whether the signal asks to close a position.
func (s Signal) IsExit() bool {
	return s.Side == SideFlat && s.Strength < 0
}

// HasTag reports whether any of tags is present on the signal.
func (s Signal) HasTag(tags map[string]struct{}) bool {
	for _, t := range s.Tags {
		if _, ok := tags[t]; ok {
			return true
		}
	}
	return false
}

// WithAlphaNet returns a copy carrying the given net alpha.
func (s Signal) WithAlphaNet(alpha float64) Signal {
	s.AlphaNet = &alpha
	s.Tags = cloneStrings(s.Tags)
	return s
}

// WithRunMetadata returns a copy stamped with runner metadata.
func (s Signal) WithRunMetadata(signalID, cycleID, version, paramsHash string) Signal {
	s.SignalID = signalID
	s.CycleID = cycleID
	s.StrategyVersion = version
	s.ParamsHash = paramsHash
	s.Tags = cloneStrings(s.Tags)
	return s
}

// SignalLess orders by descending |strength|, descending confidence, then symbol.
func SignalLess(a, b Signal) bool {
	as, bs := math.Abs(a.Strength), math.Abs(b.Strength)
	if as != bs {
		return as > bs
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Symbol < b.Symbol
}

// SortSignals sorts in place using SignalLess. The sort is stable so equal
// keys keep their incoming order.
func SortSignals(sigs []Signal) {
	sort.SliceStable(sigs, func(i, j int) bool { return SignalLess(sigs[i], sigs[j]) })
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func Float64Ptr(v float64) *float64 { return &v }
