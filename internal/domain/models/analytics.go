package models

import "time"

// Regime is a market-condition label produced by the analytics service.
type Regime struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"` // "trend", "chop", "volatile", ...
	Prob       []float64 `json:"prob,omitempty"`
	Confidence float64   `json:"confidence"`
}

// CycleTrigger asks for a cycle at a bar close. AsOf is the bar-close time;
// it pins the evaluation timestamp only when Replay is set.
type CycleTrigger struct {
	AsOf      *time.Time `json:"as_of,omitempty"`
	Timeframe string     `json:"timeframe,omitempty"`
	Replay    bool       `json:"replay,omitempty"`
}
