package models

import (
	"math"
	"time"
)

// PositionSnapshot is a single holding. Qty is signed: positive long, negative short.
type PositionSnapshot struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	MarketValue   float64 `json:"market_value"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

type OpenOrderSnapshot struct {
	OrderID    string   `json:"order_id"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"` // buy | sell
	Qty        float64  `json:"qty"`
	OrderType  string   `json:"order_type"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
	StopPrice  *float64 `json:"stop_price,omitempty"`
}

// PortfolioState is the holdings snapshot handed to a cycle. It is built by the caller;
// the orchestrator never talks to a broker.
type PortfolioState struct {
	AsOf        time.Time           `json:"as_of_ts"`
	Equity      float64             `json:"equity"`
	Cash        float64             `json:"cash"`
	BuyingPower float64             `json:"buying_power"`
	Positions   []PositionSnapshot  `json:"positions"`
	OpenOrders  []OpenOrderSnapshot `json:"open_orders"`
}

// PositionMap indexes positions by symbol.
func (p PortfolioState) PositionMap() map[string]PositionSnapshot {
	out := make(map[string]PositionSnapshot, len(p.Positions))
	for _, pos := range p.Positions {
		out[pos.Symbol] = pos
	}
	return out
}

// TotalExposure sums absolute market values.
func (p PortfolioState) TotalExposure() float64 {
	total := 0.0
	for _, pos := range p.Positions {
		total += math.Abs(pos.MarketValue)
	}
	return total
}

// ExposurePct is TotalExposure as a fraction of equity, 0 when equity is not positive.
func (p PortfolioState) ExposurePct() float64 {
	if p.Equity <= 0 {
		return 0
	}
	return p.TotalExposure() / p.Equity
}
