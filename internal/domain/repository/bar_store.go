package repository

import (
	"context"
	"time"

	"Conductor/internal/domain/models"
)

// BarStore is read-only access to stored bars. Every query is bounded by an
// explicit end timestamp; implementations never return bars after it.
type BarStore interface {
	// LatestTimestamp returns the newest bar time for symbol, ok=false if none.
	LatestTimestamp(ctx context.Context, symbol string, tf Timeframe) (time.Time, bool, error)
	// Window returns up to n bars at or before end, ascending.
	Window(ctx context.Context, symbol string, tf Timeframe, end time.Time, n int) ([]models.Bar, error)
	// Range returns bars for symbols in [start, end], sorted by (symbol, timestamp).
	Range(ctx context.Context, symbols []string, tf Timeframe, start, end time.Time) ([]models.Bar, error)
}
