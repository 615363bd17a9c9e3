// Package dataaccess provides point-in-time reads over a BarStore: nothing
// after the reader's as-of timestamp is ever returned.
package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

var (
	// ErrNoData means the store has no bar for the symbol at or before as-of.
	ErrNoData = errors.New("no data")
	// ErrStaleData means the latest bar is older than the allowed staleness.
	ErrStaleData = errors.New("stale data")
)

// prefetchChunk bounds the symbol list of a single Range query.
const prefetchChunk = 50

type cacheKey struct {
	symbol string
	tf     domrepo.Timeframe
}

// Reader serves bars at or before AsOf. Prefetch fills an in-memory cache so
// strategies read windows without touching the store. Reader is safe for
// concurrent reads after Prefetch returns.
type Reader struct {
	store domrepo.BarStore
	asOf  time.Time
	now   func() time.Time

	mu    sync.RWMutex
	cache map[cacheKey][]models.Bar
	order []string // prefetched symbols, first-seen order
}

// NewReader creates a reader bounded by asOf.
func NewReader(store domrepo.BarStore, asOf time.Time) *Reader {
	return &Reader{
		store: store,
		asOf:  asOf,
		now:   func() time.Time { return time.Now().UTC() },
		cache: make(map[cacheKey][]models.Bar),
	}
}

// WithClock replaces the wall clock used for staleness checks.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// AsOf returns the point-in-time bound.
func (r *Reader) AsOf() time.Time { return r.asOf }

// PrefetchDays estimates how many calendar days cover lookback bars of tf,
// allowing for weekends and holidays.
func PrefetchDays(tf domrepo.Timeframe, lookback int) int {
	tradingDays := math.Max(1, float64(lookback)/domrepo.BarsPerTradingDay(tf))
	return int(tradingDays*7/5*1.5) + 5
}

// Prefetch loads lookback bars for every symbol into the cache. Symbols with
// no data cache an empty series.
func (r *Reader) Prefetch(ctx context.Context, symbols []string, tf domrepo.Timeframe, lookback int) error {
	start := r.asOf.AddDate(0, 0, -PrefetchDays(tf, lookback))

	for lo := 0; lo < len(symbols); lo += prefetchChunk {
		hi := lo + prefetchChunk
		if hi > len(symbols) {
			hi = len(symbols)
		}
		chunk := symbols[lo:hi]

		bars, err := r.store.Range(ctx, chunk, tf, start, r.asOf)
		if err != nil {
			return fmt.Errorf("prefetch %s: %w", tf, err)
		}

		grouped := make(map[string][]models.Bar, len(chunk))
		for _, b := range bars {
			if b.Timestamp.After(r.asOf) {
				continue
			}
			grouped[b.Symbol] = append(grouped[b.Symbol], b)
		}

		r.mu.Lock()
		for _, sym := range chunk {
			series := grouped[sym]
			sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
			k := cacheKey{sym, tf}
			if _, seen := r.cache[k]; !seen {
				r.order = append(r.order, sym)
			}
			if series == nil {
				series = []models.Bar{}
			}
			r.cache[k] = series
		}
		r.mu.Unlock()
	}
	return nil
}

// Window returns the last n bars at or before as-of, oldest first.
func (r *Reader) Window(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	r.mu.RLock()
	series, ok := r.cache[cacheKey{symbol, tf}]
	r.mu.RUnlock()
	if ok {
		if len(series) > n {
			series = series[len(series)-n:]
		}
		return append([]models.Bar(nil), series...), nil
	}

	bars, err := r.store.Window(ctx, symbol, tf, r.asOf, n)
	if err != nil {
		return nil, fmt.Errorf("window %s %s: %w", symbol, tf, err)
	}
	out := bars[:0:0]
	for _, b := range bars {
		if !b.Timestamp.After(r.asOf) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Latest returns the newest bar at or before as-of. With maxStaleness > 0 a
// bar older than wall-clock minus maxStaleness yields ErrStaleData.
func (r *Reader) Latest(ctx context.Context, symbol string, tf domrepo.Timeframe, maxStaleness time.Duration) (models.Bar, error) {
	bars, err := r.Window(ctx, symbol, tf, 1)
	if err != nil {
		return models.Bar{}, err
	}
	if len(bars) == 0 {
		return models.Bar{}, fmt.Errorf("%s %s: %w", symbol, tf, ErrNoData)
	}
	bar := bars[len(bars)-1]
	if maxStaleness > 0 && bar.Timestamp.Before(r.now().Add(-maxStaleness)) {
		return bar, fmt.Errorf("%s %s latest %s: %w", symbol, tf, bar.Timestamp.Format(time.RFC3339), ErrStaleData)
	}
	return bar, nil
}

// Range returns bars for symbols from start up to as-of.
func (r *Reader) Range(ctx context.Context, symbols []string, tf domrepo.Timeframe, start time.Time) ([]models.Bar, error) {
	if start.After(r.asOf) {
		return nil, nil
	}
	bars, err := r.store.Range(ctx, symbols, tf, start, r.asOf)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", tf, err)
	}
	return bars, nil
}

// UniverseWindows returns the last n cached bars of every symbol prefetched
// at tf, including empty series.
func (r *Reader) UniverseWindows(tf domrepo.Timeframe, n int) map[string][]models.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]models.Bar, len(r.order))
	for _, sym := range r.order {
		series, ok := r.cache[cacheKey{sym, tf}]
		if !ok {
			continue
		}
		if n > 0 && len(series) > n {
			series = series[len(series)-n:]
		}
		out[sym] = append([]models.Bar(nil), series...)
	}
	return out
}
