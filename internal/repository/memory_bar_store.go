package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

type seriesKey struct {
	symbol string
	tf     domrepo.Timeframe
}

// MemoryBarStore is an in-process BarStore for backtests, fixtures and tests.
type MemoryBarStore struct {
	mu     sync.RWMutex
	series map[seriesKey][]models.Bar
}

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{series: make(map[seriesKey][]models.Bar)}
}

// Add inserts bars, replacing any bar with the same (symbol, timeframe, timestamp).
func (m *MemoryBarStore) Add(bars ...models.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bars {
		k := seriesKey{symbol: b.Symbol, tf: domrepo.Timeframe(b.Timeframe)}
		s := m.series[k]
		i := sort.Search(len(s), func(i int) bool { return !s[i].Timestamp.Before(b.Timestamp) })
		if i < len(s) && s[i].Timestamp.Equal(b.Timestamp) {
			s[i] = b
		} else {
			s = append(s, models.Bar{})
			copy(s[i+1:], s[i:])
			s[i] = b
		}
		m.series[k] = s
	}
}

func (m *MemoryBarStore) LatestTimestamp(_ context.Context, symbol string, tf domrepo.Timeframe) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.series[seriesKey{symbol, tf}]
	if len(s) == 0 {
		return time.Time{}, false, nil
	}
	return s[len(s)-1].Timestamp, true, nil
}

func (m *MemoryBarStore) Window(_ context.Context, symbol string, tf domrepo.Timeframe, end time.Time, n int) ([]models.Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.series[seriesKey{symbol, tf}]
	hi := sort.Search(len(s), func(i int) bool { return s[i].Timestamp.After(end) })
	lo := hi - n
	if lo < 0 {
		lo = 0
	}
	return append([]models.Bar(nil), s[lo:hi]...), nil
}

func (m *MemoryBarStore) Range(_ context.Context, symbols []string, tf domrepo.Timeframe, start, end time.Time) ([]models.Bar, error) {
	syms := append([]string(nil), symbols...)
	sort.Strings(syms)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Bar
	for i, sym := range syms {
		if i > 0 && syms[i-1] == sym {
			continue
		}
		for _, b := range m.series[seriesKey{sym, tf}] {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			out = append(out, b)
		}
	}
	return out, nil
}
