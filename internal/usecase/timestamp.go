package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	domrepo "Conductor/internal/domain/repository"
)

// TimestampResult is the resolved evaluation time plus the freshness
// classification of every symbol. Symbol lists are sorted.
type TimestampResult struct {
	EvalTS  time.Time
	Fresh   []string
	Stale   []string
	Missing []string
}

// ResolveEvalTS picks a bar-close aligned evaluation timestamp. Staleness is
// measured against the freshest bar across symbols rather than the wall clock
// so that replays resolve the same way. A zero maxStaleness disables the
// check. now is only used when no symbol has data.
func ResolveEvalTS(ctx context.Context, store domrepo.BarStore, symbols []string, tf domrepo.Timeframe, maxStaleness time.Duration, now func() time.Time) (TimestampResult, error) {
	if now == nil {
		now = time.Now
	}
	res := TimestampResult{Fresh: []string{}, Stale: []string{}, Missing: []string{}}
	if len(symbols) == 0 {
		res.EvalTS = now().UTC()
		return res, nil
	}

	latest := make(map[string]time.Time, len(symbols))
	var freshest time.Time
	for _, sym := range symbols {
		ts, ok, err := store.LatestTimestamp(ctx, sym, tf)
		if err != nil {
			return TimestampResult{}, fmt.Errorf("latest timestamp %s: %w", sym, err)
		}
		if !ok {
			res.Missing = append(res.Missing, sym)
			continue
		}
		latest[sym] = ts
		if ts.After(freshest) {
			freshest = ts
		}
	}
	sort.Strings(res.Missing)

	if len(latest) == 0 {
		res.EvalTS = now().UTC()
		return res, nil
	}

	for sym, ts := range latest {
		if maxStaleness > 0 && freshest.Sub(ts) > maxStaleness {
			res.Stale = append(res.Stale, sym)
		} else {
			res.Fresh = append(res.Fresh, sym)
		}
	}
	sort.Strings(res.Fresh)
	sort.Strings(res.Stale)

	if len(res.Fresh) == 0 {
		res.EvalTS = freshest
		return res, nil
	}
	eval := latest[res.Fresh[0]]
	for _, sym := range res.Fresh[1:] {
		if ts := latest[sym]; ts.Before(eval) {
			eval = ts
		}
	}
	res.EvalTS = eval
	return res, nil
}
