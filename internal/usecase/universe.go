package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	applogger "Conductor/pkg/logger"
)

// UniverseLookbackBars is the trailing window used for price and volume checks.
const UniverseLookbackBars = 20

// UniverseFilter applies Constraints to a raw symbol list.
type UniverseFilter struct {
	store domrepo.BarStore
	l     *applogger.Logger
}

func NewUniverseFilter(store domrepo.BarStore, l *applogger.Logger) *UniverseFilter {
	if l == nil {
		l = applogger.Nop()
	}
	return &UniverseFilter{store: store, l: l}
}

type volumeRank struct {
	symbol string
	avgVol float64
}

// Filter returns the tradeable symbols at asOf with an exclusion record for
// every symbol left out. Symbols are visited in sorted order and Included is
// sorted.
func (f *UniverseFilter) Filter(ctx context.Context, symbols []string, c models.Constraints, asOf time.Time, tf domrepo.Timeframe) (models.UniverseResult, error) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	included := []string{}
	excluded := []models.SymbolExclusion{}
	var ranking []volumeRank

	for _, sym := range sorted {
		if c.Excludes(sym) {
			excluded = append(excluded, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeManual,
				Detail: "In exclude_symbols list",
			})
			continue
		}

		bars, err := f.store.Window(ctx, sym, tf, asOf, UniverseLookbackBars)
		if err != nil {
			return models.UniverseResult{}, fmt.Errorf("universe window %s: %w", sym, err)
		}
		if len(bars) == 0 {
			excluded = append(excluded, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeInsufficientData,
				Detail: "No bars available",
			})
			continue
		}

		lastClose := bars[len(bars)-1].Close
		avgVol := averageVolume(bars)

		if c.MinPrice != nil && lastClose < *c.MinPrice {
			excluded = append(excluded, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeBelowMinPrice,
				Detail: fmt.Sprintf("close=%.2f < min=%.2f", lastClose, *c.MinPrice),
			})
			continue
		}
		if c.MinAvgVolume != nil && avgVol < *c.MinAvgVolume {
			excluded = append(excluded, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeBelowMinVolume,
				Detail: fmt.Sprintf("avg_vol=%.0f < min=%s", avgVol, strconv.FormatFloat(*c.MinAvgVolume, 'f', -1, 64)),
			})
			continue
		}

		included = append(included, sym)
		ranking = append(ranking, volumeRank{symbol: sym, avgVol: avgVol})
	}

	if c.MaxNames != nil && len(included) > *c.MaxNames {
		sort.SliceStable(ranking, func(i, j int) bool { return ranking[i].avgVol > ranking[j].avgVol })
		kept := make(map[string]struct{}, *c.MaxNames)
		for _, r := range ranking[:*c.MaxNames] {
			kept[r.symbol] = struct{}{}
		}
		survivors := make([]string, 0, *c.MaxNames)
		for _, sym := range included {
			if _, ok := kept[sym]; ok {
				survivors = append(survivors, sym)
				continue
			}
			excluded = append(excluded, models.SymbolExclusion{
				Symbol: sym,
				Reason: models.ExcludeMaxNamesExceeded,
				Detail: fmt.Sprintf("Ranked below top %d by volume", *c.MaxNames),
			})
		}
		included = survivors
	}

	f.l.Info("universe_filtered",
		applogger.Int("raw_count", len(symbols)),
		applogger.Int("included_count", len(included)),
		applogger.Int("excluded_count", len(excluded)),
	)
	return models.UniverseResult{Included: included, Excluded: excluded}, nil
}

// averageVolume ignores bars without a volume and is 0 when none have one.
func averageVolume(bars []models.Bar) float64 {
	sum, n := 0.0, 0
	for _, b := range bars {
		if b.Volume == nil {
			continue
		}
		sum += *b.Volume
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
