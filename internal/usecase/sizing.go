package usecase

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"Conductor/internal/domain/models"
	applogger "Conductor/pkg/logger"
)

// DefaultVol is the annualized volatility assumed for a symbol without an estimate.
const DefaultVol = 0.30

const minTotalWeight = 1e-12

// SizingOptions selects the sizing method and its inputs.
type SizingOptions struct {
	Method models.SizingMethod
	Limits models.RiskLimits
	// Vols holds annualized volatility per symbol for vol_targeted sizing.
	Vols       map[string]float64
	DefaultVol float64
}

// ComputeTargets turns merged signals into target positions. Directional
// targets come first in merged order, followed by one zero-notional target per
// exit. Symbols dropped by the name cap or the long-only policy get no target.
func ComputeTargets(merged []models.MergedSignal, portfolio models.PortfolioState, opts SizingOptions, l *applogger.Logger) []models.TargetPosition {
	if l == nil {
		l = applogger.Nop()
	}
	targets := []models.TargetPosition{}
	if len(merged) == 0 {
		return targets
	}
	equity := portfolio.Equity
	if equity <= 0 {
		l.Warn("zero_equity", applogger.Float64("equity", equity))
		return targets
	}
	method := opts.Method
	if method == "" {
		method = models.SizingSignalWeighted
	}

	defVol := opts.DefaultVol
	if defVol <= 0 {
		defVol = DefaultVol
	}
	maxTotal := equity * opts.Limits.MaxPortfolioExposurePct
	maxPer := equity * opts.Limits.MaxPositionPct

	var directional, exits []models.MergedSignal
	for _, m := range merged {
		switch {
		case m.Side == models.SideFlat:
			exits = append(exits, m)
		case m.Side == models.SideShort && opts.Limits.LongOnly:
			continue
		default:
			directional = append(directional, m)
		}
	}
	directional = capNames(directional, opts.Limits.MaxNames)

	var notionals []float64
	switch method {
	case models.SizingEqualWeight:
		notionals = equalWeight(len(directional), maxTotal, maxPer)
	case models.SizingVolTargeted:
		raw := make([]float64, len(directional))
		for i, m := range directional {
			raw[i] = signalWeight(m) / volFor(opts.Vols, m.Symbol, defVol)
		}
		notionals = proportional(raw, maxTotal, maxPer)
	default:
		raw := make([]float64, len(directional))
		for i, m := range directional {
			raw[i] = signalWeight(m)
		}
		notionals = proportional(raw, maxTotal, maxPer)
	}

	for i, m := range directional {
		vol := math.NaN()
		if method == models.SizingVolTargeted {
			vol = volFor(opts.Vols, m.Symbol, defVol)
		}
		targets = append(targets, buildTarget(m, notionals[i], equity, vol))
	}
	for _, m := range exits {
		targets = append(targets, models.TargetPosition{
			Symbol:      m.Symbol,
			Confidence:  m.AggConfidence,
			HorizonBars: m.HorizonBars,
			StopHint:    m.StopHint,
			TPHint:      m.TPHint,
			Provenance:  m.Contributions,
			Explain:     fmt.Sprintf("Exit signal: side=flat, agg_strength=%.3f", m.AggStrength),
		})
	}

	l.Info("targets_computed",
		applogger.Int("directional", len(directional)),
		applogger.Int("exits", len(exits)),
		applogger.Int("total", len(targets)),
		applogger.String("method", string(method)),
	)
	return targets
}

// signalWeight is |agg_alpha| when present, |strength|*confidence otherwise.
func signalWeight(m models.MergedSignal) float64 {
	if m.AggAlpha != nil {
		return math.Abs(*m.AggAlpha)
	}
	return math.Abs(m.AggStrength) * m.AggConfidence
}

func volFor(vols map[string]float64, symbol string, def float64) float64 {
	if v, ok := vols[symbol]; ok && v > 0 {
		return v
	}
	return def
}

// capNames keeps the maxNames heaviest signals, ties broken by symbol,
// preserving their incoming order. maxNames <= 0 disables the cap.
func capNames(ms []models.MergedSignal, maxNames int) []models.MergedSignal {
	if maxNames <= 0 || len(ms) <= maxNames {
		return ms
	}
	ranked := append([]models.MergedSignal(nil), ms...)
	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := signalWeight(ranked[i]), signalWeight(ranked[j])
		if wi != wj {
			return wi > wj
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	keep := make(map[string]struct{}, maxNames)
	for _, m := range ranked[:maxNames] {
		keep[m.Symbol] = struct{}{}
	}
	out := make([]models.MergedSignal, 0, maxNames)
	for _, m := range ms {
		if _, ok := keep[m.Symbol]; ok {
			out = append(out, m)
		}
	}
	return out
}

func equalWeight(n int, maxTotal, maxPer float64) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	per := math.Min(maxTotal/float64(n), maxPer)
	for i := range out {
		out[i] = per
	}
	return out
}

// proportional allocates maxTotal in proportion to raw, caps every position at
// maxPer and hands the capped excess out once, evenly, to the positions that
// were not capped.
func proportional(raw []float64, maxTotal, maxPer float64) []float64 {
	total := 0.0
	for _, w := range raw {
		total += w
	}
	if total < minTotalWeight {
		return equalWeight(len(raw), maxTotal, maxPer)
	}

	out := make([]float64, len(raw))
	excess, uncapped := 0.0, 0
	for i, w := range raw {
		n := w / total * maxTotal
		if n > maxPer {
			excess += n - maxPer
			n = maxPer
		} else {
			uncapped++
		}
		out[i] = n
	}
	if excess > 0 && uncapped > 0 {
		bonus := excess / float64(uncapped)
		for i, n := range out {
			if n < maxPer {
				out[i] = math.Min(n+bonus, maxPer)
			}
		}
	}
	return out
}

func buildTarget(m models.MergedSignal, notional, equity, vol float64) models.TargetPosition {
	signed := decimal.NewFromFloat(notional)
	if m.Side != models.SideLong {
		signed = signed.Neg()
	}
	pct := signed.Div(decimal.NewFromFloat(equity))

	var b strings.Builder
	fmt.Fprintf(&b, "side=%s, agg_strength=%.3f, agg_confidence=%.3f, ", m.Side, m.AggStrength, m.AggConfidence)
	if !math.IsNaN(vol) {
		fmt.Fprintf(&b, "vol=%.3f, ", vol)
	}
	pctAbs, _ := pct.Abs().Float64()
	fmt.Fprintf(&b, "notional=$%s (%.1f%% of equity)", formatMoney(signed.Abs()), pctAbs*100)

	return models.TargetPosition{
		Symbol:         m.Symbol,
		TargetNotional: signed.Round(2).InexactFloat64(),
		TargetPct:      pct.Round(6).InexactFloat64(),
		Confidence:     m.AggConfidence,
		HorizonBars:    m.HorizonBars,
		StopHint:       m.StopHint,
		TPHint:         m.TPHint,
		Provenance:     m.Contributions,
		Explain:        b.String(),
	}
}

// formatMoney renders d with two decimals and thousands separators.
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
