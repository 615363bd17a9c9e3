package usecase

import (
	"fmt"
	"math"
	"sort"

	"Conductor/internal/domain/models"
	applogger "Conductor/pkg/logger"
)

// DefaultVetoTag drops every signal of a symbol when any of them carries it.
const DefaultVetoTag = "do_not_trade"

const netVoteEpsilon = 1e-9

// DeconflictOptions tunes Deconflict. StrategyWeights are ignored for
// signals that carry a net alpha since normalization already applied them.
type DeconflictOptions struct {
	StrategyWeights map[string]float64
	// Regime is the current market regime label; empty disables RegimeWeights.
	Regime string
	// RegimeWeights maps regime -> strategy id or category -> multiplier.
	RegimeWeights      map[string]map[string]float64
	StrategyCategories map[string]string
	// VetoTags defaults to DefaultVetoTag when nil.
	VetoTags       []string
	MinSymbolAlpha float64
}

type weighted struct {
	sig models.Signal
	rm  float64
}

// Deconflict merges the signals of every symbol into at most one decision.
// Merged output is sorted by descending rank weight then symbol; dropped
// records follow processing order.
func Deconflict(signals []models.Signal, universe []string, opts DeconflictOptions, l *applogger.Logger) ([]models.MergedSignal, []models.DroppedSignal) {
	if l == nil {
		l = applogger.Nop()
	}
	inUniverse := make(map[string]struct{}, len(universe))
	for _, s := range universe {
		inUniverse[s] = struct{}{}
	}
	vetoTags := opts.VetoTags
	if vetoTags == nil {
		vetoTags = []string{DefaultVetoTag}
	}
	veto := make(map[string]struct{}, len(vetoTags))
	for _, t := range vetoTags {
		veto[t] = struct{}{}
	}

	dropped := []models.DroppedSignal{}
	bySymbol := map[string][]models.Signal{}
	for _, s := range signals {
		switch {
		case !contains(inUniverse, s.Symbol):
			dropped = append(dropped, models.NewDroppedSignal(s, models.DropSymbolExcluded, fmt.Sprintf("%s not in filtered universe", s.Symbol)))
		case s.AlphaNet != nil && *s.AlphaNet == 0:
			dropped = append(dropped, models.NewDroppedSignal(s, models.DropBelowCostThreshold, "alpha_net=0 after cost subtraction"))
		case s.Strength == 0:
			dropped = append(dropped, models.NewDroppedSignal(s, models.DropZeroStrength, ""))
		default:
			bySymbol[s.Symbol] = append(bySymbol[s.Symbol], s)
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	merged := []models.MergedSignal{}
	for _, sym := range symbols {
		m, drops := mergeSymbol(sym, bySymbol[sym], opts, veto)
		dropped = append(dropped, drops...)
		if m != nil {
			merged = append(merged, *m)
		}
	}

	if opts.MinSymbolAlpha > 0 {
		kept := merged[:0:0]
		for _, m := range merged {
			if m.AggAlpha != nil && math.Abs(*m.AggAlpha) < opts.MinSymbolAlpha {
				detail := fmt.Sprintf("abs(agg_alpha)=%.4f < threshold=%v", math.Abs(*m.AggAlpha), opts.MinSymbolAlpha)
				for _, c := range m.Contributions {
					dropped = append(dropped, models.DroppedSignal{
						StrategyID: c.StrategyID,
						Symbol:     m.Symbol,
						Side:       c.Side,
						Strength:   c.Strength,
						Confidence: c.Confidence,
						Reason:     models.DropBelowAlphaThreshold,
						Detail:     detail,
					})
				}
				continue
			}
			kept = append(kept, m)
		}
		merged = kept
	}

	sort.SliceStable(merged, func(i, j int) bool {
		wi, wj := merged[i].RankWeight(), merged[j].RankWeight()
		if wi != wj {
			return wi > wj
		}
		return merged[i].Symbol < merged[j].Symbol
	})

	l.Info("deconfliction_complete",
		applogger.Int("input_signals", len(signals)),
		applogger.Int("merged_count", len(merged)),
		applogger.Int("dropped_count", len(dropped)),
	)
	return merged, dropped
}

func contains(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

func mergeSymbol(symbol string, sigs []models.Signal, opts DeconflictOptions, veto map[string]struct{}) (*models.MergedSignal, []models.DroppedSignal) {
	var dropped []models.DroppedSignal

	for _, s := range sigs {
		if s.HasTag(veto) {
			for _, v := range sigs {
				dropped = append(dropped, models.NewDroppedSignal(v, models.DropVetoed, "Symbol vetoed by signal tag"))
			}
			return nil, dropped
		}
	}

	var exits, directional []weighted
	for _, s := range sigs {
		w := weighted{sig: s, rm: regimeMultiplier(s.StrategyID, opts)}
		if s.IsExit() {
			exits = append(exits, w)
		} else {
			directional = append(directional, w)
		}
	}

	switch {
	case len(exits) > 0 && len(directional) == 0:
		m := buildExitMerged(symbol, exits, opts.StrategyWeights)
		return &m, dropped
	case len(exits) == 0 && len(directional) == 0:
		return nil, dropped
	case len(exits) > 0:
		exitW, dirW := 0.0, 0.0
		for _, w := range exits {
			exitW += effectiveWeight(w, opts.StrategyWeights)
		}
		for _, w := range directional {
			dirW += effectiveWeight(w, opts.StrategyWeights)
		}
		// exits win ties
		if exitW >= dirW {
			for _, w := range directional {
				dropped = append(dropped, models.NewDroppedSignal(w.sig, models.DropConflictingSides, "Exit signals outweigh directional signals"))
			}
			m := buildExitMerged(symbol, exits, opts.StrategyWeights)
			return &m, dropped
		}
		for _, w := range exits {
			dropped = append(dropped, models.NewDroppedSignal(w.sig, models.DropConflictingSides, "Directional signals outweigh exit signals"))
		}
	}

	net := 0.0
	for _, w := range directional {
		net += voteContribution(w, opts.StrategyWeights)
	}
	if math.Abs(net) < netVoteEpsilon {
		for _, w := range directional {
			dropped = append(dropped, models.NewDroppedSignal(w.sig, models.DropConflictingSides, "Net directional vote is zero"))
		}
		return nil, dropped
	}

	side := models.SideLong
	if net < 0 {
		side = models.SideShort
	}
	var same []weighted
	for _, w := range directional {
		if voteSide(w.sig) == side {
			same = append(same, w)
			continue
		}
		dropped = append(dropped, models.NewDroppedSignal(w.sig, models.DropConflictingSides, fmt.Sprintf("Opposite to consensus side=%s", side)))
	}
	if len(same) == 0 {
		return nil, dropped
	}
	m := buildDirectionalMerged(symbol, side, same, opts.StrategyWeights)
	return &m, dropped
}

// voteSide treats every non-short directional signal as long.
func voteSide(s models.Signal) models.Side {
	if s.Side == models.SideShort {
		return models.SideShort
	}
	return models.SideLong
}

// regimeMultiplier looks up the strategy id, then its category, under the
// current regime. It is 1 when no regime is set or nothing matches.
func regimeMultiplier(strategyID string, opts DeconflictOptions) float64 {
	if opts.Regime == "" {
		return 1
	}
	weights := opts.RegimeWeights[opts.Regime]
	if len(weights) == 0 {
		return 1
	}
	if v, ok := weights[strategyID]; ok {
		return v
	}
	if cat, ok := opts.StrategyCategories[strategyID]; ok && cat != "" {
		if v, ok := weights[cat]; ok {
			return v
		}
	}
	return 1
}

func effectiveWeight(w weighted, strategyWeights map[string]float64) float64 {
	if w.sig.AlphaNet != nil {
		return math.Abs(*w.sig.AlphaNet) * w.rm
	}
	return math.Abs(w.sig.Strength) * w.sig.Confidence * lookup(strategyWeights, w.sig.StrategyID, 1) * w.rm
}

func voteContribution(w weighted, strategyWeights map[string]float64) float64 {
	if w.sig.AlphaNet != nil {
		return *w.sig.AlphaNet * w.rm
	}
	v := math.Abs(w.sig.Strength) * w.sig.Confidence * lookup(strategyWeights, w.sig.StrategyID, 1) * w.rm
	if w.sig.Side == models.SideShort {
		return -v
	}
	return v
}

func contribution(s models.Signal, weight float64) models.SignalContribution {
	return models.SignalContribution{
		StrategyID:  s.StrategyID,
		Side:        s.Side,
		Strength:    s.Strength,
		Confidence:  s.Confidence,
		Weight:      math.Round(weight*1e6) / 1e6,
		HorizonBars: s.HorizonBars,
		AlphaNet:    s.AlphaNet,
	}
}

func buildDirectionalMerged(symbol string, side models.Side, ws []weighted, strategyWeights map[string]float64) models.MergedSignal {
	var (
		total, strength, confidence, horizon, alpha float64
		hasAlpha                                    bool
		stop, tp                                    *float64
	)
	contributions := make([]models.SignalContribution, 0, len(ws))
	for _, w := range ws {
		s := w.sig
		ew := effectiveWeight(w, strategyWeights)
		total += ew
		strength += s.Strength * ew
		confidence += s.Confidence * ew
		horizon += float64(s.HorizonBars) * ew
		if s.AlphaNet != nil {
			hasAlpha = true
			alpha += *s.AlphaNet
		}
		if s.StopPrice != nil {
			stop = pick(stop, *s.StopPrice, side == models.SideLong)
		}
		if s.TakeProfitPrice != nil {
			tp = pick(tp, *s.TakeProfitPrice, side != models.SideLong)
		}
		contributions = append(contributions, contribution(s, ew))
	}

	m := models.MergedSignal{
		Symbol:        symbol,
		Side:          side,
		HorizonBars:   1,
		StopHint:      stop,
		TPHint:        tp,
		Contributions: contributions,
	}
	if total > 0 {
		m.AggStrength = models.ClampStrength(strength / total)
		m.AggConfidence = models.ClampConfidence(confidence / total)
		if h := int(math.RoundToEven(horizon / total)); h > 1 {
			m.HorizonBars = h
		}
	}
	if hasAlpha {
		m.AggAlpha = models.Float64Ptr(alpha)
	}
	return m
}

// pick keeps the larger of cur and v when larger is set, the smaller otherwise.
func pick(cur *float64, v float64, larger bool) *float64 {
	if cur == nil || (larger && v > *cur) || (!larger && v < *cur) {
		return models.Float64Ptr(v)
	}
	return cur
}

func buildExitMerged(symbol string, ws []weighted, strategyWeights map[string]float64) models.MergedSignal {
	var (
		total, strength, confidence, alpha float64
		hasAlpha                           bool
	)
	contributions := make([]models.SignalContribution, 0, len(ws))
	for _, w := range ws {
		s := w.sig
		ew := effectiveWeight(w, strategyWeights)
		total += ew
		strength += s.Strength * ew
		confidence += s.Confidence * ew
		if s.AlphaNet != nil {
			hasAlpha = true
			alpha += *s.AlphaNet
		}
		contributions = append(contributions, contribution(s, ew))
	}

	m := models.MergedSignal{
		Symbol:        symbol,
		Side:          models.SideFlat,
		HorizonBars:   1,
		Contributions: contributions,
	}
	if total > 0 {
		m.AggStrength = models.ClampStrength(strength / total)
		m.AggConfidence = models.ClampConfidence(confidence / total)
	}
	if hasAlpha {
		m.AggAlpha = models.Float64Ptr(alpha)
	}
	return m
}
