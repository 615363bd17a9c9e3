// Package strategy defines the strategy contract, an explicit registry and
// the runner that executes strategies with failure isolation.
package strategy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cast"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Strategy turns point-in-time bars into signals. Implementations keep no
// state between runs and read market data only through Context.Data.
type Strategy interface {
	ID() string
	// Version is semver X.Y.Z.
	Version() string
	// Timeframes lists required timeframes; the first one is primary.
	Timeframes() []domrepo.Timeframe
	LookbackBars() int
	// Params must be JSON-serialisable and deterministic.
	Params() map[string]interface{}
	Run(ctx context.Context, sc *Context) ([]models.Signal, error)
}

// Data is the point-in-time view a strategy reads from.
type Data interface {
	Window(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Bar, error)
	Latest(ctx context.Context, symbol string, tf domrepo.Timeframe, maxStaleness time.Duration) (models.Bar, error)
	Range(ctx context.Context, symbols []string, tf domrepo.Timeframe, start time.Time) ([]models.Bar, error)
	UniverseWindows(tf domrepo.Timeframe, n int) map[string][]models.Bar
}

// Context is everything a strategy receives for one run.
type Context struct {
	Now         time.Time
	Universe    []string
	Timeframe   domrepo.Timeframe
	Data        Data
	Config      map[string]interface{}
	Constraints models.Constraints
}

// InUniverse reports whether symbol is part of this run's universe.
func (c *Context) InUniverse(symbol string) bool {
	for _, s := range c.Universe {
		if s == symbol {
			return true
		}
	}
	return false
}

// Float reads a numeric config override, falling back to def.
func (c *Context) Float(key string, def float64) float64 {
	v, ok := c.Config[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Int reads an integer config override, falling back to def.
func (c *Context) Int(key string, def int) int {
	v, ok := c.Config[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Bool reads a boolean config override, falling back to def.
func (c *Context) Bool(key string, def bool) bool {
	v, ok := c.Config[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// ValidVersion reports whether v is semver X.Y.Z.
func ValidVersion(v string) bool {
	return semverRe.MatchString(v)
}

// ParamsHash is the first 16 hex chars of sha256 over the canonical JSON of
// {strategy_id, version, params}. Map keys are sorted by encoding/json, so
// equal inputs always hash equally.
func ParamsHash(s Strategy) string {
	payload := map[string]interface{}{
		"strategy_id": s.ID(),
		"version":     s.Version(),
		"params":      s.Params(),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// unserialisable params still need a stable identity
		b = []byte(fmt.Sprintf("%s|%s|%v", s.ID(), s.Version(), s.Params()))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// validateSignals checks strategy output and returns clamped copies.
func validateSignals(strategyID string, sigs []models.Signal) ([]models.Signal, error) {
	out := make([]models.Signal, 0, len(sigs))
	for _, s := range sigs {
		switch {
		case s.StrategyID != strategyID:
			return nil, fmt.Errorf("Signal strategy_id %q does not match %q", s.StrategyID, strategyID)
		case !s.Side.Valid():
			return nil, fmt.Errorf("%s emitted invalid side %q for %s", strategyID, s.Side, s.Symbol)
		case s.Symbol == "":
			return nil, fmt.Errorf("%s emitted a signal with empty symbol", strategyID)
		case s.HorizonBars <= 0:
			return nil, fmt.Errorf("%s emitted horizon_bars=%d for %s, must be > 0", strategyID, s.HorizonBars, s.Symbol)
		}
		out = append(out, s.Clamped())
	}
	return out, nil
}
