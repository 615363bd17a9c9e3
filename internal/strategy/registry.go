package strategy

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"

	"Conductor/internal/domain/models"
)

// Decoder decodes the raw params of a spec into out.
type Decoder func(out interface{}) error

// Factory builds a strategy with the given id from decoded params.
type Factory func(id string, decode Decoder) (Strategy, error)

// Spec describes one configured strategy instance.
type Spec struct {
	ID      string
	Factory string
	Params  map[string]interface{}
}

// Registry holds strategy instances by id and the factories that build them.
// It is a plain value owned by the caller; there is no package-level registry.
type Registry struct {
	strategies map[string]Strategy
	factories  map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		factories:  make(map[string]Factory),
	}
}

// Register adds s. Nil strategies, bad versions and duplicate ids are config errors.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("%w: nil strategy", models.ErrConfig)
	}
	id := s.ID()
	if id == "" {
		return fmt.Errorf("%w: strategy id is empty", models.ErrConfig)
	}
	if !ValidVersion(s.Version()) {
		return fmt.Errorf("%w: strategy %q version must be semver (X.Y.Z), got %q", models.ErrConfig, id, s.Version())
	}
	if len(s.Timeframes()) == 0 {
		return fmt.Errorf("%w: strategy %q declares no timeframes", models.ErrConfig, id)
	}
	if existing, ok := r.strategies[id]; ok {
		return fmt.Errorf("%w: strategy %q already registered (version %s), cannot register version %s",
			models.ErrConfig, id, existing.Version(), s.Version())
	}
	r.strategies[id] = s
	return nil
}

// Get looks up a strategy by id.
func (r *Registry) Get(id string) (Strategy, error) {
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not registered, available: %v", id, r.Names())
	}
	return s, nil
}

// All returns the registered strategies sorted by id.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, id := range r.Names() {
		out = append(out, r.strategies[id])
	}
	return out
}

// Names returns the registered ids, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int { return len(r.strategies) }

// RegisterFactory makes a factory available to Build under name.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factories[name] = f
}

// Build constructs and registers one strategy per spec. Every failing spec is
// reported; the combined error wraps ErrConfig.
func (r *Registry) Build(specs []Spec) error {
	var errs error
	for _, spec := range specs {
		if err := r.buildOne(spec); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", models.ErrConfig, errs)
	}
	return nil
}

func (r *Registry) buildOne(spec Spec) error {
	f, ok := r.factories[spec.Factory]
	if !ok {
		return fmt.Errorf("strategy %q: unknown factory %q", spec.ID, spec.Factory)
	}
	decode := func(out interface{}) error {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           out,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return err
		}
		return dec.Decode(spec.Params)
	}
	s, err := f(spec.ID, decode)
	if err != nil {
		return fmt.Errorf("strategy %q: %w", spec.ID, err)
	}
	if err := r.Register(s); err != nil {
		return fmt.Errorf("strategy %q: %w", spec.ID, err)
	}
	return nil
}
