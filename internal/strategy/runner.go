package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
	"Conductor/internal/services/dataaccess"
	applogger "Conductor/pkg/logger"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Workers <= 1 runs strategies one after another.
	Workers int
	// Timeout is the per-strategy time budget; 0 disables it.
	Timeout time.Duration
	// Persist records a strategy run and its signals in RunStore.
	Persist  bool
	RunStore domrepo.RunStore
	Metrics  domrepo.Metrics
	Logger   *applogger.Logger
}

// Runner executes strategies over a universe with failure isolation.
type Runner struct {
	opts  RunnerOptions
	l     *applogger.Logger
	newID func() string
}

func NewRunner(opts RunnerOptions) *Runner {
	l := opts.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &Runner{opts: opts, l: l, newID: NewID}
}

// NewID returns a random uuid as 32 hex chars.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RunInput is everything one runner invocation reads.
type RunInput struct {
	Strategies  []Strategy
	Universe    []string
	Store       domrepo.BarStore
	Now         time.Time
	CycleID     string
	Config      map[string]map[string]interface{}
	Constraints models.Constraints
}

type prepared struct {
	s       Strategy
	sc      *Context
	version string
	hash    string
}

type outcome struct {
	signals []models.Signal
	err     *models.StrategyRunError
}

// Run prefetches data for every strategy, executes them and pools their
// signals. Strategy failures are recorded in RunResult.Errors in strategy
// order; only a prefetch failure is returned as an error.
func (r *Runner) Run(ctx context.Context, in RunInput) (models.RunResult, error) {
	start := time.Now()
	universe := append([]string(nil), in.Universe...)

	runID := ""
	if r.opts.Persist && r.opts.RunStore != nil {
		runID = r.newID()
		ids := make([]string, len(in.Strategies))
		for i, s := range in.Strategies {
			ids[i] = s.ID()
		}
		err := r.opts.RunStore.CreateRun(ctx, models.StrategyRun{
			RunID:        runID,
			EvalTS:       in.Now,
			Strategies:   ids,
			UniverseSize: len(universe),
			StartedAt:    time.Now().UTC(),
		})
		if err != nil {
			r.l.Error("strategy run create failed", applogger.Error(err))
			runID = ""
		}
	}

	rl := r.l.With(
		applogger.Int("strategy_count", len(in.Strategies)),
		applogger.Int("symbol_count", len(universe)),
		applogger.Time("as_of", in.Now),
		applogger.Int("max_workers", r.opts.Workers),
		applogger.String("run_id", runID),
	)
	rl.Info("run_start")

	// phase 1: prefetch on the calling goroutine
	preps := make([]prepared, 0, len(in.Strategies))
	for _, s := range in.Strategies {
		tf := domrepo.DefaultTimeframe()
		if tfs := s.Timeframes(); len(tfs) > 0 {
			tf = tfs[0]
		}
		reader := dataaccess.NewReader(in.Store, in.Now)
		if err := reader.Prefetch(ctx, universe, tf, s.LookbackBars()); err != nil {
			return models.RunResult{}, fmt.Errorf("prefetch for %s: %w", s.ID(), err)
		}
		cfg := in.Config[s.ID()]
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		preps = append(preps, prepared{
			s: s,
			sc: &Context{
				Now:         in.Now,
				Universe:    universe,
				Timeframe:   tf,
				Data:        reader,
				Config:      cfg,
				Constraints: in.Constraints,
			},
			version: s.Version(),
			hash:    ParamsHash(s),
		})
	}

	// phase 2: execute
	outcomes := make([]outcome, len(preps))
	if r.opts.Workers <= 1 || len(preps) <= 1 {
		for i, p := range preps {
			outcomes[i] = r.execute(ctx, p, rl)
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(r.opts.Workers)
		for i, p := range preps {
			i, p := i, p
			g.Go(func() error {
				outcomes[i] = r.execute(ctx, p, rl)
				return nil
			})
		}
		_ = g.Wait()
	}

	// phase 3: pool
	var (
		signals []models.Signal
		errs    []models.StrategyRunError
	)
	for i, o := range outcomes {
		if o.err != nil {
			errs = append(errs, *o.err)
			if r.opts.Metrics != nil {
				r.opts.Metrics.RecordStrategyError(o.err.StrategyID, o.err.ErrorType)
			}
			continue
		}
		p := preps[i]
		for _, s := range o.signals {
			signals = append(signals, s.WithRunMetadata(r.newID(), in.CycleID, p.version, p.hash))
		}
	}
	models.SortSignals(signals)
	if signals == nil {
		signals = []models.Signal{}
	}
	if errs == nil {
		errs = []models.StrategyRunError{}
	}

	elapsed := math.Round(float64(time.Since(start).Microseconds())/10) / 100
	res := models.RunResult{
		RunID:         runID,
		Signals:       signals,
		Errors:        errs,
		ElapsedMS:     elapsed,
		StrategiesRun: len(in.Strategies),
	}

	if runID != "" {
		r.persist(ctx, runID, res, rl)
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordLatency("strategy_run", time.Since(start).Seconds())
	}
	rl.Info("run_complete",
		applogger.Int("signals", len(signals)),
		applogger.Int("errors", len(errs)),
		applogger.Float64("elapsed_ms", elapsed),
	)
	return res, nil
}

func (r *Runner) persist(ctx context.Context, runID string, res models.RunResult, rl *applogger.Logger) {
	run := models.StrategyRun{
		RunID:     runID,
		Errors:    len(res.Errors),
		ElapsedMS: res.ElapsedMS,
	}
	written, err := r.opts.RunStore.SaveSignals(ctx, runID, res.Signals)
	if err != nil {
		rl.Error("persist_failed", applogger.Error(err))
		run.Error = err.Error()
	} else {
		run.SignalsWritten = written
	}
	run.CompletedAt = time.Now().UTC()
	if err := r.opts.RunStore.CompleteRun(ctx, run); err != nil {
		rl.Error("strategy run complete failed", applogger.Error(err))
	}
}

// execute runs one strategy on its own goroutine and waits for it, bounded
// by the time budget. A late result is sent to a buffered channel that is
// never read again.
func (r *Runner) execute(ctx context.Context, p prepared, rl *applogger.Logger) outcome {
	id := p.s.ID()
	sl := rl.With(
		applogger.String("strategy_id", id),
		applogger.String("version", p.version),
		applogger.String("params_hash", p.hash),
	)

	runCtx := ctx
	cancel := func() {}
	if r.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		done <- r.call(runCtx, p)
	}()

	var timeout <-chan time.Time
	if r.opts.Timeout > 0 {
		timer := time.NewTimer(r.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case o := <-done:
		if o.err != nil {
			sl.Warn("strategy_failed",
				applogger.String("error_type", o.err.ErrorType),
				applogger.String("error_message", o.err.Message),
			)
			return o
		}
		sl.Info("strategy_complete", applogger.Int("signal_count", len(o.signals)))
		return o
	case <-timeout:
		sl.Warn("strategy_timeout", applogger.Duration("timeout_ms", r.opts.Timeout))
		return r.failure(p, models.ErrorTypeTimeout, fmt.Sprintf("%s exceeded time budget of %s", id, r.opts.Timeout))
	case <-ctx.Done():
		return r.failure(p, models.ErrorTypeExecution, ctx.Err().Error())
	}
}

func (r *Runner) call(ctx context.Context, p prepared) (o outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			o = r.failure(p, models.ErrorTypePanic, fmt.Sprintf("%v", rec))
		}
	}()

	sigs, err := p.s.Run(ctx, p.sc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return r.failure(p, models.ErrorTypeTimeout, fmt.Sprintf("%s exceeded time budget of %s", p.s.ID(), r.opts.Timeout))
		}
		return r.failure(p, models.ErrorTypeExecution, err.Error())
	}
	valid, err := validateSignals(p.s.ID(), sigs)
	if err != nil {
		return r.failure(p, models.ErrorTypeStrategy, err.Error())
	}
	return outcome{signals: valid}
}

func (r *Runner) failure(p prepared, kind, msg string) outcome {
	return outcome{err: &models.StrategyRunError{
		StrategyID: p.s.ID(),
		Version:    p.version,
		ErrorType:  kind,
		Message:    msg,
	}}
}
