package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"Conductor/internal/domain/models"
	"Conductor/internal/usecase"
	"Conductor/pkg/config"
	xhttp "Conductor/pkg/http"
	pkgkafka "Conductor/pkg/kafka"
	applogger "Conductor/pkg/logger"
)

// App owns the long-running parts of the orchestrator: the cycle scheduler,
// the HTTP API and the bar-close trigger consumer.
type App struct {
	cfg        *config.Config
	cycles     *usecase.CycleService
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	trigger    pkgkafka.MessageHandler
	l          *applogger.Logger
}

// New creates a new App. consumer may be nil.
func New(
	cfg *config.Config,
	cycles *usecase.CycleService,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	trigger pkgkafka.MessageHandler,
	l *applogger.Logger,
) *App {
	return &App{
		cfg:        cfg,
		cycles:     cycles,
		httpServer: httpServer,
		consumer:   consumer,
		trigger:    trigger,
		l:          l,
	}
}

// Run blocks until ctx is cancelled or a component fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.consumer != nil {
		a.consumer.RegisterHandler(a.trigger)
		if err := a.consumer.Start(gctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		a.l.Info("trigger consumer started", applogger.String("topic", a.trigger.Topic()))
	}

	if a.cfg.Scheduler.Enabled {
		g.Go(func() error {
			a.l.Info("cycle scheduler started", applogger.Duration("interval", a.cfg.Scheduler.Interval))
			return a.cycles.Start(gctx, a.cfg.Scheduler.Interval)
		})
	}

	if a.httpServer != nil {
		g.Go(a.httpServer.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		a.l.Info("shutting down")
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if a.httpServer != nil {
		err = multierr.Append(err, a.httpServer.Stop(ctx))
	}
	if a.consumer != nil {
		err = multierr.Append(err, a.consumer.Stop(ctx))
	}
	if err != nil {
		a.l.Error("shutdown finished with errors", applogger.Error(err))
	}
	// flush collected warn/error logs while the producer is still open
	a.l.RemoveCollector()
	return err
}

// RunOnce runs a single cycle and returns its intent.
func (a *App) RunOnce(ctx context.Context, asOf *time.Time) (models.PortfolioIntent, error) {
	return a.cycles.RunCycle(ctx, usecase.CycleRequest{AsOf: asOf})
}
