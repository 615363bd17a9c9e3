//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"Conductor/pkg/config"
	"Conductor/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,

		// Storage
		ProvideBarStore,
		ProvideGormStore,
		ProvideIntentStore,
		ProvideRunStore,

		// Messaging
		ProvideKafkaProducer,
		ProvideIntentPublisher,
		ProvideKafkaConsumer,

		// Decision cycle
		ProvideRegimeSource,
		ProvideStrategyRegistry,
		ProvideOrchestratorConfig,
		ProvideOrchestrator,
		ProvideCycleDefaults,
		ProvideCycleService,
		ProvideCycleHandler,

		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
