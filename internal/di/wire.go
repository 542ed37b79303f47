//go:build wireinject
// +build wireinject

package di

import (
	"AnimaRex/pkg/config"
	"AnimaRex/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// State and infrastructure clients
		ProvideBadger,
		ProvideRedis,
		ProvideStateStore,
		ProvideClickHouseClient,

		// Broker session
		ProvideReconnectFunc,
		ProvideSessionCell,

		// Core services
		ProvideSignalBus,
		ProvideStrategies,
		ProvideAggregator,
		ProvideGate,
		ProvideSupervisor,
		ProvideBreaker,

		// Repositories
		ProvideBarSource,
		ProvideOutcomeLog,
		ProvideEventPublisher,

		// Use cases
		ProvideOrchestrator,
		ProvideWeightsReloader,
		ProvideWorkerPool,
		ProvideMonitors,
		ProvideCron,
		ProvideKafkaConsumer,
		ProvideKafkaSignalsHandler,

		// Transport and application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
