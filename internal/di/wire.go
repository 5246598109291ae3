//go:build wireinject
// +build wireinject

package di

import (
	"FinRank/pkg/config"
	"FinRank/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation; run `wire ./internal/di` after
// changing providers.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCacheService,
		ProvideBytesCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Stores and publishers
		ProvideStrategyStore,
		ProvideHistoryStore,
		ProvideIntentPublisher,
		ProvideRankingPublisher,

		// Market data
		ProvideMarketStream,
		ProvideSnapshotProvider,
		ProvideMarketData,
		ProvideTickPipeline,
		ProvideTickCollector,

		// Engine stages
		ProvideStrategies,
		ProvideSignalCollector,
		ProvideTracker,
		ProvideRankTable,
		ProvideRankingEngine,
		ProvideWeigher,
		ProvideBroker,
		ProvideAllocator,
		ProvideNewsAnalyst,
		ProvideDecisionCycle,

		// Outcome intake
		ProvideOutcomeHandler,
		ProvideKafkaConsumer,
		ProvideKafkaOutcomeHandler,
		ProvideOutcomeQueue,

		// Surface
		ProvideMarketCandles,
		ProvideEngineHandler,
		ProvideScheduler,
		ProvideApp,
	)
	return &server.App{}, nil
}
