package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	segkafka "github.com/segmentio/kafka-go"

	"FinRank/internal/domain/models"
	"FinRank/internal/domain/repository"
	domsvc "FinRank/internal/domain/service"
	"FinRank/internal/handler/api"
	mid "FinRank/internal/middleware"
	internalrepo "FinRank/internal/repository"
	"FinRank/internal/scheduler"
	"FinRank/internal/service/broker"
	icache "FinRank/internal/service/cache"
	"FinRank/internal/service/marketdata"
	"FinRank/internal/service/news"
	"FinRank/internal/strategy"
	"FinRank/internal/usecase"
	pkgcache "FinRank/pkg/cache"
	pkgch "FinRank/pkg/clickhouse"
	"FinRank/pkg/config"
	pkgkafka "FinRank/pkg/kafka"
	applogger "FinRank/pkg/logger"
	"FinRank/pkg/metrics"
	pkgqueue "FinRank/pkg/queue"
	"FinRank/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the shared Redis client. Connections are
// lazy; an unused client in sqlite/kafka mode costs nothing.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
	})
}

// ProvideCacheService builds the snapshot/news cache: layered
// memory+Redis when the store runs on Redis, plain memory otherwise.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if cfg.Store.Driver != "redis" {
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(4096),
			pkgcache.WithMemoryCleanup(time.Minute),
		), nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Store.Redis.Addr)
	if err != nil {
		return nil, fmt.Errorf("redis addr %q: %w", cfg.Store.Redis.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("redis port %q: %w", portStr, err)
	}

	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Store.Redis.Password),
		pkgcache.WithRedisDB(cfg.Store.Redis.DB),
		pkgcache.WithRedisPool(20, 5, 3*time.Second),
		pkgcache.WithRedisPrefix(cfg.Store.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(2048)), nil
}

// ProvideBytesCache builds the handler-level response cache.
func ProvideBytesCache(cfg *config.Config) icache.BytesCache {
	if cfg.Store.Driver == "redis" {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideStrategyStore selects the strategy store backend.
func ProvideStrategyStore(cfg *config.Config, client *redis.Client) (repository.StrategyStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		return internalrepo.NewRedisStrategyStore(client), nil
	case "sqlite":
		store, err := internalrepo.NewSQLiteStrategyStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// analytic history is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore creates the ClickHouse analytic history, or nil
// when ClickHouse is disabled. Schema init runs at app startup.
func ProvideHistoryStore(chClient *pkgch.Client, l *applogger.Logger) repository.HistoryStore {
	if chClient == nil {
		return nil
	}
	store := internalrepo.NewCHHistoryStore(chClient)
	store.SetLogger(l)
	return store
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no
// brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideIntentPublisher publishes trade intents to Kafka.
func ProvideIntentPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.IntentPublisher {
	if producer == nil || cfg.Kafka.IntentsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaIntentPublisher(producer, cfg.Kafka.IntentsTopic)
}

// ProvideRankingPublisher publishes ranking snapshots to Kafka.
func ProvideRankingPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RankingPublisher {
	if producer == nil || cfg.Kafka.RankingsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaRankingPublisher(producer, cfg.Kafka.RankingsTopic)
}

// ProvideMarketStream creates the live trade stream, or nil when no
// WebSocket URL is configured.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) repository.MarketStream {
	if cfg.MarketData.WebSocketURL == "" {
		return nil
	}
	return marketdata.NewStream(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.Symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
		l,
	)
}

// ProvideSnapshotProvider layers the cycle snapshot cache over the
// REST candle client.
func ProvideSnapshotProvider(cfg *config.Config, cacheSvc pkgcache.Service, l *applogger.Logger) *marketdata.SnapshotProvider {
	candles := marketdata.NewCandleClient(
		cfg.MarketData.APIKey,
		cfg.MarketData.BaseURL,
		cfg.MarketData.RequestTimeout,
		l,
	)
	return marketdata.NewSnapshotProvider(candles, cacheSvc, 0, l)
}

// ProvideMarketData exposes the snapshot provider as the cycle's
// market data source.
func ProvideMarketData(snap *marketdata.SnapshotProvider) repository.MarketData {
	return snap
}

// ProvideTickPipeline builds the throttle/buffer stage between the
// live stream and the snapshot cache.
func ProvideTickPipeline(snap *marketdata.SnapshotProvider, m repository.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(snap, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideTickCollector pumps the live stream through the pipeline, or
// nil when streaming is disabled.
func ProvideTickCollector(stream repository.MarketStream, pipe *mid.TickPipeline, m repository.Metrics) *marketdata.TickCollector {
	if stream == nil {
		return nil
	}
	return marketdata.NewTickCollector(stream, pipe, m)
}

// ProvideStrategies builds the default strategy ensemble.
func ProvideStrategies() []strategy.Strategy {
	return strategy.BuildDefault()
}

// ProvideSignalCollector creates the ensemble vote collector.
func ProvideSignalCollector(
	strategies []strategy.Strategy,
	market repository.MarketData,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalCollector {
	return usecase.NewSignalCollector(strategies, market, m, l, usecase.CollectorConfig{
		Workers:     cfg.Engine.Workers,
		EvalTimeout: cfg.Engine.EvalTimeout,
		HistoryBars: cfg.MarketData.HistoryBars,
		Timeframe:   repository.NormalizeTimeframe(cfg.MarketData.Timeframe),
	})
}

func retryPolicy(cfg *config.Config) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		Max:        cfg.Store.Retry.Max,
		BackoffMin: cfg.Store.Retry.BackoffMin,
		BackoffMax: cfg.Store.Retry.BackoffMax,
	}
}

// ProvideTracker creates the performance tracker with the configured
// time-delta rule and tier thresholds.
func ProvideTracker(store repository.StrategyStore, m repository.Metrics, l *applogger.Logger, cfg *config.Config) *usecase.PerformanceTracker {
	return usecase.NewPerformanceTracker(store, m, l, usecase.TrackerConfig{
		Mode:              cfg.Engine.TimeDeltaMode,
		Increment:         cfg.Engine.TimeDeltaIncrement,
		Multiplier:        cfg.Engine.TimeDeltaMultiplier,
		Balance:           cfg.Engine.TimeDeltaBalance,
		InitialScore:      cfg.Engine.InitialScore,
		ProfitThreshold1:  cfg.Engine.ProfitThreshold1,
		ProfitThreshold2:  cfg.Engine.ProfitThreshold2,
		ProfitMultiplier1: cfg.Engine.ProfitMultiplier1,
		ProfitMultiplier2: cfg.Engine.ProfitMultiplier2,
		LossThreshold1:    cfg.Engine.LossThreshold1,
		LossThreshold2:    cfg.Engine.LossThreshold2,
		LossMultiplier1:   cfg.Engine.LossMultiplier1,
		LossMultiplier2:   cfg.Engine.LossMultiplier2,
		SimInitialCash:    cfg.Engine.SimInitialCash,
		SimTradeFraction:  cfg.Engine.SimTradeFraction,
		Retry:             retryPolicy(cfg),
	})
}

// ProvideRankTable validates the configured rank coefficients.
func ProvideRankTable(cfg *config.Config) (models.RankTable, error) {
	return models.NewRankTable(cfg.Engine.RankCoefficients)
}

// ProvideRankingEngine creates the ranking engine.
func ProvideRankingEngine(store repository.StrategyStore, m repository.Metrics, l *applogger.Logger, table models.RankTable, cfg *config.Config) *usecase.RankingEngine {
	return usecase.NewRankingEngine(store, m, l, table, retryPolicy(cfg))
}

// ProvideWeigher creates the decision weigher.
func ProvideWeigher(cfg *config.Config, l *applogger.Logger) *usecase.DecisionWeigher {
	return usecase.NewDecisionWeigher(cfg.Engine.SuggestionLimit, l)
}

// ProvideBroker selects the execution backend. External mode leaves
// execution to the intent topic consumer.
func ProvideBroker(cfg *config.Config, market repository.MarketData, l *applogger.Logger) domsvc.BrokerExecutor {
	if cfg.Broker.Mode == "external" {
		return nil
	}
	return broker.NewPaperBroker(cfg.Broker.InitialCash, market, l)
}

// ProvideAllocator creates the portfolio allocator with the configured
// limits.
func ProvideAllocator(
	b domsvc.BrokerExecutor,
	market repository.MarketData,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.PortfolioAllocator {
	return usecase.NewPortfolioAllocator(b, market, m, l, models.PortfolioLimits{
		LiquidityReserve: cfg.Portfolio.LiquidityLimit,
		MaxAllocation:    cfg.Portfolio.AssetAllocationLimit,
		StopLoss:         cfg.Portfolio.StopLoss,
		TakeProfit:       cfg.Portfolio.TakeProfit,
		AllowPartial:     cfg.Portfolio.AllowPartial,
		BaseOrderValue:   cfg.Portfolio.BaseOrderValue,
		ScoreNorm:        cfg.Portfolio.ScoreNorm,
		LotStep:          cfg.Portfolio.LotStep,
	})
}

// ProvideNewsAnalyst creates the advisory news analyst, or nil when
// disabled.
func ProvideNewsAnalyst(cfg *config.Config, cacheSvc pkgcache.Service, l *applogger.Logger) domsvc.NewsAnalyst {
	if !cfg.News.Enabled {
		return nil
	}
	return news.NewAnalyst(news.Config{
		MarketAuxKey:   cfg.News.MarketAuxKey,
		NewsDataKey:    cfg.News.NewsDataKey,
		FetchTimeout:   cfg.News.FetchTimeout,
		LLMBaseURL:     cfg.News.LLMBaseURL,
		LLMAPIKey:      cfg.News.LLMAPIKey,
		LLMModel:       cfg.News.LLMModel,
		LLMTimeout:     cfg.News.LLMTimeout,
		CacheTTL:       cfg.News.CacheTTL,
		HeadlinesLimit: cfg.News.HeadlinesLimit,
	}, cacheSvc, l)
}

// ProvideDecisionCycle chains the engine stages.
func ProvideDecisionCycle(
	collector *usecase.SignalCollector,
	tracker *usecase.PerformanceTracker,
	ranker *usecase.RankingEngine,
	weigher *usecase.DecisionWeigher,
	allocator *usecase.PortfolioAllocator,
	b domsvc.BrokerExecutor,
	analyst domsvc.NewsAnalyst,
	intents repository.IntentPublisher,
	rankings repository.RankingPublisher,
	history repository.HistoryStore,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.DecisionCycle {
	return usecase.NewDecisionCycle(
		collector, tracker, ranker, weigher, allocator,
		b, analyst, intents, rankings, history,
		m, l,
		usecase.CycleConfig{
			Instruments: cfg.MarketData.Symbols,
			NewsEnabled: cfg.News.Enabled,
		},
	)
}

// ProvideOutcomeHandler creates the shared outcome-intake core.
func ProvideOutcomeHandler(tracker *usecase.PerformanceTracker, history repository.HistoryStore, m repository.Metrics, l *applogger.Logger) *usecase.OutcomeHandler {
	return usecase.NewOutcomeHandler(tracker, history, m, l)
}

// ProvideKafkaConsumer creates the outcome-intake Kafka consumer, or
// nil when intake runs on the Redis queue.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Intake.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaOutcomeHandler adapts the outcome core to the Kafka
// consumer, or nil when intake runs on the Redis queue.
func ProvideKafkaOutcomeHandler(cfg *config.Config, core *usecase.OutcomeHandler) *usecase.KafkaOutcomeHandler {
	if cfg.Intake.Type != "kafka" {
		return nil
	}
	return usecase.NewKafkaOutcomeHandler(cfg.Intake.OutcomesTopic, core)
}

// ProvideOutcomeQueue creates the Redis-queue outcome consumer, or nil
// when intake runs on Kafka.
func ProvideOutcomeQueue(cfg *config.Config, client *redis.Client, core *usecase.OutcomeHandler, l *applogger.Logger) *pkgqueue.RedisQueue {
	if cfg.Intake.Type != "redis" {
		return nil
	}
	return pkgqueue.NewRedisConsumer(l, &pkgqueue.QueueConfig{
		Workers:    cfg.Intake.Workers,
		RetryLimit: cfg.Intake.RetryLimit,
		RetryDelay: cfg.Intake.RetryDelay,
	}, client, []pkgqueue.Job{usecase.NewOutcomeJob(core)})
}

// ProvideEngineHandler creates the HTTP handler with its optional
// collaborators.
// ProvideMarketCandles exposes the engine's own price snapshots over
// the read API.
func ProvideMarketCandles(market repository.MarketData) *usecase.MarketCandles {
	return usecase.NewMarketCandles(market)
}

func ProvideEngineHandler(
	cycle *usecase.DecisionCycle,
	store repository.StrategyStore,
	history repository.HistoryStore,
	analyst domsvc.NewsAnalyst,
	candles *usecase.MarketCandles,
	bytesCache icache.BytesCache,
	l *applogger.Logger,
) *api.EngineHandler {
	h := api.NewEngineHandler(cycle, store)
	h.SetHistory(history)
	h.SetNews(analyst)
	h.SetCandles(candles)
	h.SetCache(bytesCache)
	h.SetLogger(l)
	return h
}

// ProvideScheduler creates the cron scheduler.
func ProvideScheduler(l *applogger.Logger) *scheduler.Scheduler {
	return scheduler.New(l)
}

// outcomeIntakeHooks chains the intake lifecycle hooks: trace ids are
// lifted from message headers, then each message is timed.
func outcomeIntakeHooks(l *applogger.Logger) *pkgkafka.HookChain {
	tracing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			return pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km)), km, data, nil
		},
	}
	timing := pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			return pkgkafka.WithStartTime(ctx, time.Now()), km, data, nil
		},
		After: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			start, ok := ctx.Value(pkgkafka.CtxStartTime).(time.Time)
			if !ok {
				return
			}
			fields := []applogger.Field{
				applogger.String("topic", topic),
				applogger.Int64("offset", km.Offset),
				applogger.Duration("took", time.Since(start)),
			}
			if trace, ok := ctx.Value(pkgkafka.CtxTraceID).(string); ok {
				fields = append(fields, applogger.String("trace_id", trace))
			}
			if err != nil {
				l.Warn("outcome message failed", append(fields, applogger.Error(err))...)
				return
			}
			l.Debug("outcome message handled", fields...)
		},
	}
	return pkgkafka.NewHookChain(tracing, timing)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	cycle *usecase.DecisionCycle,
	tracker *usecase.PerformanceTracker,
	strategies []strategy.Strategy,
	store repository.StrategyStore,
	handler *api.EngineHandler,
	sched *scheduler.Scheduler,
	collector *marketdata.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaOutcomeHandler,
	queue *pkgqueue.RedisQueue,
	producer *pkgkafka.Producer,
	history repository.HistoryStore,
	chClient *pkgch.Client,
	client *redis.Client,
	cacheSvc pkgcache.Service,
) *server.App {
	app := server.New(cfg, l, cycle, tracker, store)
	app.SetHTTPHandler(handler)
	app.SetScheduler(sched)
	app.SetTickCollector(collector)
	if consumer != nil && kh != nil {
		consumer.WithConsumerHook(outcomeIntakeHooks(l))
		app.SetConsumer(consumer, kh)
	}
	app.SetQueue(queue)
	app.SetProducer(producer)
	app.SetHistory(history)
	app.SetClickHouse(chClient)
	app.SetRedis(client)
	app.SetCacheService(cacheSvc)
	app.SetStrategyNames(strategy.Names(strategies))
	return app
}
