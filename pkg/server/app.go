package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/scheduler"
	"FinRank/internal/service/marketdata"
	"FinRank/internal/usecase"
	pkgcache "FinRank/pkg/cache"
	pkgch "FinRank/pkg/clickhouse"
	"FinRank/pkg/config"
	xhttp "FinRank/pkg/http"
	pkgkafka "FinRank/pkg/kafka"
	applogger "FinRank/pkg/logger"
	pkgqueue "FinRank/pkg/queue"
)

// cycleLeaseTTL bounds how long a replica may hold the decision cycle
// lease; it must exceed the longest expected cycle.
const cycleLeaseTTL = 5 * time.Minute

// App encapsulates the entire application lifecycle: the decision
// cycle with its scheduler, the live tick intake, the outcome intake
// and the HTTP API.
type App struct {
	cfg     *config.Config
	l       *applogger.Logger
	cycle   *usecase.DecisionCycle
	tracker *usecase.PerformanceTracker
	store   domrepo.StrategyStore

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	sched       *scheduler.Scheduler
	collector   *marketdata.TickCollector
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	queue       *pkgqueue.RedisQueue
	auditQueue  *pkgqueue.RedisQueue
	producer    *pkgkafka.Producer
	history     domrepo.HistoryStore
	chClient    *pkgch.Client
	redis       *redis.Client
	cacheSvc    pkgcache.Service
	strategies  []string
}

// New creates a new App instance around the core engine pieces.
// Optional collaborators arrive via setters.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	cycle *usecase.DecisionCycle,
	tracker *usecase.PerformanceTracker,
	store domrepo.StrategyStore,
) *App {
	return &App{
		cfg:     cfg,
		l:       l,
		cycle:   cycle,
		tracker: tracker,
		store:   store,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

func (a *App) SetScheduler(s *scheduler.Scheduler) { a.sched = s }

func (a *App) SetTickCollector(c *marketdata.TickCollector) { a.collector = c }

// SetConsumer attaches the Kafka outcome intake.
func (a *App) SetConsumer(c *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = c
	a.kh = kh
}

func (a *App) SetQueue(q *pkgqueue.RedisQueue) { a.queue = q }

func (a *App) SetProducer(p *pkgkafka.Producer) { a.producer = p }

func (a *App) SetHistory(h domrepo.HistoryStore) { a.history = h }

func (a *App) SetClickHouse(c *pkgch.Client) { a.chClient = c }

func (a *App) SetRedis(c *redis.Client) { a.redis = c }

// SetCacheService attaches the shared cache; scheduled cycles use its
// lease to elect a single runner across replicas.
func (a *App) SetCacheService(c pkgcache.Service) { a.cacheSvc = c }

// SetStrategyNames provides the ensemble roster for seeding.
func (a *App) SetStrategyNames(names []string) { a.strategies = names }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Error audit stream: repeated error lines collapse into counted
	// entries before they leave the process.
	if topic := a.cfg.Kafka.AuditTopic; topic != "" {
		var sink applogger.Publisher
		if a.producer != nil {
			sink = kafkaAuditSink{p: a.producer}
		} else if a.redis != nil {
			a.auditQueue = pkgqueue.NewRedisPublisher(a.l, a.redis, pkgqueue.WithKeyPrefix("finrank:audit"))
			sink = a.auditQueue
		}
		if sink != nil {
			a.l.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          topic,
				Publisher:      sink,
			})
			a.l.Info("error audit attached", applogger.String("topic", topic))
		}
	}

	// Analytic history schema first; cycles write into it.
	if a.history != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		err := a.history.Init(initCtx)
		initCancel()
		if err != nil {
			a.l.Error("history init failed", applogger.Error(err))
			return err
		}
	}

	// Seed books so the first ranking covers the whole ensemble.
	if err := a.tracker.Seed(ctx, a.strategies); err != nil {
		a.l.Error("strategy seed failed", applogger.Error(err))
		return err
	}
	a.l.Info("strategy books seeded", applogger.Int("strategies", len(a.strategies)))

	// Live tick intake
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("tick collector error", applogger.Error(err))
			}
		}()
		a.l.Info("tick collector started", applogger.Strings("symbols", a.cfg.MarketData.Symbols))
	}

	// Outcome intake: Kafka consumer or Redis queue
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("outcome intake started", applogger.String("topic", a.kh.Topic()))
	}
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.l.Error("outcome queue start failed", applogger.Error(err))
			return err
		}
		a.l.Info("outcome intake started", applogger.String("transport", "redis"))
	}

	// Scheduled decision cycles
	if a.sched != nil && a.cfg.Scheduler.Enabled && a.cfg.Scheduler.Cron != "" {
		err := a.sched.AddJob(a.cfg.Scheduler.Cron, "decision_cycle", a.runScheduledCycle)
		if err != nil {
			a.l.Error("cycle schedule invalid", applogger.Error(err))
			return err
		}
		a.sched.Start()
	}

	// HTTP API
	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithMetricsEndpoint(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
		xhttp.WithLogger(a.l),
	}
	if a.cfg.Server.Host != "" {
		opts = append(opts, xhttp.WithHost(a.cfg.Server.Host))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// runScheduledCycle runs one decision cycle under the replica lease.
// Only one replica at a time may execute cycles against the shared
// store; the others skip the trigger.
func (a *App) runScheduledCycle(jobCtx context.Context) error {
	if a.cacheSvc != nil {
		key := pkgcache.Key("lock", "cycle")
		held, lockErr := a.cacheSvc.TryLock(jobCtx, key, cycleLeaseTTL)
		if lockErr != nil {
			a.l.Warn("cycle lease unavailable, running without it", applogger.Error(lockErr))
		} else if !held {
			a.l.Debug("cycle trigger skipped, another replica holds the lease")
			return nil
		} else {
			defer func() {
				if err := a.cacheSvc.Unlock(context.Background(), key); err != nil {
					a.l.Warn("cycle lease release failed", applogger.Error(err))
				}
			}()
		}
	}

	_, err := a.cycle.Run(jobCtx)
	if errors.Is(err, usecase.ErrCycleRunning) {
		a.l.Debug("cycle trigger skipped, previous run still active")
		return nil
	}
	return err
}

// kafkaAuditSink adapts the Kafka producer to the log collector's
// publisher contract.
type kafkaAuditSink struct {
	p *pkgkafka.Producer
}

func (s kafkaAuditSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.p.Publish(ctx, topic, nil, payload)
}

// shutdown gracefully stops all services, intake before outputs.
func (a *App) shutdown(ctx context.Context) error {
	// Flush pending audit entries while the sink is still up.
	a.l.RemoveCollector()

	if a.sched != nil {
		a.sched.Stop()
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("tick collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.l.Warn("outcome queue stop error", applogger.Error(err))
		}
	}
	if a.auditQueue != nil {
		if err := a.auditQueue.Stop(ctx); err != nil {
			a.l.Warn("audit queue stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.l.Warn("history close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.l.Warn("store close error", applogger.Error(err))
		}
	}
	// The redis store owns the shared client; close it separately only
	// when the store runs on sqlite.
	if a.redis != nil && a.cfg.Store.Driver != "redis" {
		if err := a.redis.Close(); err != nil {
			a.l.Warn("redis close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
