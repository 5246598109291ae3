package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/domain/service"
	applogger "FinRank/pkg/logger"
)

// ErrCycleRunning is returned when a trigger overlaps a cycle already
// in flight. Cycles never run concurrently.
var ErrCycleRunning = errors.New("decision cycle already running")

// CycleConfig bounds one scheduled run.
type CycleConfig struct {
	Instruments []string
	Timeout     time.Duration
	NewsEnabled bool
}

// DecisionCycle chains the engine stages into one run: collect votes,
// settle the simulated books, rank, weigh, allocate, then publish and
// record. Ranking starts only after every tracker update has settled.
// Output-side failures (publishers, history, news) are reported in the
// result's Errors map and never abort the run.
type DecisionCycle struct {
	collector *SignalCollector
	tracker   *PerformanceTracker
	ranker    *RankingEngine
	weigher   *DecisionWeigher
	allocator *PortfolioAllocator

	broker   service.BrokerExecutor
	news     service.NewsAnalyst // optional
	intents  domrepo.IntentPublisher
	rankings domrepo.RankingPublisher
	history  domrepo.HistoryStore

	metrics domrepo.Metrics
	l       *applogger.Logger
	cfg     CycleConfig

	mu sync.Mutex

	lastMu sync.RWMutex
	last   *models.CycleResult
}

func NewDecisionCycle(
	collector *SignalCollector,
	tracker *PerformanceTracker,
	ranker *RankingEngine,
	weigher *DecisionWeigher,
	allocator *PortfolioAllocator,
	broker service.BrokerExecutor,
	news service.NewsAnalyst,
	intents domrepo.IntentPublisher,
	rankings domrepo.RankingPublisher,
	history domrepo.HistoryStore,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg CycleConfig,
) *DecisionCycle {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &DecisionCycle{
		collector: collector,
		tracker:   tracker,
		ranker:    ranker,
		weigher:   weigher,
		allocator: allocator,
		broker:    broker,
		news:      news,
		intents:   intents,
		rankings:  rankings,
		history:   history,
		metrics:   metrics,
		l:         l,
		cfg:       cfg,
	}
}

// Run executes one full decision cycle over the configured instruments.
// A store failure beyond the retry budget aborts the rest of the run;
// the previous ranking stays in effect and the partial result is still
// returned.
func (c *DecisionCycle) Run(ctx context.Context) (*models.CycleResult, error) {
	return c.RunFor(ctx, nil)
}

// RunFor runs one cycle over the given instruments, falling back to
// the configured universe when the list is empty. Used by the manual
// HTTP trigger.
func (c *DecisionCycle) RunFor(ctx context.Context, instruments []string) (*models.CycleResult, error) {
	if !c.mu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer c.mu.Unlock()

	if len(instruments) == 0 {
		instruments = c.cfg.Instruments
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now().UTC()
	res := &models.CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: start,
		Sentiment: map[string]models.NewsSentiment{},
		Errors:    map[string]string{},
	}
	status := "ok"
	defer func() {
		res.FinishedAt = time.Now().UTC()
		c.metrics.RecordCycle(status, res.FinishedAt.Sub(start).Seconds())
		c.lastMu.Lock()
		c.last = res
		c.lastMu.Unlock()
	}()

	if c.l != nil {
		c.l.Info("decision cycle started",
			applogger.String("cycle_id", res.CycleID),
			applogger.Int("instruments", len(instruments)))
	}

	collected := c.collector.Collect(ctx, instruments)
	res.Votes = len(collected.Votes)
	res.Abstained = collected.Abstained
	res.Failures = collected.Failures
	for inst, msg := range collected.Errors {
		res.Errors["data:"+inst] = msg
	}
	prices := collected.Prices()

	if err := c.tracker.Track(ctx, collected.Votes, prices); err != nil {
		status = "failed"
		res.Errors["track"] = err.Error()
		return res, fmt.Errorf("cycle %s track: %w", res.CycleID, err)
	}

	ranks, err := c.ranker.Rank(ctx)
	if err != nil {
		status = "failed"
		res.Errors["rank"] = err.Error()
		return res, fmt.Errorf("cycle %s rank: %w", res.CycleID, err)
	}
	res.Rankings = ranks
	c.publishRanking(ctx, res)

	res.Candidates = c.weigher.Weigh(collected.Votes, ranks)

	alloc, err := c.allocator.Allocate(ctx, res.Candidates, prices)
	if err != nil {
		status = "failed"
		res.Errors["allocate"] = err.Error()
		return res, fmt.Errorf("cycle %s allocate: %w", res.CycleID, err)
	}
	res.Rejections = alloc.Rejections
	for _, intent := range alloc.Intents {
		res.Intents = append(res.Intents, *intent)
	}

	c.execute(ctx, alloc.Intents, res)
	c.publishIntents(ctx, alloc.Intents, res)
	c.fetchSentiment(ctx, res)
	c.recordHistory(ctx, res, alloc.Intents)

	if c.l != nil {
		c.l.Info("decision cycle finished",
			applogger.String("cycle_id", res.CycleID),
			applogger.Int("votes", res.Votes),
			applogger.Int("abstained", res.Abstained),
			applogger.Int("candidates", len(res.Candidates)),
			applogger.Int("intents", len(res.Intents)),
			applogger.Int("rejections", len(res.Rejections)),
			applogger.Duration("took", time.Since(start)))
	}
	return res, nil
}

// Last returns the most recent cycle result, partial results included,
// or nil before the first run.
func (c *DecisionCycle) Last() *models.CycleResult {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last
}

// execute submits intents to the broker. Transient failures get one
// more attempt; permanent ones are recorded and skipped.
func (c *DecisionCycle) execute(ctx context.Context, intents []*models.TradeIntent, res *models.CycleResult) {
	if c.broker == nil {
		return
	}
	for _, intent := range intents {
		_, err := c.broker.SubmitOrder(ctx, intent)
		var execErr *models.ExecutionError
		if err != nil && errors.As(err, &execErr) && execErr.Transient {
			select {
			case <-ctx.Done():
				res.Errors["execute:"+intent.Instrument] = ctx.Err().Error()
				return
			case <-time.After(250 * time.Millisecond):
			}
			_, err = c.broker.SubmitOrder(ctx, intent)
		}
		if err != nil {
			res.Errors["execute:"+intent.Instrument] = err.Error()
			if c.l != nil {
				c.l.Error("order submission failed",
					applogger.String("intent_id", intent.ID),
					applogger.String("instrument", intent.Instrument),
					applogger.Error(err))
			}
		}
	}
}

func (c *DecisionCycle) publishIntents(ctx context.Context, intents []*models.TradeIntent, res *models.CycleResult) {
	if c.intents == nil || len(intents) == 0 {
		return
	}
	if err := c.intents.PublishBatch(ctx, intents); err != nil {
		res.Errors["publish_intents"] = err.Error()
		if c.l != nil {
			c.l.Error("intent publish failed", applogger.Error(err))
		}
	}
}

func (c *DecisionCycle) publishRanking(ctx context.Context, res *models.CycleResult) {
	if c.rankings == nil || len(res.Rankings) == 0 {
		return
	}
	if err := c.rankings.PublishRanking(ctx, res.CycleID, res.StartedAt, res.Rankings); err != nil {
		res.Errors["publish_ranking"] = err.Error()
		if c.l != nil {
			c.l.Error("ranking publish failed", applogger.Error(err))
		}
	}
}

// fetchSentiment attaches an advisory news read to each candidate.
// Purely informational; misses are dropped.
func (c *DecisionCycle) fetchSentiment(ctx context.Context, res *models.CycleResult) {
	if !c.cfg.NewsEnabled || c.news == nil || len(res.Candidates) == 0 {
		return
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, cand := range res.Candidates {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sent, err := c.news.AggregatedSentiment(ctx, symbol)
			if err != nil {
				if c.l != nil {
					c.l.Debug("news sentiment unavailable",
						applogger.String("symbol", symbol),
						applogger.Error(err))
				}
				return
			}
			mu.Lock()
			res.Sentiment[symbol] = sent
			mu.Unlock()
		}(cand.Instrument)
	}
	wg.Wait()
}

func (c *DecisionCycle) recordHistory(ctx context.Context, res *models.CycleResult, intents []*models.TradeIntent) {
	if c.history == nil {
		return
	}
	if len(intents) > 0 {
		if err := c.history.StoreIntents(ctx, res.CycleID, intents); err != nil {
			res.Errors["history_intents"] = err.Error()
			if c.l != nil {
				c.l.Error("intent history write failed", applogger.Error(err))
			}
		}
	}
	if len(res.Rankings) > 0 {
		if err := c.history.StoreRankings(ctx, res.CycleID, res.StartedAt, res.Rankings); err != nil {
			res.Errors["history_rankings"] = err.Error()
			if c.l != nil {
				c.l.Error("ranking history write failed", applogger.Error(err))
			}
		}
	}
}
