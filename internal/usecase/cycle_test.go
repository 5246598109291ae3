package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
	"FinRank/internal/strategy"
)

type stubIntentPublisher struct {
	mu      sync.Mutex
	batches [][]*models.TradeIntent
	err     error
}

func (p *stubIntentPublisher) Publish(_ context.Context, intent *models.TradeIntent) error {
	return p.PublishBatch(context.Background(), []*models.TradeIntent{intent})
}

func (p *stubIntentPublisher) PublishBatch(_ context.Context, intents []*models.TradeIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, intents)
	return nil
}

func (p *stubIntentPublisher) Close() error { return nil }

type stubRankingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *stubRankingPublisher) PublishRanking(context.Context, string, time.Time, []models.RankAssignment) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return nil
}

type cycleFixture struct {
	store    *memStore
	market   *stubMarket
	broker   *stubBroker
	intents  *stubIntentPublisher
	rankings *stubRankingPublisher
	cycle    *DecisionCycle
}

func newCycleFixture(t *testing.T, instruments []string) *cycleFixture {
	t.Helper()

	store := newMemStore()
	market := newStubMarket()
	broker := &stubBroker{cash: 10_000}
	intents := &stubIntentPublisher{}
	rankings := &stubRankingPublisher{}
	metrics := newNopMetrics()

	strategies := []strategy.Strategy{
		stubStrategy{name: "alpha", eval: alwaysVote(models.Buy)},
	}
	collector := NewSignalCollector(strategies, market, metrics, nil, CollectorConfig{
		Workers:     2,
		EvalTimeout: time.Second,
		HistoryBars: 10,
	})
	tracker := NewPerformanceTracker(store, metrics, nil, trackerConfig())

	table, err := models.NewRankTable([]float64{1.0, 0.5})
	require.NoError(t, err)
	ranker := NewRankingEngine(store, metrics, nil, table, RetryPolicy{Max: 1})
	weigher := NewDecisionWeigher(10, nil)
	allocator := NewPortfolioAllocator(broker, market, metrics, nil, testLimits())

	cycle := NewDecisionCycle(
		collector, tracker, ranker, weigher, allocator,
		broker, nil, intents, rankings, nil,
		metrics, nil,
		CycleConfig{Instruments: instruments, Timeout: 10 * time.Second},
	)
	return &cycleFixture{
		store:    store,
		market:   market,
		broker:   broker,
		intents:  intents,
		rankings: rankings,
		cycle:    cycle,
	}
}

func TestRun_FullCycleEmitsIntent(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	f.market.history["AMZN"] = flatSeries(10, 100)
	f.market.quotes["AMZN"] = 100
	ctx := context.Background()

	// A ranked strategy is what gives the vote its weight.
	require.NoError(t, f.store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "alpha", Points: 100}))

	res, err := f.cycle.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, res.Votes)
	require.Len(t, res.Rankings, 1)
	assert.Equal(t, "alpha", res.Rankings[0].Strategy)
	require.Len(t, res.Candidates, 1)
	assert.InDelta(t, 1.0, res.Candidates[0].Score, 1e-9)
	require.Len(t, res.Intents, 1)
	assert.Equal(t, models.SideBuy, res.Intents[0].Side)
	assert.Empty(t, res.Errors)
	assert.False(t, res.FinishedAt.IsZero())

	f.intents.mu.Lock()
	assert.Len(t, f.intents.batches, 1)
	f.intents.mu.Unlock()
	f.broker.mu.Lock()
	assert.Len(t, f.broker.submitted, 1)
	f.broker.mu.Unlock()
	f.rankings.mu.Lock()
	assert.Equal(t, 1, f.rankings.calls)
	f.rankings.mu.Unlock()

	assert.Same(t, res, f.cycle.Last())
}

func TestRun_OverlappingTriggerRejected(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	release := make(chan struct{})
	f.market.block = release

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.cycle.Run(context.Background())
	}()

	// Let the first run take the cycle lock.
	time.Sleep(50 * time.Millisecond)
	_, err := f.cycle.Run(context.Background())
	assert.ErrorIs(t, err, ErrCycleRunning)

	close(release)
	<-done

	// With the lock free again the next trigger goes through.
	_, err = f.cycle.Run(context.Background())
	assert.NoError(t, err)
}

func TestRun_PublishFailureIsNonFatal(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	f.market.history["AMZN"] = flatSeries(10, 100)
	f.market.quotes["AMZN"] = 100
	f.intents.err = errors.New("broker offline")
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "alpha", Points: 100}))

	res, err := f.cycle.Run(ctx)
	require.NoError(t, err, "output-side failures never abort the cycle")
	assert.Contains(t, res.Errors, "publish_intents")
	require.Len(t, res.Intents, 1)
}

func TestRun_TrackFailureAbortsWithPartialResult(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	f.market.history["AMZN"] = flatSeries(10, 100)
	f.store.failUpsertRecord = errors.New("store down")

	res, err := f.cycle.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, res, "partial result is still returned")
	assert.Contains(t, res.Errors, "track")
	assert.Empty(t, res.Rankings, "ranking never ran")

	var perr *models.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestRunFor_OverridesInstrumentUniverse(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	f.market.history["MSFT"] = flatSeries(10, 20)
	f.market.quotes["MSFT"] = 20
	ctx := context.Background()

	require.NoError(t, f.store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "alpha", Points: 100}))

	res, err := f.cycle.RunFor(ctx, []string{"MSFT"})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "MSFT", res.Candidates[0].Instrument)
	assert.NotContains(t, res.Errors, "data:AMZN", "configured universe is not touched this run")
}

func TestRun_DataMissForWholeUniverse(t *testing.T) {
	f := newCycleFixture(t, []string{"AMZN"})
	// No history at all: the cycle completes with zero votes.
	res, err := f.cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Votes)
	assert.Empty(t, res.Intents)
	assert.Contains(t, res.Errors, "data:AMZN")
}
