package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
)

func trackerConfig() TrackerConfig {
	return TrackerConfig{
		Mode:              ModeAdditive,
		Increment:         1,
		InitialScore:      100,
		ProfitThreshold1:  0.02,
		ProfitThreshold2:  0.05,
		ProfitMultiplier1: 1,
		ProfitMultiplier2: 2,
		LossThreshold1:    0.02,
		LossThreshold2:    0.05,
		LossMultiplier1:   1,
		LossMultiplier2:   2,
		SimInitialCash:    10_000,
		SimTradeFraction:  0.1,
		Retry:             RetryPolicy{Max: 1},
	}
}

func newTestTracker(store *memStore, cfg TrackerConfig) (*PerformanceTracker, *nopMetrics) {
	m := newNopMetrics()
	return NewPerformanceTracker(store, m, nil, cfg), m
}

func TestClassify_TierBoundariesInclusive(t *testing.T) {
	tr, _ := newTestTracker(newMemStore(), trackerConfig())

	cases := []struct {
		r       float64
		outcome string
		tier    float64
	}{
		{0.05, outcomeSuccessful, 2},  // far edge of tier 2
		{0.07, outcomeSuccessful, 2},  // beyond both
		{0.02, outcomeSuccessful, 1},  // far edge of tier 1
		{0.03, outcomeSuccessful, 1},  // inside tier 1
		{0.019, outcomeNeutral, 0},    // just below tier 1
		{0, outcomeNeutral, 0},        // flat
		{-0.019, outcomeNeutral, 0},   // just above loss tier 1
		{-0.02, outcomeFailed, 1},     // far edge of loss tier 1
		{-0.03, outcomeFailed, 1},     // inside loss tier 1
		{-0.05, outcomeFailed, 2},     // far edge of loss tier 2
		{-0.09, outcomeFailed, 2},     // beyond both
	}
	for _, tc := range cases {
		outcome, tier := tr.classify(tc.r)
		assert.Equal(t, tc.outcome, outcome, "return %v", tc.r)
		assert.Equal(t, tc.tier, tier, "return %v", tc.r)
	}
}

func TestResolve_AdditiveLaw(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	// N favorable tier-1 resolutions move points by exactly N increments.
	for i := 0; i < 5; i++ {
		outcome, points, err := tr.Resolve(ctx, models.TradeOutcome{
			Strategy:   "alpha",
			Instrument: "AMZN",
			EntryPrice: 100,
			ExitPrice:  103,
			Side:       models.SideBuy,
		})
		require.NoError(t, err)
		require.Equal(t, outcomeSuccessful, outcome)
		require.Equal(t, 100+float64(i+1), points)
	}

	score, err := store.GetScore(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 105.0, score.Points)
}

func TestResolve_MultiplicativeLaw(t *testing.T) {
	cfg := trackerConfig()
	cfg.Mode = ModeMultiplicative
	cfg.Multiplier = 1.1
	store := newMemStore()
	tr, _ := newTestTracker(store, cfg)
	ctx := context.Background()

	var points float64
	for i := 0; i < 3; i++ {
		var err error
		_, points, err = tr.Resolve(ctx, models.TradeOutcome{
			Strategy:   "alpha",
			Instrument: "AMZN",
			EntryPrice: 100,
			ExitPrice:  103,
			Side:       models.SideBuy,
		})
		require.NoError(t, err)
	}
	assert.InDelta(t, 100*math.Pow(1.1, 3), points, 1e-9)

	// A tier-1 loss divides by the same factor.
	_, points, err := tr.Resolve(ctx, models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  97,
		Side:       models.SideBuy,
	})
	require.NoError(t, err)
	assert.InDelta(t, 100*math.Pow(1.1, 2), points, 1e-9)
}

func TestResolve_BalancedMode(t *testing.T) {
	cfg := trackerConfig()
	cfg.Mode = ModeBalanced
	cfg.Balance = 0.5
	cfg.Increment = 10
	tr, _ := newTestTracker(newMemStore(), cfg)

	_, points, err := tr.Resolve(context.Background(), models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  103,
		Side:       models.SideBuy,
	})
	require.NoError(t, err)
	// (1-beta)*prev + beta*sign*increment*tier
	assert.InDelta(t, 0.5*100+0.5*1*10*1, points, 1e-9)
}

func TestResolve_SellSideInvertsReturn(t *testing.T) {
	tr, _ := newTestTracker(newMemStore(), trackerConfig())

	// A short position profits from a falling price.
	outcome, points, err := tr.Resolve(context.Background(), models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  94,
		Side:       models.SideSell,
	})
	require.NoError(t, err)
	assert.Equal(t, outcomeSuccessful, outcome)
	assert.Equal(t, 102.0, points) // -6% move, inverted, lands in tier 2
}

func TestResolve_ValidatesInput(t *testing.T) {
	tr, _ := newTestTracker(newMemStore(), trackerConfig())
	ctx := context.Background()

	_, _, err := tr.Resolve(ctx, models.TradeOutcome{EntryPrice: 1, ExitPrice: 1})
	require.Error(t, err)

	_, _, err = tr.Resolve(ctx, models.TradeOutcome{Strategy: "alpha", EntryPrice: 0, ExitPrice: 100})
	require.Error(t, err)
}

func TestResolve_CounterInvariant(t *testing.T) {
	store := newMemStore()
	tr, m := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	exits := []float64{103, 106, 100.5, 97, 93, 101, 108}
	for _, exit := range exits {
		_, _, err := tr.Resolve(ctx, models.TradeOutcome{
			Strategy:   "alpha",
			Instrument: "AMZN",
			EntryPrice: 100,
			ExitPrice:  exit,
			Side:       models.SideBuy,
		})
		require.NoError(t, err)
	}

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	c := rec.Counters
	assert.Equal(t, int64(len(exits)), c.Total)
	assert.Equal(t, c.Total, c.Successful+c.Neutral+c.Failed)
	assert.Equal(t, int64(3), c.Successful)
	assert.Equal(t, int64(2), c.Neutral)
	assert.Equal(t, int64(2), c.Failed)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 3, m.resolutions[outcomeSuccessful])
	assert.Equal(t, 2, m.resolutions[outcomeNeutral])
	assert.Equal(t, 2, m.resolutions[outcomeFailed])
}

func TestTrack_BuyVoteOpensSimulatedPosition(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	err := tr.Track(ctx, votesFor("alpha", models.Buy, "AMZN"), map[string]float64{"AMZN": 100})
	require.NoError(t, err)

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, rec.Holdings["AMZN"], 1e-9) // 10% of 10k at price 100
	assert.Equal(t, 100.0, rec.Entries["AMZN"])
	assert.InDelta(t, 9_000.0, rec.Cash, 1e-9)
	assert.InDelta(t, 10_000.0, rec.PortfolioValue, 1e-9)
	assert.Equal(t, int64(0), rec.Counters.Total)
}

func TestTrack_OpposingVoteClosesAndResolves(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, votesFor("alpha", models.Buy, "AMZN"), map[string]float64{"AMZN": 100}))

	// Price inside the neutral band, so the sweep leaves the position
	// open and the opposing vote is what closes it.
	require.NoError(t, tr.Track(ctx, votesFor("alpha", models.Sell, "AMZN"), map[string]float64{"AMZN": 101}))

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, rec.Holdings)
	assert.InDelta(t, 10_010.0, rec.Cash, 1e-9)
	assert.Equal(t, int64(1), rec.Counters.Total)
	assert.Equal(t, int64(1), rec.Counters.Neutral)

	score, err := store.GetScore(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 100.0, score.Points) // neutral leaves points alone
}

func TestTrack_SweepResolvesSilentCycle(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, votesFor("alpha", models.Buy, "AMZN"), map[string]float64{"AMZN": 100}))

	// No votes this cycle; the stored book still gets swept.
	require.NoError(t, tr.Track(ctx, nil, map[string]float64{"AMZN": 94}))

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, rec.Holdings)
	assert.Equal(t, int64(1), rec.Counters.Failed)

	score, err := store.GetScore(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 98.0, score.Points) // tier-2 loss, increment 1 x2
}

func TestTrack_HoldNeverTrades(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, votesFor("alpha", models.Hold, "AMZN"), map[string]float64{"AMZN": 100}))

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, rec.Holdings)
	assert.Equal(t, 10_000.0, rec.Cash)
}

func TestTrack_MissingPriceSkipsVote(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())

	err := tr.Track(context.Background(), votesFor("alpha", models.Buy, "AMZN"), map[string]float64{})
	require.NoError(t, err)

	rec, err := store.GetStrategyRecord(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Empty(t, rec.Holdings)
}

func TestResolve_ClosesMatchingSimulatedPosition(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, votesFor("alpha", models.Buy, "AMZN"), map[string]float64{"AMZN": 100}))

	_, _, err := tr.Resolve(ctx, models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  101,
		Side:       models.SideBuy,
	})
	require.NoError(t, err)

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, rec.Holdings, "resolved position must not be swept again")
	assert.InDelta(t, 10_010.0, rec.Cash, 1e-9)
}

func TestSeed_LeavesExistingRecordsAlone(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	require.NoError(t, tr.Seed(ctx, []string{"alpha", "beta"}))

	score, err := store.GetScore(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, 100.0, score.Points)

	// Move alpha, then seed again; the earned state must survive.
	_, _, err = tr.Resolve(ctx, models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  103,
		Side:       models.SideBuy,
	})
	require.NoError(t, err)
	require.NoError(t, tr.Seed(ctx, []string{"alpha", "beta"}))

	score, err = store.GetScore(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 101.0, score.Points)

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Counters.Total)
}

func TestResolve_SurfacesPersistenceFailure(t *testing.T) {
	store := newMemStore()
	store.failUpsertScore = errors.New("store down")
	tr, _ := newTestTracker(store, trackerConfig())

	_, _, err := tr.Resolve(context.Background(), models.TradeOutcome{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  103,
		Side:       models.SideBuy,
	})
	require.Error(t, err)
	var perr *models.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestTrack_ConcurrentStrategiesStayIsolated(t *testing.T) {
	store := newMemStore()
	tr, _ := newTestTracker(store, trackerConfig())
	ctx := context.Background()

	votes := append(
		votesFor("alpha", models.Buy, "AMZN"),
		votesFor("beta", models.Sell, "META")...,
	)
	prices := map[string]float64{"AMZN": 100, "META": 50}
	require.NoError(t, tr.Track(ctx, votes, prices))

	alpha, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	beta, err := store.GetStrategyRecord(ctx, "beta")
	require.NoError(t, err)

	assert.InDelta(t, 10.0, alpha.Holdings["AMZN"], 1e-9)
	assert.InDelta(t, -20.0, beta.Holdings["META"], 1e-9) // short book
	assert.NotContains(t, alpha.Holdings, "META")
	assert.NotContains(t, beta.Holdings, "AMZN")
}
