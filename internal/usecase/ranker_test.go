package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
)

func testRankTable(t *testing.T, coeffs ...float64) models.RankTable {
	t.Helper()
	table, err := models.NewRankTable(coeffs)
	require.NoError(t, err)
	return table
}

func scoreSet(points map[string]float64) []*models.PerformanceScore {
	out := make([]*models.PerformanceScore, 0, len(points))
	for name, p := range points {
		out = append(out, &models.PerformanceScore{Strategy: name, Points: p})
	}
	return out
}

func TestRankScores_OrdersByPointsThenName(t *testing.T) {
	table := testRankTable(t, 1.0, 0.8, 0.5)
	scores := scoreSet(map[string]float64{
		"gamma": 120,
		"alpha": 90,
		"beta":  120,
	})

	ranks := RankScores(scores, table)
	require.Len(t, ranks, 3)

	// Equal points break lexicographically: beta before gamma.
	assert.Equal(t, "beta", ranks[0].Strategy)
	assert.Equal(t, 1, ranks[0].Rank)
	assert.Equal(t, 1.0, ranks[0].Coefficient)

	assert.Equal(t, "gamma", ranks[1].Strategy)
	assert.Equal(t, 2, ranks[1].Rank)
	assert.Equal(t, 0.8, ranks[1].Coefficient)

	assert.Equal(t, "alpha", ranks[2].Strategy)
	assert.Equal(t, 3, ranks[2].Rank)
	assert.Equal(t, 0.5, ranks[2].Coefficient)
}

func TestRankScores_Idempotent(t *testing.T) {
	table := testRankTable(t, 1.0, 0.7, 0.4, 0.2)
	scores := scoreSet(map[string]float64{
		"a": 10, "b": 10, "c": -5, "d": 42,
	})

	first := RankScores(scores, table)
	second := RankScores(scores, table)
	assert.Equal(t, first, second)
}

func TestRankScores_RanksPastTableTakeFloor(t *testing.T) {
	table := testRankTable(t, 1.0, 0.5)
	scores := scoreSet(map[string]float64{"a": 3, "b": 2, "c": 1, "d": 0})

	ranks := RankScores(scores, table)
	require.Len(t, ranks, 4)
	assert.Equal(t, 0.5, ranks[1].Coefficient)
	assert.Equal(t, 0.5, ranks[2].Coefficient, "rank 3 floors to the last coefficient")
	assert.Equal(t, 0.5, ranks[3].Coefficient)
}

func TestRankScores_CoefficientsNonIncreasing(t *testing.T) {
	table := testRankTable(t, 1.0, 0.9, 0.8, 0.7, 0.6)
	scores := scoreSet(map[string]float64{
		"a": 5, "b": 17, "c": 12, "d": -3, "e": 0, "f": 9,
	})

	ranks := RankScores(scores, table)
	for i := 1; i < len(ranks); i++ {
		assert.LessOrEqual(t, ranks[i].Coefficient, ranks[i-1].Coefficient)
		assert.Equal(t, i+1, ranks[i].Rank)
	}
}

func TestRank_PersistsAssignments(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "alpha", Points: 10}))
	require.NoError(t, store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "beta", Points: 20}))

	engine := NewRankingEngine(store, newNopMetrics(), nil, testRankTable(t, 1.0, 0.5), RetryPolicy{Max: 1})
	ranks, err := engine.Rank(ctx)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	assert.Equal(t, "beta", ranks[0].Strategy)

	stored, err := store.GetRankCoefficients(ctx)
	require.NoError(t, err)
	assert.Equal(t, ranks, stored)
}

func TestRank_KeepsPreviousTableOnPersistenceFailure(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertScore(ctx, &models.PerformanceScore{Strategy: "alpha", Points: 10}))

	previous := []models.RankAssignment{{Strategy: "old", Rank: 1, Coefficient: 1}}
	require.NoError(t, store.UpsertRankCoefficients(ctx, previous))

	store.failUpsertRanks = errors.New("store down")
	engine := NewRankingEngine(store, newNopMetrics(), nil, testRankTable(t, 1.0), RetryPolicy{Max: 2, BackoffMin: 1, BackoffMax: 1})

	_, err := engine.Rank(ctx)
	require.Error(t, err)
	var perr *models.PersistenceError
	assert.True(t, errors.As(err, &perr))

	stored, err := store.GetRankCoefficients(ctx)
	require.NoError(t, err)
	assert.Equal(t, previous, stored, "failed upsert must not clobber the previous coefficients")
}

func TestRank_EmptyScoreSet(t *testing.T) {
	store := newMemStore()
	engine := NewRankingEngine(store, newNopMetrics(), nil, testRankTable(t, 1.0), RetryPolicy{Max: 1})

	ranks, err := engine.Rank(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ranks)
	assert.Zero(t, store.upsertRankCalls, "nothing to persist for an empty universe")
}
