package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
)

func assignments(coeffs map[string]float64) []models.RankAssignment {
	out := make([]models.RankAssignment, 0, len(coeffs))
	rank := 1
	for name, c := range coeffs {
		out = append(out, models.RankAssignment{Strategy: name, Rank: rank, Coefficient: c})
		rank++
	}
	return out
}

func TestWeigh_WeightedMajority(t *testing.T) {
	w := NewDecisionWeigher(10, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "AMZN", Signal: models.Buy},
		{Strategy: "beta", Instrument: "AMZN", Signal: models.Sell},
	}
	ranks := assignments(map[string]float64{"alpha": 0.8, "beta": 0.3})

	cands := w.Weigh(votes, ranks)
	require.Len(t, cands, 1)
	assert.Equal(t, "AMZN", cands[0].Instrument)
	assert.InDelta(t, 0.5, cands[0].Score, 1e-9, "0.8x(+1) + 0.3x(-1)")
	assert.Greater(t, cands[0].Score, 0.0, "net buy-leaning")
}

func TestWeigh_CapsAtSuggestionLimit(t *testing.T) {
	w := NewDecisionWeigher(2, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "AAA", Signal: models.Buy},
		{Strategy: "alpha", Instrument: "BBB", Signal: models.Sell},
		{Strategy: "beta", Instrument: "BBB", Signal: models.Sell},
		{Strategy: "alpha", Instrument: "CCC", Signal: models.Buy},
		{Strategy: "beta", Instrument: "CCC", Signal: models.Buy},
		{Strategy: "gamma", Instrument: "CCC", Signal: models.Buy},
		{Strategy: "gamma", Instrument: "DDD", Signal: models.Sell},
	}
	ranks := assignments(map[string]float64{"alpha": 0.5, "beta": 0.5, "gamma": 0.5})

	cands := w.Weigh(votes, ranks)
	require.Len(t, cands, 2)
	// CCC: +1.5, BBB: -1.0, AAA: +0.5, DDD: -0.5
	assert.Equal(t, "CCC", cands[0].Instrument)
	assert.InDelta(t, 1.5, cands[0].Score, 1e-9)
	assert.Equal(t, "BBB", cands[1].Instrument)
	assert.InDelta(t, -1.0, cands[1].Score, 1e-9)
}

func TestWeigh_OrdersByAbsoluteScore(t *testing.T) {
	w := NewDecisionWeigher(10, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "UP", Signal: models.Buy},
		{Strategy: "beta", Instrument: "DOWN", Signal: models.Sell},
	}
	ranks := assignments(map[string]float64{"alpha": 0.4, "beta": 0.9})

	cands := w.Weigh(votes, ranks)
	require.Len(t, cands, 2)
	assert.Equal(t, "DOWN", cands[0].Instrument, "|-0.9| beats |0.4|")
	assert.InDelta(t, -0.9, cands[0].Score, 1e-9)
	assert.Equal(t, "UP", cands[1].Instrument)
}

func TestWeigh_TiesBreakByInstrument(t *testing.T) {
	w := NewDecisionWeigher(3, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "BBB", Signal: models.Buy},
		{Strategy: "alpha", Instrument: "AAA", Signal: models.Buy},
		{Strategy: "alpha", Instrument: "CCC", Signal: models.Sell},
	}
	ranks := assignments(map[string]float64{"alpha": 0.5})

	cands := w.Weigh(votes, ranks)
	require.Len(t, cands, 3)
	assert.Equal(t, "AAA", cands[0].Instrument)
	assert.Equal(t, "BBB", cands[1].Instrument)
	assert.Equal(t, "CCC", cands[2].Instrument)
}

func TestWeigh_DropsUnrankedStrategies(t *testing.T) {
	w := NewDecisionWeigher(10, nil)
	votes := []models.Vote{
		{Strategy: "ghost", Instrument: "AMZN", Signal: models.Buy},
	}
	ranks := assignments(map[string]float64{"alpha": 1.0})

	cands := w.Weigh(votes, ranks)
	assert.Empty(t, cands, "a vote without a coefficient carries no weight")
}

func TestWeigh_HoldVoteCountsInstrument(t *testing.T) {
	w := NewDecisionWeigher(10, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "AMZN", Signal: models.Hold},
	}
	ranks := assignments(map[string]float64{"alpha": 1.0})

	cands := w.Weigh(votes, ranks)
	require.Len(t, cands, 1, "an explicit Hold is still a counted vote")
	assert.Zero(t, cands[0].Score)
}

func TestWeigh_NoVotesNoCandidates(t *testing.T) {
	w := NewDecisionWeigher(10, nil)
	assert.Empty(t, w.Weigh(nil, assignments(map[string]float64{"alpha": 1.0})))
}

func TestWeigh_DeterministicAcrossRuns(t *testing.T) {
	w := NewDecisionWeigher(4, nil)
	votes := []models.Vote{
		{Strategy: "alpha", Instrument: "AAA", Signal: models.Buy},
		{Strategy: "beta", Instrument: "BBB", Signal: models.Buy},
		{Strategy: "gamma", Instrument: "CCC", Signal: models.Sell},
		{Strategy: "alpha", Instrument: "DDD", Signal: models.Sell},
		{Strategy: "beta", Instrument: "EEE", Signal: models.Buy},
	}
	ranks := assignments(map[string]float64{"alpha": 0.6, "beta": 0.6, "gamma": 0.6})

	first := w.Weigh(votes, ranks)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, w.Weigh(votes, ranks))
	}
}
