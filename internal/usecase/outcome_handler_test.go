package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
)

func newTestOutcomeHandler(store *memStore) *OutcomeHandler {
	tracker, _ := newTestTracker(store, trackerConfig())
	return NewOutcomeHandler(tracker, nil, newNopMetrics(), nil)
}

func TestApply_ResolvesThroughTracker(t *testing.T) {
	store := newMemStore()
	h := newTestOutcomeHandler(store)
	ctx := context.Background()

	err := h.Apply(ctx, &OutcomeMessage{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  106,
		Side:       "buy",
	})
	require.NoError(t, err)

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Counters.Successful)

	score, err := store.GetScore(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 102.0, score.Points) // tier-2 win on the additive rule
}

func TestApply_RejectsIncompleteEvents(t *testing.T) {
	h := newTestOutcomeHandler(newMemStore())
	ctx := context.Background()

	assert.Error(t, h.Apply(ctx, &OutcomeMessage{Instrument: "AMZN", EntryPrice: 1, ExitPrice: 1}))
	assert.Error(t, h.Apply(ctx, &OutcomeMessage{Strategy: "alpha", EntryPrice: 1, ExitPrice: 1}))
	assert.Error(t, h.Apply(ctx, &OutcomeMessage{Strategy: "alpha", Instrument: "AMZN", ExitPrice: 1}))
}

func TestApply_DefaultsToBuySide(t *testing.T) {
	store := newMemStore()
	h := newTestOutcomeHandler(store)
	ctx := context.Background()

	// An unknown side string falls back to buy, so a price drop is a loss.
	err := h.Apply(ctx, &OutcomeMessage{
		Strategy:   "alpha",
		Instrument: "AMZN",
		EntryPrice: 100,
		ExitPrice:  94,
		Side:       "long",
	})
	require.NoError(t, err)

	rec, err := store.GetStrategyRecord(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Counters.Failed)
}

func TestKafkaOutcomeHandler_DecodesAndApplies(t *testing.T) {
	store := newMemStore()
	h := NewKafkaOutcomeHandler("finrank.outcomes", newTestOutcomeHandler(store))
	assert.Equal(t, "finrank.outcomes", h.Topic())

	payload, err := json.Marshal(OutcomeMessage{
		Strategy:   "alpha",
		Instrument: "META",
		EntryPrice: 50,
		ExitPrice:  48,
		Side:       "sell",
	})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), payload))

	rec, err := store.GetStrategyRecord(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Counters.Successful, "short side profits from the drop")
}

func TestKafkaOutcomeHandler_RejectsMalformedPayload(t *testing.T) {
	h := NewKafkaOutcomeHandler("finrank.outcomes", newTestOutcomeHandler(newMemStore()))
	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
}

func TestOutcomeJob_ParsesQueuePayload(t *testing.T) {
	store := newMemStore()
	j := NewOutcomeJob(newTestOutcomeHandler(store))
	assert.Equal(t, "trade_outcome_job", j.Name())
	assert.Equal(t, "trade_outcome", j.Type())

	// Queue payloads arrive as decoded JSON maps.
	payload := map[string]interface{}{
		"strategy":    "alpha",
		"instrument":  "AMZN",
		"entry_price": 100.0,
		"exit_price":  103.0,
		"side":        "buy",
	}
	require.NoError(t, j.Handle(context.Background(), payload))

	score, err := store.GetScore(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 101.0, score.Points)
}
