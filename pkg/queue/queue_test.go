package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	Strategy string  `json:"strategy"`
	Profit   float64 `json:"profit"`
}

func TestParsePayload_TypedValuesPassThrough(t *testing.T) {
	want := outcome{Strategy: "sma_cross", Profit: 0.03}

	byValue, err := ParsePayload[outcome](want)
	require.NoError(t, err)
	assert.Equal(t, want, *byValue)

	byPointer, err := ParsePayload[outcome](&want)
	require.NoError(t, err)
	assert.Same(t, &want, byPointer)
}

func TestParsePayload_DecodesRawJSON(t *testing.T) {
	raw := json.RawMessage(`{"strategy":"rsi_revert","profit":-0.01}`)

	got, err := ParsePayload[outcome](raw)
	require.NoError(t, err)
	assert.Equal(t, "rsi_revert", got.Strategy)
	assert.Equal(t, -0.01, got.Profit)
}

func TestParsePayload_RemarshalsGenericMaps(t *testing.T) {
	// BRPop hands payloads back as map[string]interface{}.
	payload := map[string]interface{}{"strategy": "macd_trend", "profit": 0.05}

	got, err := ParsePayload[outcome](payload)
	require.NoError(t, err)
	assert.Equal(t, "macd_trend", got.Strategy)
	assert.Equal(t, 0.05, got.Profit)
}

func TestParsePayload_RejectsUnknownTypes(t *testing.T) {
	_, err := ParsePayload[outcome](42)
	assert.Error(t, err)
}
