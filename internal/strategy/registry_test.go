package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
)

func seriesFrom(closes ...float64) models.Series {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make(models.Series, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1,
		}
	}
	return out
}

func TestBuildDefault_EnsembleComposition(t *testing.T) {
	ensemble := BuildDefault()

	require.Len(t, ensemble, 110, "parameter grid should expand to 110 members")

	seen := make(map[string]bool, len(ensemble))
	for _, name := range Names(ensemble) {
		assert.False(t, seen[name], "duplicate member name %q", name)
		seen[name] = true
	}
}

func TestBuildDefault_MaxLookbackCoversSlowestMember(t *testing.T) {
	ensemble := BuildDefault()

	// The 200-bar crossovers need two extra bars to detect the cross.
	assert.Equal(t, 202, MaxLookback(ensemble))
}

func TestBuildDefault_AbstainsOnInsufficientHistory(t *testing.T) {
	short := seriesFrom(100, 101, 102)

	for _, s := range BuildDefault() {
		_, voted := s.Evaluate(short)
		assert.False(t, voted, "%s voted on a 3-bar series", s.Name())
	}
}

func TestSMACross_SignalsOnCrossovers(t *testing.T) {
	s := SMACross{Fast: 2, Slow: 3}
	require.Equal(t, 5, s.Lookback())

	tests := []struct {
		name   string
		closes []float64
		want   models.Signal
	}{
		{"fast crosses above slow", []float64{10, 10, 10, 9, 12}, models.Buy},
		{"fast crosses below slow", []float64{10, 10, 10, 11, 8}, models.Sell},
		{"no cross on flat prices", []float64{10, 10, 10, 10, 10}, models.Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, voted := s.Evaluate(seriesFrom(tt.closes...))
			require.True(t, voted)
			assert.Equal(t, tt.want, sig)
		})
	}
}

func TestMomentum_ThresholdGatesVote(t *testing.T) {
	s := Momentum{Period: 2, Threshold: 0.01}

	sig, voted := s.Evaluate(seriesFrom(100, 100, 100, 105))
	require.True(t, voted)
	assert.Equal(t, models.Buy, sig, "a strong two-bar advance clears the threshold")

	sig, voted = s.Evaluate(seriesFrom(100, 100, 100, 95))
	require.True(t, voted)
	assert.Equal(t, models.Sell, sig)

	sig, voted = s.Evaluate(seriesFrom(100, 100, 100, 100))
	require.True(t, voted)
	assert.Equal(t, models.Hold, sig, "flat momentum stays inside the threshold")
}

func TestZScoreReversion_FadesStretchedMoves(t *testing.T) {
	s := ZScoreReversion{Window: 4, Entry: 1.0}

	// Window [100 100 100 110]: mean 102.5, sample sd 5, z = +1.5.
	sig, voted := s.Evaluate(seriesFrom(100, 100, 100, 100, 110))
	require.True(t, voted)
	assert.Equal(t, models.Sell, sig, "stretch above the mean is faded short")

	sig, voted = s.Evaluate(seriesFrom(100, 100, 100, 100, 90))
	require.True(t, voted)
	assert.Equal(t, models.Buy, sig)

	sig, voted = s.Evaluate(seriesFrom(100, 100, 100, 100, 100))
	require.True(t, voted)
	assert.Equal(t, models.Hold, sig, "zero dispersion cannot signal")
}
