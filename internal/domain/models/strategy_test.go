package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRankTable_AcceptsNonIncreasingCoefficients(t *testing.T) {
	table, err := NewRankTable([]float64{1.0, 0.8, 0.8, 0.5})

	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())
	assert.Equal(t, 1.0, table.Coefficient(1))
	assert.Equal(t, 0.8, table.Coefficient(3), "equal neighbours are allowed")
}

func TestNewRankTable_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		coeffs []float64
	}{
		{"empty list", nil},
		{"coefficient above one", []float64{1.2, 0.5}},
		{"zero coefficient", []float64{1.0, 0}},
		{"negative coefficient", []float64{1.0, -0.1}},
		{"increasing run", []float64{0.5, 0.8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRankTable(tt.coeffs)
			assert.Error(t, err)
		})
	}
}

func TestCoefficient_FloorsRanksPastTableEnd(t *testing.T) {
	table, err := NewRankTable([]float64{1.0, 0.5})
	require.NoError(t, err)

	assert.Equal(t, 0.5, table.Coefficient(3))
	assert.Equal(t, 0.5, table.Coefficient(99), "the last coefficient is the floor")
}

func TestCoefficient_InvalidRankYieldsZero(t *testing.T) {
	table, err := NewRankTable([]float64{1.0})
	require.NoError(t, err)

	assert.Zero(t, table.Coefficient(0))
	assert.Zero(t, table.Coefficient(-2))
	assert.Zero(t, RankTable{}.Coefficient(1), "an empty table weights nothing")
}

func TestOpenPositions_DerivesSideFromHoldingSign(t *testing.T) {
	rec := &StrategyRecord{
		Name:     "sma_cross_10_50",
		Holdings: map[string]float64{"AMZN": 2, "META": -5, "MSFT": 0},
		Entries:  map[string]float64{"AMZN": 100, "META": 40},
	}

	positions := rec.OpenPositions()
	require.Len(t, positions, 2, "flat instruments are not positions")

	assert.Equal(t, "AMZN", positions[0].Instrument)
	assert.Equal(t, SideBuy, positions[0].Side)
	assert.Equal(t, 2.0, positions[0].Quantity)
	assert.Equal(t, 100.0, positions[0].EntryPrice)

	assert.Equal(t, "META", positions[1].Instrument)
	assert.Equal(t, SideSell, positions[1].Side)
	assert.Equal(t, 5.0, positions[1].Quantity, "short holdings come back positive")
}

func TestOpenPositions_EmptyBook(t *testing.T) {
	rec := &StrategyRecord{Name: "rsi_14_30_70"}
	assert.Nil(t, rec.OpenPositions())
}

func TestPersistenceError_WrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &PersistenceError{Op: "upsert_record", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upsert_record")
}

func TestExecutionError_ReportsTransience(t *testing.T) {
	transient := &ExecutionError{Transient: true, Err: errors.New("timeout")}
	permanent := &ExecutionError{Err: errors.New("rejected")}

	assert.Contains(t, transient.Error(), "transient")
	assert.Contains(t, permanent.Error(), "permanent")
}
