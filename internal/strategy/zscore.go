package strategy

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"FinRank/internal/domain/models"
)

// ZScoreReversion votes against moves stretched beyond Entry standard
// deviations from the rolling mean.
type ZScoreReversion struct {
	Window int
	Entry  float64
}

func (s ZScoreReversion) Name() string {
	return fmt.Sprintf("zscore_%d_%g", s.Window, s.Entry)
}

func (s ZScoreReversion) Lookback() int { return s.Window + 1 }

func (s ZScoreReversion) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	window := closes[len(closes)-s.Window:]
	mean := stat.Mean(window, nil)
	sd := stat.StdDev(window, nil)
	if sd == 0 {
		return models.Hold, true
	}
	z := (closes[len(closes)-1] - mean) / sd
	switch {
	case z <= -s.Entry:
		return models.Buy, true
	case z >= s.Entry:
		return models.Sell, true
	}
	return models.Hold, true
}
