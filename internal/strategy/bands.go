package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"FinRank/internal/domain/models"
)

// BollingerReversion buys closes under the lower band and sells closes
// over the upper band.
type BollingerReversion struct {
	Period int
	NumDev float64
}

func (s BollingerReversion) Name() string {
	return fmt.Sprintf("bbands_%d_%g", s.Period, s.NumDev)
}

func (s BollingerReversion) Lookback() int { return s.Period + 2 }

func (s BollingerReversion) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	// MAType 0 = SMA
	upper, _, lower := talib.BBands(closes, s.Period, s.NumDev, s.NumDev, 0)
	up, okU := last(upper)
	lo, okL := last(lower)
	if !okU || !okL {
		return models.Hold, false
	}
	price := closes[len(closes)-1]
	switch {
	case price < lo:
		return models.Buy, true
	case price > up:
		return models.Sell, true
	}
	return models.Hold, true
}
