package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"FinRank/internal/domain/models"
)

// RSIReversion buys oversold and sells overbought RSI readings.
type RSIReversion struct {
	Period     int
	OverSold   float64
	OverBought float64
}

func (s RSIReversion) Name() string {
	return fmt.Sprintf("rsi_%d_%g_%g", s.Period, s.OverSold, s.OverBought)
}

func (s RSIReversion) Lookback() int { return s.Period + 2 }

func (s RSIReversion) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	rsi, ok := last(talib.Rsi(closes, s.Period))
	if !ok {
		return models.Hold, false
	}
	switch {
	case rsi < s.OverSold:
		return models.Buy, true
	case rsi > s.OverBought:
		return models.Sell, true
	}
	return models.Hold, true
}

// StochasticOsc votes on slow stochastic extremes.
type StochasticOsc struct {
	KPeriod int
	DPeriod int
}

func (s StochasticOsc) Name() string {
	return fmt.Sprintf("stoch_%d_%d", s.KPeriod, s.DPeriod)
}

func (s StochasticOsc) Lookback() int { return s.KPeriod + 2*s.DPeriod + 2 }

func (s StochasticOsc) Evaluate(series models.Series) (models.Signal, bool) {
	if len(series) < s.Lookback() {
		return models.Hold, false
	}
	// MAType 0 = SMA smoothing for both %K and %D.
	slowK, _ := talib.Stoch(series.Highs(), series.Lows(), series.Closes(),
		s.KPeriod, s.DPeriod, 0, s.DPeriod, 0)
	k, ok := last(slowK)
	if !ok {
		return models.Hold, false
	}
	switch {
	case k < 20:
		return models.Buy, true
	case k > 80:
		return models.Sell, true
	}
	return models.Hold, true
}

// WilliamsR votes on Williams %R extremes.
type WilliamsR struct {
	Period int
}

func (s WilliamsR) Name() string  { return fmt.Sprintf("willr_%d", s.Period) }
func (s WilliamsR) Lookback() int { return s.Period + 2 }

func (s WilliamsR) Evaluate(series models.Series) (models.Signal, bool) {
	if len(series) < s.Lookback() {
		return models.Hold, false
	}
	wr, ok := last(talib.WillR(series.Highs(), series.Lows(), series.Closes(), s.Period))
	if !ok {
		return models.Hold, false
	}
	switch {
	case wr < -80:
		return models.Buy, true
	case wr > -20:
		return models.Sell, true
	}
	return models.Hold, true
}

// CCIReversion votes on commodity channel index extremes.
type CCIReversion struct {
	Period int
}

func (s CCIReversion) Name() string  { return fmt.Sprintf("cci_%d", s.Period) }
func (s CCIReversion) Lookback() int { return s.Period + 2 }

func (s CCIReversion) Evaluate(series models.Series) (models.Signal, bool) {
	if len(series) < s.Lookback() {
		return models.Hold, false
	}
	cci, ok := last(talib.Cci(series.Highs(), series.Lows(), series.Closes(), s.Period))
	if !ok {
		return models.Hold, false
	}
	switch {
	case cci < -100:
		return models.Buy, true
	case cci > 100:
		return models.Sell, true
	}
	return models.Hold, true
}
