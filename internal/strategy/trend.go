package strategy

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"FinRank/internal/domain/models"
)

// SMACross votes on simple moving average crossovers.
type SMACross struct {
	Fast int
	Slow int
}

func (s SMACross) Name() string  { return fmt.Sprintf("sma_cross_%d_%d", s.Fast, s.Slow) }
func (s SMACross) Lookback() int { return s.Slow + 2 }

func (s SMACross) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	fast := talib.Sma(closes, s.Fast)
	slow := talib.Sma(closes, s.Slow)
	switch {
	case crossAbove(fast, slow):
		return models.Buy, true
	case crossBelow(fast, slow):
		return models.Sell, true
	}
	return models.Hold, true
}

// EMACross votes on exponential moving average crossovers.
type EMACross struct {
	Fast int
	Slow int
}

func (s EMACross) Name() string  { return fmt.Sprintf("ema_cross_%d_%d", s.Fast, s.Slow) }
func (s EMACross) Lookback() int { return s.Slow + 2 }

func (s EMACross) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	fast := talib.Ema(closes, s.Fast)
	slow := talib.Ema(closes, s.Slow)
	switch {
	case crossAbove(fast, slow):
		return models.Buy, true
	case crossBelow(fast, slow):
		return models.Sell, true
	}
	return models.Hold, true
}

// MACDMomentum votes when the MACD histogram flips sign.
type MACDMomentum struct {
	Fast   int
	Slow   int
	Signal int
}

func (s MACDMomentum) Name() string {
	return fmt.Sprintf("macd_%d_%d_%d", s.Fast, s.Slow, s.Signal)
}

func (s MACDMomentum) Lookback() int { return s.Slow + s.Signal + 2 }

func (s MACDMomentum) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	_, _, hist := talib.Macd(closes, s.Fast, s.Slow, s.Signal)
	n := len(hist)
	if n < 2 {
		return models.Hold, false
	}
	prev, cur := hist[n-2], hist[n-1]
	if prev != prev || cur != cur {
		return models.Hold, false
	}
	switch {
	case prev <= 0 && cur > 0:
		return models.Buy, true
	case prev >= 0 && cur < 0:
		return models.Sell, true
	}
	return models.Hold, true
}

// Momentum votes on the rate of change over its period exceeding a
// fractional threshold of the last close.
type Momentum struct {
	Period    int
	Threshold float64
}

func (s Momentum) Name() string {
	return fmt.Sprintf("momentum_%d_%g", s.Period, s.Threshold)
}

func (s Momentum) Lookback() int { return s.Period + 2 }

func (s Momentum) Evaluate(series models.Series) (models.Signal, bool) {
	closes := series.Closes()
	if len(closes) < s.Lookback() {
		return models.Hold, false
	}
	mom, ok := last(talib.Mom(closes, s.Period))
	if !ok {
		return models.Hold, false
	}
	price := closes[len(closes)-1]
	if price == 0 {
		return models.Hold, false
	}
	ratio := mom / price
	switch {
	case ratio > s.Threshold:
		return models.Buy, true
	case ratio < -s.Threshold:
		return models.Sell, true
	}
	return models.Hold, true
}
