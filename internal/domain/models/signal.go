package models

import "time"

// Signal is a strategy's verdict for one instrument.
type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	default:
		return "UNKNOWN"
	}
}

// Value is the contribution a vote carries into weighted aggregation.
func (s Signal) Value() float64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// Vote is one strategy's signal for one instrument within a single
// decision cycle. Ephemeral; never persisted.
type Vote struct {
	Strategy   string
	Instrument string
	Signal     Signal
}

// Candidate pairs an instrument with its aggregate weighted score.
type Candidate struct {
	Instrument string
	Score      float64 // signed; positive leans buy, negative leans sell
}

// Candle represents an OHLCV bar of an instrument's price history.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is an ordered price history, oldest first.
type Series []Candle

func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

func (s Series) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High
	}
	return out
}

func (s Series) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low
	}
	return out
}

// Last returns the most recent close, or 0 for an empty series.
func (s Series) Last() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Close
}

// Tick is a single live trade event from the market stream.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}
