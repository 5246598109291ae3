// Package strategy holds the voting ensemble: independent indicator
// functions mapping an instrument's price history to Buy/Sell/Hold.
package strategy

import "FinRank/internal/domain/models"

// Strategy is one ensemble member. Evaluate is pure with respect to the
// input series and must not mutate shared state. The second return is
// false to abstain: a strategy with insufficient history emits no vote
// rather than guessing. An explicit Hold is still a vote.
type Strategy interface {
	Name() string
	Lookback() int
	Evaluate(series models.Series) (models.Signal, bool)
}

// Names lists the identities of an ensemble in order.
func Names(list []Strategy) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name()
	}
	return out
}

// crossAbove reports fast crossing over slow between the last two bars.
func crossAbove(fast, slow []float64) bool {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return false
	}
	return fast[n-2] <= slow[n-2] && fast[n-1] > slow[n-1]
}

func crossBelow(fast, slow []float64) bool {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return false
	}
	return fast[n-2] >= slow[n-2] && fast[n-1] < slow[n-1]
}

func last(vals []float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	v := vals[len(vals)-1]
	if v != v { // NaN
		return 0, false
	}
	return v, true
}
