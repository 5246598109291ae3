package models

import (
	"fmt"
	"sort"
	"time"
)

// TradeCounters accumulates resolved-trade outcomes for one strategy.
// Counters only grow except on an explicit reset.
type TradeCounters struct {
	Total      int64
	Successful int64
	Neutral    int64
	Failed     int64
}

// StrategyRecord is one strategy's simulated book: holdings, cash and
// outcome counters. Owned exclusively by the performance tracker; read
// by the ranking engine and decision weigher.
type StrategyRecord struct {
	Name           string
	Holdings       map[string]float64 // instrument -> signed quantity
	Entries        map[string]float64 // instrument -> entry price of the open position
	Cash           float64
	Counters       TradeCounters
	PortfolioValue float64
	UpdatedAt      time.Time
}

// OpenPositions lists the record's open simulated positions in
// instrument order. Short holdings are stored negative; here they come
// back as positive quantities on the sell side.
func (r *StrategyRecord) OpenPositions() []OpenPosition {
	if len(r.Holdings) == 0 {
		return nil
	}
	insts := make([]string, 0, len(r.Holdings))
	for inst, qty := range r.Holdings {
		if qty != 0 {
			insts = append(insts, inst)
		}
	}
	sort.Strings(insts)

	out := make([]OpenPosition, 0, len(insts))
	for _, inst := range insts {
		qty := r.Holdings[inst]
		side := SideBuy
		if qty < 0 {
			side = SideSell
			qty = -qty
		}
		out = append(out, OpenPosition{
			Strategy:   r.Name,
			Instrument: inst,
			EntryPrice: r.Entries[inst],
			Quantity:   qty,
			Side:       side,
		})
	}
	return out
}

// PerformanceScore is a strategy's cumulative ranking points. One per
// StrategyRecord; mutated only by the performance tracker.
type PerformanceScore struct {
	Strategy  string
	Points    float64 // may be negative
	UpdatedAt time.Time
}

// RankAssignment binds a strategy to its rank and voting coefficient
// for one ranking cycle. Rank 1 is best.
type RankAssignment struct {
	Strategy    string
	Rank        int
	Points      float64
	Coefficient float64
}

// RankTable maps rank (1 = best) to a voting coefficient in (0,1].
// Coefficients never increase as rank grows; ranks past the end of the
// table take the last value as a floor.
type RankTable struct {
	Coefficients []float64
}

// NewRankTable validates and builds a rank table from configuration.
func NewRankTable(coeffs []float64) (RankTable, error) {
	if len(coeffs) == 0 {
		return RankTable{}, fmt.Errorf("rank table: empty coefficient list")
	}
	prev := 1.0
	for i, c := range coeffs {
		if c <= 0 || c > 1 {
			return RankTable{}, fmt.Errorf("rank table: coefficient %d out of (0,1]: %v", i+1, c)
		}
		if c > prev {
			return RankTable{}, fmt.Errorf("rank table: coefficient %d (%v) exceeds coefficient %d (%v)", i+1, c, i, prev)
		}
		prev = c
	}
	return RankTable{Coefficients: coeffs}, nil
}

// Coefficient returns the voting weight for a 1-based rank.
func (t RankTable) Coefficient(rank int) float64 {
	if len(t.Coefficients) == 0 || rank < 1 {
		return 0
	}
	if rank > len(t.Coefficients) {
		return t.Coefficients[len(t.Coefficients)-1]
	}
	return t.Coefficients[rank-1]
}

func (t RankTable) Len() int { return len(t.Coefficients) }
