package usecase

import (
	"container/heap"
	"sort"

	"FinRank/internal/domain/models"
	applogger "FinRank/pkg/logger"
)

// DecisionWeigher folds a cycle's votes into one coefficient-weighted
// aggregate score per instrument and keeps the strongest K.
type DecisionWeigher struct {
	limit int
	l     *applogger.Logger
}

func NewDecisionWeigher(limit int, l *applogger.Logger) *DecisionWeigher {
	if limit <= 0 {
		limit = 10
	}
	return &DecisionWeigher{limit: limit, l: l}
}

// Weigh computes per-instrument aggregates: the sum over votes of
// coefficient(strategy) x signal value (+1 buy, -1 sell, 0 hold).
// Instruments with no counted vote are excluded; a Hold vote counts.
// Votes from strategies absent from the assignments carry no weight
// and are dropped. The result is ordered by |score| descending, ties
// by instrument ascending, and capped at the suggestion limit.
func (w *DecisionWeigher) Weigh(votes []models.Vote, ranks []models.RankAssignment) []models.Candidate {
	coeff := make(map[string]float64, len(ranks))
	for _, r := range ranks {
		coeff[r.Strategy] = r.Coefficient
	}

	agg := make(map[string]float64)
	counted := make(map[string]int)
	for _, v := range votes {
		c, ok := coeff[v.Strategy]
		if !ok {
			continue
		}
		agg[v.Instrument] += c * float64(v.Signal.Value())
		counted[v.Instrument]++
	}
	if len(counted) == 0 {
		return nil
	}

	insts := make([]string, 0, len(counted))
	for inst := range counted {
		insts = append(insts, inst)
	}
	sort.Strings(insts)

	// Bounded heap: the root is the weakest kept candidate, evicted
	// whenever a stronger one shows up.
	h := &candidateHeap{items: make([]models.Candidate, 0, w.limit)}
	for _, inst := range insts {
		cand := models.Candidate{Instrument: inst, Score: agg[inst]}
		if h.Len() < w.limit {
			heap.Push(h, cand)
			continue
		}
		if weakerCandidate(h.items[0], cand) {
			h.items[0] = cand
			heap.Fix(h, 0)
		}
	}

	out := h.items
	sort.Slice(out, func(i, j int) bool { return weakerCandidate(out[j], out[i]) })

	if w.l != nil && len(out) > 0 {
		w.l.Debug("candidates weighed",
			applogger.Int("instruments", len(counted)),
			applogger.Int("candidates", len(out)),
			applogger.String("top", out[0].Instrument),
			applogger.Float64("top_score", out[0].Score))
	}
	return out
}

// weakerCandidate reports whether a ranks strictly below b: smaller
// absolute score, or equal score and lexicographically later
// instrument.
func weakerCandidate(a, b models.Candidate) bool {
	aa, ab := abs(a.Score), abs(b.Score)
	if aa != ab {
		return aa < ab
	}
	return a.Instrument > b.Instrument
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

type candidateHeap struct {
	items []models.Candidate
}

func (h *candidateHeap) Len() int           { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool { return weakerCandidate(h.items[i], h.items[j]) }
func (h *candidateHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candidateHeap) Push(x interface{}) {
	h.items = append(h.items, x.(models.Candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
