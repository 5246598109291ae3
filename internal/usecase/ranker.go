package usecase

import (
	"context"
	"fmt"
	"sort"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	applogger "FinRank/pkg/logger"
)

// RankingEngine orders strategies by performance points and assigns
// each a voting coefficient from the rank table.
type RankingEngine struct {
	store   domrepo.StrategyStore
	metrics domrepo.Metrics
	l       *applogger.Logger
	table   models.RankTable
	retry   RetryPolicy
}

func NewRankingEngine(store domrepo.StrategyStore, metrics domrepo.Metrics, l *applogger.Logger, table models.RankTable, retry RetryPolicy) *RankingEngine {
	return &RankingEngine{
		store:   store,
		metrics: metrics,
		l:       l,
		table:   table,
		retry:   retry,
	}
}

// RankScores is the pure ranking rule: points descending, rank 1 best,
// ties broken lexicographically by strategy name. Identical inputs
// always produce identical assignments.
func RankScores(scores []*models.PerformanceScore, table models.RankTable) []models.RankAssignment {
	sorted := make([]*models.PerformanceScore, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Points != sorted[j].Points {
			return sorted[i].Points > sorted[j].Points
		}
		return sorted[i].Strategy < sorted[j].Strategy
	})

	out := make([]models.RankAssignment, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		out[i] = models.RankAssignment{
			Strategy:    s.Strategy,
			Rank:        rank,
			Points:      s.Points,
			Coefficient: table.Coefficient(rank),
		}
	}
	return out
}

// Rank loads the current score set, computes assignments and persists
// them. Callers run this strictly after the cycle's tracker updates
// have settled; a persistence failure keeps the previous table in
// effect.
func (e *RankingEngine) Rank(ctx context.Context) ([]models.RankAssignment, error) {
	scores, err := e.store.ListScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	ranks := RankScores(scores, e.table)
	if len(ranks) == 0 {
		return ranks, nil
	}

	err = withRetry(ctx, e.retry, e.metrics, "upsert_ranks", func(ctx context.Context) error {
		return e.store.UpsertRankCoefficients(ctx, ranks)
	})
	if err != nil {
		return nil, &models.PersistenceError{Op: "upsert_ranks", Err: err}
	}

	if e.l != nil {
		e.l.Debug("ranking updated",
			applogger.Int("strategies", len(ranks)),
			applogger.String("top", ranks[0].Strategy),
			applogger.Float64("top_points", ranks[0].Points))
	}
	return ranks, nil
}
