package repository

import (
	"context"

	"FinRank/internal/domain/models"
)

// StrategyStore is the durable store for strategy books, scores and
// rank coefficients. Operations are atomic at single-record
// granularity; callers may assume read-your-writes within one cycle.
type StrategyStore interface {
	GetStrategyRecord(ctx context.Context, name string) (*models.StrategyRecord, error)
	UpsertStrategyRecord(ctx context.Context, rec *models.StrategyRecord) error
	ListStrategyRecords(ctx context.Context) ([]*models.StrategyRecord, error)

	GetScore(ctx context.Context, strategy string) (*models.PerformanceScore, error)
	UpsertScore(ctx context.Context, score *models.PerformanceScore) error
	ListScores(ctx context.Context) ([]*models.PerformanceScore, error)

	GetRankCoefficients(ctx context.Context) ([]models.RankAssignment, error)
	UpsertRankCoefficients(ctx context.Context, ranks []models.RankAssignment) error

	Health(ctx context.Context) error
	Close() error
}
