package repository

import (
	"context"
	"time"

	"FinRank/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type IntentPublisher interface {
	Publish(ctx context.Context, intent *models.TradeIntent) error
	PublishBatch(ctx context.Context, intents []*models.TradeIntent) error
	Close() error
}

type RankingPublisher interface {
	PublishRanking(ctx context.Context, cycleID string, at time.Time, ranks []models.RankAssignment) error
}

// HistoryStore is the append-only analytic history: every intent,
// resolution and ranking snapshot the engine produces.
type HistoryStore interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreIntents(ctx context.Context, cycleID string, intents []*models.TradeIntent) error
	StoreOutcome(ctx context.Context, o *models.TradeOutcome, outcome string, points float64) error
	StoreRankings(ctx context.Context, cycleID string, at time.Time, ranks []models.RankAssignment) error
	RecentIntents(ctx context.Context, limit int) ([]*models.TradeIntent, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordVote(signal string)
	RecordAbstention()
	RecordEvaluationFailure()
	RecordCycle(status string, seconds float64)
	RecordCandidates(n int)
	RecordIntent(side string)
	RecordRejection(reason string)
	RecordStoreRetry(op string)
	RecordScore(strategy string, points float64)
	RecordResolution(outcome string)
	RecordError(op string)
	RecordLatency(op string, seconds float64)
	RecordLastPrice(symbol string, price float64)
}
