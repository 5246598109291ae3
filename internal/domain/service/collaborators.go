package service

import (
	"context"

	"FinRank/internal/domain/models"
)

// BrokerExecutor executes trade intents against an account.
type BrokerExecutor interface {
	SubmitOrder(ctx context.Context, intent *models.TradeIntent) (*models.Fill, error)
	GetAccount(ctx context.Context) (*models.AccountState, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
}

// NewsAnalyst produces an advisory sentiment read for one symbol from
// recent headlines.
type NewsAnalyst interface {
	AggregatedSentiment(ctx context.Context, symbol string) (models.NewsSentiment, error)
}
