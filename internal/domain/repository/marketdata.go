package repository

import (
	"context"

	"FinRank/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// MarketData provides price history and current quotes. History may
// fail with models.ErrDataUnavailable; callers skip the instrument for
// the cycle and continue.
type MarketData interface {
	History(ctx context.Context, instrument string, bars int, tf Timeframe) (models.Series, error)
	Quote(ctx context.Context, instrument string) (float64, error)
}
