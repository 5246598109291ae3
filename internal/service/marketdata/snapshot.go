package marketdata

import (
	"context"
	"fmt"
	"time"

	"FinRank/internal/domain/models"
	drepo "FinRank/internal/domain/repository"
	"FinRank/pkg/cache"
	applogger "FinRank/pkg/logger"
)

const (
	candleKeyFmt = "finrank:candles:%s:%s:%d"
	lastPriceFmt = "finrank:last_price:%s"
)

// SnapshotProvider serves cycle snapshots from the layered cache and
// falls through to the REST client on a miss. Live ticks written by the
// realtime pipeline keep the quote path off the vendor API.
type SnapshotProvider struct {
	source drepo.MarketData
	cache  cache.Service
	ttl    time.Duration
	l      *applogger.Logger
}

func NewSnapshotProvider(source drepo.MarketData, cacheSvc cache.Service, ttl time.Duration, l *applogger.Logger) *SnapshotProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SnapshotProvider{
		source: source,
		cache:  cacheSvc,
		ttl:    ttl,
		l:      l,
	}
}

var _ drepo.MarketData = (*SnapshotProvider)(nil)

func (p *SnapshotProvider) History(ctx context.Context, instrument string, bars int, tf drepo.Timeframe) (models.Series, error) {
	key := fmt.Sprintf(candleKeyFmt, instrument, tf, bars)

	var cached models.Series
	if err := p.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	series, err := p.source.History(ctx, instrument, bars, tf)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, series, p.ttl); err != nil && p.l != nil {
		p.l.Warn("snapshot cache write failed",
			applogger.String("instrument", instrument),
			applogger.Error(err))
	}
	return series, nil
}

// Quote prefers the last streamed tick and falls back to the REST
// quote endpoint.
func (p *SnapshotProvider) Quote(ctx context.Context, instrument string) (float64, error) {
	var last float64
	if err := p.cache.Get(ctx, fmt.Sprintf(lastPriceFmt, instrument), &last); err == nil && last > 0 {
		return last, nil
	}
	return p.source.Quote(ctx, instrument)
}

// RecordTick publishes a streamed trade into the cache for the quote
// path. Called by the realtime pipeline on every flushed tick.
func (p *SnapshotProvider) RecordTick(ctx context.Context, tick *models.Tick) error {
	if tick == nil || tick.Symbol == "" || tick.Price <= 0 {
		return nil
	}
	return p.cache.Set(ctx, fmt.Sprintf(lastPriceFmt, tick.Symbol), tick.Price, 0)
}
