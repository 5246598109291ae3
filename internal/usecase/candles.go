package usecase

import (
	"context"
	"fmt"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
)

// MarketCandles serves the price history the engine itself evaluates:
// the same snapshot source the signal collector reads, exposed so an
// operator can inspect a cycle's inputs.
type MarketCandles struct {
	market domrepo.MarketData
}

func NewMarketCandles(market domrepo.MarketData) *MarketCandles {
	return &MarketCandles{market: market}
}

type CandlesParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Bars      int
}

type CandlesResult struct {
	Symbol    string
	Timeframe string
	Count     int
	Candles   models.Series
}

func (uc *MarketCandles) Get(ctx context.Context, p CandlesParams) (*CandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Timeframe == "" {
		p.Timeframe = domrepo.TF1h
	}
	if p.Bars <= 0 {
		p.Bars = 100
	}
	if p.Bars > 1000 {
		p.Bars = 1000
	}

	series, err := uc.market.History(ctx, p.Symbol, p.Bars, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", p.Symbol, err)
	}
	if len(series) > p.Bars {
		series = series[len(series)-p.Bars:]
	}

	return &CandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(series),
		Candles:   series,
	}, nil
}
