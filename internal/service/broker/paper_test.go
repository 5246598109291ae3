package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinRank/internal/domain/models"
	drepo "FinRank/internal/domain/repository"
)

type quoteStub struct {
	quotes map[string]float64
	err    error
}

func (s *quoteStub) History(ctx context.Context, instrument string, bars int, tf drepo.Timeframe) (models.Series, error) {
	return nil, models.ErrDataUnavailable
}

func (s *quoteStub) Quote(ctx context.Context, instrument string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	price, ok := s.quotes[instrument]
	if !ok {
		return 0, models.ErrDataUnavailable
	}
	return price, nil
}

var _ drepo.MarketData = (*quoteStub)(nil)

func buyIntent(inst string, qty float64) *models.TradeIntent {
	return &models.TradeIntent{ID: "t-1", Instrument: inst, Side: models.SideBuy, Quantity: qty, Reason: models.ReasonSignal}
}

func sellIntent(inst string, qty float64) *models.TradeIntent {
	return &models.TradeIntent{ID: "t-2", Instrument: inst, Side: models.SideSell, Quantity: qty, Reason: models.ReasonSignal}
}

func TestSubmitOrder_BuyFillsAtQuote(t *testing.T) {
	market := &quoteStub{quotes: map[string]float64{"AMZN": 100}}
	b := NewPaperBroker(10_000, market, nil)

	fill, err := b.SubmitOrder(context.Background(), buyIntent("AMZN", 20))
	require.NoError(t, err)
	assert.Equal(t, 20.0, fill.Quantity)
	assert.Equal(t, 100.0, fill.Price)

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8_000.0, acct.Cash)
	assert.Equal(t, 10_000.0, acct.Equity, "equity counts the position at its average price")
}

func TestSubmitOrder_BuyAveragesEntryPrice(t *testing.T) {
	market := &quoteStub{quotes: map[string]float64{"AMZN": 100}}
	b := NewPaperBroker(10_000, market, nil)

	_, err := b.SubmitOrder(context.Background(), buyIntent("AMZN", 10))
	require.NoError(t, err)

	market.quotes["AMZN"] = 200
	_, err = b.SubmitOrder(context.Background(), buyIntent("AMZN", 10))
	require.NoError(t, err)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 20.0, positions[0].Quantity)
	assert.Equal(t, 150.0, positions[0].AvgPrice)
}

func TestSubmitOrder_BuyBeyondCashRejected(t *testing.T) {
	market := &quoteStub{quotes: map[string]float64{"AMZN": 100}}
	b := NewPaperBroker(1_000, market, nil)

	_, err := b.SubmitOrder(context.Background(), buyIntent("AMZN", 50))
	require.Error(t, err)

	var exec *models.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.False(t, exec.Transient, "an unaffordable order will not become affordable on retry")
}

func TestSubmitOrder_SellClampsToHeldQuantity(t *testing.T) {
	market := &quoteStub{quotes: map[string]float64{"META": 50}}
	b := NewPaperBroker(10_000, market, nil)

	_, err := b.SubmitOrder(context.Background(), buyIntent("META", 10))
	require.NoError(t, err)

	fill, err := b.SubmitOrder(context.Background(), sellIntent("META", 25))
	require.NoError(t, err)
	assert.Equal(t, 10.0, fill.Quantity, "oversized sells shrink to the held quantity")

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions, "a fully sold position is removed")

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10_000.0, acct.Cash)
}

func TestSubmitOrder_SellWithoutPositionRejected(t *testing.T) {
	market := &quoteStub{quotes: map[string]float64{"META": 50}}
	b := NewPaperBroker(10_000, market, nil)

	_, err := b.SubmitOrder(context.Background(), sellIntent("META", 5))
	require.Error(t, err)

	var exec *models.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.False(t, exec.Transient)
}

func TestSubmitOrder_QuoteFailureIsTransient(t *testing.T) {
	market := &quoteStub{err: errors.New("gateway timeout")}
	b := NewPaperBroker(10_000, market, nil)

	_, err := b.SubmitOrder(context.Background(), buyIntent("AMZN", 1))
	require.Error(t, err)

	var exec *models.ExecutionError
	require.ErrorAs(t, err, &exec)
	assert.True(t, exec.Transient, "a quote miss is worth retrying")
}

func TestSubmitOrder_RejectsInvalidIntent(t *testing.T) {
	b := NewPaperBroker(10_000, &quoteStub{}, nil)

	_, err := b.SubmitOrder(context.Background(), nil)
	assert.Error(t, err)

	_, err = b.SubmitOrder(context.Background(), buyIntent("AMZN", 0))
	assert.Error(t, err)
}

func TestNewPaperBroker_DefaultsStartingCash(t *testing.T) {
	b := NewPaperBroker(0, &quoteStub{}, nil)

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100_000.0, acct.Cash)
}
