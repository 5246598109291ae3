// Package broker provides intent execution backends. The paper broker
// fills orders against an in-memory account; external execution goes
// through the Kafka intent topic instead.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinRank/internal/domain/models"
	drepo "FinRank/internal/domain/repository"
	"FinRank/internal/domain/service"
	applogger "FinRank/pkg/logger"
)

// PaperBroker simulates immediate fills at the current quote.
type PaperBroker struct {
	market drepo.MarketData
	l      *applogger.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]*models.Position
}

func NewPaperBroker(initialCash float64, market drepo.MarketData, l *applogger.Logger) *PaperBroker {
	if initialCash <= 0 {
		initialCash = 100_000
	}
	return &PaperBroker{
		market:    market,
		l:         l,
		cash:      initialCash,
		positions: make(map[string]*models.Position),
	}
}

var _ service.BrokerExecutor = (*PaperBroker)(nil)

func (b *PaperBroker) SubmitOrder(ctx context.Context, intent *models.TradeIntent) (*models.Fill, error) {
	if intent == nil || intent.Quantity <= 0 {
		return nil, &models.ExecutionError{Err: fmt.Errorf("invalid intent")}
	}
	price, err := b.market.Quote(ctx, intent.Instrument)
	if err != nil {
		return nil, &models.ExecutionError{Transient: true, Err: fmt.Errorf("quote %s: %w", intent.Instrument, err)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	qty := intent.Quantity
	switch intent.Side {
	case models.SideBuy:
		cost := qty * price
		if cost > b.cash {
			return nil, &models.ExecutionError{Err: fmt.Errorf("buy %s: cost %.2f exceeds cash %.2f", intent.Instrument, cost, b.cash)}
		}
		b.cash -= cost
		pos, ok := b.positions[intent.Instrument]
		if !ok {
			pos = &models.Position{Instrument: intent.Instrument}
			b.positions[intent.Instrument] = pos
		}
		total := pos.Quantity + qty
		pos.AvgPrice = (pos.Quantity*pos.AvgPrice + qty*price) / total
		pos.Quantity = total

	case models.SideSell:
		pos, ok := b.positions[intent.Instrument]
		if !ok || pos.Quantity <= 0 {
			return nil, &models.ExecutionError{Err: fmt.Errorf("sell %s: no position", intent.Instrument)}
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		b.cash += qty * price
		pos.Quantity -= qty
		if pos.Quantity <= 1e-9 {
			delete(b.positions, intent.Instrument)
		}

	default:
		return nil, &models.ExecutionError{Err: fmt.Errorf("unknown side %q", intent.Side)}
	}

	fill := &models.Fill{
		IntentID:   intent.ID,
		Instrument: intent.Instrument,
		Side:       intent.Side,
		Quantity:   qty,
		Price:      price,
		FilledAt:   time.Now().UTC(),
	}
	if b.l != nil {
		b.l.Info("paper fill",
			applogger.String("instrument", fill.Instrument),
			applogger.String("side", string(fill.Side)),
			applogger.Float64("quantity", fill.Quantity),
			applogger.Float64("price", fill.Price))
	}
	return fill, nil
}

func (b *PaperBroker) GetAccount(ctx context.Context) (*models.AccountState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for _, pos := range b.positions {
		equity += pos.Quantity * pos.AvgPrice
	}
	return &models.AccountState{
		Cash:        b.cash,
		BuyingPower: b.cash,
		Equity:      equity,
	}, nil
}

func (b *PaperBroker) GetPositions(ctx context.Context) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out, nil
}
