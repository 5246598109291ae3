package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinRank/internal/domain/models"
	domrepo "FinRank/internal/domain/repository"
	"FinRank/internal/domain/service"
	applogger "FinRank/pkg/logger"
)

const qtyEpsilon = 1e-9

// PortfolioAllocator turns weighed candidates into trade intents that
// respect the account's liquidity reserve and per-instrument
// concentration cap. Stop-loss and take-profit breaches on held
// positions force a close before any candidate is considered.
//
// One allocation pass runs at a time; candidates are applied
// sequentially against a working copy of the account, so the cycle's
// intents taken together never break the constraints either.
type PortfolioAllocator struct {
	broker  service.BrokerExecutor
	market  domrepo.MarketData
	metrics domrepo.Metrics
	l       *applogger.Logger
	limits  models.PortfolioLimits

	mu sync.Mutex
}

func NewPortfolioAllocator(broker service.BrokerExecutor, market domrepo.MarketData, metrics domrepo.Metrics, l *applogger.Logger, limits models.PortfolioLimits) *PortfolioAllocator {
	if limits.ScoreNorm <= 0 {
		limits.ScoreNorm = 1
	}
	return &PortfolioAllocator{
		broker:  broker,
		market:  market,
		metrics: metrics,
		l:       l,
		limits:  limits,
	}
}

// AllocationResult is one cycle's allocator output.
type AllocationResult struct {
	Intents    []*models.TradeIntent
	Rejections []models.Rejection
}

// account is the allocator's working copy of broker state for one pass.
type account struct {
	cash      float64
	positions map[string]models.Position
	values    map[string]float64 // instrument -> marked position value
	total     float64            // cash + sum of values
}

// Allocate processes candidates in descending |score| order. Buys are
// checked against the liquidity reserve and the allocation cap, clamped
// down when partial fills are allowed and rejected otherwise. Sells
// only ever reduce an existing position.
func (a *PortfolioAllocator) Allocate(ctx context.Context, candidates []models.Candidate, prices map[string]float64) (*AllocationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	acct, err := a.loadAccount(ctx, prices)
	if err != nil {
		return nil, err
	}

	res := &AllocationResult{}
	closed := a.forceCloses(acct, prices, res)

	ordered := make([]models.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return weakerCandidate(ordered[j], ordered[i]) })

	for _, cand := range ordered {
		if cand.Score == 0 {
			continue
		}
		if closed[cand.Instrument] {
			// Just force-closed; no same-cycle re-entry.
			continue
		}
		price, ok := a.price(ctx, cand.Instrument, prices)
		if !ok {
			if a.l != nil {
				a.l.Warn("no price for candidate, skipped",
					applogger.String("instrument", cand.Instrument))
			}
			continue
		}
		if cand.Score > 0 {
			a.allocateBuy(acct, cand, price, res)
		} else {
			a.allocateSell(acct, cand, price, res)
		}
	}

	a.metrics.RecordCandidates(len(ordered))
	for _, rej := range res.Rejections {
		a.metrics.RecordRejection(string(rej.Reason))
	}
	for _, intent := range res.Intents {
		a.metrics.RecordIntent(string(intent.Side))
	}
	return res, nil
}

func (a *PortfolioAllocator) loadAccount(ctx context.Context, prices map[string]float64) (*account, error) {
	state, err := a.broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	positions, err := a.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	acct := &account{
		cash:      state.Cash,
		positions: make(map[string]models.Position, len(positions)),
		values:    make(map[string]float64, len(positions)),
		total:     state.Cash,
	}
	for _, pos := range positions {
		if pos.Quantity == 0 {
			continue
		}
		mark := pos.AvgPrice
		if p, ok := prices[pos.Instrument]; ok && p > 0 {
			mark = p
		}
		acct.positions[pos.Instrument] = pos
		acct.values[pos.Instrument] = pos.Quantity * mark
		acct.total += pos.Quantity * mark
	}
	return acct, nil
}

// forceCloses emits unconditional close intents for held positions
// beyond the stop-loss or take-profit bound, regardless of what the
// cycle's scores say. Returns the set of instruments closed.
func (a *PortfolioAllocator) forceCloses(acct *account, prices map[string]float64, res *AllocationResult) map[string]bool {
	closed := map[string]bool{}
	insts := make([]string, 0, len(acct.positions))
	for inst := range acct.positions {
		insts = append(insts, inst)
	}
	sort.Strings(insts)

	for _, inst := range insts {
		pos := acct.positions[inst]
		price, ok := prices[inst]
		if !ok || price <= 0 || pos.Quantity <= 0 {
			continue
		}
		r := pos.UnrealizedReturn(price)
		var reason models.IntentReason
		switch {
		case a.limits.StopLoss > 0 && r <= -a.limits.StopLoss:
			reason = models.ReasonStopLoss
		case a.limits.TakeProfit > 0 && r >= a.limits.TakeProfit:
			reason = models.ReasonTakeProfit
		default:
			continue
		}

		res.Intents = append(res.Intents, a.newIntent(inst, models.SideSell, pos.Quantity, 0, reason))
		acct.cash += pos.Quantity * price
		delete(acct.positions, inst)
		delete(acct.values, inst)
		closed[inst] = true

		if a.l != nil {
			a.l.Info("position force-closed",
				applogger.String("instrument", inst),
				applogger.String("reason", string(reason)),
				applogger.Float64("return", r))
		}
	}
	return closed
}

func (a *PortfolioAllocator) allocateBuy(acct *account, cand models.Candidate, price float64, res *AllocationResult) {
	needed := a.targetValue(cand.Score)

	maxByCash := acct.cash - a.limits.LiquidityReserve
	maxByAlloc := a.limits.MaxAllocation*acct.total - acct.values[cand.Instrument]

	limit := math.Min(maxByCash, maxByAlloc)
	if limit <= 0 {
		res.Rejections = append(res.Rejections, a.reject(cand.Instrument, maxByCash, needed))
		return
	}
	if needed > limit+qtyEpsilon {
		if !a.limits.AllowPartial {
			res.Rejections = append(res.Rejections, a.reject(cand.Instrument, maxByCash, needed))
			return
		}
		// Clamp down to the largest size both constraints allow.
		needed = limit
	}

	qty := a.floorLot(needed / price)
	if qty <= qtyEpsilon {
		res.Rejections = append(res.Rejections, models.Rejection{
			Instrument: cand.Instrument,
			Reason:     models.RejectZeroQuantity,
			Detail:     fmt.Sprintf("order value %.2f below lot step at price %.4f", needed, price),
		})
		return
	}
	spent := qty * price

	res.Intents = append(res.Intents, a.newIntent(cand.Instrument, models.SideBuy, qty, cand.Score, models.ReasonSignal))
	acct.cash -= spent
	acct.values[cand.Instrument] += spent
	pos := acct.positions[cand.Instrument]
	pos.Instrument = cand.Instrument
	pos.Quantity += qty
	acct.positions[cand.Instrument] = pos
}

func (a *PortfolioAllocator) allocateSell(acct *account, cand models.Candidate, price float64, res *AllocationResult) {
	pos, ok := acct.positions[cand.Instrument]
	if !ok || pos.Quantity <= qtyEpsilon {
		res.Rejections = append(res.Rejections, models.Rejection{
			Instrument: cand.Instrument,
			Reason:     models.RejectNoPosition,
			Detail:     "sell signal with no open position",
		})
		return
	}

	qty := a.floorLot(math.Min(pos.Quantity, a.targetValue(cand.Score)/price))
	if qty <= qtyEpsilon {
		res.Rejections = append(res.Rejections, models.Rejection{
			Instrument: cand.Instrument,
			Reason:     models.RejectZeroQuantity,
			Detail:     "sell size below lot step",
		})
		return
	}

	res.Intents = append(res.Intents, a.newIntent(cand.Instrument, models.SideSell, qty, cand.Score, models.ReasonSignal))
	acct.cash += qty * price
	acct.values[cand.Instrument] -= qty * price
	pos.Quantity -= qty
	if pos.Quantity <= qtyEpsilon {
		delete(acct.positions, cand.Instrument)
		delete(acct.values, cand.Instrument)
	} else {
		acct.positions[cand.Instrument] = pos
	}
}

// targetValue scales the base order value by normalized signal
// strength, capped at full size.
func (a *PortfolioAllocator) targetValue(score float64) float64 {
	scale := math.Min(1, abs(score)/a.limits.ScoreNorm)
	return a.limits.BaseOrderValue * scale
}

func (a *PortfolioAllocator) floorLot(qty float64) float64 {
	if a.limits.LotStep <= 0 {
		return qty
	}
	return math.Floor(qty/a.limits.LotStep+qtyEpsilon) * a.limits.LotStep
}

func (a *PortfolioAllocator) reject(inst string, maxByCash, needed float64) models.Rejection {
	if maxByCash < needed {
		return models.Rejection{
			Instrument: inst,
			Reason:     models.RejectInsufficientLiquidity,
			Detail:     fmt.Sprintf("needs %.2f, %.2f available above reserve", needed, math.Max(0, maxByCash)),
		}
	}
	return models.Rejection{
		Instrument: inst,
		Reason:     models.RejectAllocationCap,
		Detail:     fmt.Sprintf("order of %.2f would breach the per-instrument cap", needed),
	}
}

func (a *PortfolioAllocator) newIntent(inst string, side models.Side, qty, score float64, reason models.IntentReason) *models.TradeIntent {
	return &models.TradeIntent{
		ID:         uuid.NewString(),
		Instrument: inst,
		Side:       side,
		Quantity:   qty,
		Score:      score,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
}

// price prefers the cycle snapshot and falls back to a live quote.
func (a *PortfolioAllocator) price(ctx context.Context, inst string, prices map[string]float64) (float64, bool) {
	if p, ok := prices[inst]; ok && p > 0 {
		return p, true
	}
	if a.market == nil {
		return 0, false
	}
	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	p, err := a.market.Quote(qctx, inst)
	if err != nil || p <= 0 {
		return 0, false
	}
	return p, true
}
