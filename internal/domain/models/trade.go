package models

import "time"

// Side is the direction of a trade intent.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IntentReason tells why the allocator emitted an intent.
type IntentReason string

const (
	ReasonSignal     IntentReason = "signal"
	ReasonStopLoss   IntentReason = "stop_loss"
	ReasonTakeProfit IntentReason = "take_profit"
)

// TradeIntent is a constraint-checked order proposal awaiting external
// execution. Quantity is always positive; Side carries direction.
type TradeIntent struct {
	ID         string
	Instrument string
	Side       Side
	Quantity   float64
	Score      float64 // originating aggregate score
	Reason     IntentReason
	CreatedAt  time.Time
}

// RejectionReason classifies why the allocator skipped a candidate.
type RejectionReason string

const (
	RejectInsufficientLiquidity RejectionReason = "insufficient_liquidity"
	RejectAllocationCap         RejectionReason = "allocation_cap"
	RejectZeroQuantity          RejectionReason = "zero_quantity"
	RejectNoPosition            RejectionReason = "no_position"
)

// Rejection records a candidate the allocator could not serve this cycle.
type Rejection struct {
	Instrument string
	Reason     RejectionReason
	Detail     string
}

// Fill reports an executed order back from the broker.
type Fill struct {
	IntentID   string
	Instrument string
	Side       Side
	Quantity   float64
	Price      float64
	FilledAt   time.Time
}

// TradeOutcome is a resolution event for an open strategy position:
// the position was closed, or its price crossed a profit/loss tier.
type TradeOutcome struct {
	Strategy   string
	Instrument string
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Side       Side
	ClosedAt   time.Time
}

// OpenPosition is the OPEN state of one strategy/instrument pair,
// waiting for a price move or close to resolve it.
type OpenPosition struct {
	Strategy   string
	Instrument string
	EntryPrice float64
	Quantity   float64
	Side       Side
}

// AccountState is a broker account snapshot.
type AccountState struct {
	Cash        float64
	BuyingPower float64
	Equity      float64
}

// Position is an open broker position.
type Position struct {
	Instrument string
	Quantity   float64
	AvgPrice   float64
}

// UnrealizedReturn is the fractional gain of the position at the given
// price, negative when under water.
func (p Position) UnrealizedReturn(price float64) float64 {
	if p.AvgPrice == 0 {
		return 0
	}
	return (price - p.AvgPrice) / p.AvgPrice
}

// PortfolioLimits is the allocator's constraint snapshot. Immutable for
// the duration of one cycle, reloadable between cycles.
type PortfolioLimits struct {
	LiquidityReserve float64 // post-trade cash floor
	MaxAllocation    float64 // per-instrument fraction of portfolio value, (0,1]
	StopLoss         float64 // unrealized-loss fraction forcing a close
	TakeProfit       float64 // unrealized-gain fraction forcing a close
	AllowPartial     bool    // clamp quantity down instead of rejecting
	BaseOrderValue   float64 // target cash value per full-confidence intent
	ScoreNorm        float64 // |score| at which sizing reaches BaseOrderValue
	LotStep          float64 // quantity granularity, 0 disables flooring
}
