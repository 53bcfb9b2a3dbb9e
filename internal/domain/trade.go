package domain

import "time"

// TradeState is the lifecycle state of a position.
type TradeState string

const (
	// TradePending means the position is open and the stake deducted, but no
	// timers are running yet.
	TradePending TradeState = "pending"
	// TradeStarted means the countdown and price-refresh timers are active.
	TradeStarted TradeState = "started"
	// TradeClosed is terminal.
	TradeClosed TradeState = "closed"
)

// ExitReason records why a trade left the Started (or Pending, for cancels)
// state.
type ExitReason string

const (
	ExitManual       ExitReason = "manual"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitMaxLoss      ExitReason = "max_loss"
	ExitTimerExpired ExitReason = "timer_expired"
	ExitCancelled    ExitReason = "cancelled"
)

// PriceProvenance tags whether a price came from the live feed or the
// fallback simulator. Consumers must never conflate the two.
type PriceProvenance string

const (
	PriceReal      PriceProvenance = "real"
	PriceSimulated PriceProvenance = "simulated"
)

// FeeBreakdown is the itemized cost of a round trip at a given stake. It is
// derived, never mutated; a new breakdown is computed whenever the stake or
// the win/loss outcome changes.
type FeeBreakdown struct {
	Slippage   float64
	SpreadCost float64
	TradingFee float64
	GasCost    float64
	Total      float64
	PctOfStake float64
}

// Trade is the single mutable position owned by the lifecycle engine. Only
// the engine mutates it, and only while holding its lock.
type Trade struct {
	ID     string
	Market Market
	State  TradeState

	Stake  float64 // dollar amount committed (buy price)
	Shares int     // derived position size

	EntryPrice   float64
	CurrentPrice float64

	// Targets are fixed at open time and never recomputed mid-trade.
	TakeProfitTarget float64 // positive net-P&L threshold
	StopLossTarget   float64 // negative net-P&L threshold

	// Last-computed P&L; close reuses these rather than recomputing.
	GrossPnL float64
	Fees     FeeBreakdown
	NetPnL   float64

	Confidence float64
	Provenance PriceProvenance

	StartTime     time.Time
	TimeRemaining int // countdown seconds, decremented at 1 Hz after Start
}

// TradeOutcome is the immutable record emitted when a trade closes. It is the
// sole artifact the engine hands to external persistence and analytics.
type TradeOutcome struct {
	ID         string
	MarketID   string
	Question   string
	EntryPrice float64
	ExitPrice  float64
	Shares     int
	Stake      float64
	GrossPnL   float64
	Fees       FeeBreakdown
	NetPnL     float64
	HoldTime   time.Duration
	Reason     ExitReason
	Provenance PriceProvenance
	Confidence float64
	Tier       VolatilityTier
	ClosedAt   time.Time
}
