// Package engine implements the trade lifecycle state machine: a single open
// position driven by price ticks and two periodic timers, with automatic exit
// triggers and session-level risk bookkeeping.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyscalp/scalpd/internal/clock"
	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/entry"
	"github.com/polyscalp/scalpd/internal/feed"
	"github.com/polyscalp/scalpd/internal/fees"
)

// Config holds the engine tuning parameters.
type Config struct {
	StartingBankroll   float64
	TakeProfitPct      float64 // take-profit target as fraction of stake
	StopLossPct        float64 // stop-loss target as fraction of stake
	ConfidenceBaseline float64 // confidence value at which the multiplier is 1
	LeverageFactor     float64
	RedZoneThreshold   float64 // cumulative session P&L at or below this locks the session
	TimerSeconds       int     // countdown duration once a trade is started
	RefreshInterval    time.Duration
}

// DefaultConfig returns the production engine parameters.
func DefaultConfig() Config {
	return Config{
		StartingBankroll:   1000,
		TakeProfitPct:      0.15,
		StopLossPct:        0.12,
		ConfidenceBaseline: 75,
		LeverageFactor:     1.5,
		RedZoneThreshold:   -100,
		TimerSeconds:       20,
		RefreshInterval:    time.Second,
	}
}

// PriceSource is the pull/push price interface the engine consumes. Both the
// live feed and the fallback simulator satisfy it.
type PriceSource interface {
	Subscribe(marketID string, h feed.Handler) error
	Unsubscribe(marketID string)
	Poll(marketID string) (feed.Quote, bool)
}

// OutcomeSink receives the immutable record of every closed trade. Sink
// errors are logged, never propagated: persistence failure must not affect
// the session.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, outcome domain.TradeOutcome) error
}

// Engine owns at most one open Trade at a time. All exported methods are safe
// for concurrent use; timer callbacks and manual calls serialize on one
// mutex, so a tick's P&L recompute and trigger evaluation always complete
// before the next tick is processed.
type Engine struct {
	cfg       Config
	validator *entry.Validator
	fees      *fees.Model
	source    PriceSource
	clk       clock.Clock
	logger    *slog.Logger
	sinks     []OutcomeSink

	mu                sync.Mutex
	trade             *domain.Trade
	bankroll          float64
	totalPnL          float64
	totalFees         float64
	consecutiveWins   int
	consecutiveLosses int
	locked            bool // red zone tripped; Open refuses until ResetSession
	shutdown          bool

	countdown clock.Timer
	refresh   clock.Timer
}

// New constructs an Engine. Sinks may be nil or empty.
func New(cfg Config, validator *entry.Validator, model *fees.Model, source PriceSource, clk clock.Clock, logger *slog.Logger, sinks ...OutcomeSink) *Engine {
	return &Engine{
		cfg:       cfg,
		validator: validator,
		fees:      model,
		source:    source,
		clk:       clk,
		logger:    logger.With(slog.String("component", "trade_engine")),
		sinks:     sinks,
		bankroll:  cfg.StartingBankroll,
	}
}

// Open validates and opens a position on the market. The stake is deducted
// immediately; timers do not run until Start. It fails with ErrSessionLocked,
// ErrAlreadyOpen, ErrInsufficientFunds, or an EntryRejectedError, in that
// order of precedence, and any failure leaves all session state unmodified.
func (e *Engine) Open(market domain.Market, stake float64) (domain.Trade, error) {
	e.mu.Lock()

	if e.locked || e.shutdown {
		e.mu.Unlock()
		return domain.Trade{}, domain.ErrSessionLocked
	}
	if e.trade != nil && e.trade.State != domain.TradeClosed {
		e.mu.Unlock()
		return domain.Trade{}, domain.ErrAlreadyOpen
	}
	if stake > e.bankroll {
		e.mu.Unlock()
		return domain.Trade{}, domain.ErrInsufficientFunds
	}

	res := e.validator.Validate(market, market.Confidence, stake, market.Tier)
	if !res.Valid {
		e.mu.Unlock()
		return domain.Trade{}, &domain.EntryRejectedError{Reasons: res.Reasons}
	}

	multiplier := market.Confidence / e.cfg.ConfidenceBaseline
	shares := int(math.Floor((stake / market.YesPrice) * multiplier * e.cfg.LeverageFactor))

	trade := &domain.Trade{
		ID:               uuid.NewString(),
		Market:           market,
		State:            domain.TradePending,
		Stake:            stake,
		Shares:           shares,
		EntryPrice:       market.YesPrice,
		CurrentPrice:     market.YesPrice,
		TakeProfitTarget: stake * e.cfg.TakeProfitPct,
		StopLossTarget:   -(stake * e.cfg.StopLossPct),
		Confidence:       market.Confidence,
		Provenance:       domain.PriceReal,
		TimeRemaining:    e.cfg.TimerSeconds,
	}

	if err := e.source.Subscribe(market.ID, e.handleTick); err != nil {
		e.mu.Unlock()
		return domain.Trade{}, err
	}

	// Seed provenance from the source so a trade that closes before any
	// tick arrives is still tagged correctly against simulated pricing.
	if quote, ok := e.source.Poll(market.ID); ok {
		trade.Provenance = quote.Provenance
	}

	e.bankroll -= stake
	e.trade = trade
	snapshot := *trade
	e.mu.Unlock()

	e.logger.Info("trade opened",
		slog.String("trade_id", trade.ID),
		slog.String("market_id", market.ID),
		slog.Float64("stake", stake),
		slog.Int("shares", shares),
		slog.Float64("entry_price", market.YesPrice),
	)
	return snapshot, nil
}

// Start begins the countdown and price-refresh timers. It fails with
// ErrNoOpenTrade when nothing is open and is a no-op on an already started
// trade.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trade == nil || e.trade.State == domain.TradeClosed {
		return domain.ErrNoOpenTrade
	}
	if e.trade.State == domain.TradeStarted {
		return nil
	}

	e.trade.State = domain.TradeStarted
	e.trade.StartTime = e.clk.Now()
	e.countdown = e.clk.AfterFunc(time.Second, e.onCountdownTick)
	e.refresh = e.clk.AfterFunc(e.cfg.RefreshInterval, e.onRefreshTick)

	e.logger.Info("trade started",
		slog.String("trade_id", e.trade.ID),
		slog.Int("timer_seconds", e.trade.TimeRemaining),
	)
	return nil
}

// ExitManual closes the started trade at the current price. It fails with
// ErrNoOpenTrade when nothing is open and ErrTradeNotStarted when the trade
// was never started.
func (e *Engine) ExitManual() error {
	e.mu.Lock()
	if e.trade == nil || e.trade.State == domain.TradeClosed {
		e.mu.Unlock()
		return domain.ErrNoOpenTrade
	}
	if e.trade.State != domain.TradeStarted {
		e.mu.Unlock()
		return domain.ErrTradeNotStarted
	}
	outcome := e.closeLocked(domain.ExitManual)
	e.mu.Unlock()

	e.emit(outcome)
	return nil
}

// Cancel abandons a pending trade before it starts: the stake is fully
// refunded and no outcome is emitted, so streak counters and cumulative P&L
// are untouched. A started trade cannot be cancelled, only exited.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trade == nil || e.trade.State == domain.TradeClosed {
		return domain.ErrNoOpenTrade
	}
	if e.trade.State != domain.TradePending {
		return domain.ErrTradeStarted
	}

	e.stopTimersLocked()
	e.source.Unsubscribe(e.trade.Market.ID)
	e.bankroll += e.trade.Stake
	e.trade.State = domain.TradeClosed

	e.logger.Info("trade cancelled", slog.String("trade_id", e.trade.ID))
	e.trade = nil
	return nil
}

// ResetSession unlocks a red-zoned session and restores the starting
// bankroll, cancelling any open trade first.
func (e *Engine) ResetSession() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.trade != nil && e.trade.State != domain.TradeClosed {
		e.stopTimersLocked()
		e.source.Unsubscribe(e.trade.Market.ID)
		e.trade = nil
	}

	e.locked = false
	e.bankroll = e.cfg.StartingBankroll
	e.totalPnL = 0
	e.totalFees = 0
	e.consecutiveWins = 0
	e.consecutiveLosses = 0
	e.logger.Info("session reset", slog.Float64("bankroll", e.bankroll))
}

// Shutdown stops all timers and abandons any open trade with a full refund.
// The engine accepts no further operations.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.shutdown {
		return
	}
	e.shutdown = true

	if e.trade != nil && e.trade.State != domain.TradeClosed {
		e.stopTimersLocked()
		e.source.Unsubscribe(e.trade.Market.ID)
		e.bankroll += e.trade.Stake
		e.trade = nil
	}
	e.logger.Info("engine shut down")
}

// Snapshot is a read-only projection of session and position state for UI
// and metrics consumers.
type Snapshot struct {
	Bankroll          float64
	TotalPnL          float64
	TotalFeesPaid     float64
	SessionLocked     bool
	ConsecutiveWins   int
	ConsecutiveLosses int

	HasTrade      bool
	Trade         domain.Trade
	MomentumLabel string
}

// Snapshot returns the current projection. The momentum label reflects the
// price source's latest history for the open market.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Bankroll:          e.bankroll,
		TotalPnL:          e.totalPnL,
		TotalFeesPaid:     e.totalFees,
		SessionLocked:     e.locked,
		ConsecutiveWins:   e.consecutiveWins,
		ConsecutiveLosses: e.consecutiveLosses,
		MomentumLabel:     feed.MomentumLabel(0),
	}
	if e.trade != nil && e.trade.State != domain.TradeClosed {
		snap.HasTrade = true
		snap.Trade = *e.trade
		if quote, ok := e.source.Poll(e.trade.Market.ID); ok {
			snap.MomentumLabel = feed.MomentumLabel(quote.Momentum)
		}
	}
	return snap
}

// handleTick is the push-path entry point registered with the price source.
func (e *Engine) handleTick(tk feed.Tick) {
	prov := domain.PriceSimulated
	if tk.Real {
		prov = domain.PriceReal
	}
	e.applyPrice(tk.MarketID, tk.Price, prov)
}

// onRefreshTick is the pull path: poll the source once per interval, then
// re-arm unless the trade closed.
func (e *Engine) onRefreshTick() {
	e.mu.Lock()
	if e.trade == nil || e.trade.State != domain.TradeStarted {
		e.mu.Unlock()
		return
	}
	marketID := e.trade.Market.ID
	e.mu.Unlock()

	if quote, ok := e.source.Poll(marketID); ok {
		e.applyPrice(marketID, quote.Price, quote.Provenance)
	}

	e.mu.Lock()
	if e.trade != nil && e.trade.State == domain.TradeStarted {
		e.refresh = e.clk.AfterFunc(e.cfg.RefreshInterval, e.onRefreshTick)
	}
	e.mu.Unlock()
}

// applyPrice recomputes P&L at the new price and evaluates the automatic
// exit triggers in priority order: take profit, then stop loss, then max
// loss. At most one trigger fires per tick. Triggers are only armed while
// the trade is Started. A tick for any other market is dropped: a handler
// dispatch in flight while one trade closes and the next opens must not
// land a stale price on the new position.
func (e *Engine) applyPrice(marketID string, price float64, prov domain.PriceProvenance) {
	e.mu.Lock()

	t := e.trade
	if t == nil || t.State == domain.TradeClosed || t.Market.ID != marketID {
		e.mu.Unlock()
		return
	}

	t.CurrentPrice = price
	t.Provenance = prov
	t.GrossPnL = (price - t.EntryPrice) * float64(t.Shares)
	t.Fees = e.fees.Compute(t.Stake, t.Market.Tier, t.GrossPnL > 0)
	t.NetPnL = t.GrossPnL - t.Fees.Total

	if t.State != domain.TradeStarted {
		e.mu.Unlock()
		return
	}

	var outcome *domain.TradeOutcome
	switch {
	case t.NetPnL >= t.TakeProfitTarget:
		outcome = e.closeLocked(domain.ExitTakeProfit)
	case t.NetPnL <= t.StopLossTarget:
		outcome = e.closeLocked(domain.ExitStopLoss)
	case t.NetPnL <= -t.Stake:
		outcome = e.closeLocked(domain.ExitMaxLoss)
	}
	e.mu.Unlock()

	e.emit(outcome)
}

// onCountdownTick decrements the countdown at 1 Hz and closes the trade when
// it reaches zero.
func (e *Engine) onCountdownTick() {
	e.mu.Lock()

	t := e.trade
	if t == nil || t.State != domain.TradeStarted {
		e.mu.Unlock()
		return
	}

	t.TimeRemaining--
	var outcome *domain.TradeOutcome
	if t.TimeRemaining <= 0 {
		outcome = e.closeLocked(domain.ExitTimerExpired)
	} else {
		e.countdown = e.clk.AfterFunc(time.Second, e.onCountdownTick)
	}
	e.mu.Unlock()

	e.emit(outcome)
}

// closeLocked finalizes the open trade with the given reason. It reuses the
// last tick's computed P&L exactly rather than recomputing, credits the
// bankroll with stake plus net P&L, updates streaks (break-even counts as a
// win), and trips the red-zone lock when cumulative P&L falls to the
// threshold. Caller must hold e.mu; the returned outcome is emitted by the
// caller after unlocking.
func (e *Engine) closeLocked(reason domain.ExitReason) *domain.TradeOutcome {
	t := e.trade

	e.stopTimersLocked()
	e.source.Unsubscribe(t.Market.ID)

	var holdTime time.Duration
	if !t.StartTime.IsZero() {
		holdTime = e.clk.Now().Sub(t.StartTime)
	}

	e.bankroll += t.Stake + t.NetPnL
	e.totalPnL += t.NetPnL
	e.totalFees += t.Fees.Total

	if t.NetPnL >= 0 {
		e.consecutiveWins++
		e.consecutiveLosses = 0
	} else {
		e.consecutiveLosses++
		e.consecutiveWins = 0
	}

	if e.totalPnL <= e.cfg.RedZoneThreshold {
		e.locked = true
		e.logger.Warn("red zone reached, session locked",
			slog.Float64("total_pnl", e.totalPnL),
			slog.Float64("threshold", e.cfg.RedZoneThreshold),
		)
	}

	t.State = domain.TradeClosed
	outcome := &domain.TradeOutcome{
		ID:         uuid.NewString(),
		MarketID:   t.Market.ID,
		Question:   t.Market.Question,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.CurrentPrice,
		Shares:     t.Shares,
		Stake:      t.Stake,
		GrossPnL:   t.GrossPnL,
		Fees:       t.Fees,
		NetPnL:     t.NetPnL,
		HoldTime:   holdTime,
		Reason:     reason,
		Provenance: t.Provenance,
		Confidence: t.Confidence,
		Tier:       t.Market.Tier,
		ClosedAt:   e.clk.Now(),
	}
	e.trade = nil

	e.logger.Info("trade closed",
		slog.String("trade_id", t.ID),
		slog.String("reason", string(reason)),
		slog.Float64("net_pnl", t.NetPnL),
		slog.Float64("bankroll", e.bankroll),
	)
	return outcome
}

// stopTimersLocked cancels both per-trade timers. Leaked timers after close
// are a defect; this is called on every transition into Closed and on
// Shutdown.
func (e *Engine) stopTimersLocked() {
	if e.countdown != nil {
		e.countdown.Stop()
		e.countdown = nil
	}
	if e.refresh != nil {
		e.refresh.Stop()
		e.refresh = nil
	}
}

// emit delivers the outcome to every sink. Nil outcomes (no trigger fired)
// are ignored.
func (e *Engine) emit(outcome *domain.TradeOutcome) {
	if outcome == nil {
		return
	}
	for _, sink := range e.sinks {
		if err := sink.RecordOutcome(context.Background(), *outcome); err != nil {
			e.logger.Error("outcome sink failed",
				slog.String("outcome_id", outcome.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
