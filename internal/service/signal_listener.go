package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/engine"
)

// Bus channels the listener consumes.
const (
	entryChannel   = "signals:entry"
	controlChannel = "signals:control"
)

// EntrySignal is the wire format an external scorer publishes to open a
// position. Confidence is on the scorer's 0-100 scale.
type EntrySignal struct {
	MarketID   string  `json:"market_id"`
	Question   string  `json:"question"`
	YesPrice   float64 `json:"yes_price"`
	Tier       string  `json:"tier"`
	Confidence float64 `json:"confidence"`
	Stake      float64 `json:"stake"`
	AutoStart  bool    `json:"auto_start"`
}

// ControlSignal drives the open trade's lifecycle from outside.
type ControlSignal struct {
	Action string `json:"action"` // start | exit | cancel | reset
}

// Initializer is satisfied by the fallback simulator; the live feed needs no
// seeding so trade mode passes nil.
type Initializer interface {
	Initialize(marketID string, startPrice float64, tier domain.VolatilityTier)
}

// SignalListener subscribes to the entry and control channels and drives the
// lifecycle engine. Malformed or rejected signals are logged and skipped so a
// bad publisher cannot wedge the session.
type SignalListener struct {
	bus    domain.SignalBus
	eng    *engine.Engine
	init   Initializer
	logger *slog.Logger
}

// NewSignalListener creates a SignalListener. init may be nil when prices
// need no seeding.
func NewSignalListener(bus domain.SignalBus, eng *engine.Engine, init Initializer, logger *slog.Logger) *SignalListener {
	return &SignalListener{
		bus:    bus,
		eng:    eng,
		init:   init,
		logger: logger.With(slog.String("component", "signal_listener")),
	}
}

// Run consumes both channels until the context is cancelled.
func (l *SignalListener) Run(ctx context.Context) error {
	entries, err := l.bus.Subscribe(ctx, entryChannel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", entryChannel, err)
	}
	controls, err := l.bus.Subscribe(ctx, controlChannel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", controlChannel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-entries:
			if !ok {
				return nil
			}
			l.handleEntry(ctx, payload)
		case payload, ok := <-controls:
			if !ok {
				return nil
			}
			l.handleControl(ctx, payload)
		}
	}
}

func (l *SignalListener) handleEntry(ctx context.Context, payload []byte) {
	var sig EntrySignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		l.logger.WarnContext(ctx, "dropping malformed entry signal",
			slog.String("error", err.Error()),
		)
		return
	}

	market := domain.Market{
		ID:         sig.MarketID,
		Question:   sig.Question,
		YesPrice:   sig.YesPrice,
		Tier:       domain.ParseTier(sig.Tier),
		Confidence: sig.Confidence,
	}
	if l.init != nil {
		l.init.Initialize(market.ID, market.YesPrice, market.Tier)
	}

	trade, err := l.eng.Open(market, sig.Stake)
	if err != nil {
		var rejected *domain.EntryRejectedError
		if errors.As(err, &rejected) {
			l.logger.InfoContext(ctx, "entry signal rejected",
				slog.String("market_id", sig.MarketID),
				slog.Any("reasons", rejected.Reasons),
			)
			return
		}
		l.logger.WarnContext(ctx, "entry signal failed",
			slog.String("market_id", sig.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}

	l.logger.InfoContext(ctx, "trade opened from signal",
		slog.String("trade_id", trade.ID),
		slog.String("market_id", trade.Market.ID),
		slog.Int("shares", trade.Shares),
		slog.Float64("stake", trade.Stake),
	)

	if sig.AutoStart {
		if err := l.eng.Start(); err != nil {
			l.logger.WarnContext(ctx, "auto-start failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (l *SignalListener) handleControl(ctx context.Context, payload []byte) {
	var sig ControlSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		l.logger.WarnContext(ctx, "dropping malformed control signal",
			slog.String("error", err.Error()),
		)
		return
	}

	var err error
	switch sig.Action {
	case "start":
		err = l.eng.Start()
	case "exit":
		err = l.eng.ExitManual()
	case "cancel":
		err = l.eng.Cancel()
	case "reset":
		l.eng.ResetSession()
	default:
		l.logger.WarnContext(ctx, "unknown control action",
			slog.String("action", sig.Action),
		)
		return
	}
	if err != nil {
		l.logger.WarnContext(ctx, "control action failed",
			slog.String("action", sig.Action),
			slog.String("error", err.Error()),
		)
		return
	}
	l.logger.InfoContext(ctx, "control action applied",
		slog.String("action", sig.Action),
	)
}
