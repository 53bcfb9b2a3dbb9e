// Package service coordinates the lifecycle engine with the persistence and
// messaging layers: it records closed trades, mirrors feed prices into the
// cache, and raises operator alerts.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/notify"
)

// outcomeChannel is the signal bus channel closed-trade events are published
// on.
const outcomeChannel = "signals:trade_closed"

// OutcomeRecorder persists every closed trade, publishes a trade_closed event
// on the signal bus, and notifies operators. It is wired into the engine as
// an outcome sink. Store and bus may be nil in paper mode; the recorder skips
// whatever is absent.
type OutcomeRecorder struct {
	outcomes domain.OutcomeStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewOutcomeRecorder creates an OutcomeRecorder.
func NewOutcomeRecorder(outcomes domain.OutcomeStore, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *OutcomeRecorder {
	return &OutcomeRecorder{
		outcomes: outcomes,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "outcome_recorder")),
	}
}

// RecordOutcome persists the outcome, then publishes and notifies on a
// best-effort basis. Only the store write can fail the call; bus and
// notification failures are logged.
func (r *OutcomeRecorder) RecordOutcome(ctx context.Context, outcome domain.TradeOutcome) error {
	if r.outcomes != nil {
		if err := r.outcomes.Insert(ctx, outcome); err != nil {
			return fmt.Errorf("service: record outcome %s: %w", outcome.ID, err)
		}
	}

	if r.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      "trade_closed",
			"outcome_id": outcome.ID,
			"market_id":  outcome.MarketID,
			"reason":     string(outcome.Reason),
			"net_pnl":    outcome.NetPnL,
			"provenance": string(outcome.Provenance),
			"closed_at":  outcome.ClosedAt.Format(time.RFC3339Nano),
		})
		if pubErr := r.bus.Publish(ctx, outcomeChannel, evt); pubErr != nil {
			r.logger.WarnContext(ctx, "publish trade_closed event failed",
				slog.String("outcome_id", outcome.ID),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	if r.notifier != nil {
		title, message := formatOutcome(outcome)
		if notifyErr := r.notifier.Notify(ctx, notify.EventTradeClosed, title, message); notifyErr != nil {
			r.logger.WarnContext(ctx, "trade_closed notification failed",
				slog.String("outcome_id", outcome.ID),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	r.logger.InfoContext(ctx, "trade outcome recorded",
		slog.String("outcome_id", outcome.ID),
		slog.String("market_id", outcome.MarketID),
		slog.String("reason", string(outcome.Reason)),
		slog.Float64("net_pnl", outcome.NetPnL),
	)
	return nil
}

// formatOutcome renders a closed trade as an operator-facing notification.
func formatOutcome(o domain.TradeOutcome) (title, message string) {
	verdict := "WIN"
	if o.NetPnL < 0 {
		verdict = "LOSS"
	}
	title = fmt.Sprintf("Trade closed: %s (%s)", verdict, o.Reason)
	message = fmt.Sprintf(
		"%s\nEntry %.3f -> Exit %.3f (%d shares, $%.2f stake)\nNet P&L: $%+.2f (fees $%.2f)\nHeld %s, prices %s",
		o.Question,
		o.EntryPrice, o.ExitPrice, o.Shares, o.Stake,
		o.NetPnL, o.Fees.Total,
		o.HoldTime.Round(time.Second), o.Provenance,
	)
	return title, message
}
