package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyscalp/scalpd/internal/audit"
	"github.com/polyscalp/scalpd/internal/clock"
	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/engine"
	"github.com/polyscalp/scalpd/internal/entry"
	"github.com/polyscalp/scalpd/internal/feed"
	"github.com/polyscalp/scalpd/internal/fees"
	"github.com/polyscalp/scalpd/internal/metrics"
	"github.com/polyscalp/scalpd/internal/notify"
	"github.com/polyscalp/scalpd/internal/service"
)

// TradeMode runs the lifecycle engine against the live WebSocket feed.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	liveFeed := feed.New(feed.Config{
		URL:                  a.cfg.Feed.URL,
		ConnectTimeout:       a.cfg.Feed.ConnectTimeout.Duration,
		HistoryLen:           a.cfg.Feed.HistoryLen,
		MaxReconnectAttempts: a.cfg.Feed.MaxReconnectAttempts,
		OnReconnect: func(int) {
			deps.Metrics.FeedReconnects.Inc()
		},
	}, clock.New(), a.logger)

	if err := liveFeed.Connect(ctx); err != nil {
		return fmt.Errorf("trade mode: connect feed: %w", err)
	}
	defer liveFeed.Disconnect()

	return a.runSession(ctx, deps, liveFeed, nil)
}

// PaperMode runs the lifecycle engine against the fallback price simulator.
// Every price it produces is tagged simulated, so outcomes recorded here can
// never masquerade as live history.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	sim := feed.NewSimulator(feed.SimulatorConfig{
		StepSize: map[domain.VolatilityTier]float64{
			domain.TierLow:    a.cfg.Simulation.StepLow,
			domain.TierMedium: a.cfg.Simulation.StepMed,
			domain.TierHigh:   a.cfg.Simulation.StepHigh,
		},
	})

	return a.runSession(ctx, deps, sim, sim)
}

// AuditMode evaluates the persisted trade history against the live-promotion
// requirements and reports the result. It is a one-shot mode.
func (a *App) AuditMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting audit mode")

	// Chronological order; the drawdown and streak scans depend on it.
	history, err := deps.Outcomes.ListBefore(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("audit mode: load history: %w", err)
	}

	auditor := audit.NewAuditor(audit.Requirements{
		MinTrades:          a.cfg.Readiness.MinTrades,
		MinWinRate:         a.cfg.Readiness.MinWinRate,
		MinProfitFactor:    a.cfg.Readiness.MinProfitFactor,
		MinConsecutiveWins: a.cfg.Readiness.MinConsecutiveWins,
		MaxDrawdown:        a.cfg.Readiness.MaxDrawdown,
	})
	report := auditor.Evaluate(history)

	for _, check := range report.Checks {
		a.logger.InfoContext(ctx, "readiness check",
			slog.String("name", check.Name),
			slog.Float64("required", check.Required),
			slog.Float64("actual", check.Actual),
			slog.Bool("passed", check.Passed),
		)
	}

	stats := audit.NewStats()
	for _, o := range history {
		stats.Record(o)
	}
	summary := stats.Summarize()
	a.logger.InfoContext(ctx, "session statistics",
		slog.Int("total_trades", summary.TotalTrades),
		slog.Float64("win_rate", summary.WinRate),
		slog.Float64("total_net_pnl", summary.TotalNetPnL),
		slog.Float64("total_fees", summary.TotalFeesPaid),
		slog.Float64("profit_factor", summary.ProfitFactor),
		slog.Float64("max_drawdown", summary.MaxDrawdown),
		slog.Float64("sharpe_ratio", summary.SharpeRatio),
	)

	if report.Ready {
		a.logger.InfoContext(ctx, "READY for live promotion")
	} else {
		a.logger.InfoContext(ctx, "NOT ready for live promotion")
	}
	return nil
}

// runSession wires the engine to the given price source and runs the session
// goroutines until the context is cancelled. init is non-nil only in paper
// mode, where entry signals must seed the simulator.
func (a *App) runSession(ctx context.Context, deps *Dependencies, source engine.PriceSource, init service.Initializer) error {
	model := fees.NewModel(fees.Config{
		TakerFee:      a.cfg.Fees.TakerFee,
		TypicalSpread: a.cfg.Fees.TypicalSpread,
		GasUSD:        a.cfg.Fees.GasUSD,
		Slippage: map[domain.VolatilityTier]float64{
			domain.TierLow:    a.cfg.Fees.SlippageLow,
			domain.TierMedium: a.cfg.Fees.SlippageMed,
			domain.TierHigh:   a.cfg.Fees.SlippageHigh,
		},
	})
	validator := entry.NewValidator(model, entry.Config{
		TakeProfitPct:     a.cfg.Trading.TakeProfitPct,
		StopLossPct:       a.cfg.Trading.StopLossPct,
		MinExpectedProfit: a.cfg.Entry.MinExpectedProfit,
		MinEdgeOverFees:   a.cfg.Entry.MinEdgeOverFees,
		MinConfidence:     a.cfg.Entry.MinConfidence,
	})

	recorder := service.NewOutcomeRecorder(deps.Outcomes, deps.SignalBus, deps.Notifier, a.logger)
	stats := audit.NewStats()

	mirror := service.NewPriceMirror(deps.PriceCache, deps.SignalBus, clock.New(), a.logger)
	tapped := &tappedSource{
		src: source,
		taps: []feed.Handler{
			mirror.Handler(),
			func(tk feed.Tick) {
				prov := domain.PriceSimulated
				if tk.Real {
					prov = domain.PriceReal
				}
				deps.Metrics.SetPrice(tk.MarketID, tk.Price, prov)
			},
		},
	}

	eng := engine.New(engine.Config{
		StartingBankroll:   a.cfg.Trading.StartingBankroll,
		TakeProfitPct:      a.cfg.Trading.TakeProfitPct,
		StopLossPct:        a.cfg.Trading.StopLossPct,
		ConfidenceBaseline: a.cfg.Trading.ConfidenceBaseline,
		LeverageFactor:     a.cfg.Trading.LeverageFactor,
		RedZoneThreshold:   a.cfg.Trading.RedZoneThreshold,
		TimerSeconds:       a.cfg.Trading.TimerSeconds,
		RefreshInterval:    a.cfg.Trading.RefreshInterval.Duration,
	}, validator, model, tapped, clock.New(), a.logger,
		recorder, deps.Metrics, statsSink{stats})

	g, ctx := errgroup.WithContext(ctx)

	listener := service.NewSignalListener(deps.SignalBus, eng, init, a.logger)
	g.Go(func() error {
		err := listener.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	// Session mirror: push engine state into the gauges and raise the
	// red-zone alert once per lock.
	g.Go(func() error {
		a.mirrorSession(ctx, eng, deps.Metrics, deps.Notifier)
		return nil
	})

	// Paper mode: advance the random walk for the open market so the
	// engine's refresh timer sees moving prices.
	if sim, ok := source.(*feed.Simulator); ok {
		g.Go(func() error {
			a.driveSimulator(ctx, eng, sim)
			return nil
		})
	}

	if deps.Archiver != nil && a.cfg.S3.RetentionDays > 0 {
		g.Go(func() error {
			a.runArchiver(ctx, deps)
			return nil
		})
	}

	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServer(a.cfg.Metrics.Port, deps.Metrics, a.logger)
		g.Go(srv.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	err := g.Wait()

	eng.Shutdown()
	summary := stats.Summarize()
	a.logger.Info("session closed",
		slog.Int("total_trades", summary.TotalTrades),
		slog.Float64("win_rate", summary.WinRate),
		slog.Float64("total_net_pnl", summary.TotalNetPnL),
		slog.Float64("total_fees", summary.TotalFeesPaid),
	)
	return err
}

// mirrorSession samples the engine snapshot once per second.
func (a *App) mirrorSession(ctx context.Context, eng *engine.Engine, m *metrics.Metrics, notifier *notify.Notifier) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	wasLocked := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := eng.Snapshot()
			m.SetSession(snap.Bankroll, snap.TotalPnL, snap.SessionLocked)
			if snap.HasTrade {
				m.SetPrice(snap.Trade.Market.ID, snap.Trade.CurrentPrice, snap.Trade.Provenance)
			}
			if snap.SessionLocked && !wasLocked {
				msg := fmt.Sprintf("Session P&L %.2f hit the red zone; trading locked until reset.", snap.TotalPnL)
				if err := notifier.Notify(ctx, notify.EventRedZone, "Red zone", msg); err != nil {
					a.logger.WarnContext(ctx, "red zone notification failed",
						slog.String("error", err.Error()),
					)
				}
			}
			wasLocked = snap.SessionLocked
		}
	}
}

// driveSimulator ticks the random walk for the open market at the engine's
// refresh cadence.
func (a *App) driveSimulator(ctx context.Context, eng *engine.Engine, sim *feed.Simulator) {
	interval := a.cfg.Trading.RefreshInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if snap := eng.Snapshot(); snap.HasTrade {
				sim.Tick(snap.Trade.Market.ID)
			}
		}
	}
}

// runArchiver moves aged outcomes to S3 once a day, pruning the database
// rows only after a successful upload.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.S3.RetentionDays)
			archived, err := deps.Archiver.ArchiveOutcomes(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "outcome archival failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if archived == 0 {
				continue
			}
			pruned, err := deps.Archiver.PruneArchived(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archived outcome prune failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "outcomes archived",
				slog.Int64("archived", archived),
				slog.Int64("pruned", pruned),
			)
		}
	}
}

// tappedSource wraps a price source so extra consumers observe every tick
// the engine's handler receives.
type tappedSource struct {
	src  engine.PriceSource
	taps []feed.Handler
}

func (t *tappedSource) Subscribe(marketID string, h feed.Handler) error {
	return t.src.Subscribe(marketID, func(tk feed.Tick) {
		h(tk)
		for _, tap := range t.taps {
			tap(tk)
		}
	})
}

func (t *tappedSource) Unsubscribe(marketID string) { t.src.Unsubscribe(marketID) }

func (t *tappedSource) Poll(marketID string) (feed.Quote, bool) { return t.src.Poll(marketID) }

// statsSink adapts the running-stats accumulator to the engine's sink
// interface.
type statsSink struct {
	stats *audit.Stats
}

func (s statsSink) RecordOutcome(_ context.Context, o domain.TradeOutcome) error {
	s.stats.Record(o)
	return nil
}
