package audit

import (
	"math"
	"testing"

	"github.com/polyscalp/scalpd/internal/domain"
)

func outcomes(pnls ...float64) []domain.TradeOutcome {
	out := make([]domain.TradeOutcome, len(pnls))
	for i, p := range pnls {
		out[i] = domain.TradeOutcome{NetPnL: p, Stake: 10}
	}
	return out
}

func TestMaxDrawdown_PeakScan(t *testing.T) {
	// Equity curve 10, 5, 25, -5, 0: peak 25, worst excursion clamps to 1.0.
	history := outcomes(10, -5, 20, -30, 5)
	if got := MaxDrawdown(history); got != 1.0 {
		t.Errorf("MaxDrawdown = %v, want 1.0", got)
	}

	if got := MaxDrawdown(outcomes(10, -2)); got != 0.2 {
		t.Errorf("MaxDrawdown = %v, want 0.2", got)
	}
	if got := MaxDrawdown(nil); got != 0 {
		t.Errorf("MaxDrawdown(empty) = %v, want 0", got)
	}
	// All-losing history never establishes a positive peak.
	if got := MaxDrawdown(outcomes(-5, -5)); got != 0 {
		t.Errorf("MaxDrawdown(all losses) = %v, want 0", got)
	}
}

func TestProfitFactor(t *testing.T) {
	history := outcomes(10, -5, 20, -30, 5)
	if got := ProfitFactor(history); got != 1.0 {
		t.Errorf("ProfitFactor = %v, want 1.0", got)
	}

	if got := ProfitFactor(outcomes(10, 5)); !math.IsInf(got, 1) {
		t.Errorf("ProfitFactor(no losses) = %v, want +Inf", got)
	}
	if got := ProfitFactor(nil); got != 0 {
		t.Errorf("ProfitFactor(empty) = %v, want 0", got)
	}
	if got := ProfitFactor(outcomes(-10)); got != 0 {
		t.Errorf("ProfitFactor(only losses) = %v, want 0", got)
	}
}

func TestWinRate(t *testing.T) {
	if got := WinRate(outcomes(10, -5, 20, -30, 5)); got != 0.6 {
		t.Errorf("WinRate = %v, want 0.6", got)
	}
	// Break-even trades are not wins for readiness purposes.
	if got := WinRate(outcomes(0, 10)); got != 0.5 {
		t.Errorf("WinRate with break-even = %v, want 0.5", got)
	}
	if got := WinRate(nil); got != 0 {
		t.Errorf("WinRate(empty) = %v, want 0", got)
	}
}

func TestLongestWinStreak(t *testing.T) {
	if got := LongestWinStreak(outcomes(1, 1, -1, 1, 1, 1, -1)); got != 3 {
		t.Errorf("LongestWinStreak = %d, want 3", got)
	}
	if got := LongestWinStreak(outcomes(-1, -1)); got != 0 {
		t.Errorf("LongestWinStreak(all losses) = %d, want 0", got)
	}
}

func TestAuditor_Evaluate(t *testing.T) {
	auditor := NewAuditor(DefaultRequirements())

	// 50 trades: 30 wins of +3, 20 losses of -2. Win rate 0.6, profit factor
	// 90/40 = 2.25, a long opening win streak, shallow drawdown.
	var history []domain.TradeOutcome
	for i := 0; i < 30; i++ {
		history = append(history, domain.TradeOutcome{NetPnL: 3, Stake: 10})
	}
	for i := 0; i < 20; i++ {
		history = append(history, domain.TradeOutcome{NetPnL: -2, Stake: 10})
	}

	report := auditor.Evaluate(history)
	if len(report.Checks) != 5 {
		t.Fatalf("got %d checks, want 5", len(report.Checks))
	}
	for _, c := range report.Checks {
		if c.Name == "max drawdown" {
			// 20 straight losses after a peak of 90: drawdown 40/90.
			if c.Passed {
				t.Errorf("drawdown check passed with %v", c.Actual)
			}
			continue
		}
		if !c.Passed {
			t.Errorf("check %q failed: required %v actual %v", c.Name, c.Required, c.Actual)
		}
	}
	if report.Ready {
		t.Error("report.Ready = true with a failing check")
	}
}

func TestAuditor_EmptyHistoryNotReady(t *testing.T) {
	report := NewAuditor(DefaultRequirements()).Evaluate(nil)
	if report.Ready {
		t.Error("empty history reported ready")
	}
}

func TestStats_Summarize(t *testing.T) {
	stats := NewStats()
	if got := stats.Summarize(); got != (Summary{}) {
		t.Errorf("empty summary = %+v", got)
	}

	closes := []domain.TradeOutcome{
		{NetPnL: 10, Stake: 100, Fees: domain.FeeBreakdown{Total: 0.5}},
		{NetPnL: -5, Stake: 100, Fees: domain.FeeBreakdown{Total: 0.25}},
		{NetPnL: 20, Stake: 100, Fees: domain.FeeBreakdown{Total: 0.75}},
		{NetPnL: 6, Stake: 100, Fees: domain.FeeBreakdown{Total: 0.5}},
	}
	for _, o := range closes {
		stats.Record(o)
	}

	sum := stats.Summarize()
	if sum.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", sum.TotalTrades)
	}
	if sum.WinRate != 0.75 {
		t.Errorf("WinRate = %v, want 0.75", sum.WinRate)
	}
	if sum.TotalNetPnL != 31 {
		t.Errorf("TotalNetPnL = %v, want 31", sum.TotalNetPnL)
	}
	if sum.TotalFeesPaid != 2.0 {
		t.Errorf("TotalFeesPaid = %v, want 2.0", sum.TotalFeesPaid)
	}
	if sum.ProfitFactor != 36.0/5.0 {
		t.Errorf("ProfitFactor = %v, want 7.2", sum.ProfitFactor)
	}
	if sum.AvgWin != 12 {
		t.Errorf("AvgWin = %v, want 12", sum.AvgWin)
	}
	if sum.AvgLoss != 5 {
		t.Errorf("AvgLoss = %v, want 5", sum.AvgLoss)
	}
	if sum.ConsecutiveWins != 2 || sum.ConsecutiveLosses != 0 {
		t.Errorf("streaks = %d/%d, want 2/0", sum.ConsecutiveWins, sum.ConsecutiveLosses)
	}
	if sum.SharpeRatio <= 0 {
		t.Errorf("SharpeRatio = %v, want > 0", sum.SharpeRatio)
	}
}

func TestStats_TrailingLossStreak(t *testing.T) {
	stats := NewStats()
	for _, p := range []float64{5, -1, -2} {
		stats.Record(domain.TradeOutcome{NetPnL: p, Stake: 10})
	}
	sum := stats.Summarize()
	if sum.ConsecutiveWins != 0 || sum.ConsecutiveLosses != 2 {
		t.Errorf("streaks = %d/%d, want 0/2", sum.ConsecutiveWins, sum.ConsecutiveLosses)
	}
}
