// Package audit provides pure analytics over closed-trade history: the
// live-promotion readiness report and running session statistics. Nothing in
// this package performs I/O or can fail.
package audit

import (
	"math"

	"github.com/polyscalp/scalpd/internal/domain"
)

// Requirements are the thresholds a paper-trading history must clear before
// live trading is allowed.
type Requirements struct {
	MinTrades          int
	MinWinRate         float64
	MinProfitFactor    float64
	MinConsecutiveWins int
	MaxDrawdown        float64
}

// DefaultRequirements returns the promotion thresholds.
func DefaultRequirements() Requirements {
	return Requirements{
		MinTrades:          50,
		MinWinRate:         0.55,
		MinProfitFactor:    1.2,
		MinConsecutiveWins: 3,
		MaxDrawdown:        0.20,
	}
}

// Check is one evaluated readiness criterion.
type Check struct {
	Name     string
	Required float64
	Actual   float64
	Passed   bool
}

// Report is the full readiness evaluation. Ready is true only when every
// check passed.
type Report struct {
	Ready  bool
	Checks []Check
}

// Auditor evaluates a trade history against configured requirements.
type Auditor struct {
	req Requirements
}

// NewAuditor returns an Auditor with the given requirements.
func NewAuditor(req Requirements) *Auditor {
	return &Auditor{req: req}
}

// Evaluate computes every readiness criterion over the history and returns
// the report. An empty history fails every count-dependent check.
func (a *Auditor) Evaluate(history []domain.TradeOutcome) Report {
	report := Report{Ready: true}

	add := func(name string, required, actual float64, passed bool) {
		report.Checks = append(report.Checks, Check{
			Name:     name,
			Required: required,
			Actual:   actual,
			Passed:   passed,
		})
		if !passed {
			report.Ready = false
		}
	}

	total := len(history)
	add("minimum trades", float64(a.req.MinTrades), float64(total),
		total >= a.req.MinTrades)

	winRate := WinRate(history)
	add("win rate", a.req.MinWinRate, winRate, winRate >= a.req.MinWinRate)

	pf := ProfitFactor(history)
	add("profit factor", a.req.MinProfitFactor, pf, pf >= a.req.MinProfitFactor)

	streak := LongestWinStreak(history)
	add("consecutive wins", float64(a.req.MinConsecutiveWins), float64(streak),
		streak >= a.req.MinConsecutiveWins)

	dd := MaxDrawdown(history)
	add("max drawdown", a.req.MaxDrawdown, dd, dd <= a.req.MaxDrawdown)

	return report
}

// WinRate is the fraction of trades with positive net P&L, 0 for an empty
// history.
func WinRate(history []domain.TradeOutcome) float64 {
	if len(history) == 0 {
		return 0
	}
	wins := 0
	for _, o := range history {
		if o.NetPnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(history))
}

// ProfitFactor is gross profit over gross loss. With zero gross loss it is
// +Inf when there is any gross profit, else 0.
func ProfitFactor(history []domain.TradeOutcome) float64 {
	var grossProfit, grossLoss float64
	for _, o := range history {
		if o.NetPnL > 0 {
			grossProfit += o.NetPnL
		} else {
			grossLoss += -o.NetPnL
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// MaxDrawdown scans the cumulative-equity curve against its running peak and
// returns the worst peak-to-current fraction, clamped to 1.0. Before the curve
// first goes positive the drawdown is defined as 0.
func MaxDrawdown(history []domain.TradeOutcome) float64 {
	var peak, running, maxDD float64
	for _, o := range history {
		running += o.NetPnL
		if running > peak {
			peak = running
		}
		if peak > 0 {
			if dd := (peak - running) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	if maxDD > 1 {
		maxDD = 1
	}
	return maxDD
}

// LongestWinStreak returns the length of the longest run of consecutive
// winning trades in the history.
func LongestWinStreak(history []domain.TradeOutcome) int {
	longest, current := 0, 0
	for _, o := range history {
		if o.NetPnL > 0 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}
