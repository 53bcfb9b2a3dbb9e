package audit

import (
	"math"
	"sync"

	"github.com/polyscalp/scalpd/internal/domain"
)

// tradingDaysPerYear annualizes the per-trade Sharpe ratio.
const tradingDaysPerYear = 252

// Stats accumulates running session statistics from closed trades. Safe for
// concurrent use.
type Stats struct {
	mu       sync.Mutex
	outcomes []domain.TradeOutcome
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{}
}

// Record appends one closed trade.
func (s *Stats) Record(o domain.TradeOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

// Summary is a point-in-time view of the session's performance.
type Summary struct {
	TotalTrades       int
	WinRate           float64
	TotalNetPnL       float64
	TotalFeesPaid     float64
	ProfitFactor      float64
	AvgWin            float64
	AvgLoss           float64
	ConsecutiveWins   int
	ConsecutiveLosses int
	MaxDrawdown       float64
	SharpeRatio       float64
}

// Summarize computes the current summary. An empty session yields the zero
// Summary.
func (s *Stats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.outcomes) == 0 {
		return Summary{}
	}

	var sum Summary
	sum.TotalTrades = len(s.outcomes)

	var wins, losses int
	var grossProfit, grossLoss float64
	for _, o := range s.outcomes {
		sum.TotalNetPnL += o.NetPnL
		sum.TotalFeesPaid += o.Fees.Total
		if o.NetPnL > 0 {
			wins++
			grossProfit += o.NetPnL
		} else {
			losses++
			grossLoss += -o.NetPnL
		}
	}

	sum.WinRate = float64(wins) / float64(sum.TotalTrades)
	sum.ProfitFactor = ProfitFactor(s.outcomes)
	if wins > 0 {
		sum.AvgWin = grossProfit / float64(wins)
	}
	if losses > 0 {
		sum.AvgLoss = grossLoss / float64(losses)
	}
	sum.ConsecutiveWins, sum.ConsecutiveLosses = trailingStreaks(s.outcomes)
	sum.MaxDrawdown = MaxDrawdown(s.outcomes)
	sum.SharpeRatio = sharpe(s.outcomes)

	return sum
}

// trailingStreaks walks backwards from the most recent trade. Exactly one of
// the two counters is non-zero for a non-empty history.
func trailingStreaks(outcomes []domain.TradeOutcome) (consWins, consLosses int) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if outcomes[i].NetPnL > 0 {
			if consLosses > 0 {
				break
			}
			consWins++
		} else {
			if consWins > 0 {
				break
			}
			consLosses++
		}
	}
	return consWins, consLosses
}

// sharpe is the annualized ratio of mean to standard deviation of per-trade
// returns (net P&L over stake). Zero when the deviation is zero or any stake
// is unusable.
func sharpe(outcomes []domain.TradeOutcome) float64 {
	returns := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Stake <= 0 {
			continue
		}
		returns = append(returns, o.NetPnL/o.Stake)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return (mean / stdDev) * math.Sqrt(tradingDaysPerYear)
}
