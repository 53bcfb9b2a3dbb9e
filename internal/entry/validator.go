// Package entry implements the pre-trade economic gate: a trade is only worth
// opening when its confidence-weighted expected value clears the fee cost by a
// configured minimum edge.
package entry

import (
	"fmt"

	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/fees"
)

// Config holds the validator thresholds. The profit and edge minimums are
// fractions of stake; MinConfidence is on the external predictor's 0-100 scale.
type Config struct {
	TakeProfitPct     float64
	StopLossPct       float64
	MinExpectedProfit float64
	MinEdgeOverFees   float64
	MinConfidence     float64
}

// Defaults returns the thresholds the engine was tuned with.
func Defaults() Config {
	return Config{
		TakeProfitPct:     0.15,
		StopLossPct:       0.12,
		MinExpectedProfit: 0.05,
		MinEdgeOverFees:   0.03,
		MinConfidence:     75,
	}
}

// Result is the full diagnostic of a validation run. Reasons accumulates
// every failed check so the caller can present all of them, not just the
// first.
type Result struct {
	Valid             bool
	Reasons           []string
	ExpectedProfit    float64
	FeeCost           float64
	EdgeAfterFees     float64
	BreakEven         float64
	MinProfitRequired float64 // break-even as a fraction of stake
}

// Validator gates entries using the fee model and expected-value math.
type Validator struct {
	fees *fees.Model
	cfg  Config
}

// NewValidator creates a Validator backed by the given fee model.
func NewValidator(model *fees.Model, cfg Config) *Validator {
	return &Validator{fees: model, cfg: cfg}
}

// Validate checks whether opening a position of the given stake on the market
// clears the economic thresholds. It never returns an error; rejection is a
// Result with Valid=false and one reason per failed check.
//
// Expected profit is the confidence-weighted EV of the bounded exits:
// p*takeProfit - (1-p)*stopLoss, with p = confidence/100.
func (v *Validator) Validate(market domain.Market, confidence, stake float64, tier domain.VolatilityTier) Result {
	res := Result{}

	// Fees assume a winning exit: that is the scenario the edge must survive.
	res.FeeCost = v.fees.Compute(stake, tier, true).Total
	res.BreakEven = v.fees.BreakEven(stake, tier)
	if stake > 0 {
		res.MinProfitRequired = res.BreakEven / stake
	}

	winProb := confidence / 100
	potentialWin := stake * v.cfg.TakeProfitPct
	potentialLoss := stake * v.cfg.StopLossPct
	res.ExpectedProfit = winProb*potentialWin - (1-winProb)*potentialLoss
	res.EdgeAfterFees = res.ExpectedProfit - res.FeeCost

	minProfit := stake * v.cfg.MinExpectedProfit
	if res.ExpectedProfit < minProfit {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("expected profit $%.2f below minimum $%.2f", res.ExpectedProfit, minProfit))
	}

	minEdge := stake * v.cfg.MinEdgeOverFees
	if res.EdgeAfterFees < minEdge {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("edge after fees $%.2f below minimum $%.2f", res.EdgeAfterFees, minEdge))
	}

	if confidence < v.cfg.MinConfidence {
		res.Reasons = append(res.Reasons,
			fmt.Sprintf("confidence %.0f%% below threshold %.0f%%", confidence, v.cfg.MinConfidence))
	}

	res.Valid = len(res.Reasons) == 0
	return res
}
