// Package fees implements the cost model for a paper round trip: slippage by
// volatility tier, half-spread on entry, a taker fee charged only on winning
// exits, and fixed network gas. All functions are pure.
package fees

import "github.com/polyscalp/scalpd/internal/domain"

// Config holds the fee rates. Rates are fractions of stake, gas is dollars.
type Config struct {
	TakerFee      float64
	TypicalSpread float64
	GasUSD        float64
	Slippage      map[domain.VolatilityTier]float64
}

// Defaults mirrors the Polymarket fee structure the model was calibrated on.
func Defaults() Config {
	return Config{
		TakerFee:      0.02,
		TypicalSpread: 0.01,
		GasUSD:        0.01,
		Slippage: map[domain.VolatilityTier]float64{
			domain.TierLow:    0.005,
			domain.TierMedium: 0.01,
			domain.TierHigh:   0.02,
		},
	}
}

// Model computes fee breakdowns from a Config.
type Model struct {
	cfg Config
}

// NewModel creates a Model. A nil slippage map falls back to Defaults.
func NewModel(cfg Config) *Model {
	if cfg.Slippage == nil {
		cfg.Slippage = Defaults().Slippage
	}
	return &Model{cfg: cfg}
}

// slippageRate resolves the tier's slippage rate; unknown tiers use medium.
func (m *Model) slippageRate(tier domain.VolatilityTier) float64 {
	if rate, ok := m.cfg.Slippage[tier]; ok {
		return rate
	}
	return m.cfg.Slippage[domain.TierMedium]
}

// Compute returns the itemized fees for a trade of the given stake. The taker
// fee applies only when the trade is winning. A zero stake yields a zero
// breakdown.
func (m *Model) Compute(stake float64, tier domain.VolatilityTier, isWinning bool) domain.FeeBreakdown {
	if stake == 0 {
		return domain.FeeBreakdown{}
	}

	slippage := stake * m.slippageRate(tier)
	spreadCost := stake * (m.cfg.TypicalSpread / 2)
	var tradingFee float64
	if isWinning {
		tradingFee = stake * m.cfg.TakerFee
	}
	gasCost := m.cfg.GasUSD * 2 // entry + exit

	total := slippage + spreadCost + tradingFee + gasCost
	return domain.FeeBreakdown{
		Slippage:   slippage,
		SpreadCost: spreadCost,
		TradingFee: tradingFee,
		GasCost:    gasCost,
		Total:      total,
		PctOfStake: total / stake * 100,
	}
}

// NetPnL converts a gross P&L into net after fees. The taker fee is charged
// when the gross is positive.
func (m *Model) NetPnL(gross, stake float64, tier domain.VolatilityTier) float64 {
	return gross - m.Compute(stake, tier, gross > 0).Total
}

// BreakEven returns the minimum gross profit required to cover entry
// slippage plus half-spread and exit slippage plus taker fee, plus gas for
// the round trip.
func (m *Model) BreakEven(stake float64, tier domain.VolatilityTier) float64 {
	entry := stake * (m.slippageRate(tier) + m.cfg.TypicalSpread/2)
	exit := stake * (m.slippageRate(tier) + m.cfg.TakerFee)
	return entry + exit + m.cfg.GasUSD*2
}
