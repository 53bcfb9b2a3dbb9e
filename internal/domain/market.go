package domain

// VolatilityTier classifies a market by how violently its price moves. The
// tier drives slippage assumptions in the fee model and step sizes in the
// fallback simulator.
type VolatilityTier string

const (
	TierLow    VolatilityTier = "low"
	TierMedium VolatilityTier = "medium"
	TierHigh   VolatilityTier = "high"
)

// ParseTier maps a raw tier string to a VolatilityTier. Unknown values fall
// back to TierMedium so that every tier used downstream resolves to a
// configured rate.
func ParseTier(s string) VolatilityTier {
	switch VolatilityTier(s) {
	case TierLow, TierMedium, TierHigh:
		return VolatilityTier(s)
	default:
		return TierMedium
	}
}

// Market is a scored prediction market supplied by the external market
// catalog / scoring collaborator. It is immutable for the lifetime of a trade.
type Market struct {
	ID         string
	Question   string
	YesPrice   float64 // in (0,1)
	Tier       VolatilityTier
	Confidence float64 // external predictor score in [0,100]
}
