package feed

import (
	"math/rand"
	"sync"

	"github.com/polyscalp/scalpd/internal/domain"
)

// SimulatorConfig maps each volatility tier to a per-tick step size.
type SimulatorConfig struct {
	StepSize map[domain.VolatilityTier]float64
}

// DefaultSimulatorConfig returns realistic per-tick step sizes.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		StepSize: map[domain.VolatilityTier]float64{
			domain.TierLow:    0.003,
			domain.TierMedium: 0.006,
			domain.TierHigh:   0.01,
		},
	}
}

// Simulator generates random-walk prices for markets when the live feed is
// degraded and policy explicitly permits simulated data. Every quote it
// produces is tagged simulated so consumers never mistake it for live data.
type Simulator struct {
	cfg SimulatorConfig

	mu     sync.Mutex
	states map[string]*simState
}

type simState struct {
	current  float64
	start    float64
	high     float64
	low      float64
	step     float64
	momentum int
	history  []float64
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.StepSize == nil {
		cfg.StepSize = DefaultSimulatorConfig().StepSize
	}
	return &Simulator{
		cfg:    cfg,
		states: make(map[string]*simState),
	}
}

// Initialize seeds the price record for a market. Re-initializing resets the
// walk.
func (s *Simulator) Initialize(marketID string, startPrice float64, tier domain.VolatilityTier) {
	step, ok := s.cfg.StepSize[tier]
	if !ok {
		step = s.cfg.StepSize[domain.TierMedium]
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[marketID] = &simState{
		current: startPrice,
		start:   startPrice,
		high:    startPrice,
		low:     startPrice,
		step:    step,
		history: []float64{startPrice},
	}
}

// Tick applies one pure random-walk perturbation, drawn uniformly from
// [-1, 1] and scaled by the tier step, clamped to [0.01, 0.99]. It returns
// the new price, or ok=false when the market was never initialized.
func (s *Simulator) Tick(marketID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[marketID]
	if !ok {
		return 0, false
	}

	change := (rand.Float64()*2 - 1) * st.step
	newPrice := clamp(st.current+change, 0.01, 0.99)

	// Streak-style momentum: consecutive moves in the same direction
	// accumulate, a reversal resets the counter to the new direction.
	switch {
	case newPrice > st.current:
		if st.momentum >= 0 {
			st.momentum++
		} else {
			st.momentum = 1
		}
	case newPrice < st.current:
		if st.momentum <= 0 {
			st.momentum--
		} else {
			st.momentum = -1
		}
	}

	st.current = newPrice
	if newPrice > st.high {
		st.high = newPrice
	}
	if newPrice < st.low {
		st.low = newPrice
	}
	st.history = append(st.history, newPrice)

	return newPrice, true
}

// Poll advances the walk one step and returns the resulting quote, tagged
// simulated. It satisfies the same pull interface as the live feed.
func (s *Simulator) Poll(marketID string) (Quote, bool) {
	if _, ok := s.Tick(marketID); !ok {
		return Quote{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[marketID]
	return Quote{
		Price:      st.current,
		Start:      st.start,
		High:       st.high,
		Low:        st.low,
		Change:     st.current - st.start,
		Momentum:   st.momentum,
		Samples:    len(st.history),
		Provenance: domain.PriceSimulated,
	}, true
}

// Subscribe satisfies the engine's price-source interface. The simulator is
// pull-driven, so there is no stream to attach the handler to; Initialize has
// to have been called for ticks to be produced.
func (s *Simulator) Subscribe(marketID string, _ Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[marketID]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

// Unsubscribe clears the market's simulated price record.
func (s *Simulator) Unsubscribe(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, marketID)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
