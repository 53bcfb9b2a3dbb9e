package feed

import (
	"errors"
	"testing"

	"github.com/polyscalp/scalpd/internal/domain"
)

func TestSimulator_PricesStayClamped(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	sim.Initialize("m1", 0.02, domain.TierHigh)

	for i := 0; i < 500; i++ {
		price, ok := sim.Tick("m1")
		if !ok {
			t.Fatal("Tick returned ok=false for initialized market")
		}
		if price < 0.01 || price > 0.99 {
			t.Fatalf("tick %d price %v outside [0.01, 0.99]", i, price)
		}
	}

	sim.Initialize("m2", 0.98, domain.TierHigh)
	for i := 0; i < 500; i++ {
		price, _ := sim.Tick("m2")
		if price < 0.01 || price > 0.99 {
			t.Fatalf("tick %d price %v outside [0.01, 0.99]", i, price)
		}
	}
}

func TestSimulator_PollMarksSimulated(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	sim.Initialize("m1", 0.50, domain.TierMedium)

	quote, ok := sim.Poll("m1")
	if !ok {
		t.Fatal("Poll returned ok=false for initialized market")
	}
	if quote.Provenance != domain.PriceSimulated {
		t.Errorf("provenance = %q, want simulated", quote.Provenance)
	}
	if quote.Start != 0.50 {
		t.Errorf("start = %v, want 0.50", quote.Start)
	}
	if quote.Samples < 2 {
		t.Errorf("samples = %d, want at least 2 after a poll", quote.Samples)
	}

	if _, ok := sim.Poll("unknown"); ok {
		t.Error("Poll for unknown market returned ok=true")
	}
}

func TestSimulator_UnknownTierFallsBackToMedium(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	sim.Initialize("m1", 0.50, domain.VolatilityTier("extreme"))
	sim.Initialize("m2", 0.50, domain.TierMedium)

	// Both walks must stay within the medium step of the previous price.
	step := DefaultSimulatorConfig().StepSize[domain.TierMedium]
	prev := 0.50
	for i := 0; i < 100; i++ {
		price, ok := sim.Tick("m1")
		if !ok {
			t.Fatal("Tick returned ok=false")
		}
		delta := price - prev
		if delta > step+1e-12 || delta < -step-1e-12 {
			t.Fatalf("tick %d moved %v, exceeds medium step %v", i, delta, step)
		}
		prev = price
	}
}

func TestSimulator_SubscribeRequiresInitialize(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())

	err := sim.Subscribe("m1", func(Tick) {})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Subscribe before Initialize = %v, want ErrNotFound", err)
	}

	sim.Initialize("m1", 0.50, domain.TierLow)
	if err := sim.Subscribe("m1", func(Tick) {}); err != nil {
		t.Errorf("Subscribe after Initialize = %v", err)
	}

	sim.Unsubscribe("m1")
	if _, ok := sim.Poll("m1"); ok {
		t.Error("Poll after Unsubscribe returned ok=true")
	}
}

func TestSimulator_TickUnknownMarket(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorConfig())
	if _, ok := sim.Tick("nope"); ok {
		t.Error("Tick for unknown market returned ok=true")
	}
}
