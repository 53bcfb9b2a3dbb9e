package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/polyscalp/scalpd/internal/clock"
	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/engine"
	"github.com/polyscalp/scalpd/internal/entry"
	"github.com/polyscalp/scalpd/internal/feed"
	"github.com/polyscalp/scalpd/internal/fees"
)

type chanBus struct {
	entries  chan []byte
	controls chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{
		entries:  make(chan []byte, 8),
		controls: make(chan []byte, 8),
	}
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	switch channel {
	case "signals:entry":
		return b.entries, nil
	default:
		return b.controls, nil
	}
}

type stubSource struct {
	subscribed []string
}

func (s *stubSource) Subscribe(marketID string, _ feed.Handler) error {
	s.subscribed = append(s.subscribed, marketID)
	return nil
}

func (s *stubSource) Unsubscribe(string) {}

func (s *stubSource) Poll(string) (feed.Quote, bool) { return feed.Quote{}, false }

type recordingInit struct {
	marketID string
	price    float64
	tier     domain.VolatilityTier
}

func (r *recordingInit) Initialize(marketID string, startPrice float64, tier domain.VolatilityTier) {
	r.marketID, r.price, r.tier = marketID, startPrice, tier
}

func newListenerEngine() *engine.Engine {
	model := fees.NewModel(fees.Defaults())
	validator := entry.NewValidator(model, entry.Defaults())
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	return engine.New(engine.DefaultConfig(), validator, model, &stubSource{}, clk, testLogger())
}

func entryPayload(t *testing.T, sig EntrySignal) []byte {
	t.Helper()
	payload, err := json.Marshal(sig)
	if err != nil {
		t.Fatalf("marshal entry signal: %v", err)
	}
	return payload
}

func runListener(t *testing.T, l *SignalListener) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestSignalListener_EntryOpensTrade(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	init := &recordingInit{}
	l := NewSignalListener(bus, eng, init, testLogger())

	bus.entries <- entryPayload(t, EntrySignal{
		MarketID:   "m1",
		Question:   "Will it rain?",
		YesPrice:   0.50,
		Tier:       "medium",
		Confidence: 90,
		Stake:      5,
	})
	close(bus.entries)
	runListener(t, l)

	snap := eng.Snapshot()
	if !snap.HasTrade {
		t.Fatal("entry signal did not open a trade")
	}
	if snap.Trade.State != domain.TradePending {
		t.Errorf("state = %q, want pending", snap.Trade.State)
	}
	if init.marketID != "m1" || init.price != 0.50 || init.tier != domain.TierMedium {
		t.Errorf("initializer got %q %v %q", init.marketID, init.price, init.tier)
	}
}

func TestSignalListener_AutoStart(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	l := NewSignalListener(bus, eng, nil, testLogger())

	bus.entries <- entryPayload(t, EntrySignal{
		MarketID:   "m1",
		YesPrice:   0.50,
		Tier:       "medium",
		Confidence: 90,
		Stake:      5,
		AutoStart:  true,
	})
	close(bus.entries)
	runListener(t, l)

	snap := eng.Snapshot()
	if !snap.HasTrade || snap.Trade.State != domain.TradeStarted {
		t.Errorf("trade = %+v, want started", snap.Trade)
	}
}

func TestSignalListener_RejectedEntrySkipped(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	l := NewSignalListener(bus, eng, nil, testLogger())

	bus.entries <- entryPayload(t, EntrySignal{
		MarketID:   "m1",
		YesPrice:   0.50,
		Tier:       "medium",
		Confidence: 10, // below the validator threshold
		Stake:      5,
	})
	close(bus.entries)
	runListener(t, l)

	if eng.Snapshot().HasTrade {
		t.Error("rejected entry opened a trade")
	}
}

func TestSignalListener_MalformedPayloadsDropped(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	l := NewSignalListener(bus, eng, nil, testLogger())

	bus.entries <- []byte("{not json")
	bus.controls <- []byte("also not json")
	close(bus.entries)
	runListener(t, l)

	if eng.Snapshot().HasTrade {
		t.Error("malformed payload opened a trade")
	}
}

func TestSignalListener_ControlActions(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	l := NewSignalListener(bus, eng, nil, testLogger())

	if _, err := eng.Open(domain.Market{
		ID: "m1", YesPrice: 0.50, Tier: domain.TierMedium, Confidence: 90,
	}, 5); err != nil {
		t.Fatalf("Open: %v", err)
	}

	bus.controls <- []byte(`{"action":"start"}`)
	bus.controls <- []byte(`{"action":"exit"}`)
	bus.controls <- []byte(`{"action":"bogus"}`)
	close(bus.controls)
	runListener(t, l)

	snap := eng.Snapshot()
	if snap.HasTrade {
		t.Error("trade still open after exit control")
	}
	if snap.Bankroll == engine.DefaultConfig().StartingBankroll-5 {
		t.Error("stake not settled back on exit")
	}
}

func TestSignalListener_CancelRefunds(t *testing.T) {
	bus := newChanBus()
	eng := newListenerEngine()
	l := NewSignalListener(bus, eng, nil, testLogger())

	if _, err := eng.Open(domain.Market{
		ID: "m1", YesPrice: 0.50, Tier: domain.TierMedium, Confidence: 90,
	}, 5); err != nil {
		t.Fatalf("Open: %v", err)
	}

	bus.controls <- []byte(`{"action":"cancel"}`)
	close(bus.controls)
	runListener(t, l)

	snap := eng.Snapshot()
	if snap.HasTrade {
		t.Error("trade still open after cancel")
	}
	if snap.Bankroll != engine.DefaultConfig().StartingBankroll {
		t.Errorf("bankroll = %v, want full refund", snap.Bankroll)
	}
}
