package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyscalp/scalpd/internal/clock"
	"github.com/polyscalp/scalpd/internal/domain"
	"github.com/polyscalp/scalpd/internal/feed"
)

// priceChannel is the signal bus channel price updates are published on.
const priceChannel = "prices"

// PriceMirror copies every feed tick into the price cache and publishes a
// price update event, making live prices visible to external consumers. It
// is registered as a feed handler alongside the engine's own.
type PriceMirror struct {
	cache  domain.PriceCache
	bus    domain.SignalBus
	clk    clock.Clock
	logger *slog.Logger
}

// NewPriceMirror creates a PriceMirror. Bus may be nil.
func NewPriceMirror(cache domain.PriceCache, bus domain.SignalBus, clk clock.Clock, logger *slog.Logger) *PriceMirror {
	return &PriceMirror{
		cache:  cache,
		bus:    bus,
		clk:    clk,
		logger: logger.With(slog.String("component", "price_mirror")),
	}
}

// HandleTick stores the tick's price in the cache and publishes a price
// event. Publish failures are logged; a broken bus must not interrupt the
// price path.
func (m *PriceMirror) HandleTick(ctx context.Context, tk feed.Tick) error {
	now := m.clk.Now()
	if err := m.cache.SetPrice(ctx, tk.MarketID, tk.Price, now); err != nil {
		return fmt.Errorf("service: set price for %q: %w", tk.MarketID, err)
	}

	if m.bus != nil {
		provenance := domain.PriceSimulated
		if tk.Real {
			provenance = domain.PriceReal
		}
		evt, _ := json.Marshal(map[string]any{
			"event":      "price_update",
			"market_id":  tk.MarketID,
			"price":      tk.Price,
			"change":     tk.Change,
			"provenance": string(provenance),
			"timestamp":  now.Format(time.RFC3339Nano),
		})
		if pubErr := m.bus.Publish(ctx, priceChannel, evt); pubErr != nil {
			m.logger.WarnContext(ctx, "publish price update failed",
				slog.String("market_id", tk.MarketID),
				slog.String("error", pubErr.Error()),
			)
		}
	}
	return nil
}

// Handler adapts the mirror to the feed's callback signature. Cache errors
// are logged since the feed cannot act on them.
func (m *PriceMirror) Handler() feed.Handler {
	return func(tk feed.Tick) {
		if err := m.HandleTick(context.Background(), tk); err != nil {
			m.logger.Warn("price mirror update failed",
				slog.String("market_id", tk.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
