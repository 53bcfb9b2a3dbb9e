// Package metrics exposes the trading session's counters and gauges in
// Prometheus text format.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polyscalp/scalpd/internal/domain"
)

// Metrics holds the session's Prometheus collectors. Each instance carries
// its own registry so tests can construct and scrape metrics in isolation.
type Metrics struct {
	registry *prometheus.Registry

	TradesTotal    *prometheus.CounterVec
	NetPnLTotal    prometheus.Counter
	FeesPaidTotal  prometheus.Counter
	Bankroll       prometheus.Gauge
	TotalPnL       prometheus.Gauge
	SessionLocked  prometheus.Gauge
	CurrentPrice   *prometheus.GaugeVec
	FeedReconnects prometheus.Counter
}

// New creates a Metrics instance with every collector registered on a fresh
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "scalpd"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Closed trades by exit reason and price provenance",
		}, []string{"reason", "provenance"}),
		NetPnLTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "net_pnl_winning_total",
			Help:      "Cumulative net profit from winning trades in dollars",
		}),
		FeesPaidTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_paid_total",
			Help:      "Cumulative round-trip fees paid in dollars",
		}),
		Bankroll: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bankroll_usd",
			Help:      "Current session bankroll in dollars",
		}),
		TotalPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_pnl_usd",
			Help:      "Session net P&L in dollars",
		}),
		SessionLocked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_locked",
			Help:      "1 when the red-zone lock is engaged",
		}),
		CurrentPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "market_price",
			Help:      "Latest observed YES price per market",
		}, []string{"market_id", "provenance"}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_reconnects_total",
			Help:      "WebSocket reconnect attempts",
		}),
	}
}

// RecordOutcome updates the trade counters from a closed trade. It satisfies
// the engine's outcome sink interface and never fails.
func (m *Metrics) RecordOutcome(_ context.Context, outcome domain.TradeOutcome) error {
	m.TradesTotal.WithLabelValues(string(outcome.Reason), string(outcome.Provenance)).Inc()
	m.FeesPaidTotal.Add(outcome.Fees.Total)
	if outcome.NetPnL > 0 {
		m.NetPnLTotal.Add(outcome.NetPnL)
	}
	return nil
}

// SetSession updates the session gauges from an engine snapshot.
func (m *Metrics) SetSession(bankroll, totalPnL float64, locked bool) {
	m.Bankroll.Set(bankroll)
	m.TotalPnL.Set(totalPnL)
	if locked {
		m.SessionLocked.Set(1)
	} else {
		m.SessionLocked.Set(0)
	}
}

// SetPrice updates the per-market price gauge.
func (m *Metrics) SetPrice(marketID string, price float64, provenance domain.PriceProvenance) {
	m.CurrentPrice.WithLabelValues(marketID, string(provenance)).Set(price)
}

// Handler serves this instance's registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
