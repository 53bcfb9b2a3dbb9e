package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/polyscalp/scalpd/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRecordOutcome_CountsByReasonAndProvenance(t *testing.T) {
	m := New("test")

	outcomes := []domain.TradeOutcome{
		{Reason: domain.ExitTakeProfit, Provenance: domain.PriceReal, NetPnL: 0.75, Fees: domain.FeeBreakdown{Total: 0.25}},
		{Reason: domain.ExitTakeProfit, Provenance: domain.PriceReal, NetPnL: 0.5, Fees: domain.FeeBreakdown{Total: 0.25}},
		{Reason: domain.ExitStopLoss, Provenance: domain.PriceSimulated, NetPnL: -0.6, Fees: domain.FeeBreakdown{Total: 0.5}},
	}
	for _, o := range outcomes {
		if err := m.RecordOutcome(context.Background(), o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	body := scrape(t, m)
	if !strings.Contains(body, `test_trades_total{provenance="real",reason="take_profit"} 2`) {
		t.Errorf("take_profit counter missing:\n%s", body)
	}
	if !strings.Contains(body, `test_trades_total{provenance="simulated",reason="stop_loss"} 1`) {
		t.Errorf("stop_loss counter missing:\n%s", body)
	}
	if !strings.Contains(body, "test_fees_paid_total 1") {
		t.Errorf("fees counter missing:\n%s", body)
	}
	if !strings.Contains(body, "test_net_pnl_winning_total 1.25") {
		t.Errorf("winning pnl counter missing:\n%s", body)
	}
}

func TestSetSession(t *testing.T) {
	m := New("test")
	m.SetSession(987.5, -12.5, true)

	body := scrape(t, m)
	if !strings.Contains(body, "test_bankroll_usd 987.5") {
		t.Errorf("bankroll gauge missing:\n%s", body)
	}
	if !strings.Contains(body, "test_total_pnl_usd -12.5") {
		t.Errorf("pnl gauge missing:\n%s", body)
	}
	if !strings.Contains(body, "test_session_locked 1") {
		t.Errorf("locked gauge missing:\n%s", body)
	}

	m.SetSession(1000, 0, false)
	if !strings.Contains(scrape(t, m), "test_session_locked 0") {
		t.Errorf("locked gauge not cleared")
	}
}

func TestSetPrice(t *testing.T) {
	m := New("test")
	m.SetPrice("m1", 0.625, domain.PriceReal)

	body := scrape(t, m)
	if !strings.Contains(body, `test_market_price{market_id="m1",provenance="real"} 0.625`) {
		t.Errorf("price gauge missing:\n%s", body)
	}
}

func TestIsolatedRegistries(t *testing.T) {
	a := New("test")
	b := New("test")
	a.FeedReconnects.Inc()

	if strings.Contains(scrape(t, b), "test_feed_reconnects_total 1") {
		t.Errorf("registries shared state")
	}
}
