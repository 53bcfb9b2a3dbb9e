// Package feed manages one logical streaming connection to a market-data
// WebSocket and multiplexes per-market price subscriptions over it. It also
// provides the fallback price simulator used when policy explicitly permits
// simulated data.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyscalp/scalpd/internal/clock"
	"github.com/polyscalp/scalpd/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Status is the connection state of the feed.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Tick is delivered to a market's subscriber for every accepted price update.
type Tick struct {
	MarketID string
	Price    float64
	Change   float64 // delta from the previous stored price, 0 on first tick
	History  []float64
	Real     bool
}

// Handler consumes ticks for one subscribed market.
type Handler func(Tick)

// Quote is a point-in-time snapshot of a market's price state, used by
// pull-based consumers such as the trade engine's refresh timer.
type Quote struct {
	Price      float64
	Start      float64
	High       float64
	Low        float64
	Change     float64
	Momentum   int
	Samples    int
	Provenance domain.PriceProvenance
}

// Config holds the feed connection parameters.
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration // deadline for the transport to signal open
	HistoryLen           int           // bounded per-market history, oldest evicted
	MaxReconnectAttempts int

	// OnReconnect, when set, is called once per scheduled reconnect attempt
	// with the 1-based attempt number. Used for instrumentation.
	OnReconnect func(attempt int)
}

// DefaultConfig returns the production feed parameters.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       10 * time.Second,
		HistoryLen:           60,
		MaxReconnectAttempts: 5,
	}
}

// Feed is a price-feed connection. All exported methods are safe for
// concurrent use.
type Feed struct {
	cfg    Config
	clk    clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	status    Status
	closed    bool // set by Disconnect; cancels any scheduled reconnect
	attempts  int
	reconnect clock.Timer
	done      chan struct{} // per-connection; closed when the connection ends

	handlers map[string]Handler
	prices   map[string]*priceRecord
}

type priceRecord struct {
	current float64
	high    float64
	low     float64
	history []float64
}

// New creates a Feed. The clock is injectable so reconnect scheduling can be
// tested with virtual time.
func New(cfg Config, clk clock.Clock, logger *slog.Logger) *Feed {
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = 60
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	return &Feed{
		cfg:      cfg,
		clk:      clk,
		logger:   logger.With(slog.String("component", "price_feed")),
		handlers: make(map[string]Handler),
		prices:   make(map[string]*priceRecord),
	}
}

// Status returns the current connection status.
func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Connect establishes the WebSocket connection. It returns
// domain.ErrConnectTimeout when the transport does not signal open within the
// configured deadline, or a wrapped transport error on failure. On success
// any previously subscribed markets are re-subscribed.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.status == StatusConnected {
		f.mu.Unlock()
		return nil
	}
	f.status = StatusConnecting
	f.closed = false
	f.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: f.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, f.cfg.URL, nil)
	if err != nil {
		f.mu.Lock()
		f.status = StatusDisconnected
		f.mu.Unlock()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("feed: %w", domain.ErrConnectTimeout)
		}
		return fmt.Errorf("feed: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.mu.Lock()
	f.conn = conn
	f.status = StatusConnected
	f.attempts = 0
	f.done = make(chan struct{})
	done := f.done

	// Restore subscriptions after a reconnect.
	var restoreErr error
	for id := range f.handlers {
		if err := f.sendControl("subscribe", id); err != nil {
			restoreErr = err
			break
		}
	}
	f.mu.Unlock()

	if restoreErr != nil {
		return fmt.Errorf("feed: restore subscriptions: %w", restoreErr)
	}

	go f.readLoop(conn, done)
	go f.pingLoop(conn, done)

	f.logger.Info("feed connected", slog.String("url", f.cfg.URL))
	return nil
}

// Subscribe registers the handler for a market and sends the subscribe
// control message. Re-subscribing the same market replaces the prior handler.
// It fails with domain.ErrNotConnected when the feed is not connected.
func (f *Feed) Subscribe(marketID string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != StatusConnected {
		return fmt.Errorf("feed: subscribe %s: %w", marketID, domain.ErrNotConnected)
	}

	f.handlers[marketID] = h
	if err := f.sendControl("subscribe", marketID); err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", marketID, err)
	}
	f.logger.Info("subscribed to market", slog.String("market_id", marketID))
	return nil
}

// Unsubscribe removes the market's handler and subscription record. It is a
// no-op, not an error, when the market was never subscribed.
func (f *Feed) Unsubscribe(marketID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.handlers[marketID]; !ok {
		return
	}
	delete(f.handlers, marketID)

	if f.status == StatusConnected {
		if err := f.sendControl("unsubscribe", marketID); err != nil {
			f.logger.Warn("unsubscribe control message failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Poll returns the latest quote for a market, or ok=false before the first
// accepted tick.
func (f *Feed) Poll(marketID string) (Quote, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.prices[marketID]
	if !ok || len(rec.history) == 0 {
		return Quote{}, false
	}
	return Quote{
		Price:      rec.current,
		Start:      rec.history[0],
		High:       rec.high,
		Low:        rec.low,
		Change:     rec.current - rec.history[0],
		Momentum:   Momentum(rec.history),
		Samples:    len(rec.history),
		Provenance: domain.PriceReal,
	}, true
}

// Disconnect closes the transport, clears all subscriptions and handlers, and
// cancels any scheduled reconnect attempt. It is idempotent.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.reconnect != nil {
		f.reconnect.Stop()
		f.reconnect = nil
	}
	if f.done != nil {
		select {
		case <-f.done:
		default:
			close(f.done)
		}
		f.done = nil
	}
	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		_ = f.conn.Close()
		f.conn = nil
	}
	f.handlers = make(map[string]Handler)
	f.status = StatusDisconnected
}

// sendControl writes a subscribe/unsubscribe control message. Caller must
// hold f.mu with an open connection.
func (f *Feed) sendControl(msgType, marketID string) error {
	if f.conn == nil {
		return domain.ErrNotConnected
	}
	msg := controlMessage{Type: msgType, Channel: "market", Market: marketID}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal control: %w", err)
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// controlMessage is the outbound subscribe/unsubscribe frame.
type controlMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Market  string `json:"market"`
}

// readLoop reads until the connection drops, then hands off to the reconnect
// scheduler unless Disconnect was called.
func (f *Feed) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}

			f.mu.Lock()
			if f.conn == conn {
				f.conn = nil
				f.status = StatusDisconnected
			}
			closed := f.closed
			f.mu.Unlock()

			if !closed {
				f.logger.Warn("feed connection lost", slog.String("error", err.Error()))
				f.scheduleReconnect()
			}
			return
		}

		f.handleMessage(message)
	}
}

// pingLoop keeps the connection alive with periodic pings.
func (f *Feed) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundMessage is the envelope for price updates. Prices arrive either as
// JSON numbers or as quoted numeric strings depending on the upstream source.
type inboundMessage struct {
	Type     string        `json:"type"`
	Market   string        `json:"market"`
	AssetID  string        `json:"asset_id"`
	Price    flexibleFloat `json:"price"`
	YesPrice flexibleFloat `json:"yes_price"`
}

// flexibleFloat accepts both 0.42 and "0.42". Anything else leaves it unset.
type flexibleFloat struct {
	value float64
	set   bool
}

func (ff *flexibleFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		ff.value, ff.set = n, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			ff.value, ff.set = n, true
		}
	}
	// Unparseable prices leave the field unset; the message is dropped later.
	return nil
}

// handleMessage routes one inbound frame. Malformed messages are dropped
// silently: a single bad tick must never break the stream.
func (f *Feed) handleMessage(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Type != "price_update" && msg.Type != "trade" {
		return
	}

	marketID := msg.Market
	if marketID == "" {
		marketID = msg.AssetID
	}
	price := msg.Price
	if !price.set {
		price = msg.YesPrice
	}
	if marketID == "" || !price.set {
		return
	}

	f.applyUpdate(marketID, price.value)
}

// applyUpdate stores the price, appends to the bounded history, and invokes
// the registered handler outside the lock.
func (f *Feed) applyUpdate(marketID string, price float64) {
	f.mu.Lock()

	rec, ok := f.prices[marketID]
	if !ok {
		rec = &priceRecord{high: price, low: price}
		f.prices[marketID] = rec
	}

	var change float64
	if len(rec.history) > 0 {
		change = price - rec.current
	}

	rec.current = price
	if price > rec.high {
		rec.high = price
	}
	if price < rec.low {
		rec.low = price
	}

	rec.history = append(rec.history, price)
	if len(rec.history) > f.cfg.HistoryLen {
		rec.history = rec.history[len(rec.history)-f.cfg.HistoryLen:]
	}

	history := make([]float64, len(rec.history))
	copy(history, rec.history)
	h := f.handlers[marketID]
	f.mu.Unlock()

	if h != nil {
		h(Tick{
			MarketID: marketID,
			Price:    price,
			Change:   change,
			History:  history,
			Real:     true,
		})
	}
}

// scheduleReconnect arms the next reconnect attempt with exponential backoff.
// After the configured maximum it gives up permanently and logs the fact;
// exhaustion is reported, never thrown.
func (f *Feed) scheduleReconnect() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}

	f.attempts++
	if f.attempts > f.cfg.MaxReconnectAttempts {
		f.mu.Unlock()
		f.logger.Error("giving up on feed reconnection",
			slog.Int("attempts", f.cfg.MaxReconnectAttempts),
			slog.String("error", domain.ErrReconnectExhausted.Error()),
		)
		return
	}

	attempt := f.attempts
	delay := BackoffDelay(attempt)
	f.logger.Info("scheduling feed reconnect",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)

	f.reconnect = f.clk.AfterFunc(delay, func() {
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed {
			// Disconnect raced the timer; a late attempt must be a no-op.
			return
		}
		if err := f.Connect(context.Background()); err != nil {
			f.logger.Warn("feed reconnect failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			f.scheduleReconnect()
		}
	})
	f.mu.Unlock()

	if f.cfg.OnReconnect != nil {
		f.cfg.OnReconnect(attempt)
	}
}

// BackoffDelay returns the reconnect delay for the given 1-based attempt:
// min(1s * 2^attempt, 30s).
func BackoffDelay(attempt int) time.Duration {
	d := time.Second * (1 << attempt)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Momentum is the short-window directional heuristic over a price history:
// over the last min(4, len-1) consecutive pairs, +1 per increase, -1 per
// decrease, 0 for flat. Fewer than 3 samples yields 0. This is a display and
// tie-break heuristic, not a statistical estimator.
func Momentum(history []float64) int {
	if len(history) < 3 {
		return 0
	}
	momentum := 0
	lo := len(history) - 5
	if lo < 0 {
		lo = 0
	}
	for i := len(history) - 1; i > lo; i-- {
		switch {
		case history[i] > history[i-1]:
			momentum++
		case history[i] < history[i-1]:
			momentum--
		}
	}
	return momentum
}

// MomentumLabel maps a momentum count to the display label used by
// state snapshots.
func MomentumLabel(momentum int) string {
	switch {
	case momentum >= 3:
		return "strong bullish"
	case momentum >= 1:
		return "bullish"
	case momentum <= -3:
		return "strong bearish"
	case momentum <= -1:
		return "bearish"
	default:
		return "neutral"
	}
}
