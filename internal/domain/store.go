package domain

import (
	"context"
	"io"
	"time"
)

// OutcomeStore persists closed-trade records.
type OutcomeStore interface {
	Insert(ctx context.Context, outcome TradeOutcome) error
	ListRecent(ctx context.Context, limit int) ([]TradeOutcome, error)
	// ListBefore returns outcomes closed strictly before the cutoff, oldest
	// first, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]TradeOutcome, error)
	// DeleteBefore removes archived outcomes and reports how many were deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PriceCache holds the latest observed price per market for external
// consumers (dashboards, other processes).
type PriceCache interface {
	SetPrice(ctx context.Context, marketID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, marketID string) (float64, time.Time, error)
}

// SignalBus is a lightweight publish/subscribe channel for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
