package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/polyscalp/scalpd/internal/domain"
)

type fakeBlobWriter struct {
	path        string
	contentType string
	body        []byte
	puts        int
	err         error
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, body io.Reader, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.path = path
	f.contentType = contentType
	f.body = data
	f.puts++
	return nil
}

type fakeArchiveStore struct {
	outcomes []domain.TradeOutcome
	listErr  error
	deleted  int64
	pruned   time.Time
}

func (f *fakeArchiveStore) ListBefore(_ context.Context, _ time.Time) ([]domain.TradeOutcome, error) {
	return f.outcomes, f.listErr
}

func (f *fakeArchiveStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.pruned = before
	return f.deleted, nil
}

func sampleOutcome(id string, netPnL float64) domain.TradeOutcome {
	return domain.TradeOutcome{
		ID:         id,
		MarketID:   "m1",
		Question:   "Will BTC close above 100k?",
		EntryPrice: 0.50,
		ExitPrice:  0.60,
		Shares:     10,
		Stake:      5,
		NetPnL:     netPnL,
		Reason:     domain.ExitTakeProfit,
		Provenance: domain.PriceReal,
		Confidence: 90,
		Tier:       domain.TierMedium,
		ClosedAt:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestArchiveOutcomes_UploadsJSONL(t *testing.T) {
	writer := &fakeBlobWriter{}
	store := &fakeArchiveStore{outcomes: []domain.TradeOutcome{
		sampleOutcome("a", 0.5),
		sampleOutcome("b", -0.25),
	}}
	arch := NewArchiver(writer, store)

	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveOutcomes(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOutcomes: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived = %d, want 2", n)
	}
	if writer.path != "archive/outcomes/2026-04.jsonl" {
		t.Errorf("path = %q", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Errorf("contentType = %q", writer.contentType)
	}

	lines := strings.Split(strings.TrimRight(string(writer.body), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first domain.TradeOutcome
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.ID != "a" || first.NetPnL != 0.5 {
		t.Errorf("first line = %+v", first)
	}
}

func TestArchiveOutcomes_EmptySkipsUpload(t *testing.T) {
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeArchiveStore{})

	n, err := arch.ArchiveOutcomes(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveOutcomes: %v", err)
	}
	if n != 0 {
		t.Errorf("archived = %d, want 0", n)
	}
	if writer.puts != 0 {
		t.Errorf("puts = %d, want 0", writer.puts)
	}
}

func TestArchiveOutcomes_Errors(t *testing.T) {
	storeErr := errors.New("pg down")
	arch := NewArchiver(&fakeBlobWriter{}, &fakeArchiveStore{listErr: storeErr})
	if _, err := arch.ArchiveOutcomes(context.Background(), time.Now()); !errors.Is(err, storeErr) {
		t.Errorf("list error not propagated: %v", err)
	}

	putErr := errors.New("s3 down")
	arch = NewArchiver(&fakeBlobWriter{err: putErr}, &fakeArchiveStore{
		outcomes: []domain.TradeOutcome{sampleOutcome("a", 1)},
	})
	if _, err := arch.ArchiveOutcomes(context.Background(), time.Now()); !errors.Is(err, putErr) {
		t.Errorf("put error not propagated: %v", err)
	}
}

func TestPruneArchived(t *testing.T) {
	store := &fakeArchiveStore{deleted: 7}
	arch := NewArchiver(&fakeBlobWriter{}, store)

	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.PruneArchived(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PruneArchived: %v", err)
	}
	if n != 7 {
		t.Errorf("deleted = %d, want 7", n)
	}
	if !store.pruned.Equal(cutoff) {
		t.Errorf("pruned cutoff = %v", store.pruned)
	}
}

func TestMarshalJSONL_NoHTMLEscaping(t *testing.T) {
	type rec struct {
		Q string `json:"q"`
	}
	out, err := marshalJSONL([]rec{{Q: "a < b & c"}})
	if err != nil {
		t.Fatalf("marshalJSONL: %v", err)
	}
	if !bytes.Contains(out, []byte("a < b & c")) {
		t.Errorf("HTML escaped output: %s", out)
	}
}
