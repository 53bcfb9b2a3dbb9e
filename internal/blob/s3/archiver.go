package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/polyscalp/scalpd/internal/domain"
)

// OutcomeArchiveStore provides the read/delete access the archiver needs.
// The Postgres outcome store satisfies it implicitly.
type OutcomeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeOutcome, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves aged trade outcomes from the primary store to S3 as JSONL
// files keyed by month.
type Archiver struct {
	writer   domain.BlobWriter
	outcomes OutcomeArchiveStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, outcomes OutcomeArchiveStore) *Archiver {
	return &Archiver{writer: writer, outcomes: outcomes}
}

// ArchiveOutcomes queries outcomes closed before the cutoff, serializes them
// to JSONL, and uploads the file to archive/outcomes/YYYY-MM.jsonl. It
// returns the number of archived records. The rows are NOT deleted here;
// call PruneArchived after the upload has been verified.
func (a *Archiver) ArchiveOutcomes(ctx context.Context, before time.Time) (int64, error) {
	outcomes, err := a.outcomes.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes query: %w", err)
	}
	if len(outcomes) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(outcomes)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes marshal: %w", err)
	}

	path := archivePath("outcomes", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive outcomes upload: %w", err)
	}

	return int64(len(outcomes)), nil
}

// PruneArchived deletes outcomes closed before the cutoff from the primary
// store. Run this only after ArchiveOutcomes for the same cutoff succeeded.
func (a *Archiver) PruneArchived(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := a.outcomes.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune archived outcomes: %w", err)
	}
	return deleted, nil
}

func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
