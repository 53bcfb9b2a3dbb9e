package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyscalp/scalpd/internal/domain"
)

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates an OutcomeStore backed by the given connection pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

const outcomeSelectCols = `id, market_id, question, entry_price, exit_price,
	shares, stake, gross_pnl,
	fee_slippage, fee_spread, fee_trading, fee_gas, fee_total,
	net_pnl, hold_time_ms, exit_reason, provenance, confidence, tier, closed_at`

func scanOutcomeRows(rows pgx.Rows) ([]domain.TradeOutcome, error) {
	var outcomes []domain.TradeOutcome
	for rows.Next() {
		var (
			o          domain.TradeOutcome
			holdTimeMs int64
		)
		if err := rows.Scan(
			&o.ID, &o.MarketID, &o.Question, &o.EntryPrice, &o.ExitPrice,
			&o.Shares, &o.Stake, &o.GrossPnL,
			&o.Fees.Slippage, &o.Fees.SpreadCost, &o.Fees.TradingFee,
			&o.Fees.GasCost, &o.Fees.Total,
			&o.NetPnL, &holdTimeMs, &o.Reason, &o.Provenance,
			&o.Confidence, &o.Tier, &o.ClosedAt,
		); err != nil {
			return nil, err
		}
		o.HoldTime = time.Duration(holdTimeMs) * time.Millisecond
		if o.Stake > 0 {
			o.Fees.PctOfStake = o.Fees.Total / o.Stake * 100
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Insert persists one closed-trade record. Re-inserting the same outcome ID
// is silently skipped via ON CONFLICT DO NOTHING.
func (s *OutcomeStore) Insert(ctx context.Context, o domain.TradeOutcome) error {
	const query = `
		INSERT INTO trade_outcomes (
			id, market_id, question, entry_price, exit_price,
			shares, stake, gross_pnl,
			fee_slippage, fee_spread, fee_trading, fee_gas, fee_total,
			net_pnl, hold_time_ms, exit_reason, provenance, confidence, tier, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Question, o.EntryPrice, o.ExitPrice,
		o.Shares, o.Stake, o.GrossPnL,
		o.Fees.Slippage, o.Fees.SpreadCost, o.Fees.TradingFee,
		o.Fees.GasCost, o.Fees.Total,
		o.NetPnL, o.HoldTime.Milliseconds(), string(o.Reason),
		string(o.Provenance), o.Confidence, string(o.Tier), o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert outcome: %w", err)
	}
	return nil
}

// ListRecent returns the most recently closed outcomes, newest first.
func (s *OutcomeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM trade_outcomes ORDER BY closed_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent outcomes: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent outcomes: %w", err)
	}
	return outcomes, nil
}

// ListBefore returns outcomes closed strictly before the cutoff, oldest
// first, for archival.
func (s *OutcomeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeOutcome, error) {
	query := `SELECT ` + outcomeSelectCols + ` FROM trade_outcomes WHERE closed_at < $1 ORDER BY closed_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list outcomes before: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan outcomes before: %w", err)
	}
	return outcomes, nil
}

// DeleteBefore removes outcomes closed before the cutoff and reports how
// many rows were deleted.
func (s *OutcomeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_outcomes WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete outcomes before: %w", err)
	}
	return tag.RowsAffected(), nil
}
