package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictd/verdictd/internal/domain"
)

// HeartbeatStore implements domain.HeartbeatStore using PostgreSQL. One row
// per market currently sitting in its finalization window; the monitor's
// in-memory map is rebuilt from this table on restart.
type HeartbeatStore struct {
	pool *pgxpool.Pool
}

// NewHeartbeatStore creates a new HeartbeatStore backed by the given pool.
func NewHeartbeatStore(pool *pgxpool.Pool) *HeartbeatStore {
	return &HeartbeatStore{pool: pool}
}

// Put inserts or refreshes a heartbeat record.
func (s *HeartbeatStore) Put(ctx context.Context, r domain.HeartbeatRecord) error {
	const query = `
		INSERT INTO heartbeats (market_id, outcome, confidence, proposed_at, last_check)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id) DO UPDATE SET
			outcome     = EXCLUDED.outcome,
			confidence  = EXCLUDED.confidence,
			proposed_at = EXCLUDED.proposed_at,
			last_check  = EXCLUDED.last_check`

	_, err := s.pool.Exec(ctx, query,
		r.MarketID, string(r.Outcome), r.Confidence, r.ProposedAt, r.LastCheck,
	)
	if err != nil {
		return fmt.Errorf("postgres: put heartbeat %s: %w", r.MarketID, err)
	}
	return nil
}

// Get retrieves the heartbeat record for a market.
func (s *HeartbeatStore) Get(ctx context.Context, marketID string) (domain.HeartbeatRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT market_id, outcome, confidence, proposed_at, last_check
		FROM heartbeats WHERE market_id = $1`, marketID)

	var r domain.HeartbeatRecord
	var outcome string
	err := row.Scan(&r.MarketID, &outcome, &r.Confidence, &r.ProposedAt, &r.LastCheck)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.HeartbeatRecord{}, domain.ErrNotFound
		}
		return domain.HeartbeatRecord{}, fmt.Errorf("postgres: get heartbeat %s: %w", marketID, err)
	}
	r.Outcome = domain.Outcome(outcome)
	return r, nil
}

// Delete removes a heartbeat record once the market finalizes or escalates.
// Deleting an absent row is not an error.
func (s *HeartbeatStore) Delete(ctx context.Context, marketID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM heartbeats WHERE market_id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: delete heartbeat %s: %w", marketID, err)
	}
	return nil
}

// List returns every heartbeat record, oldest proposal first.
func (s *HeartbeatStore) List(ctx context.Context) ([]domain.HeartbeatRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, outcome, confidence, proposed_at, last_check
		FROM heartbeats ORDER BY proposed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list heartbeats: %w", err)
	}
	defer rows.Close()

	var records []domain.HeartbeatRecord
	for rows.Next() {
		var r domain.HeartbeatRecord
		var outcome string
		if err := rows.Scan(&r.MarketID, &outcome, &r.Confidence, &r.ProposedAt, &r.LastCheck); err != nil {
			return nil, fmt.Errorf("postgres: scan heartbeat: %w", err)
		}
		r.Outcome = domain.Outcome(outcome)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list heartbeats rows: %w", err)
	}
	return records, nil
}

// Compile-time interface check.
var _ domain.HeartbeatStore = (*HeartbeatStore)(nil)
