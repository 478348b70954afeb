package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictd/verdictd/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Event IDs are
// assigned by the database sequence; the payload map is stored as JSONB.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event row. The caller-supplied ID is ignored; the
// database sequence assigns it.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload: %w", err)
	}

	const query = `
		INSERT INTO events (type, market_id, payload, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err = s.pool.Exec(ctx, query,
		string(e.Type), e.MarketID, payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.Type, err)
	}
	return nil
}

const eventCols = `id, type, market_id, payload, created_at`

// List returns events with pagination and optional time filtering, in
// insertion order.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id ASC"
	query, args = appendPagination(query, args, argIdx, opts)

	return s.queryEvents(ctx, query, args)
}

// ListByMarket returns events for a market in insertion order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE market_id = $1 ORDER BY id ASC`
	args := []any{marketID}
	query, args = appendPagination(query, args, 2, opts)

	return s.queryEvents(ctx, query, args)
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args []any) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var typ string
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &e.MarketID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		if payload != nil {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event payload: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
