package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradematcher/deskclient/internal/domain"
)

// SessionStore persists per-session history: normalized trades from the
// public tape, the viewer's fills, and order-log events. It implements
// domain.SessionRecorder plus the archive listing interfaces.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given connection pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// RecordTrades inserts tape entries using a pgx batch. Duplicates (same
// session and trade id) are silently skipped: reconnects replay the tape.
func (s *SessionStore) RecordTrades(ctx context.Context, sessionID string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO session_trades (
			session_id, trade_id, timestamp, price, quantity,
			bid_order_id, ask_order_id, bid_user_id, ask_user_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, trade_id) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			sessionID, t.ID, t.Timestamp, t.Price, t.Quantity,
			t.BidOrderID, t.AskOrderID, t.BidUserID, t.AskUserID,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: record trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// RecordFills inserts execution records, skipping duplicates by fill id.
func (s *SessionStore) RecordFills(ctx context.Context, sessionID string, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO session_fills (
			session_id, fill_id, order_id, user_id, ticker,
			side, price, quantity, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, fill_id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			sessionID, f.FillID, f.OrderID, f.UserID, f.Ticker,
			string(f.Side), f.Price, f.Quantity, f.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: record fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// RecordEvents appends order-log lines. Events carry no natural key, so
// they are inserted as-is; the log is append-only by construction.
func (s *SessionStore) RecordEvents(ctx context.Context, sessionID string, events []domain.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO session_events (
			session_id, timestamp, phase, order_id, side,
			order_type, price, quantity, message, severity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, ev := range events {
		batch.Queue(query,
			sessionID, ev.Timestamp, string(ev.Phase), ev.OrderID, string(ev.Side),
			string(ev.OrderType), ev.Price, ev.Quantity, ev.Message, string(ev.Severity),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: record event batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListTradesBefore returns trades older than the cutoff, oldest first,
// for archival.
func (s *SessionStore) ListTradesBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	const query = `
		SELECT trade_id, timestamp, price, quantity,
			bid_order_id, ask_order_id, bid_user_id, ask_user_id
		FROM session_trades WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.Timestamp, &t.Price, &t.Quantity,
			&t.BidOrderID, &t.AskOrderID, &t.BidUserID, &t.AskUserID,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListFillsBefore returns fills older than the cutoff, oldest first.
func (s *SessionStore) ListFillsBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	const query = `
		SELECT fill_id, order_id, user_id, ticker, side, price, quantity, timestamp
		FROM session_fills WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		if err := rows.Scan(
			&f.FillID, &f.OrderID, &f.UserID, &f.Ticker,
			&side, &f.Price, &f.Quantity, &f.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ListEventsBefore returns order-log events older than the cutoff, oldest
// first.
func (s *SessionStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	const query = `
		SELECT timestamp, phase, order_id, side, order_type,
			price, quantity, message, severity
		FROM session_events WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	var events []domain.OrderEvent
	for rows.Next() {
		var ev domain.OrderEvent
		var phase, side, orderType, severity string
		if err := rows.Scan(
			&ev.Timestamp, &phase, &ev.OrderID, &side, &orderType,
			&ev.Price, &ev.Quantity, &ev.Message, &severity,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		ev.Phase = domain.EventPhase(phase)
		ev.Side = domain.OrderSide(side)
		ev.OrderType = domain.OrderType(orderType)
		ev.Severity = domain.EventSeverity(severity)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBefore removes all history older than the cutoff across the three
// tables, returning the total number of rows deleted. Called by the
// archiver after a successful upload.
func (s *SessionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"session_trades", "session_fills", "session_events"} {
		tag, err := s.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE timestamp < $1", table), before)
		if err != nil {
			return total, fmt.Errorf("postgres: delete from %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Compile-time interface checks.
var (
	_ domain.SessionRecorder   = (*SessionStore)(nil)
	_ domain.TradeArchiveStore = (*SessionStore)(nil)
	_ domain.FillArchiveStore  = (*SessionStore)(nil)
	_ domain.EventArchiveStore = (*SessionStore)(nil)
)
