// Package journal persists order reports and run summaries to SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"tradesim/internal/engine"
	"tradesim/internal/matching"
	"tradesim/internal/order"
	"tradesim/types"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var ErrClosed = errors.New("journal closed")

var _ matching.ReportHandler = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	sequence        INTEGER NOT NULL,
	completed_at    TEXT NOT NULL,
	elapsed_seconds REAL NOT NULL,
	events          INTEGER NOT NULL,
	start_equity    TEXT NOT NULL,
	end_equity      TEXT NOT NULL,
	net_profit      TEXT NOT NULL,
	max_drawdown    TEXT NOT NULL,
	sharpe          TEXT NOT NULL,
	total_trades    INTEGER NOT NULL,
	total_fees      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS order_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	order_id   TEXT NOT NULL,
	account    TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	at         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
	execution_id TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	order_id     TEXT NOT NULL,
	account      TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	status       TEXT NOT NULL,
	price        TEXT NOT NULL,
	quantity     TEXT NOT NULL,
	fee          TEXT NOT NULL,
	at           TEXT NOT NULL,
	PRIMARY KEY (run_id, execution_id)
);`

// SQLite is a report sink. Handler callbacks cannot fail, so the first write
// error is kept and returned by Err and Close.
type SQLite struct {
	db     *sql.DB
	runID  string
	now    func() time.Time
	logger *slog.Logger
	err    error
}

type Option func(*SQLite)

// WithClock stamps status changes with the given time source, normally the
// engine's playback clock.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SQLite) { s.logger = l }
}

// NewSQLite opens (or creates) the database at dbPath and creates the tables.
func NewSQLite(ctx context.Context, dbPath, runID string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &SQLite{db: db, runID: runID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "journal")
	}
	return s, nil
}

func (s *SQLite) Err() error { return s.err }

// Close closes the database and returns the first write error, if any.
func (s *SQLite) Close() error {
	if s.db == nil {
		return s.err
	}
	err := errors.Join(s.err, s.db.Close())
	s.db = nil
	return err
}

func (s *SQLite) exec(query string, args ...any) {
	if s.err != nil {
		return
	}
	if s.db == nil {
		s.err = ErrClosed
		return
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		s.err = err
		s.logger.Error("journal write failed", "error", err)
	}
}

func (s *SQLite) OnStatusChange(o order.View, from, to types.OrderState) {
	s.exec(`INSERT INTO order_events (run_id, order_id, account, symbol, from_state, to_state, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, o.ID(), o.Account(), o.Symbol(), string(from), string(to), stamp(s.now()))
}

func (s *SQLite) OnRejection(o order.View, reason string) {
	s.exec(`UPDATE order_events SET reason = ?
		WHERE id = (SELECT max(id) FROM order_events WHERE run_id = ? AND order_id = ?)`,
		reason, s.runID, o.ID())
}

func (s *SQLite) OnExecution(_ order.View, exec types.ExecutionReport) {
	s.exec(`INSERT INTO executions (execution_id, run_id, order_id, account, symbol, side, status, price, quantity, fee, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ExecutionID, s.runID, exec.OrderID, exec.Account, exec.Symbol, string(exec.Side), string(exec.Status),
		exec.Price.String(), exec.Quantity.String(), exec.Fee.String(), stamp(exec.Time))
}

// SaveReport stores the run summary.
func (s *SQLite) SaveReport(ctx context.Context, r *engine.BacktestReport) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, sequence, completed_at, elapsed_seconds, events, start_equity, end_equity, net_profit, max_drawdown, sharpe, total_trades, total_fees)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Sequence, stamp(r.CompletedAt), r.ElapsedSeconds, r.Events,
		r.StartEquity.String(), r.EndEquity.String(), r.NetProfit.String(),
		r.MaxDrawdown.String(), r.SharpeRatio.String(), r.TotalTrades, r.TotalFees.String())
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}
	return nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
