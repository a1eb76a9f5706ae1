package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"shortseller/internal/risk"
	"shortseller/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	asset       TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,		-- 'entry' or 'exit'
	price       REAL NOT NULL,
	qty         REAL NOT NULL,
	notional    REAL NOT NULL,
	pnl         REAL,
	pnl_pct     REAL,
	exit_reason TEXT,
	order_id    TEXT,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_asset_time ON fills(asset, created_at);

CREATE TABLE IF NOT EXISTS positions (
	asset       TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	in_position INTEGER NOT NULL,
	entry_price REAL,
	qty         REAL,
	notional    REAL,
	entry_time  TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS heartbeats (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	equity     REAL NOT NULL,
	open_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_summaries (
	day         TEXT PRIMARY KEY,		-- YYYY-MM-DD UTC
	balance     REAL NOT NULL,
	trades      INTEGER NOT NULL,
	realized    REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
`

// Store is the SQLite write-through layer. A nil Store is valid and
// turns every call into a no-op, which is how the engine runs when
// persistence is disabled.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// applies the schema. WAL mode keeps writer stalls away from the
// read-only status API.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("persistence: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEntry persists an entry fill and the resulting position row.
func (s *Store) RecordEntry(pos state.Position, orderID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO fills (asset, symbol, side, price, qty, notional, order_id, created_at)
		 VALUES (?, ?, 'entry', ?, ?, ?, ?, ?)`,
		pos.Asset, pos.Symbol, pos.EntryPrice, pos.Quantity, pos.Notional, orderID, now,
	)
	if err != nil {
		return fmt.Errorf("persistence: record entry: %w", err)
	}
	return s.savePosition(pos, now)
}

// RecordExit persists an exit fill and clears the stored position.
func (s *Store) RecordExit(pos state.Position, exitPrice, pnl, pnlPct float64, reason risk.ExitReason) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO fills (asset, symbol, side, price, qty, notional, pnl, pnl_pct, exit_reason, created_at)
		 VALUES (?, ?, 'exit', ?, ?, ?, ?, ?, ?, ?)`,
		pos.Asset, pos.Symbol, exitPrice, pos.Quantity, pos.Quantity*exitPrice, pnl, pnlPct, string(reason), now,
	)
	if err != nil {
		return fmt.Errorf("persistence: record exit: %w", err)
	}
	return s.savePosition(state.Position{Asset: pos.Asset, Symbol: pos.Symbol}, now)
}

func (s *Store) savePosition(pos state.Position, now time.Time) error {
	var entryTime any
	if pos.InPosition {
		entryTime = pos.EntryTime
	}
	_, err := s.db.Exec(
		`INSERT INTO positions (asset, symbol, in_position, entry_price, qty, notional, entry_time, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(asset) DO UPDATE SET
			symbol = excluded.symbol,
			in_position = excluded.in_position,
			entry_price = excluded.entry_price,
			qty = excluded.qty,
			notional = excluded.notional,
			entry_time = excluded.entry_time,
			updated_at = excluded.updated_at`,
		pos.Asset, pos.Symbol, boolToInt(pos.InPosition),
		pos.EntryPrice, pos.Quantity, pos.Notional, entryTime, now,
	)
	if err != nil {
		return fmt.Errorf("persistence: save position: %w", err)
	}
	return nil
}

// RecordHeartbeat stores one equity observation.
func (s *Store) RecordHeartbeat(equity float64, openCount int) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO heartbeats (equity, open_count, created_at) VALUES (?, ?, ?)`,
		equity, openCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("persistence: record heartbeat: %w", err)
	}
	return nil
}

// RecordDailySummary upserts the end-of-day snapshot for a UTC day.
func (s *Store) RecordDailySummary(day string, balance float64, trades int, realized float64) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO daily_summaries (day, balance, trades, realized, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
			balance = excluded.balance,
			trades = excluded.trades,
			realized = excluded.realized`,
		day, balance, trades, realized, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("persistence: record daily summary: %w", err)
	}
	return nil
}

// Fill is one row from the fills table.
type Fill struct {
	Asset      string
	Symbol     string
	Side       string
	Price      float64
	Qty        float64
	Notional   float64
	PnL        float64
	PnLPct     float64
	ExitReason string
	CreatedAt  time.Time
}

// RecentFills returns the newest limit fills, newest first.
func (s *Store) RecentFills(limit int) ([]Fill, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT asset, symbol, side, price, qty, notional,
		        COALESCE(pnl, 0), COALESCE(pnl_pct, 0), COALESCE(exit_reason, ''), created_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: recent fills: %w", err)
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.Asset, &f.Symbol, &f.Side, &f.Price, &f.Qty, &f.Notional,
			&f.PnL, &f.PnLPct, &f.ExitReason, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
