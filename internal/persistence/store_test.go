package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"shortseller/internal/risk"
	"shortseller/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFillRoundTrip(t *testing.T) {
	s := openTestStore(t)

	pos := state.Position{
		Asset:      "BTC",
		Symbol:     "BTCUSDT",
		InPosition: true,
		EntryPrice: 50000,
		Quantity:   0.14,
		Notional:   7000,
		EntryTime:  time.Now().UTC(),
	}
	if err := s.RecordEntry(pos, "oid-1"); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	if err := s.RecordExit(pos, 47000, 420, 6.0, risk.ExitTakeProfit); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}

	fills, err := s.RecentFills(10)
	if err != nil {
		t.Fatalf("RecentFills: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}

	// Newest first: the exit comes back before the entry.
	exit := fills[0]
	if exit.Side != "exit" || exit.Price != 47000 || exit.PnL != 420 || exit.ExitReason != "take_profit" {
		t.Errorf("unexpected exit fill: %+v", exit)
	}
	entry := fills[1]
	if entry.Side != "entry" || entry.Price != 50000 || entry.Qty != 0.14 {
		t.Errorf("unexpected entry fill: %+v", entry)
	}
}

func TestHeartbeatAndDailySummary(t *testing.T) {
	s := openTestStore(t)

	if err := s.RecordHeartbeat(10123.45, 2); err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if err := s.RecordDailySummary("2026-08-28", 10123.45, 3, 87.5); err != nil {
		t.Fatalf("RecordDailySummary: %v", err)
	}
	// Upsert on a repeated day must not error.
	if err := s.RecordDailySummary("2026-08-28", 10200, 4, 164.0); err != nil {
		t.Fatalf("RecordDailySummary upsert: %v", err)
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var s *Store

	if err := s.RecordEntry(state.Position{}, ""); err != nil {
		t.Errorf("nil RecordEntry: %v", err)
	}
	if err := s.RecordHeartbeat(0, 0); err != nil {
		t.Errorf("nil RecordHeartbeat: %v", err)
	}
	fills, err := s.RecentFills(10)
	if err != nil || fills != nil {
		t.Errorf("nil RecentFills = %v, %v", fills, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
