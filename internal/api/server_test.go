package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shortseller/internal/state"
	"shortseller/internal/strategy"
)

func newTestServer() (*Server, *state.Ledger) {
	ledger := state.NewLedger([]string{"BTC", "ETH"})
	strat := strategy.NewEngine([]string{"BTC", "ETH"}, strategy.DefaultParams())
	return NewServer(ledger, strat, nil, SystemMeta{
		Assets:           []string{"BTC", "ETH"},
		ExecutionEnabled: true,
		Environment:      "testnet",
		Version:          "dev",
	}), ledger
}

func doGet(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Router.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return w, body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	w, body := doGet(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestStatusReflectsLedger(t *testing.T) {
	s, ledger := newTestServer()
	ledger.Open("BTC", "BTCUSDT", 50000, 0.14, 7000, time.Now().UTC())

	w, body := doGet(t, s, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["open_positions"].(float64) != 1 {
		t.Errorf("open_positions = %v, want 1", body["open_positions"])
	}
	if body["total_exposure"].(float64) != 7000 {
		t.Errorf("total_exposure = %v, want 7000", body["total_exposure"])
	}
	if body["environment"] != "testnet" {
		t.Errorf("environment = %v", body["environment"])
	}
}

func TestPositionsListsOpenOnly(t *testing.T) {
	s, ledger := newTestServer()
	ledger.Open("ETH", "ETHUSDT", 3000, 1.5, 4500, time.Now().UTC())

	w, body := doGet(t, s, "/api/positions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	positions := body["positions"].([]any)
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	row := positions[0].(map[string]any)
	if row["asset"] != "ETH" || row["entry_price"].(float64) != 3000 {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestFillsWithDisabledStore(t *testing.T) {
	s, _ := newTestServer()
	w, body := doGet(t, s, "/api/fills")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// nil store yields an empty list, not an error
	if fills := body["fills"].([]any); len(fills) != 0 {
		t.Errorf("fills = %v, want empty", fills)
	}
}
