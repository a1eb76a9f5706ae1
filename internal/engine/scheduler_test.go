package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"shortseller/internal/events"
	"shortseller/internal/order"
	"shortseller/internal/risk"
	"shortseller/internal/state"
	"shortseller/internal/strategy"
	"shortseller/pkg/bybit"
	"shortseller/pkg/config"
)

type fakeMarket struct {
	bars        []bybit.Kline
	balance     float64
	balanceErr  error
	tickerPrice float64 // 0 falls back to the last bar close
	positions   []bybit.Position
	leverages   map[string]float64
}

func (f *fakeMarket) GetKlines(context.Context, string, int, int) ([]bybit.Kline, error) {
	return f.bars, nil
}

func (f *fakeMarket) GetBalance(context.Context, string) (bybit.Balance, error) {
	if f.balanceErr != nil {
		return bybit.Balance{}, f.balanceErr
	}
	return bybit.Balance{Coin: "USDT", Wallet: f.balance, Available: f.balance}, nil
}

func (f *fakeMarket) GetTicker(_ context.Context, symbol string) (bybit.Ticker, error) {
	price := f.tickerPrice
	if price == 0 && len(f.bars) > 0 {
		price = f.bars[len(f.bars)-1].Close
	}
	return bybit.Ticker{Symbol: symbol, LastPrice: price}, nil
}

func (f *fakeMarket) GetPositions(context.Context, string) ([]bybit.Position, error) {
	return f.positions, nil
}

func (f *fakeMarket) SetLeverage(_ context.Context, symbol string, lv float64) error {
	if f.leverages == nil {
		f.leverages = make(map[string]float64)
	}
	f.leverages[symbol] = lv
	return nil
}

func (f *fakeMarket) InstrumentSpec(_ context.Context, symbol string, _ bool) (bybit.InstrumentSpec, error) {
	return bybit.InstrumentSpec{
		Symbol: symbol, MinQty: 0.001, MaxQty: 100, QtyStep: 0.001,
		MinNotional: 5, Status: "Trading",
	}, nil
}

type fakeTrader struct {
	entries []order.EntryRequest
	exits   []string
}

func (f *fakeTrader) EnterShort(_ context.Context, req order.EntryRequest) (order.EntryResult, error) {
	f.entries = append(f.entries, req)
	return order.EntryResult{OrderID: "oid", Qty: 0.14, Notional: req.TargetNotional}, nil
}

func (f *fakeTrader) Exit(_ context.Context, symbol string) (bool, error) {
	f.exits = append(f.exits, symbol)
	return true, nil
}

func testAsset() config.Asset {
	return config.Asset{
		Name:          "BTC",
		Symbol:        "BTCUSDT",
		Enabled:       true,
		AllocationPct: 0.07,
		Leverage:      10,
		StopLossPct:   0.015,
		TakeProfitPct: 0.06,
	}
}

// flatBars builds n chronological 5-minute bars closing at price, ending
// just before end.
func flatBars(n int, price float64, end time.Time) []bybit.Kline {
	bars := make([]bybit.Kline, n)
	for i := range bars {
		bars[i] = bybit.Kline{
			StartTime: end.Add(-time.Duration(n-i) * 5 * time.Minute),
			Close:     price,
			Volume:    10,
		}
	}
	return bars
}

func newTestScheduler(market *fakeMarket, trader *fakeTrader, at time.Time) (*Scheduler, *state.Ledger, *strategy.Engine) {
	asset := testAsset()
	params := Params{
		Interval:         5 * time.Minute,
		SettleDelay:      2 * time.Second,
		ErrorPause:       time.Millisecond,
		MinBars:          600,
		EMAShortPeriod:   240,
		EMALongPeriod:    600,
		StaleBarAfter:    10 * time.Minute,
		ExecutionEnabled: true,
	}
	strat := strategy.NewEngine([]string{asset.Name}, strategy.DefaultParams())
	ledger := state.NewLedger([]string{asset.Name})
	exits := risk.NewEvaluator(risk.DefaultParams())

	s := New(params, []config.Asset{asset}, market, trader, strat, ledger, exits,
		risk.DefaultQuickExitPolicy(), events.NewBus(), nil, nil)
	s.now = func() time.Time { return at }
	return s, ledger, strat
}

func TestUntilNextTickAlignsToBarClose(t *testing.T) {
	market := &fakeMarket{balance: 10000}
	s, _, _ := newTestScheduler(market, &fakeTrader{}, time.Time{})

	now := time.Date(2026, 8, 28, 12, 3, 17, 0, time.UTC)
	if got, want := s.untilNextTick(now), 105*time.Second; got != want {
		t.Fatalf("untilNextTick = %s, want %s", got, want)
	}

	// Exactly on the boundary still waits a full interval plus settle.
	now = time.Date(2026, 8, 28, 12, 5, 0, 0, time.UTC)
	if got, want := s.untilNextTick(now), 5*time.Minute+2*time.Second; got != want {
		t.Fatalf("untilNextTick on boundary = %s, want %s", got, want)
	}
}

func TestCrossInActiveRegimeOpensShort(t *testing.T) {
	t0 := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{balance: 10000}
	trader := &fakeTrader{}
	s, ledger, _ := newTestScheduler(market, trader, t0)

	// First cycle primes the detector: price slightly above both EMAs.
	market.bars = flatBars(650, 100, t0)
	market.bars[len(market.bars)-1].Close = 100.5
	s.runCycle(context.Background())
	if len(trader.entries) != 0 {
		t.Fatal("no entry expected on the priming cycle")
	}

	// Next bar drops below both EMAs: downward cross in an ACTIVE regime.
	t1 := t0.Add(5 * time.Minute)
	s.now = func() time.Time { return t1 }
	market.bars = append(market.bars[1:], bybit.Kline{StartTime: t1.Add(-5 * time.Minute), Close: 95, Volume: 10})
	s.runCycle(context.Background())

	if len(trader.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(trader.entries))
	}
	req := trader.entries[0]
	if req.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s", req.Symbol)
	}
	// 10000 * 0.07 * 10
	if req.TargetNotional != 7000 {
		t.Errorf("target notional = %v, want 7000", req.TargetNotional)
	}
	if !ledger.InPosition("BTC") {
		t.Fatal("ledger should show the open short")
	}

	// Re-running with the same snapshot must not double-enter.
	s.runCycle(context.Background())
	if len(trader.entries) != 1 {
		t.Fatalf("entries after repeat = %d, want 1", len(trader.entries))
	}
}

func TestHeldPositionKeepsCrossStateFresh(t *testing.T) {
	t0 := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{balance: 10000}
	trader := &fakeTrader{}
	s, ledger, _ := newTestScheduler(market, trader, t0)

	// Prime the detector with the price above both EMAs.
	market.bars = flatBars(650, 100, t0)
	market.bars[len(market.bars)-1].Close = 100.5
	s.runCycle(context.Background())

	// A short opened two hours ago rides through the next bar. Cross
	// detection must keep advancing during the hold; a detector frozen
	// at the pre-entry bar would replay this drop as a fresh cross on
	// the first flat cycle and immediately re-enter.
	ledger.Open("BTC", "BTCUSDT", 96, 0.14, 13.44, t0.Add(-2*time.Hour))
	t1 := t0.Add(5 * time.Minute)
	s.now = func() time.Time { return t1 }
	market.bars = append(market.bars[1:], bybit.Kline{StartTime: t1.Add(-5 * time.Minute), Close: 94, Volume: 10})
	s.runCycle(context.Background())
	if len(trader.exits) != 0 {
		t.Fatalf("exits during hold = %d, want 0", len(trader.exits))
	}

	// Next bar hits the take profit; the cycle after the exit is flat.
	t2 := t1.Add(5 * time.Minute)
	s.now = func() time.Time { return t2 }
	market.bars = append(market.bars[1:], bybit.Kline{StartTime: t2.Add(-5 * time.Minute), Close: 88, Volume: 10})
	s.runCycle(context.Background())

	if len(trader.exits) != 1 {
		t.Fatalf("exits = %d, want 1 (take profit)", len(trader.exits))
	}
	// 94 -> 88 stays below both EMAs: no new cross, and the cross from
	// the held bar is past the recency window. No re-entry.
	if len(trader.entries) != 0 {
		t.Fatalf("entries = %d, want 0 (no phantom cross after the hold)", len(trader.entries))
	}
	if ledger.InPosition("BTC") {
		t.Fatal("position should be closed")
	}
}

func TestExitSweepRunsDespiteBalanceFailure(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{
		balanceErr:  errors.New("wallet endpoint unavailable"),
		bars:        flatBars(650, 102, now),
		tickerPrice: 102,
	}
	trader := &fakeTrader{}
	s, ledger, _ := newTestScheduler(market, trader, now)

	// Short from 100 against a 102 mark is 2% underwater, past the stop.
	ledger.Open("BTC", "BTCUSDT", 100, 0.14, 14, now.Add(-2*time.Hour))
	s.runCycle(context.Background())

	if len(trader.exits) != 1 {
		t.Fatalf("exits = %d, want 1 despite the balance failure", len(trader.exits))
	}
	if ledger.InPosition("BTC") {
		t.Fatal("stopped-out position must be closed")
	}
	if len(trader.entries) != 0 {
		t.Fatal("entries must be skipped when the balance is unknown")
	}
}

func TestTimeLimitExitClosesPosition(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{balance: 10000, bars: flatBars(650, 100, now)}
	trader := &fakeTrader{}
	s, ledger, _ := newTestScheduler(market, trader, now)

	ledger.Open("BTC", "BTCUSDT", 100, 0.14, 14, now.Add(-25*time.Hour))
	s.runCycle(context.Background())

	if len(trader.exits) != 1 {
		t.Fatalf("exits = %d, want 1", len(trader.exits))
	}
	if ledger.InPosition("BTC") {
		t.Fatal("position should be closed after the time limit")
	}
	if len(trader.entries) != 0 {
		t.Fatal("exit cycle must not also enter")
	}
}

func TestQuickStopOutTriggersEntryCooldown(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	// Price moved up 2% against the short opened 30 minutes ago.
	market := &fakeMarket{balance: 10000, bars: flatBars(650, 102, now)}
	trader := &fakeTrader{}
	s, ledger, strat := newTestScheduler(market, trader, now)

	ledger.Open("BTC", "BTCUSDT", 100, 0.14, 14, now.Add(-30*time.Minute))
	s.runCycle(context.Background())

	if len(trader.exits) != 1 {
		t.Fatalf("exits = %d, want 1 (stop loss)", len(trader.exits))
	}

	// The 30-minute hold is under the quick-exit threshold, so a fresh
	// trigger inside the cooldown window must not produce an entry.
	snap := strategy.Snapshot{Asset: "BTC", Price: 95, EMAShort: 100, EMALong: 100, Timestamp: now}
	strat.DetectCrosses(strategy.Snapshot{Asset: "BTC", Price: 101, EMAShort: 100, EMALong: 100, Timestamp: now})
	strat.DetectCrosses(snap)
	sig := strat.Generate(snap, false, now.Add(time.Minute))
	if sig.Kind != strategy.SignalNoAction {
		t.Fatalf("signal during cooldown = %s, want NO_ACTION", sig.Kind)
	}
}

func TestInsufficientHistorySkipsAsset(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{balance: 10000, bars: flatBars(100, 100, now)}
	trader := &fakeTrader{}
	s, _, _ := newTestScheduler(market, trader, now)

	s.runCycle(context.Background())
	if len(trader.entries) != 0 || len(trader.exits) != 0 {
		t.Fatal("no trading on insufficient history")
	}
}

func TestDailyResetFiresExactlyOnce(t *testing.T) {
	now := time.Date(2026, 8, 27, 23, 55, 2, 0, time.UTC)
	market := &fakeMarket{balance: 10000, bars: flatBars(650, 100, now)}
	s, _, strat := newTestScheduler(market, &fakeTrader{}, now)
	s.lastResetDay = "2026-08-27"

	// Seed a cross so the counter is visibly non-zero.
	strat.DetectCrosses(strategy.Snapshot{Asset: "BTC", Price: 101, EMAShort: 100, EMALong: 100, Timestamp: now})
	strat.DetectCrosses(strategy.Snapshot{Asset: "BTC", Price: 99, EMAShort: 100, EMALong: 100, Timestamp: now})
	if strat.DailyCrossCount("BTC") == 0 {
		t.Fatal("expected seeded cross count")
	}

	reports, unsub := s.bus.Subscribe(events.EventDailyReport, 4)
	defer unsub()

	// Before midnight: nothing.
	s.maybeDailyReset(context.Background(), now)
	// Just after midnight but before 00:01: still nothing.
	s.maybeDailyReset(context.Background(), time.Date(2026, 8, 28, 0, 0, 30, 0, time.UTC))
	if strat.DailyCrossCount("BTC") == 0 {
		t.Fatal("reset fired too early")
	}

	// At 00:01 the reset fires.
	s.maybeDailyReset(context.Background(), time.Date(2026, 8, 28, 0, 1, 10, 0, time.UTC))
	if strat.DailyCrossCount("BTC") != 0 {
		t.Fatal("reset did not fire at 00:01")
	}
	// Later the same day it must not fire again.
	s.maybeDailyReset(context.Background(), time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))

	if got := len(reports); got != 1 {
		t.Fatalf("daily reports = %d, want exactly 1", got)
	}
}

func TestSyncAdoptsExchangeShorts(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC)
	market := &fakeMarket{
		balance: 10000,
		positions: []bybit.Position{
			{Symbol: "BTCUSDT", Side: "Sell", Size: 0.1, AvgPrice: 51000, PositionValue: 5100},
		},
	}
	s, ledger, _ := newTestScheduler(market, &fakeTrader{}, now)

	if err := s.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if market.leverages["BTCUSDT"] != 10 {
		t.Errorf("leverage = %v, want 10", market.leverages["BTCUSDT"])
	}
	pos := ledger.Position("BTC")
	if !pos.InPosition || pos.EntryPrice != 51000 || pos.Quantity != 0.1 {
		t.Fatalf("adopted position wrong: %+v", pos)
	}
}
