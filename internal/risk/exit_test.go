package risk

import (
	"testing"
	"time"

	"shortseller/internal/state"
	"shortseller/internal/strategy"
)

func shortPos(entry float64, entryTime time.Time) state.Position {
	return state.Position{
		Asset:      "BTC",
		Symbol:     "BTCUSDT",
		InPosition: true,
		EntryPrice: entry,
		Quantity:   0.1,
		EntryTime:  entryTime,
	}
}

func TestEvaluateThresholds(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	ev := NewEvaluator(DefaultParams())

	tests := []struct {
		name       string
		price      float64
		entryTime  time.Time
		wantExit   bool
		wantReason ExitReason
	}{
		{"stop loss at +1.5% adverse", 101.5, now.Add(-time.Hour), true, ExitStopLoss},
		{"take profit at -6%", 94, now.Add(-time.Hour), true, ExitTakeProfit},
		{"time limit after 25h", 100, now.Add(-25 * time.Hour), true, ExitTimeLimit},
		{"no exit in band", 99, now.Add(-time.Hour), false, ExitNone},
		{"just inside stop", 101.4, now.Add(-time.Hour), false, ExitNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ev.Evaluate(shortPos(100, tt.entryTime), tt.price, strategy.RegimeActive, now)
			if d.ShouldExit != tt.wantExit || d.Reason != tt.wantReason {
				t.Fatalf("Evaluate=%+v, expected exit=%v reason=%s", d, tt.wantExit, tt.wantReason)
			}
		})
	}
}

func TestEvaluatePriority(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	ev := NewEvaluator(DefaultParams())

	// both time limit and stop loss are hit; time limit is checked first
	d := ev.Evaluate(shortPos(100, now.Add(-25*time.Hour)), 102, strategy.RegimeActive, now)
	if d.Reason != ExitTimeLimit {
		t.Fatalf("reason=%s, expected time limit to win", d.Reason)
	}
}

func TestEvaluateRegimeFlipPolicy(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	// disabled by default
	ev := NewEvaluator(DefaultParams())
	d := ev.Evaluate(shortPos(100, now.Add(-time.Hour)), 100, strategy.RegimeInactive, now)
	if d.ShouldExit {
		t.Fatalf("regime flip exited despite disabled policy: %+v", d)
	}

	p := DefaultParams()
	p.ExitOnRegimeFlip = true
	ev = NewEvaluator(p)
	d = ev.Evaluate(shortPos(100, now.Add(-time.Hour)), 100, strategy.RegimeInactive, now)
	if !d.ShouldExit || d.Reason != ExitRegimeChange {
		t.Fatalf("expected regime-change exit, got %+v", d)
	}
}

func TestEvaluateFlatPosition(t *testing.T) {
	ev := NewEvaluator(DefaultParams())
	d := ev.Evaluate(state.Position{Asset: "BTC"}, 100, strategy.RegimeActive, time.Now())
	if d.ShouldExit || d.Reason != ExitNone {
		t.Fatalf("flat position produced exit: %+v", d)
	}
}

func TestPerAssetOverrides(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	ev := NewEvaluator(DefaultParams())
	ev.SetAssetParams("BTC", Params{StopLossPct: 0.01, TakeProfitPct: 0.03, MaxHold: 24 * time.Hour})

	// 1.2% adverse: breaches the 1% override but not the 1.5% default
	d := ev.Evaluate(shortPos(100, now.Add(-time.Hour)), 101.2, strategy.RegimeActive, now)
	if !d.ShouldExit || d.Reason != ExitStopLoss {
		t.Fatalf("override stop not applied: %+v", d)
	}
}

func TestQuickExitCooldown(t *testing.T) {
	exit := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	pol := QuickExitPolicy{Threshold: 60 * time.Minute, Cooldown: 2 * time.Hour}

	until, ok := pol.CooldownAfter(20*time.Minute, exit)
	if !ok || !until.Equal(exit.Add(2*time.Hour)) {
		t.Fatalf("fast exit should cool down until %v, got %v ok=%v", exit.Add(2*time.Hour), until, ok)
	}

	if _, ok := pol.CooldownAfter(90*time.Minute, exit); ok {
		t.Fatal("slow exit should not cool down")
	}
	if _, ok := pol.CooldownAfter(60*time.Minute, exit); ok {
		t.Fatal("exactly-at-threshold exit should not cool down")
	}
}
