package notify

import (
	"strings"
	"testing"
	"time"

	"shortseller/internal/events"
)

func TestFormatHoldTime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{2*time.Hour + 17*time.Minute, "2h 17m"},
		{45 * time.Minute, "45m"},
		{30 * time.Second, "0m"},
		{25 * time.Hour, "25h 0m"},
		{-time.Minute, "0m"},
	}
	for _, tc := range cases {
		if got := FormatHoldTime(tc.d); got != tc.want {
			t.Errorf("FormatHoldTime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatEntry(t *testing.T) {
	msg := formatEntry(events.TradeEntry{
		Asset:         "BTC",
		Symbol:        "BTCUSDT",
		Price:         50000,
		Quantity:      0.14,
		Notional:      7000,
		StopLossPct:   0.015,
		TakeProfitPct: 0.06,
		EMAShort:      50850.1234,
		EMALong:       51200.5678,
		Time:          time.Date(2026, 8, 28, 12, 0, 2, 0, time.UTC),
	})

	for _, want := range []string{
		"SHORT ENTRY: BTC",
		"BTCUSDT",
		"50000.0000",
		"7000.00 USDT",
		"+1.5%",
		"-6.0%",
		"2026-08-28 12:00:02 UTC",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("entry message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatExitMarksLosses(t *testing.T) {
	loss := formatExit(events.TradeExit{
		Asset: "ETH", Symbol: "ETHUSDT", ExitPrice: 3100,
		PnL: -42.5, PnLPct: -1.5, Reason: "stop_loss",
		HoldTime: 2*time.Hour + 17*time.Minute,
	})
	if !strings.Contains(loss, "\u274C") {
		t.Error("losing exit should carry the red marker")
	}
	if !strings.Contains(loss, "2h 17m") {
		t.Errorf("exit message missing hold time:\n%s", loss)
	}
	if !strings.Contains(loss, "-42.50 USDT") {
		t.Errorf("exit message missing pnl:\n%s", loss)
	}

	win := formatExit(events.TradeExit{Asset: "ETH", PnL: 120, Reason: "take_profit"})
	if !strings.Contains(win, "\u2705") {
		t.Error("winning exit should carry the green marker")
	}
}

func TestFormatRegimeChange(t *testing.T) {
	msg := formatRegimeChange(events.RegimeChange{
		Asset: "BTC", Previous: "INACTIVE", Current: "ACTIVE", Price: 49000,
	})
	if !strings.Contains(msg, "INACTIVE \u2192 ACTIVE") {
		t.Errorf("unexpected regime message: %s", msg)
	}
}

func TestDisabledNotifier(t *testing.T) {
	n := NewTelegram("", "")
	if n.Enabled() {
		t.Fatal("notifier without credentials must report disabled")
	}
}
