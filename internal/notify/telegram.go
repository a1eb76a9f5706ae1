package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shortseller/internal/events"
)

// Telegram pushes trade and lifecycle messages to a chat. Delivery is
// best effort: failures are logged and never propagate to the trading
// loop.
type Telegram struct {
	token  string
	chatID string
	httpc  *http.Client
	apiURL string
}

// NewTelegram builds a notifier. Empty token or chat id disables it.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		apiURL: "https://api.telegram.org",
	}
}

// Enabled reports whether credentials are present.
func (t *Telegram) Enabled() bool {
	return t.token != "" && t.chatID != ""
}

// Run subscribes to the bus and forwards events until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context, bus *events.Bus) {
	if !t.Enabled() {
		log.Println("notify: telegram disabled, no credentials")
		return
	}

	entries, unsubEntry := bus.Subscribe(events.EventTradeEntry, 16)
	exits, unsubExit := bus.Subscribe(events.EventTradeExit, 16)
	regimes, unsubRegime := bus.Subscribe(events.EventRegimeChange, 16)
	reports, unsubReport := bus.Subscribe(events.EventDailyReport, 4)
	defer unsubEntry()
	defer unsubExit()
	defer unsubRegime()
	defer unsubReport()

	log.Println("notify: telegram notifier started")
	t.send(ctx, "\U0001F7E2 <b>Short seller started</b>")

	for {
		select {
		case <-ctx.Done():
			t.send(context.Background(), "\U0001F534 <b>Short seller stopped</b>")
			return
		case p := <-entries:
			if e, ok := p.(events.TradeEntry); ok {
				t.send(ctx, formatEntry(e))
			}
		case p := <-exits:
			if e, ok := p.(events.TradeExit); ok {
				t.send(ctx, formatExit(e))
			}
		case p := <-regimes:
			if e, ok := p.(events.RegimeChange); ok {
				t.send(ctx, formatRegimeChange(e))
			}
		case p := <-reports:
			if e, ok := p.(events.DailyReport); ok {
				t.send(ctx, formatDailyReport(e))
			}
		}
	}
}

func (t *Telegram) send(ctx context.Context, text string) {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("notify: build telegram request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpc.Do(req)
	if err != nil {
		log.Printf("notify: telegram send failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("notify: telegram HTTP %d: %s", resp.StatusCode, body)
	}
}

func formatEntry(e events.TradeEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\U0001F53B <b>SHORT ENTRY: %s</b>\n\n", e.Asset)
	fmt.Fprintf(&b, "Symbol: <code>%s</code>\n", e.Symbol)
	fmt.Fprintf(&b, "Price: <code>%.4f</code>\n", e.Price)
	fmt.Fprintf(&b, "Qty: <code>%v</code> (%.2f USDT)\n", e.Quantity, e.Notional)
	fmt.Fprintf(&b, "Stop loss: <code>+%.1f%%</code> | Take profit: <code>-%.1f%%</code>\n",
		e.StopLossPct*100, e.TakeProfitPct*100)
	fmt.Fprintf(&b, "EMA240: <code>%.4f</code> | EMA600: <code>%.4f</code>\n", e.EMAShort, e.EMALong)
	fmt.Fprintf(&b, "Time: %s", e.Time.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

func formatExit(e events.TradeExit) string {
	emoji := "✅"
	if e.PnL < 0 {
		emoji = "❌"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>EXIT: %s</b> (%s)\n\n", emoji, e.Asset, e.Reason)
	fmt.Fprintf(&b, "Symbol: <code>%s</code>\n", e.Symbol)
	fmt.Fprintf(&b, "Exit price: <code>%.4f</code>\n", e.ExitPrice)
	fmt.Fprintf(&b, "PnL: <code>%+.2f USDT (%+.2f%%)</code>\n", e.PnL, e.PnLPct)
	fmt.Fprintf(&b, "Held: %s\n", FormatHoldTime(e.HoldTime))
	fmt.Fprintf(&b, "Time: %s", e.Time.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

func formatRegimeChange(e events.RegimeChange) string {
	emoji := "⚡"
	if e.Current == "INACTIVE" {
		emoji = "\U0001F4A4"
	}
	return fmt.Sprintf("%s <b>%s regime: %s → %s</b>\nPrice: <code>%.4f</code>",
		emoji, e.Asset, e.Previous, e.Current, e.Price)
}

func formatDailyReport(e events.DailyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\U0001F4CA <b>Daily report %s</b>\n\n", e.Time.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "Balance: <code>%.2f USDT</code>\n", e.Balance)
	fmt.Fprintf(&b, "Open positions: <code>%d</code>\n", e.ActivePositions)
	if len(e.Regimes) > 0 {
		b.WriteString("\nRegimes:\n")
		for asset, regime := range e.Regimes {
			fmt.Fprintf(&b, "  %s: <code>%s</code>\n", asset, regime)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHoldTime renders a duration like "2h 17m". Sub-minute holds
// come out as "0m".
func FormatHoldTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Minutes())
	h, m := total/60, total%60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
