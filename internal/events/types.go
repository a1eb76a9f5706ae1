package events

import "time"

// Event enumerates high-level topics inside the trading engine.
type Event string

const (
	EventTradeEntry   Event = "trade.entry"
	EventTradeExit    Event = "trade.exit"
	EventRegimeChange Event = "regime.change"
	EventDailyReport  Event = "daily.report"
	EventHeartbeat    Event = "heartbeat"
)

// TradeEntry is published after a short position has been opened.
type TradeEntry struct {
	Asset         string
	Symbol        string
	Price         float64
	Quantity      float64
	Notional      float64
	StopLossPct   float64
	TakeProfitPct float64
	EMAShort      float64
	EMALong       float64
	Regime        string
	OrderID       string
	Time          time.Time
}

// TradeExit is published after a position has been closed.
type TradeExit struct {
	Asset      string
	Symbol     string
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	PnLPct     float64
	Reason     string
	HoldTime   time.Duration
	Time       time.Time
}

// RegimeChange is published when an asset's market regime flips.
type RegimeChange struct {
	Asset    string
	Previous string
	Current  string
	Price    float64
	EMAShort float64
	EMALong  float64
	Time     time.Time
}

// DailyReport carries the once-per-day portfolio summary.
type DailyReport struct {
	Balance         float64
	ActivePositions int
	Regimes         map[string]string // asset -> regime
	Time            time.Time
}

// HeartbeatTick is published once per processed tick.
type HeartbeatTick struct {
	Equity float64
	Time   time.Time
}
