package strategy

import "time"

// Regime classifies whether the market structure currently favors short entries.
type Regime string

const (
	RegimeActive   Regime = "ACTIVE"
	RegimeInactive Regime = "INACTIVE"
)

// Snapshot is one immutable per-asset view of a completed bar close.
type Snapshot struct {
	Asset     string
	Price     float64
	EMAShort  float64
	EMALong   float64
	Volume    float64
	Timestamp time.Time
}

// CrossType names which average the price crossed below.
type CrossType string

const (
	CrossBelowShortEMA CrossType = "below_ema_short"
	CrossBelowLongEMA  CrossType = "below_ema_long"
)

// CrossEvent records a single downward price/EMA cross.
type CrossEvent struct {
	Type      CrossType
	Timestamp time.Time
	Price     float64
	EMA       float64
}

// SignalKind is the high-level intent of a generated signal.
type SignalKind string

const (
	SignalNoAction   SignalKind = "NO_ACTION"
	SignalEnterShort SignalKind = "ENTER_SHORT"
)

// Diagnostics carries the indicator context a signal was generated from.
type Diagnostics struct {
	EMAShort   float64
	EMALong    float64
	Regime     Regime
	CrossTypes []CrossType
}

// Signal is the per-asset, per-tick trading decision.
type Signal struct {
	Asset       string
	Kind        SignalKind
	Price       float64
	Reason      string
	Diagnostics Diagnostics
}

// assetState is the single mutable record per configured asset. It is owned
// by the engine and mutated only through engine methods, which in turn are
// called only from the scheduler's control flow.
type assetState struct {
	regime     Regime
	prevRegime Regime

	seen         bool
	prevPrice    float64
	prevEMAShort float64
	prevEMALong  float64

	dailyCrossCount int
	recentCrosses   []CrossEvent
	cooldownUntil   time.Time
}
