package risk

import (
	"fmt"
	"time"

	"shortseller/internal/state"
	"shortseller/internal/strategy"
)

// ExitReason names why a position should be closed.
type ExitReason string

const (
	ExitNone         ExitReason = "none"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitRegimeChange ExitReason = "regime_change"
)

// Decision is the outcome of evaluating one open position.
type Decision struct {
	Asset      string
	ShouldExit bool
	Reason     ExitReason
	PnLPct     float64
	Detail     string
}

// Params are the per-asset exit thresholds. Percentages are decimals
// (0.015 means 1.5%).
type Params struct {
	StopLossPct      float64
	TakeProfitPct    float64
	MaxHold          time.Duration
	ExitOnRegimeFlip bool
}

// DefaultParams returns the engine-level exit defaults.
func DefaultParams() Params {
	return Params{
		StopLossPct:   0.015,
		TakeProfitPct: 0.06,
		MaxHold:       24 * time.Hour,
	}
}

// Evaluator turns an open short plus the current price into an exit decision.
type Evaluator struct {
	params map[string]Params // per asset
	def    Params
}

// NewEvaluator builds an evaluator with engine defaults; per-asset overrides
// are installed with SetAssetParams.
func NewEvaluator(def Params) *Evaluator {
	return &Evaluator{params: make(map[string]Params), def: def}
}

// SetAssetParams installs per-asset thresholds.
func (ev *Evaluator) SetAssetParams(asset string, p Params) {
	ev.params[asset] = p
}

// AssetParams resolves the thresholds for an asset.
func (ev *Evaluator) AssetParams(asset string) Params {
	if p, ok := ev.params[asset]; ok {
		return p
	}
	return ev.def
}

// Evaluate applies the exit rules in priority order: time limit, stop loss,
// take profit, then the optional regime-flip policy. For a short position the
// percentage return is (entry - current) / entry, positive as price falls.
func (ev *Evaluator) Evaluate(pos state.Position, currentPrice float64, regime strategy.Regime, now time.Time) Decision {
	d := Decision{Asset: pos.Asset, Reason: ExitNone}
	if !pos.InPosition || pos.EntryPrice <= 0 {
		return d
	}

	p := ev.AssetParams(pos.Asset)
	d.PnLPct = (pos.EntryPrice - currentPrice) / pos.EntryPrice * 100

	if now.Sub(pos.EntryTime) > p.MaxHold {
		d.ShouldExit = true
		d.Reason = ExitTimeLimit
		d.Detail = fmt.Sprintf("held %s, limit %s", now.Sub(pos.EntryTime).Round(time.Minute), p.MaxHold)
		return d
	}
	if d.PnLPct <= -p.StopLossPct*100 {
		d.ShouldExit = true
		d.Reason = ExitStopLoss
		d.Detail = fmt.Sprintf("pnl %.2f%% breached stop %.2f%%", d.PnLPct, p.StopLossPct*100)
		return d
	}
	if d.PnLPct >= p.TakeProfitPct*100 {
		d.ShouldExit = true
		d.Reason = ExitTakeProfit
		d.Detail = fmt.Sprintf("pnl %.2f%% reached target %.2f%%", d.PnLPct, p.TakeProfitPct*100)
		return d
	}
	if p.ExitOnRegimeFlip && regime == strategy.RegimeInactive {
		d.ShouldExit = true
		d.Reason = ExitRegimeChange
		d.Detail = "regime flipped to INACTIVE while holding"
		return d
	}

	return d
}

// QuickExitPolicy suppresses re-entry churn after a fast stop-out: a trade
// closed before Threshold elapses bars the asset from new entries for
// Cooldown.
type QuickExitPolicy struct {
	Threshold time.Duration
	Cooldown  time.Duration
}

// DefaultQuickExitPolicy returns the production policy.
func DefaultQuickExitPolicy() QuickExitPolicy {
	return QuickExitPolicy{Threshold: 60 * time.Minute, Cooldown: 2 * time.Hour}
}

// CooldownAfter reports whether the policy applies to a trade of the given
// duration and, if so, until when entries are barred.
func (q QuickExitPolicy) CooldownAfter(holdTime time.Duration, exitTime time.Time) (time.Time, bool) {
	if q.Threshold <= 0 || holdTime >= q.Threshold {
		return time.Time{}, false
	}
	return exitTime.Add(q.Cooldown), true
}
