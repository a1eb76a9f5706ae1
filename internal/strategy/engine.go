package strategy

import (
	"fmt"
	"log"
	"time"
)

// Params tunes the signal model.
type Params struct {
	DailyCrossLimit int           // max crosses per asset per UTC day before entries are throttled
	RecentWindow    time.Duration // a cross must be at most this old to trigger an entry
	CrossRetention  time.Duration // how long cross history is kept
}

// DefaultParams returns the production thresholds.
func DefaultParams() Params {
	return Params{
		DailyCrossLimit: 12,
		RecentWindow:    5 * time.Minute,
		CrossRetention:  24 * time.Hour,
	}
}

// Engine combines the regime classifier, the cross detector, and the signal
// generator over a per-asset state map. It performs no I/O; the scheduler is
// its only caller, so no locking is needed.
type Engine struct {
	params Params
	states map[string]*assetState
}

// NewEngine builds an engine tracking the given assets.
func NewEngine(assets []string, params Params) *Engine {
	states := make(map[string]*assetState, len(assets))
	for _, a := range assets {
		states[a] = &assetState{regime: RegimeInactive, prevRegime: RegimeInactive}
	}
	return &Engine{params: params, states: states}
}

// Classify applies the regime rule to a snapshot: ACTIVE when price sits
// below both averages, INACTIVE otherwise. The result is recorded on the
// asset state with the prior value retained for change detection.
func Classify(s Snapshot) Regime {
	if s.Price < s.EMAShort && s.Price < s.EMALong {
		return RegimeActive
	}
	return RegimeInactive
}

// UpdateRegime classifies the snapshot and records the result.
// It reports the previous regime and whether the classification flipped.
func (e *Engine) UpdateRegime(s Snapshot) (current, previous Regime, changed bool) {
	st := e.state(s.Asset)
	regime := Classify(s)
	previous = st.regime
	st.prevRegime = st.regime
	st.regime = regime
	return regime, previous, previous != regime
}

// DetectCrosses compares the snapshot against the previously observed one and
// emits a downward cross event per average whose boundary the price fell
// through. The first observation for an asset only primes the state; a cold
// start never signals.
func (e *Engine) DetectCrosses(s Snapshot) []CrossEvent {
	st := e.state(s.Asset)

	if !st.seen {
		st.seen = true
		st.prevPrice = s.Price
		st.prevEMAShort = s.EMAShort
		st.prevEMALong = s.EMALong
		return nil
	}

	var crosses []CrossEvent
	if st.prevPrice > st.prevEMAShort && s.Price < s.EMAShort {
		crosses = append(crosses, CrossEvent{
			Type:      CrossBelowShortEMA,
			Timestamp: s.Timestamp,
			Price:     s.Price,
			EMA:       s.EMAShort,
		})
	}
	if st.prevPrice > st.prevEMALong && s.Price < s.EMALong {
		crosses = append(crosses, CrossEvent{
			Type:      CrossBelowLongEMA,
			Timestamp: s.Timestamp,
			Price:     s.Price,
			EMA:       s.EMALong,
		})
	}

	for _, c := range crosses {
		st.dailyCrossCount++
		st.recentCrosses = append(st.recentCrosses, c)
		log.Printf("strategy: %s downward cross %s price=%.4f ema=%.4f (today: %d)",
			s.Asset, c.Type, c.Price, c.EMA, st.dailyCrossCount)
	}

	st.prevPrice = s.Price
	st.prevEMAShort = s.EMAShort
	st.prevEMALong = s.EMALong

	return crosses
}

// Generate produces the trading decision for one asset and tick. inPosition
// must reflect the ledger before this tick; the first matching gate wins.
func (e *Engine) Generate(s Snapshot, inPosition bool, now time.Time) Signal {
	st := e.state(s.Asset)
	diag := Diagnostics{
		EMAShort: s.EMAShort,
		EMALong:  s.EMALong,
		Regime:   st.regime,
	}

	noAction := func(reason string) Signal {
		return Signal{Asset: s.Asset, Kind: SignalNoAction, Price: s.Price, Reason: reason, Diagnostics: diag}
	}

	if inPosition {
		return noAction("in position - exit handled separately")
	}
	if now.Before(st.cooldownUntil) {
		return noAction(fmt.Sprintf("quick-exit cooldown until %s", st.cooldownUntil.UTC().Format("15:04:05")))
	}
	if st.regime != RegimeActive {
		return noAction(fmt.Sprintf("regime %s", st.regime))
	}
	if st.dailyCrossCount >= e.params.DailyCrossLimit {
		return noAction(fmt.Sprintf("daily cross limit exceeded (%d)", st.dailyCrossCount))
	}

	var triggers []CrossType
	for _, c := range st.recentCrosses {
		if now.Sub(c.Timestamp) <= e.params.RecentWindow {
			triggers = append(triggers, c.Type)
		}
	}
	if len(triggers) == 0 {
		return noAction("no recent cross trigger")
	}

	diag.CrossTypes = triggers
	return Signal{
		Asset:       s.Asset,
		Kind:        SignalEnterShort,
		Price:       s.Price,
		Reason:      "downward cross in ACTIVE regime",
		Diagnostics: diag,
	}
}

// SetCooldown bars an asset from new entries until the given time.
func (e *Engine) SetCooldown(asset string, until time.Time) {
	e.state(asset).cooldownUntil = until
}

// ResetDailyCrossCounts zeroes every asset's daily counter. The scheduler
// invokes this once per UTC calendar day.
func (e *Engine) ResetDailyCrossCounts() {
	for asset, st := range e.states {
		if st.dailyCrossCount > 0 {
			log.Printf("strategy: %s daily cross count reset (was %d)", asset, st.dailyCrossCount)
		}
		st.dailyCrossCount = 0
	}
}

// PruneCrossEvents drops cross history older than the retention window.
func (e *Engine) PruneCrossEvents(now time.Time) {
	cutoff := now.Add(-e.params.CrossRetention)
	for _, st := range e.states {
		kept := st.recentCrosses[:0]
		for _, c := range st.recentCrosses {
			if c.Timestamp.After(cutoff) {
				kept = append(kept, c)
			}
		}
		st.recentCrosses = kept
	}
}

// Regime returns the current regime for one asset.
func (e *Engine) Regime(asset string) Regime {
	return e.state(asset).regime
}

// Regimes returns the current regime per asset, for the daily report.
func (e *Engine) Regimes() map[string]string {
	out := make(map[string]string, len(e.states))
	for asset, st := range e.states {
		out[asset] = string(st.regime)
	}
	return out
}

// DailyCrossCount reports the counter for one asset.
func (e *Engine) DailyCrossCount(asset string) int {
	return e.state(asset).dailyCrossCount
}

func (e *Engine) state(asset string) *assetState {
	st, ok := e.states[asset]
	if !ok {
		st = &assetState{regime: RegimeInactive, prevRegime: RegimeInactive}
		e.states[asset] = st
	}
	return st
}
