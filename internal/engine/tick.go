package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"shortseller/internal/events"
	"shortseller/internal/indicators"
	"shortseller/internal/order"
	"shortseller/internal/state"
	"shortseller/internal/strategy"
	"shortseller/pkg/config"
)

// tick evaluates one asset against the latest closed bar: exits run
// before entries so a position never survives a breached threshold just
// because a new signal fired in the same cycle.
func (s *Scheduler) tick(ctx context.Context, asset config.Asset, wallet float64) error {
	if s.metrics != nil {
		s.metrics.TicksTotal.WithLabelValues(asset.Name).Inc()
	}

	// A few spare bars absorb a partial bar at the tail of the fetch.
	limit := s.params.MinBars + 5
	if limit > 1000 {
		limit = 1000
	}
	intervalMin := int(s.params.Interval.Minutes())
	bars, err := s.market.GetKlines(ctx, asset.Symbol, intervalMin, limit)
	if err != nil {
		return fmt.Errorf("klines: %w", err)
	}
	if len(bars) < s.params.MinBars {
		log.Printf("engine: %s has %d bars, need %d, skipping", asset.Name, len(bars), s.params.MinBars)
		return nil
	}

	latest := bars[len(bars)-1]
	now := s.now().UTC()
	if age := now.Sub(latest.StartTime); age > s.params.StaleBarAfter {
		log.Printf("engine: %s latest bar is %s old, data may be stale", asset.Name, age.Round(time.Second))
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	snap := strategy.Snapshot{
		Asset:     asset.Name,
		Price:     latest.Close,
		EMAShort:  indicators.EMA(closes, s.params.EMAShortPeriod),
		EMALong:   indicators.EMA(closes, s.params.EMALongPeriod),
		Volume:    latest.Volume,
		Timestamp: latest.StartTime,
	}

	current, previous, changed := s.strat.UpdateRegime(snap)
	if s.metrics != nil {
		active := 0.0
		if current == strategy.RegimeActive {
			active = 1
		}
		s.metrics.RegimeActive.WithLabelValues(asset.Name).Set(active)
	}
	if changed {
		log.Printf("engine: %s regime %s -> %s at %.4f", asset.Name, previous, current, snap.Price)
		s.bus.Publish(events.EventRegimeChange, events.RegimeChange{
			Asset:    asset.Name,
			Previous: string(previous),
			Current:  string(current),
			Price:    snap.Price,
			EMAShort: snap.EMAShort,
			EMALong:  snap.EMALong,
			Time:     now,
		})
	}

	// Cross detection runs every tick, held position or not. Skipping
	// it while holding would leave the previous-bar state frozen at a
	// pre-entry bar, and the first flat tick after the exit would then
	// see a phantom cross on a price that has long been below the EMAs.
	crosses := s.strat.DetectCrosses(snap)
	if s.metrics != nil {
		for _, c := range crosses {
			s.metrics.CrossesTotal.WithLabelValues(asset.Name, string(c.Type)).Inc()
		}
	}

	sig := s.strat.Generate(snap, s.ledger.InPosition(asset.Name), now)
	if s.metrics != nil {
		s.metrics.SignalsTotal.WithLabelValues(asset.Name, string(sig.Kind)).Inc()
	}
	if sig.Kind != strategy.SignalEnterShort {
		return nil
	}
	return s.enter(ctx, asset, snap, wallet)
}

// enter sizes and opens a short for the asset at the snapshot price.
func (s *Scheduler) enter(ctx context.Context, asset config.Asset, snap strategy.Snapshot, wallet float64) error {
	if !s.params.ExecutionEnabled {
		log.Printf("engine: %s entry signal suppressed, execution disabled", asset.Name)
		return nil
	}

	target := wallet * asset.AllocationPct * asset.Leverage
	res, err := s.trader.EnterShort(ctx, order.EntryRequest{
		Symbol:         asset.Symbol,
		TargetNotional: target,
		Price:          snap.Price,
		StopLossPct:    asset.StopLossPct,
		TakeProfitPct:  asset.TakeProfitPct,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.OrdersTotal.WithLabelValues(asset.Name, "failed").Inc()
		}
		return fmt.Errorf("entry: %w", err)
	}
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(asset.Name, "filled").Inc()
		s.metrics.OpenPositions.Set(float64(s.ledger.ActiveCount() + 1))
	}

	now := s.now().UTC()
	s.ledger.Open(asset.Name, asset.Symbol, snap.Price, res.Qty, res.Notional, now)
	log.Printf("engine: %s SHORT opened qty %v @ %.4f (%.2f USDT)", asset.Name, res.Qty, snap.Price, res.Notional)

	s.bus.Publish(events.EventTradeEntry, events.TradeEntry{
		Asset:         asset.Name,
		Symbol:        asset.Symbol,
		Price:         snap.Price,
		Quantity:      res.Qty,
		Notional:      res.Notional,
		StopLossPct:   asset.StopLossPct,
		TakeProfitPct: asset.TakeProfitPct,
		EMAShort:      snap.EMAShort,
		EMALong:       snap.EMALong,
		Regime:        string(strategy.RegimeActive),
		OrderID:       res.OrderID,
		Time:          now,
	})
	if err := s.store.RecordEntry(s.ledger.Position(asset.Name), res.OrderID); err != nil {
		log.Printf("engine: %v", err)
	}
	return nil
}

// evaluateExit applies the exit rules to one open position at the given
// current price and closes it when one fires. A closed trade that held
// for less than the quick exit threshold puts the asset on an entry
// cooldown.
func (s *Scheduler) evaluateExit(ctx context.Context, pos state.Position, price float64) error {
	now := s.now().UTC()

	decision := s.exits.Evaluate(pos, price, s.strat.Regime(pos.Asset), now)
	if !decision.ShouldExit {
		return nil
	}
	log.Printf("engine: %s exit (%s): %s", pos.Asset, decision.Reason, decision.Detail)

	if s.params.ExecutionEnabled {
		if _, err := s.trader.Exit(ctx, pos.Symbol); err != nil {
			if s.metrics != nil {
				s.metrics.OrdersTotal.WithLabelValues(pos.Asset, "failed").Inc()
			}
			return fmt.Errorf("exit: %w", err)
		}
	}

	closed := s.ledger.Close(pos.Asset)
	holdTime := now.Sub(closed.EntryTime)
	pnl := (closed.EntryPrice - price) * closed.Quantity

	s.dayRealized += pnl
	s.dayTrades++
	if s.metrics != nil {
		s.metrics.ExitsTotal.WithLabelValues(pos.Asset, string(decision.Reason)).Inc()
		s.metrics.OrdersTotal.WithLabelValues(pos.Asset, "filled").Inc()
		s.metrics.OpenPositions.Set(float64(s.ledger.ActiveCount()))
	}

	if until, ok := s.quick.CooldownAfter(holdTime, now); ok {
		s.strat.SetCooldown(pos.Asset, until)
		log.Printf("engine: %s held only %s, entries paused until %s",
			pos.Asset, holdTime.Round(time.Second), until.Format("15:04:05"))
	}

	s.bus.Publish(events.EventTradeExit, events.TradeExit{
		Asset:      pos.Asset,
		Symbol:     pos.Symbol,
		EntryPrice: closed.EntryPrice,
		ExitPrice:  price,
		Quantity:   closed.Quantity,
		PnL:        pnl,
		PnLPct:     decision.PnLPct,
		Reason:     string(decision.Reason),
		HoldTime:   holdTime,
		Time:       now,
	})
	if err := s.store.RecordExit(closed, price, pnl, decision.PnLPct, decision.Reason); err != nil {
		log.Printf("engine: %v", err)
	}
	return nil
}
