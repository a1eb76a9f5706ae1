package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"shortseller/internal/events"
	"shortseller/internal/monitor"
	"shortseller/internal/order"
	"shortseller/internal/persistence"
	"shortseller/internal/risk"
	"shortseller/internal/state"
	"shortseller/internal/strategy"
	"shortseller/pkg/bybit"
	"shortseller/pkg/config"
)

// Market is the read side of the exchange the scheduler consumes.
type Market interface {
	GetKlines(ctx context.Context, symbol string, interval, limit int) ([]bybit.Kline, error)
	GetTicker(ctx context.Context, symbol string) (bybit.Ticker, error)
	GetBalance(ctx context.Context, coin string) (bybit.Balance, error)
	GetPositions(ctx context.Context, symbol string) ([]bybit.Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error
	InstrumentSpec(ctx context.Context, symbol string, refresh bool) (bybit.InstrumentSpec, error)
}

// Trader submits entries and exits. Implemented by order.Executor.
type Trader interface {
	EnterShort(ctx context.Context, req order.EntryRequest) (order.EntryResult, error)
	Exit(ctx context.Context, symbol string) (bool, error)
}

// Params are the timing and sizing knobs of the scheduler.
type Params struct {
	Interval         time.Duration // bar interval
	SettleDelay      time.Duration // wait after bar close before fetching
	ErrorPause       time.Duration // pause after a failed per-asset tick
	MinBars          int           // bars required before evaluating
	EMAShortPeriod   int
	EMALongPeriod    int
	StaleBarAfter    time.Duration
	ExecutionEnabled bool
}

// ParamsFromConfig derives scheduler params from the loaded config. The
// minimum history requirement equals the long EMA period so the slow
// average is never computed on a partial window.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Interval:         time.Duration(cfg.KlineIntervalMin) * time.Minute,
		SettleDelay:      2 * time.Second,
		ErrorPause:       10 * time.Second,
		MinBars:          cfg.EMALongPeriod,
		EMAShortPeriod:   cfg.EMAShortPeriod,
		EMALongPeriod:    cfg.EMALongPeriod,
		StaleBarAfter:    10 * time.Minute,
		ExecutionEnabled: cfg.ExecutionEnabled,
	}
}

// Scheduler drives the evaluate-and-trade cycle. One goroutine owns the
// whole loop; assets are processed sequentially per cycle so the
// strategy state never needs cross-asset locking.
type Scheduler struct {
	params  Params
	assets  []config.Asset
	market  Market
	trader  Trader
	strat   *strategy.Engine
	ledger  *state.Ledger
	exits   *risk.Evaluator
	quick   risk.QuickExitPolicy
	bus     *events.Bus
	store   *persistence.Store
	metrics *monitor.Metrics

	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	lastResetDay string

	// realized PnL and trade count since the last daily reset
	dayRealized float64
	dayTrades   int
}

// New wires a scheduler. store may be nil when persistence is disabled.
func New(params Params, assets []config.Asset, market Market, trader Trader,
	strat *strategy.Engine, ledger *state.Ledger, exits *risk.Evaluator,
	quick risk.QuickExitPolicy, bus *events.Bus, store *persistence.Store,
	metrics *monitor.Metrics) *Scheduler {

	return &Scheduler{
		params:  params,
		assets:  assets,
		market:  market,
		trader:  trader,
		strat:   strat,
		ledger:  ledger,
		exits:   exits,
		quick:   quick,
		bus:     bus,
		store:   store,
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepCtx,
		// First reset fires at the next 00:01 UTC, not at startup.
		lastResetDay: time.Now().UTC().Format("2006-01-02"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sync aligns local state with the exchange before trading: leverage is
// set per asset and any position already open on the exchange is
// adopted into the ledger so the exit rules apply to it.
func (s *Scheduler) Sync(ctx context.Context) error {
	// Doubles as the connectivity and credential check.
	balance, err := s.market.GetBalance(ctx, "USDT")
	if err != nil {
		return fmt.Errorf("engine: sync balance: %w", err)
	}
	log.Printf("engine: wallet %.2f USDT", balance.Wallet)

	for _, asset := range s.assets {
		spec, err := s.market.InstrumentSpec(ctx, asset.Symbol, true)
		if err != nil {
			return fmt.Errorf("engine: sync %s: %w", asset.Name, err)
		}
		if !spec.Trading() {
			return fmt.Errorf("engine: sync %s: instrument status %q", asset.Name, spec.Status)
		}
		if err := s.market.SetLeverage(ctx, asset.Symbol, asset.Leverage); err != nil {
			return fmt.Errorf("engine: sync %s: %w", asset.Name, err)
		}
		positions, err := s.market.GetPositions(ctx, asset.Symbol)
		if err != nil {
			return fmt.Errorf("engine: sync %s: %w", asset.Name, err)
		}
		for _, p := range positions {
			if p.Side != "Sell" {
				log.Printf("engine: %s has a non-short position (%s %v), leaving it alone",
					asset.Name, p.Side, p.Size)
				continue
			}
			// Entry time is unknown for adopted positions; using now
			// restarts the hold-time clock, which only delays the
			// time-limit exit, never skips it.
			s.ledger.Open(asset.Name, asset.Symbol, p.AvgPrice, p.Size, p.PositionValue, s.now().UTC())
			log.Printf("engine: adopted open short %s qty %v @ %v", asset.Symbol, p.Size, p.AvgPrice)
		}
	}
	if s.metrics != nil {
		s.metrics.OpenPositions.Set(float64(s.ledger.ActiveCount()))
	}
	return nil
}

// Run blocks until ctx is cancelled, waking shortly after every bar
// close to evaluate all assets.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("engine: scheduler started, %d assets, interval %s", len(s.assets), s.params.Interval)
	for {
		wait := s.untilNextTick(s.now())
		if err := s.sleep(ctx, wait); err != nil {
			log.Println("engine: scheduler stopping")
			return nil
		}
		s.runCycle(ctx)
		s.maybeDailyReset(ctx, s.now().UTC())
	}
}

// untilNextTick returns the wait until the next bar boundary plus the
// settle delay, so the just-closed bar is final when fetched.
func (s *Scheduler) untilNextTick(now time.Time) time.Duration {
	next := now.UTC().Truncate(s.params.Interval).Add(s.params.Interval).Add(s.params.SettleDelay)
	return next.Sub(now.UTC())
}

// runCycle evaluates every asset once. Open positions are swept for
// exits first, off the live ticker, so a breached stop is acted on even
// when the wallet or kline endpoints are failing. The wallet is then
// fetched a single time and reused for sizing across assets.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.sweepExits(ctx)

	balance, err := s.market.GetBalance(ctx, "USDT")
	if err != nil {
		log.Printf("engine: balance fetch failed, skipping entries this cycle: %v", err)
		return
	}
	if s.metrics != nil {
		s.metrics.Equity.Set(balance.Wallet)
	}

	for _, asset := range s.assets {
		if err := s.tick(ctx, asset, balance.Wallet); err != nil {
			log.Printf("engine: %s tick failed: %v", asset.Name, err)
			if s.metrics != nil {
				s.metrics.TickErrors.WithLabelValues(asset.Name).Inc()
			}
			// Give a transient upstream problem room to clear before
			// hammering it with the next asset.
			if s.sleep(ctx, s.params.ErrorPause) != nil {
				return
			}
		}
	}

	s.bus.Publish(events.EventHeartbeat, events.HeartbeatTick{
		Equity: balance.Wallet,
		Time:   s.now().UTC(),
	})
	if err := s.store.RecordHeartbeat(balance.Wallet, s.ledger.ActiveCount()); err != nil {
		log.Printf("engine: %v", err)
	}
}

// sweepExits checks every open position against the live ticker price.
// It depends on nothing but the ticker endpoint, so exits keep working
// while balance or kline fetches fail.
func (s *Scheduler) sweepExits(ctx context.Context) {
	for _, pos := range s.ledger.OpenPositions() {
		ticker, err := s.market.GetTicker(ctx, pos.Symbol)
		if err != nil {
			log.Printf("engine: %s exit-check price fetch failed: %v", pos.Asset, err)
			if s.metrics != nil {
				s.metrics.TickErrors.WithLabelValues(pos.Asset).Inc()
			}
			continue
		}
		if err := s.evaluateExit(ctx, pos, ticker.LastPrice); err != nil {
			log.Printf("engine: %s exit failed: %v", pos.Asset, err)
			if s.metrics != nil {
				s.metrics.TickErrors.WithLabelValues(pos.Asset).Inc()
			}
		}
	}
}

// maybeDailyReset fires once per UTC day at or after 00:01: cross
// counters reset, stale cross events are pruned, and the daily report
// goes out.
func (s *Scheduler) maybeDailyReset(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	if day == s.lastResetDay {
		return
	}
	if now.Hour() == 0 && now.Minute() < 1 {
		return
	}
	s.lastResetDay = day

	s.strat.ResetDailyCrossCounts()
	s.strat.PruneCrossEvents(now)
	log.Printf("engine: daily reset for %s", day)

	balance, err := s.market.GetBalance(ctx, "USDT")
	if err != nil {
		log.Printf("engine: daily report balance fetch failed: %v", err)
		balance = bybit.Balance{}
	}

	s.bus.Publish(events.EventDailyReport, events.DailyReport{
		Balance:         balance.Wallet,
		ActivePositions: s.ledger.ActiveCount(),
		Regimes:         s.strat.Regimes(),
		Time:            now,
	})
	if err := s.store.RecordDailySummary(day, balance.Wallet, s.dayTrades, s.dayRealized); err != nil {
		log.Printf("engine: %v", err)
	}
	s.dayRealized = 0
	s.dayTrades = 0
}
