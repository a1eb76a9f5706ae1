package order

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shortseller/pkg/bybit"
)

// Gateway is the slice of the exchange client the executor needs.
type Gateway interface {
	PlaceOrder(ctx context.Context, req bybit.OrderRequest) (bybit.OrderResult, error)
	ClosePosition(ctx context.Context, symbol string) (bool, error)
	InstrumentSpec(ctx context.Context, symbol string, refresh bool) (bybit.InstrumentSpec, error)
}

// EntryRequest describes a short entry before lot-filter sizing.
type EntryRequest struct {
	Symbol         string
	TargetNotional float64
	Price          float64
	StopLossPct    float64 // e.g. 0.015 places the stop 1.5% above entry
	TakeProfitPct  float64 // e.g. 0.06 places the target 6% below entry
}

// EntryResult is a confirmed short entry.
type EntryResult struct {
	OrderID  string
	LinkID   string
	Qty      float64
	Notional float64
}

// Executor submits orders with bounded retry. Between attempts it
// re-fetches the instrument spec and re-validates the quantity, because
// a rejection is often the exchange telling us our cached filters are
// stale.
type Executor struct {
	gw       Gateway
	sizer    Sizer
	attempts int
	backoff  time.Duration

	// OnRetry is invoked once per attempt beyond the first, for
	// instrumentation. May be nil.
	OnRetry func()
}

func NewExecutor(gw Gateway) *Executor {
	return &Executor{
		gw:       gw,
		attempts: 3,
		backoff:  time.Second,
	}
}

func (e *Executor) retrying() {
	if e.OnRetry != nil {
		e.OnRetry()
	}
}

// EnterShort sizes and submits a market sell that opens a short. The
// stop loss and take profit prices are derived from the entry price and
// attached to the order so they live on the exchange.
func (e *Executor) EnterShort(ctx context.Context, req EntryRequest) (EntryResult, error) {
	spec, err := e.gw.InstrumentSpec(ctx, req.Symbol, false)
	if err != nil {
		return EntryResult{}, fmt.Errorf("enter short %s: %w", req.Symbol, err)
	}

	qty, err := e.sizer.Size(spec, req.TargetNotional, req.Price)
	if err != nil {
		return EntryResult{}, fmt.Errorf("enter short %s: %w", req.Symbol, err)
	}

	// Protective prices go to the exchange snapped to the price tick;
	// raw float products carry sub-tick noise the API may reject.
	var stopLoss, takeProfit float64
	if req.StopLossPct > 0 {
		stopLoss = snapToTick(req.Price*(1+req.StopLossPct), spec.PriceTick)
	}
	if req.TakeProfitPct > 0 {
		takeProfit = snapToTick(req.Price*(1-req.TakeProfitPct), spec.PriceTick)
	}

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			e.retrying()
			select {
			case <-ctx.Done():
				return EntryResult{}, ctx.Err()
			case <-time.After(e.backoff):
			}

			// The earlier rejection may mean the cached filters are
			// stale. Refresh and re-derive the quantity before the
			// next attempt.
			spec, err = e.gw.InstrumentSpec(ctx, req.Symbol, true)
			if err != nil {
				lastErr = err
				continue
			}
			if v := e.sizer.Validate(spec, qty, req.Price); !v.OK {
				log.Printf("order: %s qty %v adjusted to %v after spec refresh: %v",
					req.Symbol, qty, v.CorrectedQty, v.Errors)
				qty = v.CorrectedQty
			}
		}

		result, err := e.gw.PlaceOrder(ctx, bybit.OrderRequest{
			Symbol:     req.Symbol,
			Side:       "Sell",
			Type:       "Market",
			Qty:        qty,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			LinkID:     "ss-" + uuid.NewString(),
		})
		if err == nil {
			return EntryResult{
				OrderID:  result.OrderID,
				LinkID:   result.LinkID,
				Qty:      qty,
				Notional: qty * req.Price,
			}, nil
		}

		lastErr = err
		// Transient errors retry as-is; filter rejections retry after
		// the spec refresh re-derives the quantity. Everything else
		// (bad credentials, risk limits) fails now.
		if !bybit.Retryable(err) && !bybit.Correctable(err) {
			break
		}
		log.Printf("order: %s entry attempt %d/%d failed: %v", req.Symbol, attempt, e.attempts, err)
	}
	return EntryResult{}, fmt.Errorf("enter short %s: %w", req.Symbol, lastErr)
}

// Exit flattens the open position on symbol with the same bounded retry
// as entries. Returns false when the exchange reports nothing to close.
func (e *Executor) Exit(ctx context.Context, symbol string) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			e.retrying()
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(e.backoff):
			}
		}
		closed, err := e.gw.ClosePosition(ctx, symbol)
		if err == nil {
			return closed, nil
		}
		lastErr = err
		if !bybit.Retryable(err) && !bybit.Correctable(err) {
			break
		}
		log.Printf("order: %s close attempt %d/%d failed: %v", symbol, attempt, e.attempts, err)
	}
	return false, fmt.Errorf("close %s: %w", symbol, lastErr)
}
