package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"shortseller/pkg/bybit"
)

// Sizer converts a target notional into an order quantity that satisfies
// an instrument's lot filters. All arithmetic runs on decimals so step
// rounding never picks up float drift (0.1+0.2 style artifacts would
// otherwise leak into qty strings sent to the exchange).
type Sizer struct{}

// Size computes the quantity for a target notional at the given price.
//
// The target is first raised to the instrument minimum notional, then the
// raw quantity is floored to the quantity step and clamped to the
// min/max order bounds. Flooring can push the resulting notional back
// under the minimum; in that case the quantity is re-derived by rounding
// the minimum-notional quantity up to the next step.
func (Sizer) Size(spec bybit.InstrumentSpec, targetNotional, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("size %s: non-positive price %v", spec.Symbol, price)
	}
	if spec.QtyStep <= 0 {
		return 0, fmt.Errorf("size %s: invalid qty step %v", spec.Symbol, spec.QtyStep)
	}

	p := decimal.NewFromFloat(price)
	step := decimal.NewFromFloat(spec.QtyStep)
	minQty := decimal.NewFromFloat(spec.MinQty)
	maxQty := decimal.NewFromFloat(spec.MaxQty)
	minNotional := decimal.NewFromFloat(spec.MinNotional)

	target := decimal.NewFromFloat(targetNotional)
	if target.LessThan(minNotional) {
		target = minNotional
	}

	qty := floorToStep(target.Div(p), step)
	if qty.LessThan(minQty) {
		qty = minQty
	}

	if qty.Mul(p).LessThan(minNotional) {
		qty = ceilToStep(minNotional.Div(p), step)
		if qty.LessThan(minQty) {
			qty = minQty
		}
	}

	if maxQty.IsPositive() && qty.GreaterThan(maxQty) {
		qty = floorToStep(maxQty, step)
	}

	// Infeasible when the clamps fight each other, e.g. maxQty at the
	// current price cannot reach the minimum notional.
	if qty.LessThan(minQty) || qty.Mul(p).LessThan(minNotional) {
		return 0, fmt.Errorf("size %s: no quantity satisfies lot filters at price %v (target %v)",
			spec.Symbol, price, targetNotional)
	}

	f, _ := qty.Float64()
	return f, nil
}

// ValidationResult reports whether a quantity passes the lot filters and
// carries the nearest compliant quantity when it does not.
type ValidationResult struct {
	OK           bool
	Errors       []string
	CorrectedQty float64
}

// Validate checks qty against the instrument filters. Corrections only
// ever round toward compliance: off-step quantities round down, and a
// below-minimum result is lifted to the smallest compliant quantity.
func (Sizer) Validate(spec bybit.InstrumentSpec, qty, price float64) ValidationResult {
	res := ValidationResult{OK: true, CorrectedQty: qty}

	if !spec.Trading() {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("instrument %s status is %q", spec.Symbol, spec.Status))
		return res
	}
	if spec.QtyStep <= 0 || price <= 0 {
		res.OK = false
		res.Errors = append(res.Errors, "invalid step or price")
		return res
	}

	q := decimal.NewFromFloat(qty)
	p := decimal.NewFromFloat(price)
	step := decimal.NewFromFloat(spec.QtyStep)
	minQty := decimal.NewFromFloat(spec.MinQty)
	maxQty := decimal.NewFromFloat(spec.MaxQty)
	minNotional := decimal.NewFromFloat(spec.MinNotional)

	if snapped := floorToStep(q, step); !snapped.Equal(q) {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("qty %v is not a multiple of step %v", qty, spec.QtyStep))
		q = snapped
	}
	if q.LessThan(minQty) {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("qty below minimum %v", spec.MinQty))
		q = minQty
	}
	if maxQty.IsPositive() && q.GreaterThan(maxQty) {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("qty above maximum %v", spec.MaxQty))
		q = floorToStep(maxQty, step)
	}
	if q.Mul(p).LessThan(minNotional) {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("notional below minimum %v", spec.MinNotional))
		q = ceilToStep(minNotional.Div(p), step)
		if q.LessThan(minQty) {
			q = minQty
		}
	}

	res.CorrectedQty, _ = q.Float64()
	return res
}

func floorToStep(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Floor().Mul(step)
}

// snapToTick rounds price to the nearest multiple of the instrument
// price tick. Prices pass through unchanged when the tick is unknown.
func snapToTick(price, tick float64) float64 {
	if tick <= 0 || price <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	f, _ := p.Div(t).Round(0).Mul(t).Float64()
	return f
}

func ceilToStep(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Ceil().Mul(step)
}
