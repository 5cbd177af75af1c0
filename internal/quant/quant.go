// Package quant converts raw quantities and prices into exchange-legal
// values given per-symbol lot/tick filters.
package quant

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rules holds the per-symbol quantization constants fetched once at boot.
type Rules struct {
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal // zero means no cap
	TickSize    decimal.Decimal
	MinNotional decimal.Decimal // zero means not enforced
}

// PriceBias selects which way a price is rounded onto the tick grid.
// Buy-side limits round down, sell-side limits round up, so the rounded
// price never crosses to the unfavorable side of the requested one.
type PriceBias int

const (
	BiasFloor PriceBias = iota
	BiasCeil
)

// ParseRules builds Rules from the exchange's string-encoded filter values.
// maxQty and minNotional may be empty.
func ParseRules(stepSize, minQty, maxQty, tickSize, minNotional string) (Rules, error) {
	var r Rules
	var err error
	if r.StepSize, err = parseDec("stepSize", stepSize); err != nil {
		return Rules{}, err
	}
	if r.MinQty, err = parseDec("minQty", minQty); err != nil {
		return Rules{}, err
	}
	if r.TickSize, err = parseDec("tickSize", tickSize); err != nil {
		return Rules{}, err
	}
	if strings.TrimSpace(maxQty) != "" {
		if r.MaxQty, err = parseDec("maxQty", maxQty); err != nil {
			return Rules{}, err
		}
	}
	if strings.TrimSpace(minNotional) != "" {
		if r.MinNotional, err = parseDec("minNotional", minNotional); err != nil {
			return Rules{}, err
		}
	}
	return r, nil
}

func parseDec(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

// Populated reports whether the rules carry usable lot constraints.
func (r Rules) Populated() bool {
	return r.StepSize.Sign() > 0
}

// RoundDownToStep floors qty onto the step grid. A non-positive step
// returns qty unchanged.
func RoundDownToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}

// RoundPriceToTick snaps price onto the tick grid with the given bias.
// A non-positive tick returns the price unchanged.
func RoundPriceToTick(price, tick decimal.Decimal, bias PriceBias) decimal.Decimal {
	if tick.Sign() <= 0 {
		return price
	}
	steps := price.Div(tick)
	if bias == BiasCeil {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(tick)
}

// Format renders a decimal without trailing zeros or a bare trailing point.
func Format(d decimal.Decimal) string {
	return d.String()
}

// QtyFromNotional derives an order quantity from a target notional and the
// current mark price, floored to the step grid, clamped to maxQty and
// rejected (zero) when below minQty or the optional minNotional.
func QtyFromNotional(notionalUSD, markPrice float64, r Rules) decimal.Decimal {
	if notionalUSD <= 0 || markPrice <= 0 || !r.Populated() {
		return decimal.Zero
	}
	mark := decimal.NewFromFloat(markPrice)
	qty := RoundDownToStep(decimal.NewFromFloat(notionalUSD).Div(mark), r.StepSize)
	if r.MaxQty.Sign() > 0 && qty.GreaterThan(r.MaxQty) {
		qty = RoundDownToStep(r.MaxQty, r.StepSize)
	}
	if qty.Sign() <= 0 || qty.LessThan(r.MinQty) {
		return decimal.Zero
	}
	if r.MinNotional.Sign() > 0 && qty.Mul(mark).LessThan(r.MinNotional) {
		return decimal.Zero
	}
	return qty
}
