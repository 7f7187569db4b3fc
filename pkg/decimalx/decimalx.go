// Package decimalx collects the small set of decimal helpers the core
// shares: tick rounding, percent-of-price, and min/max/clamp. The
// fixed-point numeric type itself is an external collaborator
// (github.com/shopspring/decimal); this package never reimplements it.
package decimalx

import "github.com/shopspring/decimal"

// RoundToTick rounds price up to the next tick (ceiling). Target and
// stop prices are always rounded this way, whichever side of the
// market they sit on: it is the direction the order-book fill rules
// (§4.3) and the synthetic series reconstruction both rely on, and the
// one PAL's tick handling uses uniformly rather than rounding toward
// favor-the-trader or favor-the-market depending on order kind. A zero
// tick is a no-op (some securities are configured tickless).
func RoundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}
	units := price.Div(tick).Ceil()
	return units.Mul(tick)
}

// PercentOf returns price adjusted by pct (e.g. pct = 0.01 for 1%) in
// the given direction: up for long targets and short stops, down for
// long stops and short targets.
func PercentOf(price, pct decimal.Decimal, up bool) decimal.Decimal {
	delta := price.Mul(pct)
	if up {
		return price.Add(delta)
	}
	return price.Sub(delta)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp restricts value to [lo, hi].
func Clamp(value, lo, hi decimal.Decimal) decimal.Decimal {
	if value.LessThan(lo) {
		return lo
	}
	if value.GreaterThan(hi) {
		return hi
	}
	return value
}
