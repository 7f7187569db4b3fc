// Closed-position history: summary statistics over completed trades
// (§4.8). Implemented as a stateless calculator over a slice of closed
// units, in the idiom of the base repository's metrics calculator
// (NewMetricsCalculator().Calculate(...)) rather than an accreting
// object that keeps running totals as positions close.
package broker

import (
	"sort"

	"github.com/mkc-quant/palvalidator/internal/position"
	"github.com/shopspring/decimal"
)

// Summary is the full set of derived statistics over a set of closed
// position units.
type Summary struct {
	NumPositions      int
	NumWinners        int
	NumLosers         int
	PercentWinners    decimal.Decimal
	PercentLosers     decimal.Decimal
	CumulativeReturn  decimal.Decimal
	ProfitFactor      decimal.Decimal // gross profit / gross loss; +Inf-safe: capped, never divides by zero
	PayoffRatio       decimal.Decimal // average win / average loss
	PALProfitability  decimal.Decimal // 100 * win-rate * payoff / (win-rate*payoff + (1 - win-rate)), a percentage
	MedianPayoffRatio decimal.Decimal
	GeometricReturn   decimal.Decimal
}

// Summarize computes Summary over units, which must all be closed.
// Units that are not closed are skipped.
func Summarize(units []*position.Unit) Summary {
	var winners, losers []decimal.Decimal
	cum := decimal.Zero
	geomProduct := decimal.NewFromInt(1)

	for _, u := range units {
		if u.IsOpen() {
			continue
		}
		r := u.PercentReturn()
		cum = cum.Add(r)
		geomProduct = geomProduct.Mul(decimal.NewFromInt(1).Add(r))
		if r.IsPositive() {
			winners = append(winners, r)
		} else if r.IsNegative() {
			losers = append(losers, r.Abs())
		}
	}

	n := len(winners) + len(losers)
	s := Summary{
		NumPositions:     n,
		NumWinners:       len(winners),
		NumLosers:        len(losers),
		CumulativeReturn: cum,
	}
	if n == 0 {
		return s
	}

	hundred := decimal.NewFromInt(100)
	s.PercentWinners = decimal.NewFromInt(int64(len(winners))).Div(decimal.NewFromInt(int64(n))).Mul(hundred)
	s.PercentLosers = hundred.Sub(s.PercentWinners)

	grossProfit := sumOf(winners)
	grossLoss := sumOf(losers)
	s.ProfitFactor = safeRatio(grossProfit, grossLoss)

	avgWin := safeAverage(winners)
	avgLoss := safeAverage(losers)
	s.PayoffRatio = safeRatio(avgWin, avgLoss)

	winRate := s.PercentWinners.Div(hundred)
	denom := winRate.Mul(s.PayoffRatio).Add(decimal.NewFromInt(1).Sub(winRate))
	if denom.IsPositive() {
		s.PALProfitability = winRate.Mul(s.PayoffRatio).Div(denom).Mul(hundred)
	}

	s.MedianPayoffRatio = safeRatio(median(winners), median(losers))

	// Nth root of the geometric product, n = total closed positions,
	// expressed as a per-trade compounded return.
	if n > 0 && geomProduct.IsPositive() {
		s.GeometricReturn = nthRoot(geomProduct, n).Sub(decimal.NewFromInt(1))
	}

	return s
}

func sumOf(xs []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, x := range xs {
		total = total.Add(x)
	}
	return total
}

func safeAverage(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	return sumOf(xs).Div(decimal.NewFromInt(int64(len(xs))))
}

// safeRatio returns numerator/denominator, capping at a large sentinel
// instead of dividing by zero when the denominator is zero and the
// numerator is not, per §4.8's "capping rather than dividing by zero"
// convention; 0/0 is defined as zero.
func safeRatio(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		if numerator.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(999999)
	}
	return numerator.Div(denominator)
}

func median(xs []decimal.Decimal) decimal.Decimal {
	if len(xs) == 0 {
		return decimal.Zero
	}
	sorted := append([]decimal.Decimal(nil), xs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// nthRoot computes x^(1/n) via Newton's method on decimal.Decimal,
// which has no native root function. Good to its default 16-digit
// precision, sufficient for a per-trade geometric-return summary
// statistic.
func nthRoot(x decimal.Decimal, n int) decimal.Decimal {
	if n <= 1 {
		return x
	}
	guess := x
	nDec := decimal.NewFromInt(int64(n))
	for i := 0; i < 64; i++ {
		// guess_{k+1} = ((n-1)*guess + x/guess^(n-1)) / n
		powNMinus1 := decimal.NewFromInt(1)
		for j := 0; j < n-1; j++ {
			powNMinus1 = powNMinus1.Mul(guess)
		}
		if powNMinus1.IsZero() {
			break
		}
		next := nDec.Sub(decimal.NewFromInt(1)).Mul(guess).Add(x.Div(powNMinus1)).Div(nDec)
		if next.Sub(guess).Abs().LessThan(decimal.NewFromFloat(1e-12)) {
			guess = next
			break
		}
		guess = next
	}
	return guess
}
