// Package permtest implements the permutation test policy trio of
// §4.8: a statistic policy (how a backtest run is scored, and what a
// strategy without enough trades scores), a return policy (p-value
// alone, or p-value paired with the summary statistic), and a null
// accumulation policy (the running-max variant single-pattern MCPT and
// the naive Masters step-down use, and the full-matrix variant the
// Romano-Wolf improved algorithm uses). Grounded on
// original_source/libs/timeserieslib/PALMonteCarloTypes.h, which
// defines the StrategyContext{strategy, baselineStat, count} shape
// these policies operate over, and on the base repository's
// montecarlo.go percentile/statistic computation style for the
// decimal-arithmetic implementation.
package permtest

import (
	"github.com/mkc-quant/palvalidator/internal/broker"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/shopspring/decimal"
)

// StatisticPolicy computes the scalar performance statistic a
// permutation test compares baseline-vs-null on, and the minimum trade
// count a run must clear to be scored at all.
type StatisticPolicy interface {
	Statistic(summary broker.Summary) decimal.Decimal
	MinStrategyTrades() int
	FailureStatistic() decimal.Decimal
}

// ProfitFactorPolicy scores a run by its closed-position profit
// factor, the PAL default.
type ProfitFactorPolicy struct {
	MinTrades int
}

func (p ProfitFactorPolicy) Statistic(s broker.Summary) decimal.Decimal {
	if s.NumPositions < p.minTrades() {
		return p.FailureStatistic()
	}
	return s.ProfitFactor
}
func (p ProfitFactorPolicy) MinStrategyTrades() int            { return p.minTrades() }
func (p ProfitFactorPolicy) FailureStatistic() decimal.Decimal { return decimal.Zero }
func (p ProfitFactorPolicy) minTrades() int {
	if p.MinTrades <= 0 {
		return 1
	}
	return p.MinTrades
}

// CumulativeReturnPolicy scores a run by total percent return summed
// across closed units, useful when profit factor's near-certain
// divide-by-zero cap on all-winner/all-loser runs would otherwise
// flatten out real differences between strong candidates.
type CumulativeReturnPolicy struct {
	MinTrades int
}

func (p CumulativeReturnPolicy) Statistic(s broker.Summary) decimal.Decimal {
	if s.NumPositions < p.minTrades() {
		return p.FailureStatistic()
	}
	return s.CumulativeReturn
}
func (p CumulativeReturnPolicy) MinStrategyTrades() int { return p.minTrades() }
func (p CumulativeReturnPolicy) FailureStatistic() decimal.Decimal {
	return decimal.NewFromInt(-999999)
}
func (p CumulativeReturnPolicy) minTrades() int {
	if p.MinTrades <= 0 {
		return 1
	}
	return p.MinTrades
}

// Result is what a ReturnPolicy builds from a completed test.
type Result struct {
	PValue    decimal.Decimal
	Statistic *decimal.Decimal
}

// ReturnPolicy controls whether a test's caller sees just the p-value
// or the p-value alongside the baseline statistic it was computed
// from.
type ReturnPolicy interface {
	Build(pValue, baselineStatistic decimal.Decimal) Result
}

type PValueOnly struct{}

func (PValueOnly) Build(pValue, _ decimal.Decimal) Result { return Result{PValue: pValue} }

type PValueAndStatistic struct{}

func (PValueAndStatistic) Build(pValue, stat decimal.Decimal) Result {
	s := stat
	return Result{PValue: pValue, Statistic: &s}
}

// NullAccumulationPolicy collects per-permutation statistics and later
// answers how many of them met or exceeded a baseline.
type NullAccumulationPolicy interface {
	Add(value decimal.Decimal)
	CountAtLeast(baseline decimal.Decimal) int
	Len() int
}

// MaxStatisticPolicy keeps one value per permutation round: the
// maximum statistic observed across whatever set of strategies that
// round covered. This is what single-pattern MCPT and the naive
// Masters step-down accumulate into, since at each step only the
// active set's per-round maximum matters.
type MaxStatisticPolicy struct {
	values []decimal.Decimal
}

func (m *MaxStatisticPolicy) Add(v decimal.Decimal) { m.values = append(m.values, v) }
func (m *MaxStatisticPolicy) CountAtLeast(baseline decimal.Decimal) int {
	n := 0
	for _, v := range m.values {
		if v.GreaterThanOrEqual(baseline) {
			n++
		}
	}
	return n
}
func (m *MaxStatisticPolicy) Len() int { return len(m.values) }

// AllStatisticsPolicy keeps every value added, used by the Romano-Wolf
// improved algorithm's full permutation matrix (one row per
// permutation, one column per strategy) rather than a single running
// maximum per round.
type AllStatisticsPolicy struct {
	values []decimal.Decimal
}

func (a *AllStatisticsPolicy) Add(v decimal.Decimal) { a.values = append(a.values, v) }
func (a *AllStatisticsPolicy) CountAtLeast(baseline decimal.Decimal) int {
	n := 0
	for _, v := range a.values {
		if v.GreaterThanOrEqual(baseline) {
			n++
		}
	}
	return n
}
func (a *AllStatisticsPolicy) Len() int { return len(a.values) }
func (a *AllStatisticsPolicy) Values() []decimal.Decimal {
	return append([]decimal.Decimal(nil), a.values...)
}

// DefaultPermuteMarketChangesPolicy is the single-pattern MCPT
// described in §4.8: given a baseline statistic and the accumulated
// per-permutation maxima over N permutation rounds, p = k/N where k is
// the count of rounds meeting or exceeding baseline.
func DefaultPermuteMarketChangesPolicy(baseline decimal.Decimal, null NullAccumulationPolicy) (decimal.Decimal, error) {
	n := null.Len()
	if n == 0 {
		return decimal.Zero, errs.NewPermutationFailure("permtest.DefaultPermuteMarketChangesPolicy", "no permutations accumulated")
	}
	k := null.CountAtLeast(baseline)
	return decimal.NewFromInt(int64(k)).Div(decimal.NewFromInt(int64(n))), nil
}
