// Package validator implements the Monte Carlo permutation validators
// of §4.9: the naive Masters step-down algorithm, the improved
// Romano-Wolf algorithm that shares one synthetic series across every
// candidate per permutation round, and the family-partitioned wrapper
// that runs either one independently within LONG/SHORT (and, above a
// pattern-count threshold, pattern-subtype) partitions before union-ing
// the results. Grounded on
// original_source/libs/timeserieslib/{PALMonteCarloTypes.h,IPermutationAlgorithm.h,MastersRomanoWolf.h}
// and original_source/libs/statistics/PALRomanoWolfMonteCarloValidation.h.
package validator

import (
	"context"

	"github.com/mkc-quant/palvalidator/internal/strategy"
	"github.com/shopspring/decimal"
)

// StrategyContext pairs a strategy with the baseline statistic and
// trade count its (unpermuted) backtest produced, the unit every
// permutation algorithm here ranks and re-tests. Mirrors
// PALMonteCarloTypes.h's StrategyContext<Decimal>.
type StrategyContext struct {
	Strategy     *strategy.Strategy
	BaselineStat decimal.Decimal
	NumTrades    int
}

// Algorithm is the permutation-test contract of IPermutationAlgorithm.h:
// given baseline contexts (any order; implementations sort internally)
// and a permutation budget, it returns one adjusted p-value per
// strategy name. Every implementation guarantees the output key set
// equals the input key set and every value lies in [0, 1].
type Algorithm interface {
	Run(ctx context.Context, baseline []StrategyContext, numPermutations int, sigLevel decimal.Decimal, seed uint64) (map[string]decimal.Decimal, error)
}

// sortDescending returns baseline ordered by BaselineStat, highest
// first, breaking ties by strategy name for a deterministic order (the
// source orders by strategy registration index on ties, which Go has
// no equivalent of; name ordering is the closest stable substitute).
func sortDescending(baseline []StrategyContext) []StrategyContext {
	out := append([]StrategyContext(nil), baseline...)
	insertionSortDescending(out)
	return out
}

func insertionSortDescending(ctxs []StrategyContext) {
	for i := 1; i < len(ctxs); i++ {
		for j := i; j > 0 && less(ctxs[j-1], ctxs[j]); j-- {
			ctxs[j-1], ctxs[j] = ctxs[j], ctxs[j-1]
		}
	}
}

// less reports whether a should sort after b (a has a smaller baseline
// statistic, or an equal one and a lexicographically later name).
func less(a, b StrategyContext) bool {
	if !a.BaselineStat.Equal(b.BaselineStat) {
		return a.BaselineStat.LessThan(b.BaselineStat)
	}
	return a.Strategy.Name > b.Strategy.Name
}
