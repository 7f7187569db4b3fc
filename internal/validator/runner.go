package validator

import (
	"context"

	"github.com/mkc-quant/palvalidator/internal/backtester"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/permtest"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/synthetic"
	"github.com/shopspring/decimal"
)

// Runner produces one synthetic permutation of a fixed set of
// securities and re-backtests any candidate strategy against it. Every
// algorithm in this package shares a single Runner per family so that,
// within one permutation round, every candidate strategy sees the
// exact same synthetic series (§4.9's "one shared synthetic series per
// permutation round" requirement for the improved algorithm; the naive
// algorithm draws a fresh permutation per step instead but uses the
// same Runner for it).
type Runner struct {
	template   *backtester.Engine
	gen        *synthetic.Generator
	stat       permtest.StatisticPolicy
	securities map[string]*series.Series
}

// NewRunner builds a Runner around a configured template engine (its
// range and timeframe are reused, unmodified, by every permutation
// run) and the original bars for every security the template's
// strategies trade.
func NewRunner(template *backtester.Engine, securities map[string]*series.Series, tickSize decimal.Decimal, stat permtest.StatisticPolicy) *Runner {
	return &Runner{
		template:   template,
		gen:        synthetic.New(tickSize),
		stat:       stat,
		securities: securities,
	}
}

// Permute draws one synthetic reconstruction of every security, using
// the daily algorithm unless the template engine is an Intraday
// variant.
func (r *Runner) Permute(seed uint64) (map[string]*series.Series, error) {
	out := make(map[string]*series.Series, len(r.securities))
	for symbol, ser := range r.securities {
		bars := ser.All()
		var permuted []series.Bar
		var err error
		if r.template.Timeframe() == series.Intraday {
			permuted, err = r.gen.PermuteIntraday(bars, seed)
		} else {
			permuted, err = r.gen.PermuteDaily(bars, seed)
		}
		if err != nil {
			return nil, err
		}
		ns := series.New(ser.Timeframe())
		for _, b := range permuted {
			if err := ns.AddEntry(b); err != nil {
				return nil, err
			}
		}
		out[symbol] = ns
	}
	return out, nil
}

// Backtest clones sc.Strategy onto permuted (a synthetic series set
// from Permute), runs a cloned engine over it, and scores the result
// with the Runner's statistic policy.
func (r *Runner) Backtest(ctx context.Context, sc StrategyContext, permuted map[string]*series.Series) (decimal.Decimal, error) {
	clone := sc.Strategy.Clone(sc.Strategy.Name)
	for symbol, ser := range permuted {
		clone.AddSecurity(symbol, ser)
	}
	eng := r.template.Clone()
	eng.AttachStrategies(clone)
	result, err := eng.Run(ctx)
	if err != nil {
		return decimal.Zero, errs.WrapPermutationFailure("validator.Runner.Backtest", "permutation backtest failed", err)
	}
	return r.stat.Statistic(result.Summaries[clone.Name]), nil
}
