// Package prep implements the strategy data preparer of §4.16: given a
// template backtester, a base security, and a catalog of patterns, it
// builds one long/short pattern strategy per pattern, runs a baseline
// backtest for each (in parallel, across Executor), and records the
// resulting StrategyContext — the input every internal/validator
// algorithm consumes. Grounded on
// original_source/libs/statistics/StrategyDataPreparer.h: one task per
// pattern submitted to an executor, a mutex-guarded accumulation of
// results, baseline statistic and trade count read off the cloned
// backtest.
package prep

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkc-quant/palvalidator/internal/backtester"
	"github.com/mkc-quant/palvalidator/internal/errs"
	"github.com/mkc-quant/palvalidator/internal/executor"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/mkc-quant/palvalidator/internal/permtest"
	"github.com/mkc-quant/palvalidator/internal/series"
	"github.com/mkc-quant/palvalidator/internal/strategy"
	"github.com/mkc-quant/palvalidator/internal/validator"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Preparer builds and baseline-backtests one strategy per pattern.
type Preparer struct {
	Template   *backtester.Engine
	Stat       permtest.StatisticPolicy
	TickSize   decimal.Decimal
	UnitVolume decimal.Decimal
	Executor   executor.Executor
	Logger     *zap.Logger
}

// Prepare builds a PAL Long/PAL Short strategy for every pattern,
// registers baseSecurity's series on it, runs a baseline backtest
// cloned from Template, and records a validator.StrategyContext per
// pattern. Every baseline backtest runs independently of the others,
// so they execute concurrently across Executor (§4.15); a shared
// mutex guards the single accumulation point, the same shape
// StrategyDataPreparer::prepare uses around its std::mutex-protected
// push_back.
func (p *Preparer) Prepare(ctx context.Context, baseSecurity string, securitySeries *series.Series, patterns []*pattern.Pattern) ([]validator.StrategyContext, error) {
	if p.Template == nil {
		return nil, errs.InvalidArg("prep.Prepare", "template backtester must not be nil")
	}
	if securitySeries == nil {
		return nil, errs.InvalidArg("prep.Prepare", "security series must not be nil")
	}
	if len(patterns) == 0 {
		return nil, errs.InvalidArg("prep.Prepare", "patterns must not be empty")
	}

	exec := p.Executor
	if exec == nil {
		exec = executor.NewFixedPool(0, p.Logger)
	}

	var (
		mu      sync.Mutex
		results []validator.StrategyContext
	)

	futures := make([]executor.Future, len(patterns))
	for idx, pat := range patterns {
		idx, pat := idx, pat
		futures[idx] = exec.Submit(func() error {
			name := strategyName(pat, idx+1)
			s, err := strategy.New(name, pat, p.TickSize, p.UnitVolume, p.Logger)
			if err != nil {
				return err
			}
			s.AddSecurity(baseSecurity, securitySeries)

			eng := p.Template.Clone()
			eng.AttachStrategies(s)
			result, err := eng.Run(ctx)
			if err != nil {
				return err
			}
			summary := result.Summaries[name]

			mu.Lock()
			results = append(results, validator.StrategyContext{
				Strategy:     s,
				BaselineStat: p.Stat.Statistic(summary),
				NumTrades:    summary.NumPositions,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := exec.WaitAll(futures); err != nil {
		return nil, errs.WrapPermutationFailure("prep.Prepare", "one or more baseline backtests failed", err)
	}
	return results, nil
}

func strategyName(p *pattern.Pattern, ordinal int) string {
	direction := "PAL Long"
	if p.Direction == pattern.Short {
		direction = "PAL Short"
	}
	return fmt.Sprintf("%s %d", direction, ordinal)
}
