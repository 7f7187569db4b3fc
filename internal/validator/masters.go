package validator

import (
	"context"
	"time"

	"github.com/mkc-quant/palvalidator/internal/executor"
	"github.com/mkc-quant/palvalidator/internal/synthetic"
	"github.com/mkc-quant/palvalidator/internal/telemetry"
	"github.com/shopspring/decimal"
)

const algorithmMasters = "masters"

// Masters is the naive step-down algorithm of MastersRomanoWolf.h: at
// each step it draws a fresh batch of permutations restricted to the
// still-active strategy set, rather than sharing one permutation
// matrix across the whole baseline the way Improved does. Simpler, and
// correct, at the cost of re-permuting once per surviving strategy
// instead of once per permutation round. Every round within a step is
// independent of every other round, so they run concurrently across
// Executor (§4.15): only the step-down decision between steps is
// sequential.
type Masters struct {
	Runner   *Runner
	Executor executor.Executor
}

func (m *Masters) Run(ctx context.Context, baseline []StrategyContext, numPermutations int, sigLevel decimal.Decimal, seed uint64) (map[string]decimal.Decimal, error) {
	started := time.Now()
	defer func() {
		telemetry.RunDuration.WithLabelValues(algorithmMasters).Observe(time.Since(started).Seconds())
	}()

	exec := orExecutor(m.Executor)

	ordered := sortDescending(baseline)
	active := append([]StrategyContext(nil), ordered...)
	result := make(map[string]decimal.Decimal, len(ordered))
	lastAdj := decimal.Zero

	nPlus1 := decimal.NewFromInt(int64(numPermutations) + 1)

	for i := 0; i < len(ordered); i++ {
		candidate := ordered[i]
		if !stillActive(active, candidate) {
			continue
		}

		roundMax := make([]decimal.Decimal, numPermutations)
		futures := make([]executor.Future, numPermutations)
		for round := 0; round < numPermutations; round++ {
			round := round
			roundSeed := synthetic.TaskSeed(seed, i*numPermutations+round)
			futures[round] = exec.Submit(func() error {
				permuted, err := m.Runner.Permute(roundSeed)
				if err != nil {
					return err
				}
				maxStat := decimal.Zero
				first := true
				for _, s := range active {
					stat, err := m.Runner.Backtest(ctx, s, permuted)
					if err != nil {
						return err
					}
					if first || stat.GreaterThan(maxStat) {
						maxStat = stat
						first = false
					}
				}
				roundMax[round] = maxStat
				telemetry.PermutationsCompleted.WithLabelValues(algorithmMasters).Inc()
				return nil
			})
		}
		if err := exec.WaitAll(futures); err != nil {
			return nil, err
		}

		exceedCount := int64(1)
		for _, maxStat := range roundMax {
			if maxStat.GreaterThanOrEqual(candidate.BaselineStat) {
				exceedCount++
			}
		}

		p := decimal.NewFromInt(exceedCount).Div(nPlus1)
		adj := p
		if lastAdj.GreaterThan(adj) {
			adj = lastAdj
		}

		if adj.LessThanOrEqual(sigLevel) {
			result[candidate.Strategy.Name] = adj
			lastAdj = adj
			active = removeStrategy(active, candidate)
			continue
		}

		// candidate fails: assign adj to every strategy still active
		// (including candidate itself) and stop the step-down.
		for _, s := range active {
			result[s.Strategy.Name] = adj
		}
		break
	}

	return result, nil
}

func stillActive(active []StrategyContext, sc StrategyContext) bool {
	for _, s := range active {
		if s.Strategy.Name == sc.Strategy.Name {
			return true
		}
	}
	return false
}

func removeStrategy(active []StrategyContext, sc StrategyContext) []StrategyContext {
	out := make([]StrategyContext, 0, len(active))
	for _, s := range active {
		if s.Strategy.Name != sc.Strategy.Name {
			out = append(out, s)
		}
	}
	return out
}
