package validator

import (
	"context"
	"sync"

	"github.com/mkc-quant/palvalidator/internal/executor"
	"github.com/mkc-quant/palvalidator/internal/pattern"
	"github.com/shopspring/decimal"
)

// subTypeThreshold is the pattern count above which family
// partitioning also splits by pattern sub-type rather than direction
// alone, matching PALRomanoWolfMonteCarloValidation.h's
// partitionBySubType = (numPatterns >= 1000): below that size a
// direction-only split already keeps each family's permutation work
// small, and splitting further would only thin out each family's
// sample.
const subTypeThreshold = 1000

// familyKey identifies one partition: direction, and — above
// subTypeThreshold candidates — a coarse pattern-complexity bucket
// used as a stand-in sub-type classifier (the source's
// StrategyFamilyPartitioner sub-types on the pattern's structural
// category; internal/classifier computes such a category, but
// partitioning here does not consult it and uses comparison count as
// the proxy).
type familyKey struct {
	direction  pattern.Direction
	subType    int
	useSubType bool
}

func keyFor(sc StrategyContext, useSubType bool) familyKey {
	k := familyKey{direction: sc.Strategy.Pattern.Direction, useSubType: useSubType}
	if useSubType {
		k.subType = len(pattern.FlattenComparisons(sc.Strategy.Pattern.Expr))
	}
	return k
}

// FamilyPartitioned wraps an Algorithm factory and runs it
// independently within each LONG/SHORT (and, above subTypeThreshold
// candidates, pattern sub-type) partition of baseline, unioning every
// partition's adjusted p-values into one result map. Each partition
// gets its own Runner since a partition's candidate strategies, while
// drawn from the same underlying securities, must never see another
// partition's permutation draws mixed into its step-down. Partitions
// are themselves independent of one another, so they run concurrently
// across Executor while each partition's own Algorithm independently
// parallelizes its permutation rounds.
type FamilyPartitioned struct {
	NewAlgorithm func(*Runner) Algorithm
	NewRunner    func() *Runner
	Partition    bool
	Executor     executor.Executor
}

func (f *FamilyPartitioned) Run(ctx context.Context, baseline []StrategyContext, numPermutations int, sigLevel decimal.Decimal, seed uint64) (map[string]decimal.Decimal, error) {
	if !f.Partition {
		alg := f.NewAlgorithm(f.NewRunner())
		return alg.Run(ctx, baseline, numPermutations, sigLevel, seed)
	}

	useSubType := len(baseline) >= subTypeThreshold
	groups := make(map[familyKey][]StrategyContext)
	var order []familyKey
	for _, sc := range baseline {
		k := keyFor(sc, useSubType)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], sc)
	}

	// Partition count is always small (direction, or direction ×
	// sub-type), so an unbounded-goroutine executor is used by default
	// here rather than the shared bounded FixedPool orExecutor falls
	// back to elsewhere: each partition's own Algorithm run in turn
	// submits its permutation rounds to that same shared pool, and
	// nesting two levels of work onto one bounded queue risks every
	// worker blocking on an inner WaitAll while no worker is free to
	// drain the rounds it is waiting on.
	exec := f.Executor
	if exec == nil {
		exec = executor.NewAsync()
	}
	result := make(map[string]decimal.Decimal, len(baseline))
	var mu sync.Mutex

	futures := make([]executor.Future, len(order))
	for i, k := range order {
		i, k := i, k
		partitionSeed := seed ^ uint64(i+1)*0x9e3779b97f4a7c15
		futures[i] = exec.Submit(func() error {
			alg := f.NewAlgorithm(f.NewRunner())
			partial, err := alg.Run(ctx, groups[k], numPermutations, sigLevel, partitionSeed)
			if err != nil {
				return err
			}
			mu.Lock()
			for name, p := range partial {
				result[name] = p
			}
			mu.Unlock()
			return nil
		})
	}
	if err := exec.WaitAll(futures); err != nil {
		return nil, err
	}
	return result, nil
}
