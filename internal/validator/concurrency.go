package validator

import (
	"sync"

	"github.com/mkc-quant/palvalidator/internal/executor"
)

var (
	defaultExecOnce sync.Once
	defaultExec     executor.Executor
)

// defaultExecutor lazily builds a package-wide FixedPool the first
// time an algorithm runs without an explicit Executor configured, so
// permutation rounds run in parallel by default (§4.15's mandated
// concurrency model) without every call site having to wire one up
// for itself.
func defaultExecutor() executor.Executor {
	defaultExecOnce.Do(func() {
		defaultExec = executor.NewFixedPool(0, nil)
	})
	return defaultExec
}

func orExecutor(e executor.Executor) executor.Executor {
	if e == nil {
		return defaultExecutor()
	}
	return e
}
