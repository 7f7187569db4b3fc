package executor

// Async runs every Task on its own goroutine, unbounded. Suited to a
// small, known-size batch of expensive tasks (a handful of
// family-partitioned validator runs, say) where spinning up one
// goroutine per task is cheaper than the bookkeeping a bounded pool
// needs.
type Async struct{}

func NewAsync() *Async { return &Async{} }

func (Async) Submit(t Task) Future {
	f := newFuture()
	go func() { f.resolve(runRecovered(t)) }()
	return f
}

func (Async) WaitAll(futures []Future) error { return waitAll(futures) }

func (Async) Close() {}
