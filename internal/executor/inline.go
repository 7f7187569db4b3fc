package executor

// Inline runs every Task synchronously on the calling goroutine,
// within Submit itself. Used by tests and by single-permutation
// diagnostic runs, where the overhead and nondeterministic scheduling
// of real concurrency is undesirable.
type Inline struct{}

func NewInline() *Inline { return &Inline{} }

func (Inline) Submit(t Task) Future {
	f := newFuture()
	f.resolve(runRecovered(t))
	return f
}

func (Inline) WaitAll(futures []Future) error { return waitAll(futures) }

func (Inline) Close() {}
