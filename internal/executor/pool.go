package executor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// FixedPool bounds concurrency to a fixed worker count, the policy
// production runs of the validator and the strategy preparer use: a
// permutation budget of tens of thousands of rounds must not spin up
// tens of thousands of goroutines at once. Adapted from the base
// repository's workers.Pool worker-loop/panic-recovery shape.
type FixedPool struct {
	logger  *zap.Logger
	workers int

	queue chan poolJob
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

type poolJob struct {
	task Task
	fut  *future
}

// PoolStats mirrors the base repository's PoolStats, trimmed to four
// task counters. It is read through Stats; internal/telemetry does not
// export it.
type PoolStats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Panicked  int64
}

// NewFixedPool builds a pool of numWorkers workers and starts them
// immediately. numWorkers <= 0 defaults to runtime.NumCPU(), the same
// default the base repository's DefaultPoolConfig used.
func NewFixedPool(numWorkers int, logger *zap.Logger) *FixedPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &FixedPool{
		logger:  logger,
		workers: numWorkers,
		queue:   make(chan poolJob, numWorkers*64),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.start()
	return p
}

func (p *FixedPool) start() {
	p.once.Do(func() {
		p.logger.Info("starting fixed pool", zap.Int("workers", p.workers))
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.runWorker(i)
		}
	})
}

func (p *FixedPool) runWorker(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", id))
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			err := runRecovered(job.task)
			if err != nil {
				p.failed.Add(1)
				if _, isPanic := asPanic(err); isPanic {
					p.panicked.Add(1)
					logger.Error("worker recovered from panic", zap.Error(err))
				} else {
					logger.Debug("task failed", zap.Error(err))
				}
			} else {
				p.completed.Add(1)
			}
			job.fut.resolve(err)
		}
	}
}

func asPanic(err error) (string, bool) {
	// runRecovered's panic errors are formatted with this prefix;
	// distinguishing them from ordinary task errors is purely for the
	// panic counter, not for control flow.
	const prefix = "executor: task panicked:"
	msg := err.Error()
	if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
		return msg, true
	}
	return "", false
}

// Submit queues t for execution by one of the pool's workers. It never
// blocks indefinitely: the queue is generously buffered (64 slots per
// worker), but a caller that submits far faster than the pool drains
// will still eventually block on the channel send, exerting backpressure
// rather than growing memory without bound.
func (p *FixedPool) Submit(t Task) Future {
	p.submitted.Add(1)
	f := newFuture()
	select {
	case p.queue <- poolJob{task: t, fut: f}:
	case <-p.ctx.Done():
		f.resolve(context.Canceled)
	}
	return f
}

func (p *FixedPool) WaitAll(futures []Future) error { return waitAll(futures) }

// Close stops accepting new work, waits for in-flight tasks to finish,
// then runs any queued-but-not-yet-started tasks on the calling
// goroutine, so every future returned by Submit still resolves.
func (p *FixedPool) Close() {
	p.cancel()
	p.wg.Wait()
	for {
		select {
		case job := <-p.queue:
			err := runRecovered(job.task)
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			job.fut.resolve(err)
		default:
			return
		}
	}
}

func (p *FixedPool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
