package base

import (
	"sync"
	"sync/atomic"
)

var LogWorkerPool = NewLogCategory("WorkerPool")

// TaskFunc is one unit of work queued onto a ThreadPool.
type TaskFunc func(workerIndex int)

// ThreadPool is the bounded worker group the Compilation worker uses to run
// independent translation-unit compiles concurrently (spec.md §4.5,
// "Parallel compile pool" design note). Adapted near-verbatim from ppb's
// utils/ThreadPool.go: a fixed number of goroutines fed by one channel.
type ThreadPool struct {
	give     chan TaskFunc
	name     string
	arity    int
	workload atomic.Int32
}

func NewFixedSizeThreadPool(name string, numWorkers int) *ThreadPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	pool := &ThreadPool{
		give:  make(chan TaskFunc, 4096),
		name:  name,
		arity: numWorkers,
	}
	for i := 0; i < numWorkers; i++ {
		go pool.threadLoop(i)
	}
	return pool
}

func (p *ThreadPool) Name() string    { return p.name }
func (p *ThreadPool) Arity() int      { return p.arity }
func (p *ThreadPool) Workload() int32 { return p.workload.Load() }

func (p *ThreadPool) Queue(task TaskFunc) {
	p.give <- task
}

// Join blocks until every previously queued task has completed. The pool
// stays usable afterwards (a build daemon compiles many times over its
// lifetime, unlike a one-shot CLI invocation).
func (p *ThreadPool) Join() {
	wg := sync.WaitGroup{}
	wg.Add(p.arity)
	for i := 0; i < p.arity; i++ {
		p.Queue(func(int) {
			wg.Done()
			wg.Wait()
		})
	}
	wg.Wait()
}

// Close stops every worker goroutine. The pool cannot be reused afterwards.
func (p *ThreadPool) Close() {
	for i := 0; i < p.arity; i++ {
		p.give <- nil
	}
}

func (p *ThreadPool) threadLoop(workerIndex int) {
	for task := range p.give {
		if task == nil {
			return
		}
		p.workload.Add(1)
		task(workerIndex)
		p.workload.Add(-1)
	}
}
