// Package dispatch provides the explicit data-parallel execution layer used
// by the numeric producers: a persistent worker pool with a range-splitting
// For, plus atomic float64 accumulation for scatter-add reductions.
package dispatch

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// DefaultGrain is the minimum number of elements worth shipping to a worker.
// Callers tune it per kernel via the grain argument of For.
const DefaultGrain = 1024

// Pool is a fixed set of worker goroutines executing element-range kernels.
// Operations issued through a Pool run concurrently across ranges but each
// For call returns only after every chunk finished, so callers sequence
// kernels the same way they would against an accelerator queue with a fence
// after each dispatch.
type Pool struct {
	workers int
	jobs    chan func()
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given number of workers. Zero or negative
// means GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), workers*4),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int { return p.workers }

// Close stops the workers after draining queued work. Safe to call once.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.jobs)
		p.wg.Wait()
	}
}

// For runs fn over [0, n) split into contiguous chunks of at least grain
// elements, and waits for all chunks to finish. With one worker, a closed
// pool, or a range at or below the grain, fn runs inline on the caller.
func (p *Pool) For(n, grain int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if grain <= 0 {
		grain = DefaultGrain
	}
	if p == nil || p.workers == 1 || p.closed.Load() || n <= grain {
		fn(0, n)
		return
	}

	chunks := (n + grain - 1) / grain
	if chunks > p.workers*4 {
		chunks = p.workers * 4
		grain = (n + chunks - 1) / chunks
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += grain {
		end := start + grain
		if end > n {
			end = n
		}
		s, e := start, end
		wg.Add(1)
		p.jobs <- func() {
			defer wg.Done()
			fn(s, e)
		}
	}
	wg.Wait()
}

// AddFloat64 atomically adds delta to *addr. Used by scatter-add kernels
// where multiple ranges accumulate into the same slot.
func AddFloat64(addr *float64, delta float64) {
	bits := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}
