// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool splits element-wise kernel work across a bounded number of goroutines.
package workerspool

import (
	"runtime"
	"sync"

	"github.com/gomlx/exceptions"
)

// Pool limits the number of goroutines running kernel work at the same time.
//
// It is safe for concurrent use: many kernel instances may share one Pool.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return NewWithParallelism(runtime.NumCPU())
}

// NewWithParallelism returns a Pool with the given parallelism. If 0, all work runs inline in the caller.
// If negative, parallelism is unlimited.
func NewWithParallelism(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide Pool, created on first use.
func Default() *Pool {
	defaultOnce.Do(func() { defaultPool = New() })
	return defaultPool
}

// MaxParallelism is a soft-target for parallelism.
// If 0 parallelism is disabled, if -1 parallelism is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// StartIfAvailable runs the task in a separate goroutine, if there are enough workers left.
// It returns true if it found workers to run the function, false otherwise.
//
// It's up to the client to synchronize the end of the function execution.
func (w *Pool) StartIfAvailable(task func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
	return true
}

// ParallelFor calls fn(start, end) over contiguous ranges covering [0, n), each of at least
// minChunk indices (except possibly the last), and returns when all calls are done.
//
// Ranges that find no free worker run in the calling goroutine, so ParallelFor never blocks waiting
// for workers. If any call panics, ParallelFor re-panics in the caller with the first exception,
// after all the other calls finished.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk = max(minChunk, 1)
	numChunks := (n + minChunk - 1) / minChunk
	if w.maxParallelism > 0 {
		numChunks = min(numChunks, w.maxParallelism)
	} else if w.maxParallelism == 0 {
		numChunks = 1
	}
	if numChunks <= 1 {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks

	var (
		wg             sync.WaitGroup
		exceptionMu    sync.Mutex
		firstException any
	)
	run := func(start, end int) {
		exception := exceptions.Try(func() { fn(start, end) })
		if exception != nil {
			exceptionMu.Lock()
			if firstException == nil {
				firstException = exception
			}
			exceptionMu.Unlock()
		}
	}
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			run(start, end)
		}
		if !w.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
	if firstException != nil {
		panic(firstException)
	}
}
