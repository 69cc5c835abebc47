// File: internal/concurrency/executor.go
// Package concurrency implements the worker pool that runs timer ticks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines through an
// unbounded backlog. Submit never blocks and never refuses a task while the
// executor is open: a saturated pool delays ticks, it does not drop them.

package concurrency

import (
	"runtime"
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	ready   *sync.Cond   // signalled on Submit and Close
	backlog *queue.Queue // pending TaskFunc values, guarded by mu
	closed  bool         // guarded by mu
	wg      sync.WaitGroup
	workers int
	cpuPin  bool

	// statistics
	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	panics    atomic.Int64
	peak      atomic.Int64
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU(). With pin set, every
// worker locks its OS thread and pins it to a CPU round-robin.
func NewExecutor(numWorkers int, pin bool) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		backlog: queue.New(),
		workers: numWorkers,
		cpuPin:  pin,
	}
	e.ready = sync.NewCond(&e.mu)
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run(i)
	}
	return e
}

// Submit enqueues a task. It fails only with api.ErrExecutorClosed after Close.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.rejected.Inc()
		return api.ErrExecutorClosed
	}
	e.backlog.Add(TaskFunc(task))
	if n := int64(e.backlog.Length()); n > e.peak.Load() {
		e.peak.Store(n)
	}
	e.mu.Unlock()
	e.submitted.Inc()
	e.ready.Signal()
	return nil
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int {
	return e.workers
}

// Close stops the workers and waits for them to exit. Tasks still queued are dropped.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.ready.Broadcast()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	e.mu.Lock()
	pending := int64(e.backlog.Length())
	e.mu.Unlock()
	return map[string]int64{
		"submitted_tasks": e.submitted.Load(),
		"rejected_tasks":  e.rejected.Load(),
		"completed_tasks": e.completed.Load(),
		"pending_tasks":   pending,
		"peak_pending":    e.peak.Load(),
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.workers),
	}
}

// next blocks until a task is queued or the executor closes.
func (e *Executor) next() (TaskFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !e.closed && e.backlog.Length() == 0 {
		e.ready.Wait()
	}
	if e.closed {
		return nil, false
	}
	return e.backlog.Remove().(TaskFunc), true
}

// run is the main loop for a worker.
func (e *Executor) run(id int) {
	defer e.wg.Done()
	if e.cpuPin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		_ = PinCurrentThread(id)
	}
	for {
		task, ok := e.next()
		if !ok {
			return
		}
		e.execute(task)
	}
}

// execute runs the task and updates statistics. A panic is counted and does
// not kill the worker; callers that need fail-stop recover it themselves.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Inc()
		}
		e.completed.Inc()
	}()
	task()
}
