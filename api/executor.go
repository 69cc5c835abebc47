// Package api
// Author: momentics
//
// Executor contract for dispatching timer ticks onto pooled workers.

package api

// Executor abstracts a pool of worker routines.
type Executor interface {
	// Submit schedules task for execution without blocking the caller.
	Submit(task func()) error

	// NumWorkers returns current number of worker routines.
	NumWorkers() int
}
