// File: lock/lock.go
// Package lock provides the synchronization primitives the harness measures.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Monitor is an in-process mutex. Mutex, Semaphore and ResetEvent are backed
// by kernel objects on Linux (a pipe token and two flavours of eventfd) so
// that contention goes through the kernel, and by channels elsewhere.

package lock

import (
	"sync"

	"github.com/momentics/pollsync/api"
)

// New builds a lock of the given kind.
func New(kind api.LockKind) (api.Lock, error) {
	switch kind {
	case api.LockMonitor:
		return NewMonitor(), nil
	case api.LockMutex:
		return NewMutex()
	case api.LockSemaphore:
		return NewSemaphore()
	case api.LockResetEvent:
		return NewResetEvent()
	default:
		return nil, api.NewError(api.ErrCodeUnsupportedStrategy, "unsupported lock kind").
			WithContext("kind", kind.String())
	}
}

// ParksThread reports whether a waiter on a lock of this kind holds its OS
// thread while blocked.
func ParksThread(kind api.LockKind) bool {
	return kernelBacked && kind != api.LockMonitor && kind.Valid()
}

// Monitor is a plain in-process mutual exclusion lock.
type Monitor struct {
	mu sync.Mutex
}

// NewMonitor returns an unlocked Monitor.
func NewMonitor() *Monitor { return &Monitor{} }

func (m *Monitor) Enter()             { m.mu.Lock() }
func (m *Monitor) Exit()              { m.mu.Unlock() }
func (m *Monitor) Kind() api.LockKind { return api.LockMonitor }
func (m *Monitor) Close() error       { return nil }

var (
	_ api.Lock = (*Monitor)(nil)
	_ api.Lock = (*Mutex)(nil)
	_ api.Lock = (*Semaphore)(nil)
	_ api.Lock = (*ResetEvent)(nil)
)
