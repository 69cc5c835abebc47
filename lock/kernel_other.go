//go:build !linux

// File: lock/kernel_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel-backed stand-ins for platforms without eventfd.

package lock

import (
	"github.com/momentics/pollsync/api"
)

// kernelBacked is set where waiters block in read(2).
const kernelBacked = false

// token is a one-slot channel holding the right to enter.
type token chan struct{}

func newToken() token {
	t := make(token, 1)
	t <- struct{}{}
	return t
}

// Mutex is a binary lock guarded by a channel token.
type Mutex struct{ t token }

func NewMutex() (*Mutex, error) { return &Mutex{t: newToken()}, nil }

func (m *Mutex) Enter() { <-m.t }

func (m *Mutex) Exit() {
	select {
	case m.t <- struct{}{}:
	default:
		panic("lock: release of a mutex that is not held")
	}
}

func (m *Mutex) Kind() api.LockKind { return api.LockMutex }
func (m *Mutex) Close() error       { return nil }

// Semaphore is a counting semaphore of capacity 1.
type Semaphore struct{ t token }

func NewSemaphore() (*Semaphore, error) { return &Semaphore{t: newToken()}, nil }

func (s *Semaphore) Enter() { <-s.t }

func (s *Semaphore) Exit() {
	select {
	case s.t <- struct{}{}:
	default:
		panic("lock: semaphore released beyond its capacity")
	}
}

func (s *Semaphore) Kind() api.LockKind { return api.LockSemaphore }
func (s *Semaphore) Close() error       { return nil }

// ResetEvent is an auto-reset event starting signaled.
type ResetEvent struct{ t token }

func NewResetEvent() (*ResetEvent, error) { return &ResetEvent{t: newToken()}, nil }

func (e *ResetEvent) Enter() { <-e.t }

// Exit signals the event; setting a signaled event is a no-op.
func (e *ResetEvent) Exit() {
	select {
	case e.t <- struct{}{}:
	default:
	}
}

func (e *ResetEvent) Kind() api.LockKind { return api.LockResetEvent }
func (e *ResetEvent) Close() error       { return nil }
