//go:build linux

// File: lock/kernel_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Kernel-object locks. Every Enter blocks inside read(2) on a blocking file
// descriptor, so a waiter parks its OS thread in the kernel the way a native
// mutex or semaphore wait does. Go's runtime delivers preemption signals,
// hence the EINTR retries.

package lock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// kernelBacked is set where waiters block in read(2).
const kernelBacked = true

// Mutex is a binary lock whose ownership is one byte sitting in a kernel pipe.
type Mutex struct {
	r, w int
	held atomic.Bool
}

// NewMutex creates the pipe and deposits the ownership token.
func NewMutex() (*Mutex, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("lock: pipe2: %w", err)
	}
	m := &Mutex{r: p[0], w: p[1]}
	if err := writeFull(m.w, []byte{1}); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("lock: mutex token: %w", err)
	}
	return m, nil
}

func (m *Mutex) Enter() {
	var b [1]byte
	if err := readFull(m.r, b[:]); err != nil {
		panic(fmt.Errorf("lock: mutex enter: %w", err))
	}
	m.held.Store(true)
}

// Exit panics when the mutex is not held, like releasing an unowned OS mutex.
func (m *Mutex) Exit() {
	if !m.held.CompareAndSwap(true, false) {
		panic("lock: release of a mutex that is not held")
	}
	if err := writeFull(m.w, []byte{1}); err != nil {
		panic(fmt.Errorf("lock: mutex exit: %w", err))
	}
}

func (m *Mutex) Kind() api.LockKind { return api.LockMutex }

// Close releases both pipe ends. No caller may be inside Enter.
func (m *Mutex) Close() error {
	return errors.Join(unix.Close(m.r), unix.Close(m.w))
}

// Semaphore is a counting semaphore of capacity 1 on a semaphore-mode eventfd.
type Semaphore struct {
	fd    int
	count atomic.Int32 // holders inside the bracket
}

// NewSemaphore returns a semaphore with one free slot.
func NewSemaphore() (*Semaphore, error) {
	fd, err := unix.Eventfd(1, unix.EFD_CLOEXEC|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, fmt.Errorf("lock: eventfd: %w", err)
	}
	return &Semaphore{fd: fd}, nil
}

// Enter decrements the kernel counter by one, blocking at zero.
func (s *Semaphore) Enter() {
	if _, err := readCounter(s.fd); err != nil {
		panic(fmt.Errorf("lock: semaphore enter: %w", err))
	}
	s.count.Inc()
}

// Exit increments the counter. Releasing past capacity panics.
func (s *Semaphore) Exit() {
	if s.count.Dec() < 0 {
		s.count.Inc()
		panic("lock: semaphore released beyond its capacity")
	}
	if err := writeCounter(s.fd, 1); err != nil {
		panic(fmt.Errorf("lock: semaphore exit: %w", err))
	}
}

func (s *Semaphore) Kind() api.LockKind { return api.LockSemaphore }
func (s *Semaphore) Close() error       { return unix.Close(s.fd) }

// ResetEvent is an auto-reset event: a plain eventfd starting signaled.
// A read consumes the whole counter, so one waiter wins each signal.
type ResetEvent struct {
	fd int
}

// NewResetEvent returns an event in the signaled state.
func NewResetEvent() (*ResetEvent, error) {
	fd, err := unix.Eventfd(1, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("lock: eventfd: %w", err)
	}
	return &ResetEvent{fd: fd}, nil
}

// Enter waits for the signal and resets it.
func (e *ResetEvent) Enter() {
	if _, err := readCounter(e.fd); err != nil {
		panic(fmt.Errorf("lock: reset event wait: %w", err))
	}
}

// Exit signals the event. Signalling an already signaled event leaves it signaled.
func (e *ResetEvent) Exit() {
	if err := writeCounter(e.fd, 1); err != nil {
		panic(fmt.Errorf("lock: reset event set: %w", err))
	}
}

func (e *ResetEvent) Kind() api.LockKind { return api.LockResetEvent }
func (e *ResetEvent) Close() error       { return unix.Close(e.fd) }

func readCounter(fd int) (uint64, error) {
	var buf [8]byte
	if err := readFull(fd, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

func writeCounter(fd int, v uint64) error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], v)
	return writeFull(fd, buf[:])
}

func readFull(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		p = p[n:]
	}
	return nil
}

func writeFull(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
