// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level enums and measurement DTOs.

package api

import (
	"strconv"
	"strings"
	"time"
)

// PollStrategy selects how a Poller wakes its subscribers.
// Values start at 1 so the zero value is never a valid strategy.
type PollStrategy int

const (
	PollTimer PollStrategy = iota + 1
	PollTaskLoop
	PollThread
	PollThreadRecreate
)

func (p PollStrategy) String() string {
	switch p {
	case PollTimer:
		return "timer"
	case PollTaskLoop:
		return "task"
	case PollThread:
		return "thread"
	case PollThreadRecreate:
		return "thread-recreate"
	default:
		return "poll(" + strconv.Itoa(int(p)) + ")"
	}
}

// Valid reports whether p names one of the known strategies.
func (p PollStrategy) Valid() bool {
	return p >= PollTimer && p <= PollThreadRecreate
}

// LockKind selects the synchronization primitive under test.
type LockKind int

const (
	LockMonitor LockKind = iota + 1
	LockMutex
	LockSemaphore
	LockResetEvent
)

func (k LockKind) String() string {
	switch k {
	case LockMonitor:
		return "monitor"
	case LockMutex:
		return "mutex"
	case LockSemaphore:
		return "semaphore"
	case LockResetEvent:
		return "reset-event"
	default:
		return "lock(" + strconv.Itoa(int(k)) + ")"
	}
}

// Valid reports whether k names one of the known lock kinds.
func (k LockKind) Valid() bool {
	return k >= LockMonitor && k <= LockResetEvent
}

// LockScope tells whether a unit owns its lock or shares the process-wide one.
type LockScope int

const (
	ScopePerInstance LockScope = iota + 1
	ScopeProcessWide
)

func (s LockScope) String() string {
	switch s {
	case ScopePerInstance:
		return "local"
	case ScopeProcessWide:
		return "static"
	default:
		return "scope(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is a known scope.
func (s LockScope) Valid() bool {
	return s == ScopePerInstance || s == ScopeProcessWide
}

// ParsePollStrategy accepts a strategy name or its numeric code (1..4).
func ParsePollStrategy(s string) (PollStrategy, error) {
	switch normalize(s) {
	case "timer", "1":
		return PollTimer, nil
	case "task", "taskloop", "task-loop", "2":
		return PollTaskLoop, nil
	case "thread", "3":
		return PollThread, nil
	case "thread-recreate", "threadrecreate", "recreate", "4":
		return PollThreadRecreate, nil
	}
	return 0, NewError(ErrCodeUnsupportedStrategy, "unsupported poll strategy").WithContext("value", s)
}

// ParseLockKind accepts a lock kind name or its numeric code (1..4).
func ParseLockKind(s string) (LockKind, error) {
	switch normalize(s) {
	case "monitor", "1":
		return LockMonitor, nil
	case "mutex", "2":
		return LockMutex, nil
	case "semaphore", "3":
		return LockSemaphore, nil
	case "reset-event", "resetevent", "event", "4":
		return LockResetEvent, nil
	}
	return 0, NewError(ErrCodeUnsupportedStrategy, "unsupported lock kind").WithContext("value", s)
}

// ParseLockScope accepts local/static (or per-instance/process-wide) and 1/2.
func ParseLockScope(s string) (LockScope, error) {
	switch normalize(s) {
	case "local", "per-instance", "perinstance", "1":
		return ScopePerInstance, nil
	case "static", "process-wide", "processwide", "shared", "2":
		return ScopeProcessWide, nil
	}
	return 0, NewError(ErrCodeInvalidConfig, "unknown lock scope").WithContext("value", s)
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// Measurement is one enter-hold-exit latency produced by a harness unit tick.
type Measurement struct {
	UnitID  int
	Seq     uint64 // per-unit tick number, starting at 1
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}
