// File: aggregate/threads.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package aggregate

import (
	"math"
	"runtime/debug"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/control"
	"github.com/momentics/pollsync/lock"
)

// baseThreads is the runtime's default thread limit, kept as headroom for
// everything that is not a unit.
const baseThreads = 10000

// threadBudget estimates the OS threads a run may hold at once. Thread units
// own one each, ThreadRecreate briefly overlaps a dying thread with its
// successor, and a kernel lock parks one thread per blocked waiter.
func threadBudget(cfg control.RunConfig) int {
	perUnit := 0
	switch cfg.Strategy {
	case api.PollThread:
		perUnit = 1
	case api.PollThreadRecreate:
		perUnit = 2
	}
	if perUnit == 0 && lock.ParksThread(cfg.Kind) {
		perUnit = 1
	}
	need := baseThreads + cfg.Units*perUnit
	if cfg.Strategy == api.PollTimer && cfg.PinThreads {
		need += cfg.Workers()
	}
	return need
}

// raiseThreadLimit lifts the runtime thread limit to at least need and
// returns the limit in force. It never lowers an existing limit.
func raiseThreadLimit(need int) int {
	prev := debug.SetMaxThreads(math.MaxInt32)
	limit := max(prev, need)
	debug.SetMaxThreads(limit)
	return limit
}
