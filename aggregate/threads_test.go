// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package aggregate

import (
	"runtime/debug"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/lock"
)

func TestThreadBudget(t *testing.T) {
	kernel := 0
	if lock.ParksThread(api.LockMutex) {
		kernel = 1
	}
	cases := []struct {
		strategy api.PollStrategy
		kind     api.LockKind
		perUnit  int
	}{
		{api.PollTaskLoop, api.LockMonitor, 0},
		{api.PollTimer, api.LockMonitor, 0},
		{api.PollTaskLoop, api.LockMutex, kernel},
		{api.PollThread, api.LockMonitor, 1},
		{api.PollThread, api.LockSemaphore, 1},
		{api.PollThreadRecreate, api.LockMonitor, 2},
	}
	for _, tc := range cases {
		cfg := testConfig(tc.strategy, tc.kind, api.ScopeProcessWide, 50000)
		if got, want := threadBudget(cfg), baseThreads+50000*tc.perUnit; got != want {
			t.Errorf("%s/%s: budget = %d, want %d", tc.strategy, tc.kind, got, want)
		}
	}
}

func TestRaiseThreadLimit_NeverLowers(t *testing.T) {
	current := raiseThreadLimit(0)
	defer debug.SetMaxThreads(current)

	if got := raiseThreadLimit(current + 500); got != current+500 {
		t.Fatalf("raise to %d gave %d", current+500, got)
	}
	if got := raiseThreadLimit(1); got != current+500 {
		t.Errorf("lower request changed the limit to %d", got)
	}
}

// Waiters parked on a shared kernel lock each hold an OS thread. Start must
// lift a tight limit before they pile up, or the runtime aborts the process.
func TestDriver_RaisesThreadLimitForParkedWaiters(t *testing.T) {
	if !lock.ParksThread(api.LockMutex) {
		t.Skip("mutex waiters do not park OS threads on this platform")
	}
	const units = 200
	tight := pprof.Lookup("threadcreate").Count() + 50
	prev := debug.SetMaxThreads(tight)
	defer debug.SetMaxThreads(prev)

	cfg := testConfig(api.PollTaskLoop, api.LockMutex, api.ScopeProcessWide, units)
	cfg.Work = time.Millisecond
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, d, 200*time.Millisecond)
	defer d.Close()

	if limit := raiseThreadLimit(0); limit < threadBudget(cfg) {
		t.Errorf("thread limit %d below budget %d", limit, threadBudget(cfg))
	}
	if d.Average().Count == 0 {
		t.Error("no measurements recorded")
	}
}
