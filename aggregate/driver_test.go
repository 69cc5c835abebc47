// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/control"
)

func testConfig(strategy api.PollStrategy, kind api.LockKind, scope api.LockScope, units int) control.RunConfig {
	cfg := control.DefaultRunConfig()
	cfg.Strategy = strategy
	cfg.Kind = kind
	cfg.Scope = scope
	cfg.Units = units
	cfg.Period = 5 * time.Millisecond
	cfg.Work = time.Millisecond
	cfg.PoolWorkers = 4
	return cfg
}

func runFor(t *testing.T, d *Driver, dur time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() { d.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(dur + 5*time.Second):
		t.Fatal("driver did not stop")
	}
}

func TestNew_RejectsUnsupportedStrategy(t *testing.T) {
	cfg := testConfig(api.PollStrategy(0), api.LockMonitor, api.ScopePerInstance, 2)
	if _, err := New(cfg); !errors.Is(err, api.ErrUnsupportedStrategy) {
		t.Fatalf("err = %v, want ErrUnsupportedStrategy", err)
	}
}

// The subscriber sees every measurement and the totals agree with them.
func TestDriver_AggregatesAllUnits(t *testing.T) {
	for _, s := range []api.PollStrategy{api.PollTimer, api.PollTaskLoop, api.PollThread, api.PollThreadRecreate} {
		t.Run(s.String(), func(t *testing.T) {
			d, err := New(testConfig(s, api.LockMonitor, api.ScopePerInstance, 6))
			if err != nil {
				t.Fatal(err)
			}
			var (
				mu     sync.Mutex
				sum    time.Duration
				count  uint64
				byUnit = map[int]int{}
			)
			d.Subscribe(func(m api.Measurement, _ Snapshot) {
				mu.Lock()
				sum += m.Elapsed
				count++
				byUnit[m.UnitID]++
				mu.Unlock()
			})
			runFor(t, d, 150*time.Millisecond)
			defer d.Close()

			avg := d.Average()
			mu.Lock()
			defer mu.Unlock()
			if avg.Count != count || avg.Sum != sum {
				t.Errorf("average (%d, %v) disagrees with stream (%d, %v)", avg.Count, avg.Sum, count, sum)
			}
			if len(byUnit) != 6 {
				t.Errorf("%d of 6 units reported", len(byUnit))
			}
			st := d.Stats()
			if st.Units != 6 || st.Running != 0 || st.Failed != 0 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}

func TestDriver_ProcessWideSharesOneLock(t *testing.T) {
	d, err := New(testConfig(api.PollTaskLoop, api.LockResetEvent, api.ScopeProcessWide, 4))
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, d, 50*time.Millisecond)
	defer d.Close()

	shared := d.SharedLock()
	if shared == nil {
		t.Fatal("no shared lock created")
	}
	for _, u := range d.Units() {
		if u.Lock() != shared {
			t.Errorf("unit %d holds its own lock", u.ID())
		}
	}
}

func TestDriver_PerInstanceLocksAreDistinct(t *testing.T) {
	d, err := New(testConfig(api.PollTaskLoop, api.LockSemaphore, api.ScopePerInstance, 3))
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, d, 30*time.Millisecond)
	defer d.Close()

	if d.SharedLock() != nil {
		t.Error("per-instance run created a shared lock")
	}
	seen := map[api.Lock]bool{}
	for _, u := range d.Units() {
		if seen[u.Lock()] {
			t.Errorf("unit %d reuses another unit's lock", u.ID())
		}
		seen[u.Lock()] = true
	}
}

func TestDriver_FailedUnitsAreCounted(t *testing.T) {
	d, err := New(testConfig(api.PollThread, api.LockMonitor, api.ScopePerInstance, 3))
	if err != nil {
		t.Fatal(err)
	}
	var fired int32
	d.Subscribe(func(m api.Measurement, _ Snapshot) {
		if m.UnitID == 2 && atomic.CompareAndSwapInt32(&fired, 0, 1) {
			panic("sink exploded")
		}
	})
	runFor(t, d, 100*time.Millisecond)
	defer d.Close()

	if got := d.Stats().Failed; got != 1 {
		t.Fatalf("failed units = %d, want 1", got)
	}
	for _, u := range d.Units() {
		if u.ID() == 2 {
			if !errors.Is(u.Err(), api.ErrTickFailure) {
				t.Errorf("unit 2 err = %v", u.Err())
			}
		} else if u.Err() != nil {
			t.Errorf("unit %d err = %v", u.ID(), u.Err())
		}
	}
}

func TestDriver_MetricsAndProbes(t *testing.T) {
	mr := control.NewMetricsRegistry()
	dp := control.NewDebugProbes()
	d, err := New(testConfig(api.PollTimer, api.LockMutex, api.ScopeProcessWide, 2),
		WithMetrics(mr), WithProbes(dp))
	if err != nil {
		t.Fatal(err)
	}
	runFor(t, d, 60*time.Millisecond)
	defer d.Close()

	if v, ok := mr.Get("latency.count"); !ok || v.(uint64) == 0 {
		t.Errorf("latency.count = %v", v)
	}
	state := dp.DumpState()
	if state["units"] != 2 {
		t.Errorf("units probe = %v", state["units"])
	}
	if state["executor"] == nil {
		t.Error("executor probe empty for a timer run")
	}
}

func TestDriver_StartTwiceAndCloseWhileRunning(t *testing.T) {
	d, err := New(testConfig(api.PollTaskLoop, api.LockMonitor, api.ScopePerInstance, 1))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Start(ctx); !errors.Is(err, api.ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("Close succeeded while units were running")
	}
	cancel()
	d.Wait()
	if err := d.Close(); err != nil {
		t.Errorf("Close after Wait: %v", err)
	}
}

// A pool far smaller than the unit count delays timer ticks but every unit
// still reports on every period.
func TestDriver_TimerUnitsShareSmallPool(t *testing.T) {
	const (
		units  = 200
		period = 20 * time.Millisecond
		run    = 300 * time.Millisecond
	)
	cfg := testConfig(api.PollTimer, api.LockMonitor, api.ScopePerInstance, units)
	cfg.Period = period
	cfg.Work = 0
	cfg.PoolWorkers = 2
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu     sync.Mutex
		byUnit = map[int]int{}
	)
	d.Subscribe(func(m api.Measurement, _ Snapshot) {
		mu.Lock()
		byUnit[m.UnitID]++
		mu.Unlock()
	})
	runFor(t, d, run)
	defer d.Close()

	want := int(run/period) / 2
	mu.Lock()
	defer mu.Unlock()
	for id := 1; id <= units; id++ {
		if byUnit[id] < want {
			t.Errorf("unit %d ticked %d times in %v, want >= %d", id, byUnit[id], run, want)
		}
	}
	if st := d.Stats().Executor; st["rejected_tasks"] != 0 {
		t.Errorf("executor rejected ticks: %v", st)
	}
}
