// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/internal/concurrency"
)

var allStrategies = []api.PollStrategy{
	api.PollTimer, api.PollTaskLoop, api.PollThread, api.PollThreadRecreate,
}

func waitDone(t *testing.T, p api.Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("%s poller did not stop", p.Strategy())
	}
}

func TestNew_UnsupportedStrategy(t *testing.T) {
	p, err := New(api.PollStrategy(42))
	if p != nil || !errors.Is(err, api.ErrUnsupportedStrategy) {
		t.Fatalf("New(42) = %v, %v; want nil, ErrUnsupportedStrategy", p, err)
	}
}

func TestStart_Twice(t *testing.T) {
	for _, s := range allStrategies {
		p, err := New(s)
		if err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := p.Start(ctx, 10*time.Millisecond); err != nil {
			t.Fatalf("%s: first Start: %v", s, err)
		}
		if err := p.Start(ctx, 10*time.Millisecond); !errors.Is(err, api.ErrAlreadyStarted) {
			t.Errorf("%s: second Start = %v, want ErrAlreadyStarted", s, err)
		}
		cancel()
		waitDone(t, p)
		if p.Err() != nil {
			t.Errorf("%s: Err after cancel = %v, want nil", s, p.Err())
		}
	}
}

// Ticks of one poller never overlap and their timestamps increase.
func TestSequentialTicks(t *testing.T) {
	ex := concurrency.NewExecutor(4, false)
	defer ex.Close()

	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			p, err := New(s, WithExecutor(ex))
			if err != nil {
				t.Fatal(err)
			}
			var (
				inside  int32
				overlap int32
				mu      sync.Mutex
				stamps  []time.Time
			)
			p.OnPoll(func() {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
				time.Sleep(3 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
			})
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			if err := p.Start(ctx, 2*time.Millisecond); err != nil {
				t.Fatal(err)
			}
			waitDone(t, p)

			if overlap != 0 {
				t.Error("two ticks of one poller overlapped")
			}
			mu.Lock()
			defer mu.Unlock()
			if len(stamps) < 5 {
				t.Fatalf("only %d ticks in 200ms", len(stamps))
			}
			for i := 1; i < len(stamps); i++ {
				if !stamps[i].After(stamps[i-1]) {
					t.Fatalf("tick %d at %v not after tick %d at %v", i, stamps[i], i-1, stamps[i-1])
				}
			}
		})
	}
}

func TestSubscribersRunInRegistrationOrder(t *testing.T) {
	p, _ := New(api.PollTaskLoop)
	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		p.OnPoll(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.OnPoll(cancel)
	_ = p.Start(ctx, time.Hour)
	waitDone(t, p)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

// A panicking tick stops its poller for good and is reported through Err.
func TestTickFailureIsFailStop(t *testing.T) {
	for _, s := range allStrategies {
		t.Run(s.String(), func(t *testing.T) {
			p, _ := New(s)
			var calls int32
			p.OnPoll(func() {
				if atomic.AddInt32(&calls, 1) == 3 {
					panic("tick exploded")
				}
			})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_ = p.Start(ctx, 2*time.Millisecond)
			waitDone(t, p)

			if !errors.Is(p.Err(), api.ErrTickFailure) {
				t.Fatalf("Err = %v, want ErrTickFailure", p.Err())
			}
			time.Sleep(30 * time.Millisecond)
			if got := atomic.LoadInt32(&calls); got != 3 {
				t.Errorf("callbacks after failure: calls = %d, want 3", got)
			}
		})
	}
}

func TestThreadRecreate_Liveness(t *testing.T) {
	p, _ := New(api.PollThreadRecreate)
	var n int32
	p.OnPoll(func() { atomic.AddInt32(&n, 1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Start(ctx, 50*time.Millisecond)
	waitDone(t, p)

	if got := atomic.LoadInt32(&n); got < 10 {
		t.Fatalf("ticks in 1s = %d, want >= 10", got)
	}
	rp := p.(*ThreadRecreate)
	if rp.Spawned() < rp.Ticks() {
		t.Errorf("spawned %d workers for %d ticks; each tick needs its own", rp.Spawned(), rp.Ticks())
	}
}

func TestTimer_SkipsOverlappingTicks(t *testing.T) {
	p, _ := New(api.PollTimer)
	var inside, overlap int32
	p.OnPoll(func() {
		if atomic.AddInt32(&inside, 1) > 1 {
			atomic.StoreInt32(&overlap, 1)
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inside, -1)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_ = p.Start(ctx, 2*time.Millisecond)
	waitDone(t, p)

	if overlap != 0 {
		t.Error("timer ran overlapping ticks")
	}
	if p.(*Timer).Skipped() == 0 {
		t.Error("expected skipped ticks while the callback outlasts the period")
	}
}

func TestTimer_FirstTickIsImmediate(t *testing.T) {
	p, _ := New(api.PollTimer)
	fired := make(chan time.Time, 1)
	p.OnPoll(func() {
		select {
		case fired <- time.Now():
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := time.Now()
	_ = p.Start(ctx, time.Hour)
	select {
	case at := <-fired:
		if at.Sub(start) > 500*time.Millisecond {
			t.Errorf("first tick after %v", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never fired")
	}
}
