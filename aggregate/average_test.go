// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package aggregate

import (
	"sync"
	"testing"
	"time"
)

func TestRunningAverage_ThreeConcurrentSources(t *testing.T) {
	r := NewRunningAverage(0)
	var wg sync.WaitGroup
	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			r.Add(d)
		}(d)
	}
	wg.Wait()

	s := r.Snapshot()
	if s.Count != 3 || s.Sum != 60*time.Millisecond || s.Mean() != 20*time.Millisecond {
		t.Fatalf("count=%d sum=%v mean=%v; want 3, 60ms, 20ms", s.Count, s.Sum, s.Mean())
	}
	if s.Min != 10*time.Millisecond || s.Max != 30*time.Millisecond {
		t.Errorf("min=%v max=%v", s.Min, s.Max)
	}
}

// No update may be lost however the writers interleave.
func TestRunningAverage_NoLostUpdates(t *testing.T) {
	const writers, perWriter = 64, 500
	r := NewRunningAverage(10)
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 1; w <= writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r.Add(time.Duration(w) * time.Microsecond)
			}
		}(w)
	}
	wg.Wait()

	var want time.Duration
	for w := 1; w <= writers; w++ {
		want += time.Duration(w*perWriter) * time.Microsecond
	}
	s := r.Snapshot()
	if s.Count != writers*perWriter {
		t.Errorf("count = %d, want %d", s.Count, writers*perWriter)
	}
	if s.Sum != want {
		t.Errorf("sum = %v, want %v", s.Sum, want)
	}
	if s.WindowLen != 10 {
		t.Errorf("window length = %d, want 10", s.WindowLen)
	}
}

func TestRunningAverage_WindowSlides(t *testing.T) {
	r := NewRunningAverage(2)
	r.Add(100 * time.Millisecond)
	r.Add(2 * time.Millisecond)
	s := r.Add(4 * time.Millisecond)

	if s.WindowLen != 2 || s.WindowMean != 3*time.Millisecond {
		t.Errorf("window len=%d mean=%v; want 2, 3ms", s.WindowLen, s.WindowMean)
	}
	if s.Last != 4*time.Millisecond {
		t.Errorf("last = %v", s.Last)
	}
	if got := (Snapshot{}).Mean(); got != 0 {
		t.Errorf("empty mean = %v", got)
	}
}

func TestMilliseconds(t *testing.T) {
	if got := Milliseconds(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("Milliseconds(1.5ms) = %v", got)
	}
}
