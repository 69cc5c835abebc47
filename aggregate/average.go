// File: aggregate/average.go
// Package aggregate runs many harness units and folds their latencies together.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package aggregate

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Snapshot is a consistent copy of the accumulator.
type Snapshot struct {
	Count      uint64
	Sum        time.Duration
	Min        time.Duration
	Max        time.Duration
	Last       time.Duration
	WindowLen  int
	WindowMean time.Duration
}

// Mean returns Sum/Count, or zero before the first sample.
func (s Snapshot) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// RunningAverage accumulates latencies reported concurrently by many units.
// Each Add is applied in full before the next one starts.
type RunningAverage struct {
	mu       sync.Mutex
	count    uint64
	sum      time.Duration
	min, max time.Duration
	last     time.Duration

	window    *queue.Queue // most recent samples, oldest first
	windowCap int
	windowSum time.Duration
}

// NewRunningAverage keeps the last window samples for a moving mean; 0 disables it.
func NewRunningAverage(window int) *RunningAverage {
	r := &RunningAverage{windowCap: window}
	if window > 0 {
		r.window = queue.New()
	}
	return r
}

// Add folds d into the totals and returns the state right after it.
func (r *RunningAverage) Add(d time.Duration) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	r.sum += d
	r.last = d
	if r.count == 1 || d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
	if r.window != nil {
		r.window.Add(d)
		r.windowSum += d
		if r.window.Length() > r.windowCap {
			r.windowSum -= r.window.Remove().(time.Duration)
		}
	}
	return r.snapshotLocked()
}

// Snapshot returns the current totals.
func (r *RunningAverage) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *RunningAverage) snapshotLocked() Snapshot {
	s := Snapshot{
		Count: r.count,
		Sum:   r.sum,
		Min:   r.min,
		Max:   r.max,
		Last:  r.last,
	}
	if r.window != nil && r.window.Length() > 0 {
		s.WindowLen = r.window.Length()
		s.WindowMean = r.windowSum / time.Duration(s.WindowLen)
	}
	return s
}

// Milliseconds converts d to fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
