// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Run configuration for a benchmark: the six harness inputs plus the knobs
// added for the executor, pinning and the latency window.

package control

import (
	"time"

	"github.com/momentics/pollsync/api"
)

// Default run parameters.
const (
	DefaultUnits  = 1000
	DefaultPeriod = 500 * time.Millisecond
	DefaultWork   = 10 * time.Millisecond
	DefaultWindow = 100
)

// RunConfig is immutable once a run starts.
type RunConfig struct {
	Strategy api.PollStrategy
	Kind     api.LockKind
	Scope    api.LockScope
	Units    int
	Period   time.Duration
	Work     time.Duration

	PoolWorkers int  // timer executor size; 0 gives one worker per unit
	PinThreads  bool // pin thread-backed pollers round-robin to CPUs
	Window      int  // recent latencies kept for the window mean
}

// DefaultRunConfig returns the stock configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Strategy: api.PollTimer,
		Kind:     api.LockMonitor,
		Scope:    api.ScopePerInstance,
		Units:    DefaultUnits,
		Period:   DefaultPeriod,
		Work:     DefaultWork,
		Window:   DefaultWindow,
	}
}

// Workers resolves the executor size. A timer unit has at most one tick in
// flight, so one worker per unit means no tick ever waits for a worker.
func (c RunConfig) Workers() int {
	if c.PoolWorkers > 0 {
		return c.PoolWorkers
	}
	return c.Units
}

// Validate checks the whole configuration before anything starts.
func (c RunConfig) Validate() error {
	if !c.Strategy.Valid() {
		return api.NewError(api.ErrCodeUnsupportedStrategy, "unsupported poll strategy").
			WithContext("strategy", c.Strategy.String())
	}
	if !c.Kind.Valid() {
		return api.NewError(api.ErrCodeUnsupportedStrategy, "unsupported lock kind").
			WithContext("kind", c.Kind.String())
	}
	if !c.Scope.Valid() {
		return api.NewError(api.ErrCodeInvalidConfig, "unknown lock scope").
			WithContext("scope", c.Scope.String())
	}
	if c.Period < 0 || c.Work < 0 {
		return api.NewError(api.ErrCodeInvalidConfig, "durations must be non-negative").
			WithContext("period", c.Period).WithContext("work", c.Work)
	}
	if c.Units <= 0 {
		return api.NewError(api.ErrCodeInvalidConfig, "unit count must be positive").
			WithContext("units", c.Units)
	}
	if c.PoolWorkers < 0 || c.Window < 0 {
		return api.NewError(api.ErrCodeInvalidConfig, "pool workers and window must be non-negative").
			WithContext("pool_workers", c.PoolWorkers).WithContext("window", c.Window)
	}
	return nil
}

// Snapshot flattens the configuration for debug output.
func (c RunConfig) Snapshot() map[string]any {
	return map[string]any{
		"poll":         c.Strategy.String(),
		"lock":         c.Kind.String(),
		"scope":        c.Scope.String(),
		"units":        c.Units,
		"period_ms":    c.Period.Milliseconds(),
		"work_ms":      c.Work.Milliseconds(),
		"pool_workers": c.Workers(),
		"pin_threads":  c.PinThreads,
		"window":       c.Window,
	}
}
