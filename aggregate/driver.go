// File: aggregate/driver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/control"
	"github.com/momentics/pollsync/harness"
	"github.com/momentics/pollsync/internal/concurrency"
	"github.com/momentics/pollsync/lock"
	"github.com/momentics/pollsync/poll"
	"go.uber.org/atomic"
)

// Subscriber receives every measurement and the totals it produced.
// It runs on the reporting unit's tick, concurrently with other units.
type Subscriber func(m api.Measurement, s Snapshot)

// Option customizes the Driver.
type Option func(*Driver)

// WithLogger sets the driver logger, also handed to units and pollers.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics mirrors the running totals into mr.
func WithMetrics(mr *control.MetricsRegistry) Option {
	return func(d *Driver) { d.metrics = mr }
}

// WithProbes registers the driver's debug probes in dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(d *Driver) { d.probes = dp }
}

// Stats is a point-in-time view of a run.
type Stats struct {
	Units    int
	Running  int
	Failed   int64
	Latency  Snapshot
	Executor map[string]int64
}

// Driver owns a run: the units, the timer executor, the process-wide lock
// and the running average they all report into.
type Driver struct {
	cfg     control.RunConfig
	logger  *slog.Logger
	avg     *RunningAverage
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes

	// Created at most once, on the first process-wide unit, and kept until Close.
	sharedOnce sync.Once
	shared     api.Lock
	sharedErr  error

	exec *concurrency.Executor

	mu      sync.Mutex
	subs    []Subscriber
	units   []*harness.Unit
	started atomic.Bool
	failed  atomic.Int64
	running atomic.Int64
	wg      sync.WaitGroup
}

// New validates cfg and prepares a driver. Nothing runs until Start.
func New(cfg control.RunConfig, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := unitConfig(cfg).Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:    cfg,
		logger: slog.Default(),
		avg:    NewRunningAverage(cfg.Window),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.probes != nil {
		d.registerProbes()
	}
	return d, nil
}

// Subscribe adds a measurement subscriber. Call it before Start.
func (d *Driver) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

// Start builds every unit and then starts them all. A construction error
// aborts the run before any unit ticks. Cancelling ctx stops the units;
// with a background context the run lasts until the process exits.
func (d *Driver) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	maxThreads := raiseThreadLimit(threadBudget(d.cfg))
	if d.cfg.Strategy == api.PollTimer {
		d.exec = concurrency.NewExecutor(d.cfg.Workers(), d.cfg.PinThreads)
	}

	units := make([]*harness.Unit, 0, d.cfg.Units)
	for i := 0; i < d.cfg.Units; i++ {
		u, err := d.buildUnit(i + 1)
		if err != nil {
			for _, built := range units {
				_ = built.Close()
			}
			d.abort()
			return fmt.Errorf("build unit %d: %w", i+1, err)
		}
		units = append(units, u)
	}
	d.mu.Lock()
	d.units = units
	d.mu.Unlock()

	d.logger.Info("starting run",
		"poll", d.cfg.Strategy.String(), "lock", d.cfg.Kind.String(), "scope", d.cfg.Scope.String(),
		"units", d.cfg.Units, "period", d.cfg.Period, "work", d.cfg.Work, "max_threads", maxThreads)

	for _, u := range units {
		if err := u.Start(ctx); err != nil {
			return fmt.Errorf("start unit %d: %w", u.ID(), err)
		}
		d.running.Inc()
		d.wg.Add(1)
		go d.watch(u)
	}
	return nil
}

func (d *Driver) buildUnit(id int) (*harness.Unit, error) {
	var shared api.Lock
	if d.cfg.Scope == api.ScopeProcessWide {
		var err error
		if shared, err = d.sharedLock(); err != nil {
			return nil, err
		}
	}
	var pollOpts []poll.Option
	if d.exec != nil {
		pollOpts = append(pollOpts, poll.WithExecutor(d.exec))
	}
	if d.cfg.PinThreads {
		pollOpts = append(pollOpts, poll.WithCPUPinning(id-1))
	}
	u, err := harness.New(id, unitConfig(d.cfg), shared,
		harness.WithLogger(d.logger), harness.WithPollOptions(pollOpts...))
	if err != nil {
		return nil, err
	}
	u.OnMeasurement(d.record)
	return u, nil
}

// unitConfig projects the per-unit part of a run configuration.
func unitConfig(c control.RunConfig) harness.Config {
	return harness.Config{
		Strategy: c.Strategy,
		Kind:     c.Kind,
		Scope:    c.Scope,
		Period:   c.Period,
		Work:     c.Work,
	}
}

// abort releases what Start created before a unit failed to build.
func (d *Driver) abort() {
	if d.exec != nil {
		d.exec.Close()
	}
	if d.shared != nil {
		_ = d.shared.Close()
		d.shared = nil
	}
}

// sharedLock returns the process-wide lock, creating it on first use.
func (d *Driver) sharedLock() (api.Lock, error) {
	d.sharedOnce.Do(func() {
		d.shared, d.sharedErr = lock.New(d.cfg.Kind)
	})
	return d.shared, d.sharedErr
}

// SharedLock returns the process-wide lock, or nil if no unit asked for one.
func (d *Driver) SharedLock() api.Lock {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cfg.Scope != api.ScopeProcessWide || len(d.units) == 0 {
		return nil
	}
	return d.shared
}

// Units returns the units of the run.
func (d *Driver) Units() []*harness.Unit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*harness.Unit(nil), d.units...)
}

// record is every unit's measurement sink.
func (d *Driver) record(m api.Measurement) {
	snap := d.avg.Add(m.Elapsed)
	if d.metrics != nil {
		d.metrics.SetAll(map[string]any{
			"latency.count":     snap.Count,
			"latency.mean_ms":   Milliseconds(snap.Mean()),
			"latency.window_ms": Milliseconds(snap.WindowMean),
			"latency.max_ms":    Milliseconds(snap.Max),
			"latency.last_ms":   Milliseconds(snap.Last),
			"latency.last_unit": m.UnitID,
			"units.failed":      d.failed.Load(),
			"units.running":     d.running.Load(),
		})
	}
	d.mu.Lock()
	subs := d.subs
	d.mu.Unlock()
	for _, fn := range subs {
		fn(m, snap)
	}
}

// watch waits for a unit to stop and accounts for tick failures.
func (d *Driver) watch(u *harness.Unit) {
	defer d.wg.Done()
	<-u.Done()
	d.running.Dec()
	if err := u.Err(); err != nil {
		d.failed.Inc()
		d.logger.Error("unit stopped producing measurements", "unit", u.ID(), "err", err)
	}
}

// Average returns the current running totals.
func (d *Driver) Average() Snapshot { return d.avg.Snapshot() }

// Stats returns a point-in-time view of the run.
func (d *Driver) Stats() Stats {
	s := Stats{
		Units:   len(d.Units()),
		Running: int(d.running.Load()),
		Failed:  d.failed.Load(),
		Latency: d.avg.Snapshot(),
	}
	if d.exec != nil {
		s.Executor = d.exec.Stats()
	}
	return s
}

// Wait blocks until every started unit has stopped.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Close releases the executor and every lock. Units must have stopped.
func (d *Driver) Close() error {
	if d.running.Load() > 0 {
		return api.NewError(api.ErrCodeInternal, "driver still running").
			WithContext("running", d.running.Load())
	}
	if d.exec != nil {
		d.exec.Close()
	}
	var errs []error
	for _, u := range d.Units() {
		errs = append(errs, u.Close())
	}
	if d.shared != nil {
		errs = append(errs, d.shared.Close())
		d.shared = nil
	}
	return errors.Join(errs...)
}

func (d *Driver) registerProbes() {
	d.probes.RegisterProbe("config", func() any { return d.cfg.Snapshot() })
	d.probes.RegisterProbe("units", func() any { return len(d.Units()) })
	d.probes.RegisterProbe("units.running", func() any { return d.running.Load() })
	d.probes.RegisterProbe("units.failed", func() any { return d.failed.Load() })
	d.probes.RegisterProbe("latency", func() any {
		s := d.avg.Snapshot()
		return map[string]any{
			"count":     s.Count,
			"mean_ms":   Milliseconds(s.Mean()),
			"min_ms":    Milliseconds(s.Min),
			"max_ms":    Milliseconds(s.Max),
			"window_ms": Milliseconds(s.WindowMean),
		}
	})
	d.probes.RegisterProbe("executor", func() any {
		if d.exec == nil {
			return nil
		}
		return d.exec.Stats()
	})
}
