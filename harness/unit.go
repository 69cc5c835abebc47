// File: harness/unit.go
// Package harness glues one poller to one lock and measures every tick.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package harness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/lock"
	"github.com/momentics/pollsync/poll"
	"go.uber.org/atomic"
)

// Config is the immutable per-unit configuration.
type Config struct {
	Strategy api.PollStrategy
	Kind     api.LockKind
	Scope    api.LockScope
	Period   time.Duration // nominal delay between ticks
	Work     time.Duration // time spent holding the lock per tick
}

// Validate rejects unknown enums and negative durations.
func (c Config) Validate() error {
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
	return nil
}

// Option customizes unit construction.
type Option func(*Unit)

// WithPollOptions forwards options to the poller factory.
func WithPollOptions(opts ...poll.Option) Option {
	return func(u *Unit) { u.pollOpts = append(u.pollOpts, opts...) }
}

// WithLogger sets the unit logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Unit) {
		if l != nil {
			u.logger = l
		}
	}
}

// Unit is one poller driving enter, hold, exit on one lock.
type Unit struct {
	id       int
	cfg      Config
	poller   api.Poller
	lk       api.Lock
	ownsLock bool
	logger   *slog.Logger
	pollOpts []poll.Option

	mu        sync.Mutex
	reporters []func(api.Measurement)
	seq       atomic.Uint64
}

// New builds a unit. A PerInstance unit creates its own lock; a ProcessWide
// unit uses shared, which must be non-nil and of the configured kind.
// Nothing is started here, so a configuration error never leaves a running poller.
func New(id int, cfg Config, shared api.Lock, opts ...Option) (*Unit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u := &Unit{id: id, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = u.logger.With("unit", id)

	switch cfg.Scope {
	case api.ScopeProcessWide:
		if shared == nil {
			return nil, api.NewError(api.ErrCodeInvalidConfig, "process-wide scope needs a shared lock").
				WithContext("unit", id)
		}
		if shared.Kind() != cfg.Kind {
			return nil, api.NewError(api.ErrCodeInvalidConfig, "shared lock kind mismatch").
				WithContext("want", cfg.Kind.String()).WithContext("got", shared.Kind().String())
		}
		u.lk = shared
	default:
		lk, err := lock.New(cfg.Kind)
		if err != nil {
			return nil, err
		}
		u.lk, u.ownsLock = lk, true
	}

	p, err := poll.New(cfg.Strategy, append(u.pollOpts, poll.WithLogger(u.logger))...)
	if err != nil {
		u.release()
		return nil, err
	}
	u.poller = p
	u.poller.OnPoll(u.measure)
	return u, nil
}

// ID returns the unit identifier.
func (u *Unit) ID() int { return u.id }

// Lock returns the lock this unit contends on.
func (u *Unit) Lock() api.Lock { return u.lk }

// Poller returns the unit's scheduler.
func (u *Unit) Poller() api.Poller { return u.poller }

// OnMeasurement registers a latency subscriber. Subscribers run on the tick's
// execution context, in registration order.
func (u *Unit) OnMeasurement(fn func(api.Measurement)) {
	if fn == nil {
		return
	}
	u.mu.Lock()
	u.reporters = append(u.reporters, fn)
	u.mu.Unlock()
}

// Start begins ticking. Cancelling ctx stops the unit after its current tick.
func (u *Unit) Start(ctx context.Context) error {
	return u.poller.Start(ctx, u.cfg.Period)
}

// Done is closed when the unit's poller stops.
func (u *Unit) Done() <-chan struct{} { return u.poller.Done() }

// Err reports the tick failure that stopped the unit, if any.
func (u *Unit) Err() error { return u.poller.Err() }

// Ticks returns the number of measurements produced so far.
func (u *Unit) Ticks() uint64 { return u.seq.Load() }

// Close releases a privately owned lock. Call it only after Done.
func (u *Unit) Close() error { return u.release() }

func (u *Unit) release() error {
	if !u.ownsLock {
		return nil
	}
	u.ownsLock = false
	return u.lk.Close()
}

// measure is the tick body: the span covers waiting for the lock, the
// simulated work and the release.
func (u *Unit) measure() {
	start := time.Now()
	u.lk.Enter()
	time.Sleep(u.cfg.Work)
	u.lk.Exit()
	end := time.Now()

	m := api.Measurement{
		UnitID:  u.id,
		Seq:     u.seq.Inc(),
		Start:   start,
		End:     end,
		Elapsed: end.Sub(start),
	}
	u.mu.Lock()
	reporters := u.reporters
	u.mu.Unlock()
	for _, fn := range reporters {
		fn(m)
	}
}
