// File: poll/poll.go
// Package poll implements the periodic wake-up strategies that drive a harness.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Four strategies share one contract (api.Poller) and differ only in what
// executes a tick: a pooled worker behind a ticker, a goroutine loop, a
// goroutine locked to its own OS thread, or a chain of single-tick workers
// each on a fresh OS thread.
//
// A panic escaping a subscriber stops that poller for good. It is logged and
// exposed through Err, never retried.

package poll

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
)

// Option customizes poller construction.
type Option func(*options)

type options struct {
	exec    api.Executor
	logger  *slog.Logger
	pinSlot int // CPU slot for thread-backed pollers, -1 disables pinning
}

// WithExecutor makes timer pollers run their ticks on exec.
func WithExecutor(exec api.Executor) Option {
	return func(o *options) { o.exec = exec }
}

// WithLogger sets the logger used to report tick failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCPUPinning pins thread-backed pollers to CPU slot (mod NumCPU).
func WithCPUPinning(slot int) Option {
	return func(o *options) { o.pinSlot = slot }
}

// New builds a poller for the given strategy.
func New(strategy api.PollStrategy, opts ...Option) (api.Poller, error) {
	o := options{logger: slog.Default(), pinSlot: -1}
	for _, opt := range opts {
		opt(&o)
	}
	switch strategy {
	case api.PollTimer:
		return newTimer(o), nil
	case api.PollTaskLoop:
		return newTaskLoop(o), nil
	case api.PollThread:
		return newThread(o), nil
	case api.PollThreadRecreate:
		return newThreadRecreate(o), nil
	default:
		return nil, api.NewError(api.ErrCodeUnsupportedStrategy, "unsupported poll strategy").
			WithContext("strategy", strategy.String())
	}
}

// base carries the subscriber list and lifecycle shared by all strategies.
type base struct {
	strategy api.PollStrategy
	logger   *slog.Logger

	mu   sync.Mutex
	subs []func()
	err  error

	started  atomic.Bool
	ticks    atomic.Uint64
	done     chan struct{}
	doneOnce sync.Once
}

func (b *base) init(strategy api.PollStrategy, o options) {
	b.strategy = strategy
	b.logger = o.logger.With("strategy", strategy.String())
	b.done = make(chan struct{})
}

func (b *base) OnPoll(fn func()) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

func (b *base) Strategy() api.PollStrategy { return b.strategy }

func (b *base) Done() <-chan struct{} { return b.done }

func (b *base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Ticks returns the number of completed ticks.
func (b *base) Ticks() uint64 { return b.ticks.Load() }

func (b *base) begin() error {
	if !b.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyStarted
	}
	return nil
}

// tick runs every subscriber once, converting a panic into a tick failure.
func (b *base) tick() (err error) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = api.TickFailure(b.strategy, r)
		}
	}()
	for _, fn := range subs {
		fn()
	}
	b.ticks.Inc()
	return nil
}

// finish records why the poller stopped and closes Done. Only the first call counts.
func (b *base) finish(err error) {
	b.doneOnce.Do(func() {
		if err != nil {
			b.logger.Error("poller stopped after unhandled tick failure",
				"err", err, "ticks", b.ticks.Load())
		}
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	})
}

// loop is the sequential invoke-then-sleep body of the looping strategies.
func (b *base) loop(ctx context.Context, period time.Duration) {
	for {
		if ctx.Err() != nil {
			b.finish(nil)
			return
		}
		if err := b.tick(); err != nil {
			b.finish(err)
			return
		}
		if !sleep(ctx, period) {
			b.finish(nil)
			return
		}
	}
}

// sleep blocks for d or until ctx is done; it reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
