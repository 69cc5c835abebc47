// File: poll/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poll

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
)

// minTimerPeriod replaces non-positive periods; a ticker cannot run at zero.
const minTimerPeriod = time.Millisecond

// Timer fires on a periodic ticker and runs each tick on a pooled worker.
// The first tick fires immediately. At most one tick is in flight: a tick
// that comes due while the previous one is still queued or running is
// skipped. A busy executor delays a tick; it never drops it.
type Timer struct {
	base
	exec     api.Executor
	inflight atomic.Bool
	running  sync.WaitGroup
	skipped  atomic.Uint64
}

func newTimer(o options) *Timer {
	p := &Timer{exec: o.exec}
	p.init(api.PollTimer, o)
	return p
}

func (p *Timer) Start(ctx context.Context, period time.Duration) error {
	if err := p.begin(); err != nil {
		return err
	}
	if period < minTimerPeriod {
		period = minTimerPeriod
	}
	go p.run(ctx, period)
	return nil
}

// Skipped returns the number of ticks dropped because one was already in flight.
func (p *Timer) Skipped() uint64 { return p.skipped.Load() }

func (p *Timer) run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	p.fire()
	for {
		select {
		case <-ctx.Done():
			p.running.Wait()
			p.finish(nil)
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.fire()
		}
	}
}

func (p *Timer) fire() {
	if !p.inflight.CompareAndSwap(false, true) {
		p.skipped.Inc()
		return
	}
	select {
	case <-p.done:
		p.inflight.Store(false)
		return
	default:
	}
	p.running.Add(1)
	task := func() {
		defer p.running.Done()
		defer p.inflight.Store(false)
		if err := p.tick(); err != nil {
			p.finish(err)
		}
	}
	if p.exec == nil {
		go task()
		return
	}
	if err := p.exec.Submit(task); err != nil {
		p.running.Done()
		p.inflight.Store(false)
		p.logger.Warn("executor refused tick, timer poller stopping", "err", err)
		p.finish(nil)
	}
}
