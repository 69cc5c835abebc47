// File: poll/recreate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poll

import (
	"context"
	"runtime"
	"time"

	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
)

// ThreadRecreate runs each tick on a brand-new worker. A worker locks its OS
// thread, ticks, sleeps, spawns its successor and exits while still locked,
// which makes the runtime terminate that thread. The next tick therefore pays
// for thread creation every time.
//
// The worker states cycle Running -> Completed -> (spawn) Running and never
// reach a terminal state unless the context ends or a tick fails.
type ThreadRecreate struct {
	base
	pinSlot int
	spawned atomic.Uint64
}

func newThreadRecreate(o options) *ThreadRecreate {
	p := &ThreadRecreate{pinSlot: o.pinSlot}
	p.init(api.PollThreadRecreate, o)
	return p
}

func (p *ThreadRecreate) Start(ctx context.Context, period time.Duration) error {
	if err := p.begin(); err != nil {
		return err
	}
	p.spawn(ctx, period)
	return nil
}

// Spawned returns how many single-tick workers have been created.
func (p *ThreadRecreate) Spawned() uint64 { return p.spawned.Load() }

func (p *ThreadRecreate) spawn(ctx context.Context, period time.Duration) {
	p.spawned.Inc()
	go p.work(ctx, period)
}

func (p *ThreadRecreate) work(ctx context.Context, period time.Duration) {
	// Never unlocked: the OS thread exits with this goroutine.
	runtime.LockOSThread()
	pinThread(&p.base, p.pinSlot)

	if ctx.Err() != nil {
		p.finish(nil)
		return
	}
	if err := p.tick(); err != nil {
		p.finish(err)
		return
	}
	if !sleep(ctx, period) {
		p.finish(nil)
		return
	}
	p.spawn(ctx, period)
}
