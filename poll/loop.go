// File: poll/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poll

import (
	"context"
	"runtime"
	"time"

	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/internal/concurrency"
)

// TaskLoop runs invoke-then-sleep on one goroutine scheduled by the Go runtime.
type TaskLoop struct {
	base
}

// newTaskLoop returns an unstarted task loop poller.
func newTaskLoop(o options) *TaskLoop {
	p := &TaskLoop{}
	p.init(api.PollTaskLoop, o)
	return p
}

func (p *TaskLoop) Start(ctx context.Context, period time.Duration) error {
	if err := p.begin(); err != nil {
		return err
	}
	go p.loop(ctx, period)
	return nil
}

// Thread runs the same loop on a goroutine that owns one OS thread for its life.
type Thread struct {
	base
	pinSlot int
}

// newThread returns an unstarted dedicated-thread poller.
func newThread(o options) *Thread {
	p := &Thread{pinSlot: o.pinSlot}
	p.init(api.PollThread, o)
	return p
}

func (p *Thread) Start(ctx context.Context, period time.Duration) error {
	if err := p.begin(); err != nil {
		return err
	}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		pinThread(&p.base, p.pinSlot)
		p.loop(ctx, period)
	}()
	return nil
}

func pinThread(b *base, slot int) {
	if slot < 0 {
		return
	}
	if err := concurrency.PinCurrentThread(slot); err != nil {
		b.logger.Warn("cpu pinning failed", "slot", slot, "err", err)
	}
}
