// Package api
// Author: momentics
//
// Poll scheduler contract: periodic wake-up of registered callbacks.

package api

import (
	"context"
	"time"
)

// Poller repeatedly invokes its subscribers at an approximate period.
// Ticks of one Poller never overlap. There is no Stop: cancel the context
// passed to Start, or let the process exit.
type Poller interface {
	// OnPoll registers a callback. All callbacks run on every tick, in registration order.
	OnPoll(fn func())

	// Start begins ticking. It may be called once.
	Start(ctx context.Context, period time.Duration) error

	// Strategy reports which scheduling strategy drives this poller.
	Strategy() PollStrategy

	// Done is closed once the poller stops ticking for good.
	Done() <-chan struct{}

	// Err returns the tick failure that stopped the poller, or nil.
	Err() error
}
