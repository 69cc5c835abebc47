// File: cmd/pollsync/printer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/momentics/pollsync/aggregate"
	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/control"
	"github.com/momentics/pollsync/report"
)

const stampLayout = "2006-01-02 15:04:05.000"

// printer serializes output lines from concurrently reporting units.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) measurement(m api.Measurement, s aggregate.Snapshot) {
	now := m.End.Format(stampLayout)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s call takes %.3f milliseconds\n", now, aggregate.Milliseconds(m.Elapsed))
	fmt.Fprintf(p.out, "%s average %.3f milliseconds\n", now, aggregate.Milliseconds(s.Mean()))
}

// progress prints one line per interval from the metrics registry.
func (p *printer) progress(ctx context.Context, mr *control.MetricsRegistry, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := mr.GetSnapshot()
			count, _ := snap["latency.count"].(uint64)
			mean, _ := snap["latency.mean_ms"].(float64)
			window, _ := snap["latency.window_ms"].(float64)
			failed, _ := snap["units.failed"].(int64)
			p.mu.Lock()
			fmt.Fprintf(p.out, "%s %s calls, average %.3f ms, recent %.3f ms, failed units %d\n",
				time.Now().Format(stampLayout), humanize.Comma(int64(count)), mean, window, failed)
			p.mu.Unlock()
		}
	}
}

func (p *printer) final(s report.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s calls from %s units in %.1fs: average %.3f ms, min %.3f ms, max %.3f ms\n",
		humanize.Comma(int64(s.Count)), humanize.Comma(int64(s.Units)), s.RunSeconds, s.MeanMs, s.MinMs, s.MaxMs)
	if s.FailedUnits > 0 {
		fmt.Fprintf(p.out, "%d units stopped after a tick failure\n", s.FailedUnits)
	}
	if s.Recorded > 0 || s.Dropped > 0 {
		fmt.Fprintf(p.out, "recorded %s measurements, dropped %s\n",
			humanize.Comma(int64(s.Recorded)), humanize.Comma(int64(s.Dropped)))
	}
}
