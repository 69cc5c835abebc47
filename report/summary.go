// File: report/summary.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package report

import (
	"fmt"
	"io"
	"time"

	"github.com/momentics/pollsync/aggregate"
	"github.com/momentics/pollsync/control"
	"github.com/sugawarayuuta/sonnet"
)

// Summary is the machine-readable result of one run.
type Summary struct {
	Poll         string         `json:"poll"`
	Lock         string         `json:"lock"`
	Scope        string         `json:"scope"`
	Units        int            `json:"units"`
	PeriodMs     int64          `json:"period_ms"`
	WorkMs       int64          `json:"work_ms"`
	RunSeconds   float64        `json:"run_seconds"`
	Count        uint64         `json:"count"`
	MeanMs       float64        `json:"mean_ms"`
	MinMs        float64        `json:"min_ms"`
	MaxMs        float64        `json:"max_ms"`
	WindowMeanMs float64        `json:"window_mean_ms"`
	FailedUnits  int64          `json:"failed_units"`
	Recorded     uint64         `json:"recorded,omitempty"`
	Dropped      uint64         `json:"dropped,omitempty"`
	Probes       map[string]any `json:"probes,omitempty"`
}

// NewSummary builds a summary from the run configuration and final stats.
func NewSummary(cfg control.RunConfig, st aggregate.Stats, ran time.Duration) Summary {
	return Summary{
		Poll:         cfg.Strategy.String(),
		Lock:         cfg.Kind.String(),
		Scope:        cfg.Scope.String(),
		Units:        cfg.Units,
		PeriodMs:     cfg.Period.Milliseconds(),
		WorkMs:       cfg.Work.Milliseconds(),
		RunSeconds:   ran.Seconds(),
		Count:        st.Latency.Count,
		MeanMs:       aggregate.Milliseconds(st.Latency.Mean()),
		MinMs:        aggregate.Milliseconds(st.Latency.Min),
		MaxMs:        aggregate.Milliseconds(st.Latency.Max),
		WindowMeanMs: aggregate.Milliseconds(st.Latency.WindowMean),
		FailedUnits:  st.Failed,
	}
}

// WriteSummary encodes s as one JSON document followed by a newline.
func WriteSummary(w io.Writer, s Summary) error {
	b, err := sonnet.Marshal(s)
	if err != nil {
		return fmt.Errorf("report: encode summary: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("report: write summary: %w", err)
	}
	return nil
}
