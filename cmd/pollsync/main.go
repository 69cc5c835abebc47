// File: cmd/pollsync/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package main provides the CLI entry point for pollsync, a benchmark of
// lock enter/exit latency under different polling strategies.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/pollsync/aggregate"
	"github.com/momentics/pollsync/api"
	"github.com/momentics/pollsync/control"
	"github.com/momentics/pollsync/report"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "pollsync",
		Short: "Lock latency benchmark across polling strategies",
		Long: `Pollsync starts many harness units. Each one wakes on a poll strategy
(timer, task loop, dedicated thread, or a thread recreated every tick),
enters a lock, holds it for a simulated work time, exits, and reports how
long the whole bracket took. The running average across all units is printed
as measurements arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newRunCmd(stdout, stderr))
	return root
}

type runFlags struct {
	poll        string
	lock        string
	scope       string
	units       int
	periodMs    int
	workMs      int
	poolWorkers int
	pin         bool
	window      int
	duration    time.Duration
	record      string
	json        bool
	quiet       bool
	logLevel    string
}

func newRunCmd(stdout, stderr io.Writer) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the harness units and stream latencies",
		Long: `Start the configured number of harness units and print every
measurement with the current average. The run lasts until interrupted,
or for --duration when given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(stderr, f.logLevel)
			if err != nil {
				return err
			}
			cfg, err := f.runConfig()
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), logger, stdout, cfg, f)
		},
	}

	def := control.DefaultRunConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.poll, "poll", def.Strategy.String(),
		"Poll strategy: timer (1), task (2), thread (3), thread-recreate (4)")
	flags.StringVar(&f.lock, "lock", def.Kind.String(),
		"Lock kind: monitor (1), mutex (2), semaphore (3), reset-event (4)")
	flags.StringVar(&f.scope, "scope", def.Scope.String(),
		"Lock scope: local (1) per unit, static (2) shared by all units")
	flags.IntVar(&f.units, "units", def.Units,
		"Number of concurrent harness units")
	flags.IntVar(&f.periodMs, "period-ms", int(def.Period.Milliseconds()),
		"Poll period in milliseconds")
	flags.IntVar(&f.workMs, "work-ms", int(def.Work.Milliseconds()),
		"Simulated work inside the lock in milliseconds")
	flags.IntVar(&f.poolWorkers, "pool-workers", 0,
		"Workers running timer ticks (0 = 4 x CPUs)")
	flags.BoolVar(&f.pin, "pin", false,
		"Pin thread-backed pollers and pool workers to CPUs")
	flags.IntVar(&f.window, "window", def.Window,
		"Recent measurements in the moving average (0 disables)")
	flags.DurationVar(&f.duration, "duration", 0,
		"Stop after this long (0 = run until interrupted)")
	flags.StringVar(&f.record, "record", "",
		"SQLite file receiving every measurement")
	flags.BoolVar(&f.json, "json", false,
		"Print a JSON summary when the run ends")
	flags.BoolVar(&f.quiet, "quiet", false,
		"Print a progress line per second instead of every measurement")
	flags.StringVar(&f.logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func (f runFlags) runConfig() (control.RunConfig, error) {
	cfg := control.DefaultRunConfig()
	var err error
	if cfg.Strategy, err = api.ParsePollStrategy(f.poll); err != nil {
		return cfg, err
	}
	if cfg.Kind, err = api.ParseLockKind(f.lock); err != nil {
		return cfg, err
	}
	if cfg.Scope, err = api.ParseLockScope(f.scope); err != nil {
		return cfg, err
	}
	cfg.Units = f.units
	cfg.Period = time.Duration(f.periodMs) * time.Millisecond
	cfg.Work = time.Duration(f.workMs) * time.Millisecond
	cfg.PoolWorkers = f.poolWorkers
	cfg.PinThreads = f.pin
	cfg.Window = f.window
	return cfg, cfg.Validate()
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	cfg control.RunConfig,
	f runFlags,
) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)

	driver, err := aggregate.New(cfg,
		aggregate.WithLogger(logger),
		aggregate.WithMetrics(metrics),
		aggregate.WithProbes(probes),
	)
	if err != nil {
		return err
	}

	var rec *report.Recorder
	if f.record != "" {
		if rec, err = report.OpenRecorder(f.record, report.WithRecorderLogger(logger)); err != nil {
			return err
		}
		driver.Subscribe(func(m api.Measurement, _ aggregate.Snapshot) { rec.Record(m) })
		logger.Info("recording measurements", "path", f.record)
	}

	p := newPrinter(out)
	if !f.quiet {
		driver.Subscribe(p.measurement)
	}

	began := time.Now()
	if err := driver.Start(ctx); err != nil {
		if rec != nil {
			_ = rec.Close()
		}
		return err
	}
	if f.quiet {
		go p.progress(ctx, metrics, time.Second)
	}

	<-ctx.Done()
	logger.Info("stopping run", "reason", context.Cause(ctx))
	driver.Wait()
	ran := time.Since(began)

	var errs []error
	errs = append(errs, driver.Close())
	summary := report.NewSummary(cfg, driver.Stats(), ran)
	if rec != nil {
		errs = append(errs, rec.Close())
		summary.Recorded, summary.Dropped = rec.Written(), rec.Dropped()
	}
	p.final(summary)
	if f.json {
		summary.Probes = probes.DumpState()
		errs = append(errs, report.WriteSummary(out, summary))
	}
	return errors.Join(errs...)
}
