// File: report/recorder.go
// Package report persists measurements and renders the end-of-run summary.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package report

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/momentics/pollsync/api"
	"go.uber.org/atomic"
)

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	unit          INTEGER NOT NULL,
	seq           INTEGER NOT NULL,
	started_at_ns INTEGER NOT NULL,
	elapsed_ns    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS measurements_unit ON measurements(unit, seq);
`

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithBuffer sets how many measurements may wait for the writer.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

// WithBatch sets how many rows go into one transaction.
func WithBatch(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithRecorderLogger sets the logger for write errors.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder stores measurements in SQLite from a single writer goroutine.
// Record never blocks a tick: when the buffer is full the row is dropped and counted.
type Recorder struct {
	db      *sql.DB
	in      chan api.Measurement
	done    chan struct{}
	bufSize int
	batch   int
	logger  *slog.Logger

	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// OpenRecorder opens (or creates) the database at path and starts the writer.
func OpenRecorder(path string, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{bufSize: 8192, batch: 512, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: schema: %w", err)
	}
	r.db = db
	r.in = make(chan api.Measurement, r.bufSize)
	r.done = make(chan struct{})
	go r.loop()
	return r, nil
}

// Record queues m for storage.
func (r *Recorder) Record(m api.Measurement) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Inc()
		return
	}
	select {
	case r.in <- m:
	default:
		r.dropped.Inc()
	}
}

// Written returns the number of stored rows.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped returns the number of measurements that never reached the database.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() + r.failed.Load() }

// Close flushes queued measurements and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.in)
	r.mu.Unlock()

	<-r.done
	return r.db.Close()
}

func (r *Recorder) loop() {
	defer close(r.done)
	rows := make([]api.Measurement, 0, r.batch)
	for m := range r.in {
		rows = append(rows[:0], m)
	drain:
		for len(rows) < r.batch {
			select {
			case next, ok := <-r.in:
				if !ok {
					break drain
				}
				rows = append(rows, next)
			default:
				break drain
			}
		}
		if err := r.flush(rows); err != nil {
			r.failed.Add(uint64(len(rows)))
			r.logger.Error("measurement batch lost", "rows", len(rows), "err", err)
			continue
		}
		r.written.Add(uint64(len(rows)))
	}
}

func (r *Recorder) flush(rows []api.Measurement) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO measurements(unit, seq, started_at_ns, elapsed_ns) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, m := range rows {
		if _, err := stmt.Exec(m.UnitID, int64(m.Seq), m.Start.UnixNano(), int64(m.Elapsed)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
