// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/lock"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/store"
)

// Config tunes how a Runner walks ids.
type Config struct {
	// Workers is the number of ids processed at once. 1 keeps the id
	// source's order.
	Workers int

	// ItemsPerSecond paces item starts. Zero disables pacing.
	ItemsPerSecond float64

	// MaxFailedIDs caps Report.FailedIDs.
	MaxFailedIDs int
}

// DefaultConfig returns a sequential, unpaced configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      1,
		MaxFailedIDs: 100,
	}
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder persists every finished report.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes jobs against a store.
type Runner struct {
	store    store.Store
	locker   lock.Locker
	recorder Recorder
	cfg      Config
	now      func() time.Time
}

// NewRunner creates a runner. The locker makes runs of the same job
// mutually exclusive.
func NewRunner(st store.Store, locker lock.Locker, cfg Config, opts ...Option) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxFailedIDs < 0 {
		cfg.MaxFailedIDs = 0
	}
	r := &Runner{
		store:  st,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tally accumulates item outcomes across workers.
type tally struct {
	mu        sync.Mutex
	max       int
	processed int
	updated   int
	unchanged int
	failed    int
	failedIDs []int64
}

func (t *tally) add(id int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	switch {
	case err == nil:
		t.updated++
	case errors.Is(err, ErrNoChange):
		t.unchanged++
	default:
		t.failed++
		if len(t.failedIDs) < t.max {
			t.failedIDs = append(t.failedIDs, id)
		}
	}
}

// Run executes one run of job. It returns ErrAlreadyRunning with a skipped
// report when the job is locked, and a non-nil error with a failed report
// when the id source fails or ctx is canceled. Per-id failures never produce
// an error; they are logged and counted.
func (r *Runner) Run(ctx context.Context, job Job, trigger Trigger) (*Report, error) {
	name := job.Name()
	report := &Report{
		RunID:     logging.GenerateRunID(),
		Job:       name,
		Trigger:   trigger,
		StartedAt: r.now().UTC(),
	}

	ctx = logging.ContextWithRunID(ctx, report.RunID)
	ctx = logging.ContextWithLogger(ctx, logging.With().Str("job", name).Logger())
	logger := logging.Ctx(ctx)

	lease, err := r.locker.Acquire(ctx, "job:"+name)
	if err != nil {
		report.FinishedAt = r.now().UTC()
		if errors.Is(err, lock.ErrHeld) {
			report.Status = StatusSkipped
			report.Error = ErrAlreadyRunning.Error()
			metrics.RecordJobSkipped(name)
			logger.Warn().Str("trigger", string(trigger)).Msg("Job already running, skipping trigger")
			r.record(ctx, report)
			return report, ErrAlreadyRunning
		}
		report.Status = StatusFailed
		report.Error = err.Error()
		r.finish(ctx, report)
		return report, fmt.Errorf("acquire lock for %s: %w", name, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Failed to release job lock")
		}
	}()

	logger.Info().Str("trigger", string(trigger)).Msg("Job run started")
	metrics.RecordJobStart(name)

	t := &tally{max: r.cfg.MaxFailedIDs}
	runErr := r.walk(ctx, job, t)

	report.FinishedAt = r.now().UTC()
	report.Processed = t.processed
	report.Updated = t.updated
	report.Unchanged = t.unchanged
	report.Failed = t.failed
	report.FailedIDs = t.failedIDs

	switch {
	case runErr != nil:
		report.Status = StatusFailed
		report.Error = runErr.Error()
	case t.failed > 0:
		report.Status = StatusPartial
	default:
		report.Status = StatusSucceeded
	}

	r.finish(ctx, report)
	return report, runErr
}

// walk drains the id source, dispatching each id to processItem.
func (r *Runner) walk(ctx context.Context, job Job, t *tally) error {
	var limiter *rate.Limiter
	if r.cfg.ItemsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.ItemsPerSecond), 1)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	var runErr error
	for id, err := range job.IDs(ctx, r.store) {
		if err != nil {
			runErr = fmt.Errorf("enumerate %s ids: %w", job.Name(), err)
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}

		if r.cfg.Workers == 1 {
			t.add(id, r.processItem(ctx, job, id))
			continue
		}
		g.Go(func() error {
			t.add(id, r.processItem(ctx, job, id))
			return nil
		})
	}

	// in-flight items always finish before the run reports
	_ = g.Wait()

	if runErr != nil {
		logging.Ctx(ctx).Error().Err(runErr).Msg("Job run aborted")
	}
	return runErr
}

// processItem runs one id in its own unit of work.
func (r *Runner) processItem(ctx context.Context, job Job, id int64) error {
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		return job.Update(ctx, tx, id)
	})

	switch {
	case err == nil, errors.Is(err, ErrNoChange):
	default:
		event := logging.Ctx(ctx).Error().Err(err).Int64("id", id)
		var pe *PanicError
		if errors.As(err, &pe) {
			event = event.Bytes("stack", pe.Stack)
		}
		event.Msg("Item update failed")
	}
	return err
}

func (r *Runner) finish(ctx context.Context, report *Report) {
	metrics.RecordJobRun(report.Job, string(report.Status), report.Duration(),
		report.Updated, report.Unchanged, report.Failed)

	logging.Ctx(ctx).Info().
		Str("status", string(report.Status)).
		Int("processed", report.Processed).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Dur("duration", report.Duration()).
		Msg("Job run finished")

	r.record(ctx, report)
}

// record hands report to the recorder, if any. Recorder failures are logged.
func (r *Runner) record(ctx context.Context, report *Report) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record run report")
	}
}
