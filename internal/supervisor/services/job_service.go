// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/schedule"
)

// ErrNotServing is returned by Submit when the service is not running.
var ErrNotServing = errors.New("job service is not running")

// JobRunner executes one run of a job. Satisfied by *batch.Runner.
type JobRunner interface {
	Run(ctx context.Context, job batch.Job, trigger batch.Trigger) (*batch.Report, error)
}

// JobService owns one job's entrypoint.
//
// Fire is the schedule.Entrypoint registered with the scheduler. Submit
// queues a manual run that executes on the service's own goroutine, so a
// manual run outlives the HTTP request that asked for it and is canceled
// with the tree. Both paths go through Run, which refuses to start while
// another run of the same job is in progress in this process; the runner's
// lock covers other processes.
type JobService struct {
	runner  JobRunner
	job     batch.Job
	timeout time.Duration
	logger  zerolog.Logger

	running atomic.Bool
	serving atomic.Bool
	queued  chan struct{}

	mu   sync.RWMutex
	last *batch.Report
}

// JobServiceOption configures a JobService.
type JobServiceOption func(*JobService)

// WithRunTimeout bounds each run. Zero means no bound.
func WithRunTimeout(d time.Duration) JobServiceOption {
	return func(s *JobService) {
		s.timeout = d
	}
}

// NewJobService creates a service for job.
func NewJobService(runner JobRunner, job batch.Job, opts ...JobServiceOption) *JobService {
	s := &JobService{
		runner: runner,
		job:    job,
		logger: logging.WithComponent("jobs").With().Str("job", job.Name()).Logger(),
		queued: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the job's name.
func (s *JobService) Name() string {
	return s.job.Name()
}

// Running reports whether a run is in progress in this process.
func (s *JobService) Running() bool {
	return s.running.Load()
}

// LastReport returns the most recent report produced through this service,
// or nil.
func (s *JobService) LastReport() *batch.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run executes the job once in the caller's goroutine.
func (s *JobService) Run(ctx context.Context, trigger batch.Trigger) (*batch.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordJobSkipped(s.job.Name())
		return nil, batch.ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.runner.Run(ctx, s.job, trigger)
	if report != nil && report.Status != batch.StatusSkipped {
		s.mu.Lock()
		s.last = report
		s.mu.Unlock()
	}
	return report, err
}

// Fire implements schedule.Entrypoint.
func (s *JobService) Fire(ctx context.Context, fire schedule.Fire) {
	trigger := batch.TriggerSchedule
	if fire.Startup {
		trigger = batch.TriggerStartup
	}
	s.runAndLog(ctx, trigger)
}

// Submit queues a manual run. It returns batch.ErrAlreadyRunning when a run
// is in progress or already queued.
func (s *JobService) Submit() error {
	if !s.serving.Load() {
		return ErrNotServing
	}
	if s.running.Load() {
		return batch.ErrAlreadyRunning
	}
	select {
	case s.queued <- struct{}{}:
		return nil
	default:
		return batch.ErrAlreadyRunning
	}
}

// Serve implements suture.Service. It executes submitted manual runs until
// ctx is canceled.
func (s *JobService) Serve(ctx context.Context) error {
	s.serving.Store(true)
	defer s.serving.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queued:
			s.runAndLog(ctx, batch.TriggerManual)
		}
	}
}

func (s *JobService) runAndLog(ctx context.Context, trigger batch.Trigger) {
	report, err := s.Run(ctx, trigger)
	switch {
	case errors.Is(err, batch.ErrAlreadyRunning):
		s.logger.Info().Str("trigger", string(trigger)).Msg("Run already in progress, trigger skipped")
	case err != nil:
		s.logger.Error().Err(err).Str("trigger", string(trigger)).Msg("Job run failed")
	case report != nil && report.Failed > 0:
		s.logger.Warn().
			Int("failed", report.Failed).
			Str("run_id", report.RunID).
			Msg("Job run finished with failures")
	}
}

// String implements fmt.Stringer for suture logs.
func (s *JobService) String() string {
	return "job:" + s.job.Name()
}
