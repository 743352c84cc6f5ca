// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package schedule fires plain functions on recurring schedules.
//
// Each registration becomes a supervised Trigger service. A trigger calls its
// entrypoint synchronously, so one trigger never overlaps itself; activations
// that fall due while the entrypoint is still running are skipped, not
// queued. Entrypoints know nothing about scheduling and stay directly
// testable.
package schedule

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/marquee/internal/logging"
)

// Fire describes one activation.
type Fire struct {
	Name    string
	At      time.Time
	Startup bool
}

// Entrypoint is the function a trigger calls.
type Entrypoint func(ctx context.Context, fire Fire)

// Adder is the part of a suture supervisor the scheduler needs.
type Adder interface {
	Add(service suture.Service) suture.ServiceToken
}

// Entry describes a registered trigger.
type Entry struct {
	Name         string    `json:"name"`
	Schedule     string    `json:"schedule"`
	RunOnStartup bool      `json:"run_on_startup"`
	Next         time.Time `json:"next_run"`
}

// Scheduler registers triggers with a supervisor.
type Scheduler struct {
	sup Adder
	loc *time.Location
	now func() time.Time

	mu       sync.Mutex
	triggers map[string]*Trigger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates cron specs in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.loc = loc
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler adding its triggers to sup.
func NewScheduler(sup Adder, opts ...Option) *Scheduler {
	s := &Scheduler{
		sup:      sup,
		loc:      time.UTC,
		now:      time.Now,
		triggers: make(map[string]*Trigger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerOption configures a single registration.
type TriggerOption func(*Trigger)

// RunOnStartup fires the entrypoint once as soon as the trigger starts.
func RunOnStartup(enabled bool) TriggerOption {
	return func(t *Trigger) {
		t.runOnStartup = enabled
	}
}

// OnSchedule registers entry to run per spec under name. Names are unique.
func (s *Scheduler) OnSchedule(name, spec string, entry Entrypoint, opts ...TriggerOption) error {
	sched, err := Parse(spec, s.loc)
	if err != nil {
		return fmt.Errorf("schedule for %s: %w", name, err)
	}

	t := NewTrigger(name, sched, entry, s.now, opts...)

	s.mu.Lock()
	if _, dup := s.triggers[name]; dup {
		s.mu.Unlock()
		return fmt.Errorf("trigger %q already registered", name)
	}
	s.triggers[name] = t
	s.mu.Unlock()

	s.sup.Add(t)
	return nil
}

// Entries lists registered triggers sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t.Entry())
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Trigger is a suture service firing one entrypoint on a schedule.
type Trigger struct {
	name         string
	schedule     Schedule
	entry        Entrypoint
	now          func() time.Time
	runOnStartup bool
	logger       zerolog.Logger

	mu   sync.Mutex
	next time.Time
}

// NewTrigger creates a trigger. Most callers use Scheduler.OnSchedule.
func NewTrigger(name string, sched Schedule, entry Entrypoint, now func() time.Time, opts ...TriggerOption) *Trigger {
	if now == nil {
		now = time.Now
	}
	t := &Trigger{
		name:     name,
		schedule: sched,
		entry:    entry,
		now:      now,
		logger:   logging.WithComponent("schedule").With().Str("trigger", name).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Serve implements suture.Service.
func (t *Trigger) Serve(ctx context.Context) error {
	t.logger.Info().
		Str("schedule", t.schedule.String()).
		Bool("run_on_startup", t.runOnStartup).
		Msg("Trigger starting")

	if t.runOnStartup {
		t.fire(ctx, true)
	}

	for {
		next := t.schedule.Next(t.now())
		if next.IsZero() {
			t.logger.Error().Msg("Schedule has no further activations, trigger idle")
			<-ctx.Done()
			return ctx.Err()
		}
		t.setNext(next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info().Msg("Trigger shutting down")
			return ctx.Err()
		case <-timer.C:
			t.fire(ctx, false)
		}
	}
}

func (t *Trigger) fire(ctx context.Context, startup bool) {
	fire := Fire{Name: t.name, At: t.now(), Startup: startup}
	t.logger.Debug().Bool("startup", startup).Msg("Trigger fired")
	t.entry(ctx, fire)
}

func (t *Trigger) setNext(next time.Time) {
	t.mu.Lock()
	t.next = next
	t.mu.Unlock()
}

// Entry describes the trigger's current state.
func (t *Trigger) Entry() Entry {
	t.mu.Lock()
	next := t.next
	t.mu.Unlock()
	if next.IsZero() {
		next = t.schedule.Next(t.now())
	}
	return Entry{
		Name:         t.name,
		Schedule:     t.schedule.String(),
		RunOnStartup: t.runOnStartup,
		Next:         next,
	}
}

// String implements fmt.Stringer for suture logs.
func (t *Trigger) String() string {
	return "trigger:" + t.name
}
