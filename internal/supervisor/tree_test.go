// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeService counts starts and optionally fails its first few runs.
type fakeService struct {
	name     string
	failures int32
	starts   atomic.Int32
	started  chan struct{}
}

func newFakeService(name string, failures int32) *fakeService {
	return &fakeService{name: name, failures: failures, started: make(chan struct{}, 16)}
}

func (f *fakeService) Serve(ctx context.Context) error {
	n := f.starts.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}
	if n <= f.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string { return f.name }

func (f *fakeService) waitStarts(t *testing.T, n int32) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for f.starts.Load() < n {
		select {
		case <-f.started:
		case <-deadline:
			t.Fatalf("%s started %d times, want at least %d", f.name, f.starts.Load(), n)
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ suture.Service = (*fakeService)(nil)

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("NewSupervisorTree() error = %v", err)
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
		}
		if tree.Root() == nil || tree.Jobs() == nil {
			t.Error("supervisors should not be nil")
		}
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
		if tree.config.FailureThreshold != 2 {
			t.Errorf("FailureThreshold = %v, want 2", tree.config.FailureThreshold)
		}
		if tree.config.ShutdownTimeout != time.Second {
			t.Errorf("ShutdownTimeout = %v, want 1s", tree.config.ShutdownTimeout)
		}
	})
}

func TestSupervisorTreeLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := newFakeService("data", 0)
	job := newFakeService("job", 0)
	api := newFakeService("api", 0)
	tree.AddDataService(data)
	tree.AddJobService(job)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	data.waitStarts(t, 1)
	job.waitStarts(t, 1)
	api.waitStarts(t, 1)

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
}

func TestSupervisorTreeRestartsFailingJob(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newFakeService("flaky-job", 2)
	stable := newFakeService("api", 0)
	tree.AddJobService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	failing.waitStarts(t, 3)
	if n := stable.starts.Load(); n != 1 {
		t.Errorf("stable service started %d times, want 1", n)
	}

	cancel()
	<-errCh
}

func TestSupervisorTreeRemoveJobService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	job := newFakeService("job", 0)
	token := tree.AddJobService(job)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	job.waitStarts(t, 1)

	if err := tree.RemoveJobService(token); err != nil {
		t.Errorf("RemoveJobService() error = %v", err)
	}

	cancel()
	<-errCh
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.FailureDecay != 30.0 {
		t.Errorf("failure params = %v/%v, want 5/30", cfg.FailureThreshold, cfg.FailureDecay)
	}
	if cfg.FailureBackoff != 15*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("durations = %v/%v, want 15s/10s", cfg.FailureBackoff, cfg.ShutdownTimeout)
	}
}
