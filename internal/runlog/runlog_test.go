// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package runlog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
)

var _ batch.Recorder = (*Store)(nil)

func openTest(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.InMemory = true
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func report(job string, i int, start time.Time) *batch.Report {
	return &batch.Report{
		RunID:      fmt.Sprintf("run-%02d", i),
		Job:        job,
		Trigger:    batch.TriggerSchedule,
		Status:     batch.StatusSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Processed:  i,
		Updated:    i,
	}
}

func TestStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, Config{})
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		if err := s.Record(ctx, report("movie-average-rating", i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	// a job whose name extends the first one must not bleed into its history
	if err := s.Record(ctx, report("movie-average-rating-v2", 9, base)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	runs, err := s.List(ctx, "movie-average-rating", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(runs))
	}
	for i, want := range []string{"run-03", "run-02", "run-01"} {
		if runs[i].RunID != want {
			t.Errorf("runs[%d].RunID = %s, want %s (newest first)", i, runs[i].RunID, want)
		}
	}
	if runs[0].Processed != 3 || runs[0].Status != batch.StatusSucceeded {
		t.Errorf("decoded report = %+v", runs[0])
	}

	limited, _ := s.List(ctx, "movie-average-rating", 2)
	if len(limited) != 2 {
		t.Errorf("len(List(limit 2)) = %d, want 2", len(limited))
	}

	latest, err := s.Latest(ctx, "movie-average-rating")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.RunID != "run-03" {
		t.Errorf("Latest().RunID = %s, want run-03", latest.RunID)
	}
}

func TestStore_LatestNotFound(t *testing.T) {
	s := openTest(t, Config{})
	if _, err := s.Latest(context.Background(), "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestStore_MaxRunsPerJob(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, Config{MaxRunsPerJob: 3})
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 6; i++ {
		if err := s.Record(ctx, report("user-top-matches", i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	count, err := s.Count(ctx, "user-top-matches")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count() = %d, want 3", count)
	}
	runs, _ := s.List(ctx, "user-top-matches", 0)
	if runs[len(runs)-1].RunID != "run-04" {
		t.Errorf("oldest kept = %s, want run-04", runs[len(runs)-1].RunID)
	}
}

func TestStore_Validation(t *testing.T) {
	s := openTest(t, Config{})
	if err := s.Record(context.Background(), &batch.Report{Job: "x"}); err == nil {
		t.Error("Record() without run id should fail")
	}
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Record(context.Background(), report("j", 1, time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("Record() after close error = %v, want ErrClosed", err)
	}
	if _, err := s.RunGC(); !errors.Is(err, ErrClosed) {
		t.Errorf("RunGC() after close error = %v, want ErrClosed", err)
	}
}

func TestStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Config{Path: dir, Retention: time.Hour})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Record(ctx, report("movie-released-status", 1, time.Now())); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := s.RunGC(); err != nil {
		t.Errorf("RunGC() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	latest, err := reopened.Latest(ctx, "movie-released-status")
	if err != nil {
		t.Fatalf("Latest() after reopen error = %v", err)
	}
	if latest.RunID != "run-01" {
		t.Errorf("RunID = %s, want run-01", latest.RunID)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("Open() without path should fail")
	}
}
