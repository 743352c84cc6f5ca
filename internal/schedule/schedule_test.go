// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// serve runs sup until the test ends.
func serve(t *testing.T, sup *suture.Supervisor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScheduler_OnSchedule(t *testing.T) {
	sup := suture.NewSimple("test")
	s := NewScheduler(sup)

	var fires atomic.Int32
	err := s.OnSchedule("tick", "@every 20ms", func(_ context.Context, fire Fire) {
		if fire.Name != "tick" || fire.Startup {
			t.Errorf("unexpected fire %+v", fire)
		}
		fires.Add(1)
	})
	if err != nil {
		t.Fatalf("OnSchedule() error = %v", err)
	}

	serve(t, sup)
	waitFor(t, func() bool { return fires.Load() >= 3 })
}

func TestScheduler_RunOnStartup(t *testing.T) {
	sup := suture.NewSimple("test")
	s := NewScheduler(sup)

	startup := make(chan Fire, 1)
	err := s.OnSchedule("boot", "@every 1h", func(_ context.Context, fire Fire) {
		startup <- fire
	}, RunOnStartup(true))
	if err != nil {
		t.Fatalf("OnSchedule() error = %v", err)
	}

	serve(t, sup)

	select {
	case fire := <-startup:
		if !fire.Startup {
			t.Error("first fire should be marked as startup")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("startup fire never happened")
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	sup := suture.NewSimple("test")
	s := NewScheduler(sup)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		fires   atomic.Int32
	)
	err := s.OnSchedule("slow", "@every 5ms", func(_ context.Context, _ Fire) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		fires.Add(1)
	})
	if err != nil {
		t.Fatalf("OnSchedule() error = %v", err)
	}

	serve(t, sup)
	waitFor(t, func() bool { return fires.Load() >= 3 })

	mu.Lock()
	defer mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("max concurrent fires = %d, want 1", maxSeen)
	}
}

func TestScheduler_Errors(t *testing.T) {
	s := NewScheduler(suture.NewSimple("test"))
	noop := func(context.Context, Fire) {}

	if err := s.OnSchedule("bad", "every minute", noop); err == nil {
		t.Error("OnSchedule() with bad spec should fail")
	}
	if err := s.OnSchedule("dup", "@hourly", noop); err != nil {
		t.Fatalf("OnSchedule() error = %v", err)
	}
	if err := s.OnSchedule("dup", "@daily", noop); err == nil {
		t.Error("OnSchedule() with duplicate name should fail")
	}
}

func TestScheduler_Entries(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	s := NewScheduler(suture.NewSimple("test"), WithClock(func() time.Time { return fixed }))
	noop := func(context.Context, Fire) {}

	_ = s.OnSchedule("b-job", "0 * * * *", noop)
	_ = s.OnSchedule("a-job", "@every 10m", noop, RunOnStartup(true))

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Name != "a-job" || entries[1].Name != "b-job" {
		t.Errorf("Entries() order = %s, %s", entries[0].Name, entries[1].Name)
	}
	if !entries[0].RunOnStartup {
		t.Error("a-job RunOnStartup = false")
	}
	if want := fixed.Add(10 * time.Minute); !entries[0].Next.Equal(want) {
		t.Errorf("a-job Next = %v, want %v", entries[0].Next, want)
	}
	if want := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC); !entries[1].Next.Equal(want) {
		t.Errorf("b-job Next = %v, want %v", entries[1].Next, want)
	}
}

func TestTrigger_StopsOnCancel(t *testing.T) {
	tr := NewTrigger("stop", Every(time.Hour), func(context.Context, Fire) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if tr.String() != "trigger:stop" {
		t.Errorf("String() = %q", tr.String())
	}
}
