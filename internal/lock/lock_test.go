// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lease, err := l.Acquire(ctx, "job:a")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lease.Key() != "job:a" {
		t.Errorf("Key() = %q, want %q", lease.Key(), "job:a")
	}

	if _, err := l.Acquire(ctx, "job:a"); !errors.Is(err, ErrHeld) {
		t.Errorf("second Acquire() error = %v, want ErrHeld", err)
	}

	other, err := l.Acquire(ctx, "job:b")
	if err != nil {
		t.Fatalf("Acquire(other key) error = %v", err)
	}
	defer other.Release(ctx) //nolint:errcheck

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if l.Held("job:a") {
		t.Error("key still held after release")
	}

	again, err := l.Acquire(ctx, "job:a")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	defer again.Release(ctx) //nolint:errcheck
}

func TestLocalLocker_DoubleRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	lease, _ := l.Acquire(ctx, "k")
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// a stale lease must not free a newer holder
	newer, _ := l.Acquire(ctx, "k")
	if err := lease.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("stale Release() error = %v, want ErrNotHeld", err)
	}
	if !l.Held("k") {
		t.Error("stale release freed the newer holder")
	}
	_ = newer.Release(ctx)
}

func TestLocalLocker_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLocalLocker().Acquire(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestLocalLocker_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.Acquire(ctx, "hot"); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}
