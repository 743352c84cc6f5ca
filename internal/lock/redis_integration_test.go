// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

//go:build integration

package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/marquee/internal/testinfra"
)

func TestRedisLocker_Integration(t *testing.T) {
	addr := testinfra.StartRedis(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	locker := NewRedisLocker(client, RedisConfig{TTL: 600 * time.Millisecond, KeyPrefix: "marquee:test:"})

	t.Run("exclusive", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "exclusive")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if _, err := locker.Acquire(ctx, "exclusive"); !errors.Is(err, ErrHeld) {
			t.Errorf("second Acquire() error = %v, want ErrHeld", err)
		}
		if err := lease.Release(ctx); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		if err := lease.Release(ctx); !errors.Is(err, ErrNotHeld) {
			t.Errorf("second Release() error = %v, want ErrNotHeld", err)
		}
	})

	t.Run("kept alive past ttl", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "long")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		time.Sleep(1500 * time.Millisecond)

		if _, err := locker.Acquire(ctx, "long"); !errors.Is(err, ErrHeld) {
			t.Errorf("Acquire() after ttl error = %v, want ErrHeld", err)
		}
		if err := lease.Release(ctx); err != nil {
			t.Errorf("Release() error = %v", err)
		}
	})

	t.Run("foreign token untouched", func(t *testing.T) {
		lease, err := locker.Acquire(ctx, "stolen")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if err := client.Set(ctx, "marquee:test:stolen", "someone-else", time.Minute).Err(); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := lease.Release(ctx); !errors.Is(err, ErrNotHeld) {
			t.Errorf("Release() error = %v, want ErrNotHeld", err)
		}
		if v, _ := client.Get(ctx, "marquee:test:stolen").Result(); v != "someone-else" {
			t.Errorf("foreign value = %q, want untouched", v)
		}
	})
}
