// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/marquee/internal/logging"
)

// Compare-and-delete and compare-and-extend, so a lease never touches a key
// that expired and was taken over by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisConfig configures a RedisLocker.
type RedisConfig struct {
	// TTL bounds how long a crashed holder keeps a key. Live leases are
	// extended every TTL/3 until released.
	TTL time.Duration

	// KeyPrefix is prepended to every key.
	KeyPrefix string
}

// RedisLocker is a Locker backed by Redis SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedisLocker creates a locker on an existing client.
func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &RedisLocker{client: client, cfg: cfg}
}

// Acquire implements Locker.
func (r *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	full := r.cfg.KeyPrefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, full, token, r.cfg.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	lease := &redisLease{
		client: r.client,
		key:    key,
		full:   full,
		token:  token,
		ttl:    r.cfg.TTL,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	full   string
	token  string
	ttl    time.Duration

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) keepAlive() {
	defer close(l.done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.client, []string{l.full}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				logging.Warn().Err(err).Str("key", l.full).Msg("Failed to extend lock lease")
				continue
			}
			if n == 0 {
				logging.Error().Str("key", l.full).Msg("Lock lease lost before release")
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	released := false
	l.once.Do(func() {
		released = true
		close(l.stop)
	})
	if !released {
		return ErrNotHeld
	}
	<-l.done

	n, err := releaseScript.Run(ctx, l.client, []string{l.full}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.full, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
