// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package lock keeps a job from running twice at the same time.
//
// LocalLocker guards a single process. RedisLocker extends the guarantee to
// every process sharing the same Redis database, so two replicas started
// against one catalog never recompute the same job concurrently.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the key.
	ErrHeld = errors.New("lock held by another run")

	// ErrNotHeld is returned by Release when the lease no longer owns the key,
	// either because it was already released or because it expired.
	ErrNotHeld = errors.New("lock not held")
)

// Locker hands out exclusive leases on string keys.
type Locker interface {
	// Acquire takes the key without waiting. It returns ErrHeld when the key
	// is already owned.
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is an acquired key. Release must be called exactly once.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localLease)}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	lease := &localLease{owner: l, key: key}
	l.held[key] = lease
	return lease, nil
}

// Held reports whether key is currently owned.
func (l *LocalLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type localLease struct {
	owner *LocalLocker
	key   string
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if l.owner.held[l.key] != l {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	return nil
}
