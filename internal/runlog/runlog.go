// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package runlog keeps the history of job runs in BadgerDB.
//
// Reports are stored as JSON under run:<job>:<inverted start time>:<run id>,
// so a prefix scan per job yields the newest run first. Retention is enforced
// two ways: every entry carries a Badger TTL, and each write trims the job's
// history to MaxRunsPerJob.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/metrics"
)

const runKeyPrefix = "run:"

var (
	// ErrNotFound is returned when a job has no recorded runs.
	ErrNotFound = errors.New("no recorded runs")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("run log is closed")
)

// Config configures the run log.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the log in memory only.
	InMemory bool

	// Retention is the TTL of every report. Zero keeps reports forever.
	Retention time.Duration

	// MaxRunsPerJob caps the number of reports kept per job. Zero disables
	// the cap.
	MaxRunsPerJob int

	// GCRatio is the discard ratio passed to value-log GC.
	GCRatio float64
}

// DefaultConfig returns a one-week, 200-runs-per-job log under ./data/runlog.
func DefaultConfig() Config {
	return Config{
		Path:          "./data/runlog",
		Retention:     7 * 24 * time.Hour,
		MaxRunsPerJob: 200,
		GCRatio:       0.5,
	}
}

// Store is a Badger-backed run history. It implements batch.Recorder.
type Store struct {
	db  *badger.DB
	cfg Config

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the run log.
func Open(cfg Config) (*Store, error) {
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("run log path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &Store{db: db, cfg: cfg}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func jobPrefix(job string) []byte {
	return []byte(runKeyPrefix + job + ":")
}

// runKey orders newer runs first under a job prefix.
func runKey(r *batch.Report) []byte {
	inverted := math.MaxInt64 - r.StartedAt.UnixNano()
	return []byte(fmt.Sprintf("%s%s:%019d:%s", runKeyPrefix, r.Job, inverted, r.RunID))
}

// Record implements batch.Recorder.
func (s *Store) Record(_ context.Context, r *batch.Report) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if r.Job == "" || r.RunID == "" {
		return errors.New("report needs a job and a run id")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(runKey(r), data)
		if s.cfg.Retention > 0 {
			entry = entry.WithTTL(s.cfg.Retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}

	if s.cfg.MaxRunsPerJob > 0 {
		pruned, err := s.prune(r.Job, s.cfg.MaxRunsPerJob)
		if err != nil {
			return fmt.Errorf("prune %s history: %w", r.Job, err)
		}
		metrics.RecordRunLogPruned(pruned)
	}
	return nil
}

// prune deletes every report of job beyond the newest keep.
func (s *Store) prune(job string, keep int) (int, error) {
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := jobPrefix(job)
		n := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
			if n > keep {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// List returns up to limit reports of job, newest first. A non-positive
// limit returns every report.
func (s *Store) List(_ context.Context, job string, limit int) ([]batch.Report, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []batch.Report
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		if limit > 0 && limit < opts.PrefetchSize {
			opts.PrefetchSize = limit
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := jobPrefix(job)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r batch.Report
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode report %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s runs: %w", job, err)
	}
	return out, nil
}

// Latest returns the newest report of job, or ErrNotFound.
func (s *Store) Latest(ctx context.Context, job string) (*batch.Report, error) {
	runs, err := s.List(ctx, job, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}

// Count returns how many reports are stored for job.
func (s *Store) Count(_ context.Context, job string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := jobPrefix(job)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC reclaims value-log space until Badger reports nothing left to
// rewrite. It reports whether anything was rewritten.
func (s *Store) RunGC() (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if s.cfg.InMemory {
		return false, nil
	}

	rewritten := false
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			metrics.RecordRunLogGC("error")
			return rewritten, fmt.Errorf("run GC: %w", err)
		}
		rewritten = true
	}

	if rewritten {
		metrics.RecordRunLogGC("rewritten")
	} else {
		metrics.RecordRunLogGC("nothing")
	}
	return rewritten, nil
}

// Describe renders a short identifier for logs.
func (s *Store) Describe() string {
	if s.cfg.InMemory {
		return "badger(in-memory)"
	}
	return "badger(" + s.cfg.Path + ", retention=" + s.cfg.Retention.String() +
		", max_runs=" + strconv.Itoa(s.cfg.MaxRunsPerJob) + ")"
}
