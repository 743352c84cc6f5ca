// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
)

// GarbageCollector reclaims space in a key-value store. Satisfied by
// *runlog.Store.
type GarbageCollector interface {
	RunGC() (bool, error)
}

// RunLogGCService runs value-log garbage collection on an interval.
//
// A failed pass is logged and retried on the next tick; it never stops the
// service, since a missed compaction only costs disk space.
type RunLogGCService struct {
	gc       GarbageCollector
	interval time.Duration
	logger   zerolog.Logger
	name     string
}

// NewRunLogGCService creates the service. A non-positive interval defaults
// to 10 minutes.
func NewRunLogGCService(gc GarbageCollector, interval time.Duration) *RunLogGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &RunLogGCService{
		gc:       gc,
		interval: interval,
		logger:   logging.WithComponent("runlog-gc"),
		name:     "runlog-gc",
	}
}

// Serve implements suture.Service.
func (s *RunLogGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug().Dur("interval", s.interval).Msg("Run log GC service started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *RunLogGCService) collect() {
	start := time.Now()
	rewritten, err := s.gc.RunGC()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Run log GC failed")
		return
	}
	s.logger.Debug().
		Bool("rewritten", rewritten).
		Dur("duration", time.Since(start)).
		Msg("Run log GC pass complete")
}

// String implements fmt.Stringer for suture logs.
func (s *RunLogGCService) String() string {
	return s.name
}
