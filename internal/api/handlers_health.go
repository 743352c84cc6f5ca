// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status      string   `json:"status"`
	Version     string   `json:"version"`
	Uptime      float64  `json:"uptime_seconds"`
	Jobs        int      `json:"jobs"`
	Running     []string `json:"running,omitempty"`
	FailedLast  []string `json:"failed_last_run,omitempty"`
	RunHistory  bool     `json:"run_history"`
	MatchLookup bool     `json:"match_lookup"`
}

// Health reports process status. A job whose last run failed outright
// degrades the status; partial runs do not.
func (router *Router) Health(w http.ResponseWriter, _ *http.Request) {
	health := HealthStatus{
		Status:      "healthy",
		Version:     router.version,
		Uptime:      time.Since(router.started).Seconds(),
		Jobs:        len(router.names),
		RunHistory:  router.history != nil,
		MatchLookup: router.store != nil,
	}
	for _, name := range router.names {
		job := router.jobs[name]
		if job.Running() {
			health.Running = append(health.Running, name)
		}
		if last := job.LastReport(); last != nil && last.Status == batch.StatusFailed {
			health.FailedLast = append(health.FailedLast, name)
		}
	}
	if len(health.FailedLast) > 0 {
		health.Status = "degraded"
	}
	respondData(w, http.StatusOK, health)
}

// HealthLive answers liveness probes.
func (router *Router) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]any{
		"alive":  true,
		"uptime": time.Since(router.started).Seconds(),
	})
}
