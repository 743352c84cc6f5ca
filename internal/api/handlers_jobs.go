// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/schedule"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

// JobSummary is one entry of GET /api/v1/jobs.
type JobSummary struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule,omitempty"`
	NextRun      *time.Time    `json:"next_run,omitempty"`
	RunOnStartup bool          `json:"run_on_startup"`
	Running      bool          `json:"running"`
	LastRun      *batch.Report `json:"last_run,omitempty"`
}

type runsRequest struct {
	Limit int `validate:"min=1,max=500"`
}

// ListJobs lists every job with its schedule and most recent run.
func (router *Router) ListJobs(w http.ResponseWriter, r *http.Request) {
	entries := make(map[string]schedule.Entry)
	if router.schedules != nil {
		for _, e := range router.schedules.Entries() {
			entries[e.Name] = e
		}
	}

	out := make([]JobSummary, 0, len(router.names))
	for _, name := range router.names {
		job := router.jobs[name]
		summary := JobSummary{
			Name:    name,
			Running: job.Running(),
			LastRun: job.LastReport(),
		}
		if e, ok := entries[name]; ok {
			summary.Schedule = e.Schedule
			summary.RunOnStartup = e.RunOnStartup
			if !e.Next.IsZero() {
				next := e.Next
				summary.NextRun = &next
			}
		}
		if router.history != nil {
			reports, err := router.history.List(r.Context(), name, 1)
			if err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Str("job", name).Msg("Run history unavailable")
			} else if len(reports) > 0 {
				summary.LastRun = &reports[0]
			}
		}
		out = append(out, summary)
	}

	respondData(w, http.StatusOK, out)
}

// JobRuns lists a job's recent runs, newest first.
func (router *Router) JobRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := router.jobs[name]
	if !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "unknown job", nil)
		return
	}

	req := runsRequest{Limit: getIntParam(r, "limit", 20)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &Response{
			Status:   "error",
			Metadata: Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return
	}

	if router.history == nil {
		runs := []batch.Report{}
		if last := job.LastReport(); last != nil {
			runs = append(runs, *last)
		}
		respondData(w, http.StatusOK, runs)
		return
	}

	runs, err := router.history.List(r.Context(), name, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to read run history", err)
		return
	}
	if runs == nil {
		runs = []batch.Report{}
	}
	respondData(w, http.StatusOK, runs)
}

// RunJob queues a manual run. It answers 202 when queued and 409 when a run
// of the job is already in progress.
func (router *Router) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := router.jobs[name]
	if !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "unknown job", nil)
		return
	}

	err := job.Submit()
	switch {
	case err == nil:
		logging.Ctx(r.Context()).Info().Str("job", name).Msg("Manual run queued")
		respondData(w, http.StatusAccepted, map[string]string{"job": name, "status": "queued"})
	case errors.Is(err, batch.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, "JOB_RUNNING", "a run of this job is already in progress", nil)
	case errors.Is(err, services.ErrNotServing):
		respondError(w, http.StatusServiceUnavailable, "JOB_UNAVAILABLE", "job service is not running", nil)
	default:
		respondError(w, http.StatusInternalServerError, "TRIGGER_FAILED", "failed to queue run", err)
	}
}
