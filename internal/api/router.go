// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package api is Marquee's operational HTTP surface: health, metrics, job
// listing, run history, manual triggers and match list lookups.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/schedule"
	"github.com/tomtom215/marquee/internal/store"
)

// JobControl is the API's view of one job. Satisfied by
// *services.JobService.
type JobControl interface {
	Name() string
	Running() bool
	LastReport() *batch.Report
	Submit() error
}

// RunHistory lists persisted run reports. Satisfied by *runlog.Store.
type RunHistory interface {
	List(ctx context.Context, job string, limit int) ([]batch.Report, error)
}

// Schedules lists registered triggers. Satisfied by *schedule.Scheduler.
type Schedules interface {
	Entries() []schedule.Entry
}

// Config wires a Router.
type Config struct {
	Jobs      []JobControl
	Schedules Schedules

	// History is optional; without it run listings come from memory only.
	History RunHistory

	// Store serves match list lookups. Optional.
	Store store.Store

	Version string

	// TriggerRateLimit is manual triggers per minute per client IP.
	TriggerRateLimit int
}

// Router holds handler dependencies.
type Router struct {
	jobs      map[string]JobControl
	names     []string
	schedules Schedules
	history   RunHistory
	store     store.Store
	version   string
	rateLimit int
	started   time.Time
}

// NewRouter creates a router.
func NewRouter(cfg Config) *Router {
	r := &Router{
		jobs:      make(map[string]JobControl, len(cfg.Jobs)),
		schedules: cfg.Schedules,
		history:   cfg.History,
		store:     cfg.Store,
		version:   cfg.Version,
		rateLimit: cfg.TriggerRateLimit,
		started:   time.Now(),
	}
	for _, j := range cfg.Jobs {
		r.jobs[j.Name()] = j
		r.names = append(r.names, j.Name())
	}
	sort.Strings(r.names)
	return r
}

// Handler builds the chi route tree.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetrics())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.Get("/health", router.Health)
		r.Get("/health/live", router.HealthLive)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", router.ListJobs)
			r.Get("/{name}/runs", router.JobRuns)
			r.With(RateLimitTrigger(router.rateLimit)).Post("/{name}/run", router.RunJob)
		})

		r.Get("/users/{id}/matches", router.UserMatches)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}
