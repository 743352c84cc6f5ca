// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package metrics registers the process's Prometheus collectors.
//
// Collectors are package-level promauto vars; callers use the Record* helpers
// so label sets stay consistent. Everything is served by promhttp on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes reported by the batch runner.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

var (
	// Job Metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_job_runs_total",
			Help: "Total number of job runs by final status",
		},
		[]string{"job", "status"}, // status: succeeded, partial, failed, skipped
	)

	JobRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_job_run_duration_seconds",
			Help:    "Wall time of a job run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}, // matching over many users can take a long time
		},
		[]string{"job"},
	)

	JobItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_job_items_total",
			Help: "Total number of items processed by outcome",
		},
		[]string{"job", "outcome"},
	)

	JobLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_job_last_success_timestamp",
			Help: "Unix timestamp of the last run that finished without an aborting error",
		},
		[]string{"job"},
	)

	JobRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marquee_job_running",
			Help: "1 while a run of the job is in progress",
		},
		[]string{"job"},
	)

	// Matching Metrics
	AffinityCandidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_affinity_candidates_total",
			Help: "Total number of candidate users scored against a subject",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Run Log Metrics
	RunLogGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_runlog_gc_runs_total",
			Help: "Total number of run log value-log GC passes by result",
		},
		[]string{"result"}, // result: rewritten, nothing, error
	)

	RunLogPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_runlog_pruned_total",
			Help: "Total number of run reports removed by retention",
		},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordJobStart marks a job as running.
func RecordJobStart(job string) {
	JobRunning.WithLabelValues(job).Set(1)
}

// RecordJobRun records the end of a job run.
func RecordJobRun(job, status string, duration time.Duration, updated, unchanged, failed int) {
	JobRunning.WithLabelValues(job).Set(0)
	JobRunsTotal.WithLabelValues(job, status).Inc()
	JobRunDuration.WithLabelValues(job).Observe(duration.Seconds())

	if updated > 0 {
		JobItemsTotal.WithLabelValues(job, OutcomeUpdated).Add(float64(updated))
	}
	if unchanged > 0 {
		JobItemsTotal.WithLabelValues(job, OutcomeUnchanged).Add(float64(unchanged))
	}
	if failed > 0 {
		JobItemsTotal.WithLabelValues(job, OutcomeFailed).Add(float64(failed))
	}

	if status == "succeeded" || status == "partial" {
		JobLastSuccess.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
}

// RecordJobSkipped records a trigger that found the job already running.
func RecordJobSkipped(job string) {
	JobRunsTotal.WithLabelValues(job, "skipped").Inc()
}

// RecordAffinityCandidates counts candidates scored for one subject.
func RecordAffinityCandidates(n int) {
	AffinityCandidatesTotal.Add(float64(n))
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRunLogGC records one value-log GC pass.
func RecordRunLogGC(result string) {
	RunLogGCRuns.WithLabelValues(result).Inc()
}

// RecordRunLogPruned counts reports dropped by retention.
func RecordRunLogPruned(n int) {
	if n > 0 {
		RunLogPruned.Add(float64(n))
	}
}
