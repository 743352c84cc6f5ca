// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package batch

import (
	"context"
	"time"
)

// Status is the final state of a run.
type Status string

const (
	// StatusSucceeded means every id was processed without failure.
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the run finished but some ids failed.
	StatusPartial Status = "partial"
	// StatusFailed means the run was aborted, by an id source failure or
	// cancellation.
	StatusFailed Status = "failed"
	// StatusSkipped means another run of the job was in progress.
	StatusSkipped Status = "skipped"
)

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerStartup  Trigger = "startup"
	TriggerManual   Trigger = "manual"
)

// Report summarizes one run.
type Report struct {
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"`
	Trigger    Trigger   `json:"trigger"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`

	// FailedIDs lists failed ids in completion order, capped by
	// Config.MaxFailedIDs.
	FailedIDs []int64 `json:"failed_ids,omitempty"`

	Error string `json:"error,omitempty"`
}

// Duration returns the run's wall time.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder persists finished reports.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}
