// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package batch drives per-entity recomputation with failure containment.
//
// A Job names an id source and an update function. The Runner walks the ids
// and runs every update inside its own unit of work: a failing or panicking
// update rolls back only its own id and the run moves on. Only a failure of
// the id source itself aborts a run.
//
//	runner := batch.NewRunner(st, lock.NewLocalLocker(), batch.DefaultConfig())
//	report, err := runner.Run(ctx, jobs.NewMovieAverageRating(), batch.TriggerSchedule)
package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

var (
	// ErrNoChange is returned by Update when there is nothing to write for
	// the id. The unit of work is discarded and the id counts as unchanged.
	ErrNoChange = errors.New("no change")

	// ErrAlreadyRunning is returned by Run when another run of the same job
	// holds the job's lock.
	ErrAlreadyRunning = errors.New("job already running")
)

// Job is one recomputation: where the ids come from and what to do per id.
type Job interface {
	// Name is the stable job identifier used in config, logs, metrics and
	// lock keys.
	Name() string

	// IDs enumerates the ids to process. It is called once per run.
	IDs(ctx context.Context, st store.Store) iter.Seq2[int64, error]

	// Update recomputes one id inside tx. Returning an error, or panicking,
	// rolls back everything written through tx.
	Update(ctx context.Context, tx store.Tx, id int64) error
}

// EntityIDs returns an id source over every id of one entity type.
func EntityIDs(entity models.EntityType) func(ctx context.Context, st store.Store) iter.Seq2[int64, error] {
	return func(ctx context.Context, st store.Store) iter.Seq2[int64, error] {
		return st.IDs(ctx, entity)
	}
}

// PanicError wraps a value recovered from a panicking update.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("update panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
