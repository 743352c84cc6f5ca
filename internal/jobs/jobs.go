// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package jobs holds the aggregate recomputation jobs run by the batch
// runner.
//
// Every job reads inputs and writes one entity inside the unit of work it is
// handed. A job that has nothing to write returns batch.ErrNoChange so the
// previous value, or its absence, survives untouched.
package jobs

import (
	"context"
	"iter"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// Job names.
const (
	MovieAverageRating     = "movie-average-rating"
	MovieCastAverageRating = "movie-cast-average-rating"
	MovieCrewAverageRating = "movie-crew-average-rating"
	PersonAverageByRoles   = "person-average-by-roles"
	PersonAverageByMovies  = "person-average-by-movies"
	MoviePredictedRating   = "movie-predicted-rating"
	MovieReleasedStatus    = "movie-released-status"
)

// Clock returns the current time.
type Clock func() time.Time

// entityJob is the shared shape: a name, an entity id source, an update.
type entityJob struct {
	name   string
	entity models.EntityType
	update func(ctx context.Context, tx store.Tx, id int64) error
}

func (j *entityJob) Name() string { return j.name }

func (j *entityJob) IDs(ctx context.Context, st store.Store) iter.Seq2[int64, error] {
	return st.IDs(ctx, j.entity)
}

func (j *entityJob) Update(ctx context.Context, tx store.Tx, id int64) error {
	return j.update(ctx, tx, id)
}

// All returns every aggregate job, keyed by name.
func All(now Clock) map[string]batch.Job {
	list := []batch.Job{
		NewMovieAverageRating(),
		NewMovieCastAverageRating(),
		NewMovieCrewAverageRating(),
		NewPersonAverageByRoles(),
		NewPersonAverageByMovies(),
		NewMoviePredictedRating(),
		NewMovieReleasedStatus(now),
	}
	out := make(map[string]batch.Job, len(list))
	for _, j := range list {
		out[j.Name()] = j
	}
	return out
}

// mean returns the arithmetic mean of values, or false when there are none.
func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// sameValue reports whether a derived field already holds v.
func sameValue(cur *float64, v float64) bool {
	return cur != nil && *cur == v
}
