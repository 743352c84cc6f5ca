// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// NewMoviePredictedRating estimates a rating for unreleased movies from the
// by-roles average of everyone cast or crewed on them. Released movies are
// left alone; their real ratings take over.
func NewMoviePredictedRating() batch.Job {
	return &entityJob{
		name:   MoviePredictedRating,
		entity: models.EntityMovie,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			m, err := tx.Movie(ctx, id)
			if err != nil {
				return err
			}
			if m.Released {
				return batch.ErrNoChange
			}

			cast, err := tx.CastByMovie(ctx, id)
			if err != nil {
				return fmt.Errorf("cast of movie %d: %w", id, err)
			}
			crew, err := tx.CrewByMovie(ctx, id)
			if err != nil {
				return fmt.Errorf("crew of movie %d: %w", id, err)
			}

			personIDs := make([]int64, 0, len(cast)+len(crew))
			seen := make(map[int64]struct{}, len(cast)+len(crew))
			for i := range cast {
				if _, dup := seen[cast[i].PersonID]; !dup {
					seen[cast[i].PersonID] = struct{}{}
					personIDs = append(personIDs, cast[i].PersonID)
				}
			}
			for i := range crew {
				if _, dup := seen[crew[i].PersonID]; !dup {
					seen[crew[i].PersonID] = struct{}{}
					personIDs = append(personIDs, crew[i].PersonID)
				}
			}

			var values []float64
			for _, personID := range personIDs {
				p, err := tx.Person(ctx, personID)
				if err != nil {
					return fmt.Errorf("person %d of movie %d: %w", personID, id, err)
				}
				if p.AverageRatingByRoles != nil {
					values = append(values, *p.AverageRatingByRoles)
				}
			}

			avg, ok := mean(values)
			if !ok || sameValue(m.PredictedRating, avg) {
				return batch.ErrNoChange
			}
			m.PredictedRating = models.Float(avg)
			return tx.SaveMovie(ctx, m)
		},
	}
}

// NewMovieReleasedStatus flags movies whose release date has passed. It only
// ever moves a movie from unreleased to released.
func NewMovieReleasedStatus(now Clock) batch.Job {
	if now == nil {
		now = time.Now
	}
	return &entityJob{
		name:   MovieReleasedStatus,
		entity: models.EntityMovie,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			m, err := tx.Movie(ctx, id)
			if err != nil {
				return err
			}
			if m.Released || !m.IsReleasedBy(now()) {
				return batch.ErrNoChange
			}
			m.Released = true
			return tx.SaveMovie(ctx, m)
		},
	}
}
