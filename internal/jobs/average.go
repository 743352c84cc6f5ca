// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package jobs

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// scoreMean averages the concrete scores of every rating on target.
func scoreMean(ctx context.Context, tx store.Tx, target models.TargetRef) (float64, bool, error) {
	ratings, err := tx.RatingsByTarget(ctx, target)
	if err != nil {
		return 0, false, fmt.Errorf("ratings for %s %d: %w", target.Type, target.ID, err)
	}
	scores := make([]float64, 0, len(ratings))
	for i := range ratings {
		if ratings[i].HasScore() {
			scores = append(scores, float64(*ratings[i].Score))
		}
	}
	avg, ok := mean(scores)
	return avg, ok, nil
}

// NewMovieAverageRating averages the scores users gave a movie.
func NewMovieAverageRating() batch.Job {
	return &entityJob{
		name:   MovieAverageRating,
		entity: models.EntityMovie,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			avg, ok, err := scoreMean(ctx, tx, models.TargetRef{Type: models.EntityMovie, ID: id})
			if err != nil {
				return err
			}
			if !ok {
				return batch.ErrNoChange
			}
			m, err := tx.Movie(ctx, id)
			if err != nil {
				return err
			}
			if sameValue(m.AverageRating, avg) {
				return batch.ErrNoChange
			}
			m.AverageRating = models.Float(avg)
			return tx.SaveMovie(ctx, m)
		},
	}
}

// NewMovieCastAverageRating averages the scores users gave a cast role.
func NewMovieCastAverageRating() batch.Job {
	return &entityJob{
		name:   MovieCastAverageRating,
		entity: models.EntityMovieCast,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			avg, ok, err := scoreMean(ctx, tx, models.TargetRef{Type: models.EntityMovieCast, ID: id})
			if err != nil {
				return err
			}
			if !ok {
				return batch.ErrNoChange
			}
			c, err := tx.MovieCast(ctx, id)
			if err != nil {
				return err
			}
			if sameValue(c.AverageRating, avg) {
				return batch.ErrNoChange
			}
			c.AverageRating = models.Float(avg)
			return tx.SaveMovieCast(ctx, c)
		},
	}
}

// NewMovieCrewAverageRating averages the scores users gave a crew role.
func NewMovieCrewAverageRating() batch.Job {
	return &entityJob{
		name:   MovieCrewAverageRating,
		entity: models.EntityMovieCrew,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			avg, ok, err := scoreMean(ctx, tx, models.TargetRef{Type: models.EntityMovieCrew, ID: id})
			if err != nil {
				return err
			}
			if !ok {
				return batch.ErrNoChange
			}
			c, err := tx.MovieCrew(ctx, id)
			if err != nil {
				return err
			}
			if sameValue(c.AverageRating, avg) {
				return batch.ErrNoChange
			}
			c.AverageRating = models.Float(avg)
			return tx.SaveMovieCrew(ctx, c)
		},
	}
}
