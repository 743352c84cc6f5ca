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

// NewPersonAverageByRoles averages the computed ratings of a person's cast
// and crew roles. Roles without a computed rating are skipped.
func NewPersonAverageByRoles() batch.Job {
	return &entityJob{
		name:   PersonAverageByRoles,
		entity: models.EntityPerson,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			cast, crew, err := personRoles(ctx, tx, id)
			if err != nil {
				return err
			}

			var values []float64
			for i := range cast {
				if cast[i].AverageRating != nil {
					values = append(values, *cast[i].AverageRating)
				}
			}
			for i := range crew {
				if crew[i].AverageRating != nil {
					values = append(values, *crew[i].AverageRating)
				}
			}

			avg, ok := mean(values)
			if !ok {
				return batch.ErrNoChange
			}
			p, err := tx.Person(ctx, id)
			if err != nil {
				return err
			}
			if sameValue(p.AverageRatingByRoles, avg) {
				return batch.ErrNoChange
			}
			p.AverageRatingByRoles = models.Float(avg)
			return tx.SavePerson(ctx, p)
		},
	}
}

// NewPersonAverageByMovies averages the computed ratings of the distinct
// movies a person worked on, in any role.
func NewPersonAverageByMovies() batch.Job {
	return &entityJob{
		name:   PersonAverageByMovies,
		entity: models.EntityPerson,
		update: func(ctx context.Context, tx store.Tx, id int64) error {
			cast, crew, err := personRoles(ctx, tx, id)
			if err != nil {
				return err
			}

			movieIDs := make([]int64, 0, len(cast)+len(crew))
			seen := make(map[int64]struct{}, len(cast)+len(crew))
			add := func(movieID int64) {
				if _, dup := seen[movieID]; !dup {
					seen[movieID] = struct{}{}
					movieIDs = append(movieIDs, movieID)
				}
			}
			for i := range cast {
				add(cast[i].MovieID)
			}
			for i := range crew {
				add(crew[i].MovieID)
			}

			var values []float64
			for _, movieID := range movieIDs {
				m, err := tx.Movie(ctx, movieID)
				if err != nil {
					return fmt.Errorf("movie %d of person %d: %w", movieID, id, err)
				}
				if m.AverageRating != nil {
					values = append(values, *m.AverageRating)
				}
			}

			avg, ok := mean(values)
			if !ok {
				return batch.ErrNoChange
			}
			p, err := tx.Person(ctx, id)
			if err != nil {
				return err
			}
			if sameValue(p.AverageRatingByMovies, avg) {
				return batch.ErrNoChange
			}
			p.AverageRatingByMovies = models.Float(avg)
			return tx.SavePerson(ctx, p)
		},
	}
}

func personRoles(ctx context.Context, tx store.Tx, personID int64) ([]models.MovieCast, []models.MovieCrew, error) {
	cast, err := tx.CastByPerson(ctx, personID)
	if err != nil {
		return nil, nil, fmt.Errorf("cast roles of person %d: %w", personID, err)
	}
	crew, err := tx.CrewByPerson(ctx, personID)
	if err != nil {
		return nil, nil, fmt.Errorf("crew roles of person %d: %w", personID, err)
	}
	return cast, crew, nil
}
