// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package store defines the persistence contract the recomputation jobs and
// the matching engine are written against.
//
// Two implementations exist: internal/store/memory (tests, local runs) and
// internal/database (DuckDB). Jobs never see either directly.
package store

import (
	"context"
	"errors"
	"iter"

	"github.com/tomtom215/marquee/internal/models"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Store is the aggregate store as seen by the job harness.
type Store interface {
	// IDs lazily enumerates every id of the given entity type, in ascending
	// order. The sequence is single-pass. An enumeration failure is yielded as
	// a non-nil error, after which the sequence ends.
	IDs(ctx context.Context, entity models.EntityType) iter.Seq2[int64, error]

	// RatingsByAuthor returns every rating written by a user, outside of any
	// unit of work. Used for read-only scans across many users.
	RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error)

	// RunInTx executes fn inside one unit of work. The unit commits when fn
	// returns nil and rolls back on error or panic. A panic is re-raised after
	// rollback.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a single unit of work. It must not be used after the function passed
// to RunInTx returns.
type Tx interface {
	Movie(ctx context.Context, id int64) (*models.Movie, error)
	SaveMovie(ctx context.Context, m *models.Movie) error

	MovieCast(ctx context.Context, id int64) (*models.MovieCast, error)
	SaveMovieCast(ctx context.Context, c *models.MovieCast) error

	MovieCrew(ctx context.Context, id int64) (*models.MovieCrew, error)
	SaveMovieCrew(ctx context.Context, c *models.MovieCrew) error

	Person(ctx context.Context, id int64) (*models.Person, error)
	SavePerson(ctx context.Context, p *models.Person) error

	// CastByMovie and friends return the roles linked to a movie or person,
	// ordered by role id.
	CastByMovie(ctx context.Context, movieID int64) ([]models.MovieCast, error)
	CrewByMovie(ctx context.Context, movieID int64) ([]models.MovieCrew, error)
	CastByPerson(ctx context.Context, personID int64) ([]models.MovieCast, error)
	CrewByPerson(ctx context.Context, personID int64) ([]models.MovieCrew, error)

	RatingsByTarget(ctx context.Context, target models.TargetRef) ([]models.Rating, error)
	RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error)

	// MatchList returns a user's current match list, or ErrNotFound.
	MatchList(ctx context.Context, userID int64) (*models.UserMatchList, error)

	// ReplaceMatchList discards the user's current list and stores l in its place.
	ReplaceMatchList(ctx context.Context, l *models.UserMatchList) error
}
