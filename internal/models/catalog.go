// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package models defines the catalog entities, ratings and match lists that
// the recomputation jobs read and write.
//
// Derived fields are pointers: nil means "never successfully computed" and is
// distinct from a computed zero. Jobs only ever move a field from nil to a
// value or from one value to another; they never clear it.
package models

import (
	"fmt"
	"time"
)

// EntityType identifies a kind of catalog entity.
type EntityType string

// Entity types known to the store.
const (
	EntityMovie     EntityType = "movie"
	EntityMovieCast EntityType = "movie_cast"
	EntityMovieCrew EntityType = "movie_crew"
	EntityPerson    EntityType = "person"
	EntityUser      EntityType = "user"
)

// String implements fmt.Stringer.
func (t EntityType) String() string {
	return string(t)
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityMovie, EntityMovieCast, EntityMovieCrew, EntityPerson, EntityUser:
		return true
	}
	return false
}

// Movie is a catalog title.
type Movie struct {
	ID          int64
	Title       string
	ReleaseDate *time.Time
	Released    bool

	AverageRating   *float64
	PredictedRating *float64
}

// IsReleasedBy reports whether the movie's release date is on or before now.
// A movie without a release date is never considered due.
func (m *Movie) IsReleasedBy(now time.Time) bool {
	return m.ReleaseDate != nil && !m.ReleaseDate.After(now)
}

// MovieCast links a person to a movie as a performer.
type MovieCast struct {
	ID        int64
	MovieID   int64
	PersonID  int64
	Character string

	AverageRating *float64
}

// MovieCrew links a person to a movie in a production role.
type MovieCrew struct {
	ID         int64
	MovieID    int64
	PersonID   int64
	Job        string
	Department string

	AverageRating *float64
}

// Person is an actor or crew member.
type Person struct {
	ID   int64
	Name string

	AverageRatingByRoles  *float64
	AverageRatingByMovies *float64
}

// Float returns a pointer to v. Handy for literals of derived fields.
func Float(v float64) *float64 {
	return &v
}

// FormatOptional renders a derived field for logs.
func FormatOptional(v *float64) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%.4f", *v)
}
