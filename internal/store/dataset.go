// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package store

import (
	"context"
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

// Dataset is a bulk snapshot of catalog data used to seed a store.
type Dataset struct {
	Movies  []models.Movie
	Casts   []models.MovieCast
	Crews   []models.MovieCrew
	Persons []models.Person
	Users   []int64
	Ratings []models.Rating
}

// Seeder is implemented by stores that accept bulk loads.
type Seeder interface {
	Seed(ctx context.Context, ds Dataset) error
}

// DemoDataset returns a small catalog for local runs: four users rating four
// movies with partially overlapping sets, one unreleased movie that is due,
// and one that is not.
func DemoDataset(now time.Time) Dataset {
	past := now.AddDate(-1, 0, 0)
	due := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 6, 0)

	ds := Dataset{
		Movies: []models.Movie{
			{ID: 1, Title: "The Long Night", ReleaseDate: &past, Released: true},
			{ID: 2, Title: "Harbor Lights", ReleaseDate: &past, Released: true},
			{ID: 3, Title: "Paper Moons", ReleaseDate: &past, Released: true},
			{ID: 4, Title: "Glass Rivers", ReleaseDate: &past, Released: true},
			{ID: 5, Title: "Northbound", ReleaseDate: &due, Released: false},
			{ID: 6, Title: "The Quiet Year", ReleaseDate: &future, Released: false},
		},
		Persons: []models.Person{
			{ID: 1, Name: "Ada Lindqvist"},
			{ID: 2, Name: "Marco Ruiz"},
			{ID: 3, Name: "Imogen Hale"},
		},
		Casts: []models.MovieCast{
			{ID: 1, MovieID: 1, PersonID: 1, Character: "Captain Vale"},
			{ID: 2, MovieID: 2, PersonID: 1, Character: "Nora"},
			{ID: 3, MovieID: 3, PersonID: 2, Character: "The Clerk"},
			{ID: 4, MovieID: 6, PersonID: 1, Character: "Elsa"},
			{ID: 5, MovieID: 6, PersonID: 2, Character: "Tomas"},
		},
		Crews: []models.MovieCrew{
			{ID: 1, MovieID: 1, PersonID: 3, Job: "Director", Department: "Directing"},
			{ID: 2, MovieID: 4, PersonID: 3, Job: "Writer", Department: "Writing"},
			{ID: 3, MovieID: 6, PersonID: 3, Job: "Director", Department: "Directing"},
		},
		Users: []int64{1, 2, 3, 4},
	}

	type r struct {
		author int64
		target models.EntityType
		id     int64
		score  *int
	}
	raw := []r{
		{1, models.EntityMovie, 1, models.Int(9)},
		{1, models.EntityMovie, 2, models.Int(7)},
		{1, models.EntityMovie, 3, models.Int(4)},
		{2, models.EntityMovie, 1, models.Int(8)},
		{2, models.EntityMovie, 2, models.Int(6)},
		{2, models.EntityMovie, 4, models.Int(5)},
		{3, models.EntityMovie, 2, models.Int(3)},
		{3, models.EntityMovie, 3, models.Int(9)},
		{3, models.EntityMovie, 4, nil},
		{4, models.EntityMovie, 1, models.Int(2)},
		{4, models.EntityMovie, 3, models.Int(10)},
		{4, models.EntityMovie, 4, models.Int(6)},
		{1, models.EntityMovieCast, 1, models.Int(10)},
		{2, models.EntityMovieCast, 1, models.Int(8)},
		{3, models.EntityMovieCast, 2, models.Int(6)},
		{4, models.EntityMovieCast, 3, models.Int(7)},
		{1, models.EntityMovieCrew, 1, models.Int(9)},
		{2, models.EntityMovieCrew, 2, models.Int(5)},
	}
	for i, x := range raw {
		ds.Ratings = append(ds.Ratings, models.Rating{
			ID:         int64(i + 1),
			AuthorID:   x.author,
			TargetID:   x.id,
			TargetType: x.target,
			Score:      x.score,
			CreatedAt:  past,
			UpdatedAt:  past,
		})
	}

	return ds
}
