// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package memory implements store.Store in process memory.
//
// Each unit of work stages its writes privately; commit publishes them under
// the store lock, rollback drops them. Reads inside a unit of work see the
// committed state overlaid with the unit's own staged writes.
package memory

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// Store is an in-memory aggregate store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	movies  map[int64]models.Movie
	casts   map[int64]models.MovieCast
	crews   map[int64]models.MovieCrew
	persons map[int64]models.Person
	users   map[int64]struct{}
	ratings map[int64]models.Rating
	matches map[int64]models.UserMatchList

	nextRatingID int64

	// enumeration fault injection, keyed by entity type
	idFaults map[models.EntityType]idFault

	// counters for tests asserting unit-of-work discipline
	commits   int
	rollbacks int
}

type idFault struct {
	after int
	err   error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		movies:   make(map[int64]models.Movie),
		casts:    make(map[int64]models.MovieCast),
		crews:    make(map[int64]models.MovieCrew),
		persons:  make(map[int64]models.Person),
		users:    make(map[int64]struct{}),
		ratings:  make(map[int64]models.Rating),
		matches:  make(map[int64]models.UserMatchList),
		idFaults: make(map[models.EntityType]idFault),
	}
}

// Seed implements store.Seeder.
func (s *Store) Seed(_ context.Context, ds store.Dataset) error {
	for i := range ds.Movies {
		s.PutMovie(ds.Movies[i])
	}
	for i := range ds.Casts {
		s.PutMovieCast(ds.Casts[i])
	}
	for i := range ds.Crews {
		s.PutMovieCrew(ds.Crews[i])
	}
	for i := range ds.Persons {
		s.PutPerson(ds.Persons[i])
	}
	for _, id := range ds.Users {
		s.PutUser(id)
	}
	for i := range ds.Ratings {
		s.PutRating(ds.Ratings[i])
	}
	return nil
}

// PutMovie inserts or overwrites a movie outside of any unit of work.
//
//nolint:gocritic // hugeParam: value semantics keep callers from aliasing store state
func (s *Store) PutMovie(m models.Movie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies[m.ID] = cloneMovie(m)
}

// PutMovieCast inserts or overwrites a cast role.
func (s *Store) PutMovieCast(c models.MovieCast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.AverageRating = cloneFloat(c.AverageRating)
	s.casts[c.ID] = c
}

// PutMovieCrew inserts or overwrites a crew role.
//
//nolint:gocritic // hugeParam: value semantics keep callers from aliasing store state
func (s *Store) PutMovieCrew(c models.MovieCrew) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.AverageRating = cloneFloat(c.AverageRating)
	s.crews[c.ID] = c
}

// PutPerson inserts or overwrites a person.
func (s *Store) PutPerson(p models.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[p.ID] = clonePerson(p)
}

// PutUser registers a user id.
func (s *Store) PutUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

// PutRating inserts or overwrites a rating. A zero ID is assigned the next
// free id. The rating's author is registered as a user.
//
//nolint:gocritic // hugeParam: value semantics keep callers from aliasing store state
func (s *Store) PutRating(r models.Rating) models.Rating {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		s.nextRatingID++
		for {
			if _, taken := s.ratings[s.nextRatingID]; !taken {
				break
			}
			s.nextRatingID++
		}
		r.ID = s.nextRatingID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	if r.Score != nil {
		r.Score = models.Int(*r.Score)
	}
	s.ratings[r.ID] = r
	s.users[r.AuthorID] = struct{}{}
	return r
}

// FailIDsAfter makes enumeration of entity yield err after n ids.
func (s *Store) FailIDsAfter(entity models.EntityType, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idFaults[entity] = idFault{after: n, err: err}
}

// GetMovie returns the committed state of a movie.
func (s *Store) GetMovie(id int64) (models.Movie, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movies[id]
	return cloneMovie(m), ok
}

// GetMovieCast returns the committed state of a cast role.
func (s *Store) GetMovieCast(id int64) (models.MovieCast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.casts[id]
	c.AverageRating = cloneFloat(c.AverageRating)
	return c, ok
}

// GetMovieCrew returns the committed state of a crew role.
func (s *Store) GetMovieCrew(id int64) (models.MovieCrew, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.crews[id]
	c.AverageRating = cloneFloat(c.AverageRating)
	return c, ok
}

// GetPerson returns the committed state of a person.
func (s *Store) GetPerson(id int64) (models.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	return clonePerson(p), ok
}

// GetMatchList returns the committed match list of a user.
func (s *Store) GetMatchList(userID int64) (models.UserMatchList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.matches[userID]
	return cloneMatchList(l), ok
}

// TxStats returns how many units of work committed and rolled back.
func (s *Store) TxStats() (commits, rollbacks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits, s.rollbacks
}

// IDs implements store.Store.
func (s *Store) IDs(ctx context.Context, entity models.EntityType) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		if !entity.Valid() {
			yield(0, fmt.Errorf("unknown entity type %q", entity))
			return
		}

		s.mu.RLock()
		ids := s.sortedIDsLocked(entity)
		fault, faulty := s.idFaults[entity]
		s.mu.RUnlock()

		for i, id := range ids {
			if faulty && i >= fault.after {
				yield(0, fault.err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(0, err)
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if faulty && len(ids) <= fault.after {
			yield(0, fault.err)
		}
	}
}

func (s *Store) sortedIDsLocked(entity models.EntityType) []int64 {
	switch entity {
	case models.EntityMovie:
		return slices.Sorted(maps.Keys(s.movies))
	case models.EntityMovieCast:
		return slices.Sorted(maps.Keys(s.casts))
	case models.EntityMovieCrew:
		return slices.Sorted(maps.Keys(s.crews))
	case models.EntityPerson:
		return slices.Sorted(maps.Keys(s.persons))
	case models.EntityUser:
		return slices.Sorted(maps.Keys(s.users))
	}
	return nil
}

// RatingsByAuthor implements store.Store.
func (s *Store) RatingsByAuthor(_ context.Context, userID int64) ([]models.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratingsLocked(func(r *models.Rating) bool { return r.AuthorID == userID }), nil
}

func (s *Store) ratingsLocked(match func(r *models.Rating) bool) []models.Rating {
	var out []models.Rating
	for _, r := range s.ratings {
		if match(&r) {
			if r.Score != nil {
				r.Score = models.Int(*r.Score)
			}
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b models.Rating) int {
		return compareInt64(a.ID, b.ID)
	})
	return out
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	t := newTx(s)

	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
			return
		}
		t.commit()
	}()

	return fn(ctx, t)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

//nolint:gocritic // hugeParam: copy is the point
func cloneMovie(m models.Movie) models.Movie {
	if m.ReleaseDate != nil {
		d := *m.ReleaseDate
		m.ReleaseDate = &d
	}
	m.AverageRating = cloneFloat(m.AverageRating)
	m.PredictedRating = cloneFloat(m.PredictedRating)
	return m
}

func clonePerson(p models.Person) models.Person {
	p.AverageRatingByRoles = cloneFloat(p.AverageRatingByRoles)
	p.AverageRatingByMovies = cloneFloat(p.AverageRatingByMovies)
	return p
}

func cloneMatchList(l models.UserMatchList) models.UserMatchList {
	l.Matches = slices.Clone(l.Matches)
	return l
}
