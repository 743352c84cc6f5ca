// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// errTxDone is returned when a unit of work is used after it finished.
var errTxDone = errors.New("unit of work already finished")

// tx stages writes until commit.
type tx struct {
	s    *Store
	done bool

	movies  map[int64]models.Movie
	casts   map[int64]models.MovieCast
	crews   map[int64]models.MovieCrew
	persons map[int64]models.Person
	matches map[int64]models.UserMatchList
}

func newTx(s *Store) *tx {
	return &tx{
		s:       s,
		movies:  make(map[int64]models.Movie),
		casts:   make(map[int64]models.MovieCast),
		crews:   make(map[int64]models.MovieCrew),
		persons: make(map[int64]models.Person),
		matches: make(map[int64]models.UserMatchList),
	}
}

func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range t.movies {
		s.movies[id] = m
	}
	for id, c := range t.casts {
		s.casts[id] = c
	}
	for id, c := range t.crews {
		s.crews[id] = c
	}
	for id, p := range t.persons {
		s.persons[id] = p
	}
	for id, l := range t.matches {
		s.matches[id] = l
	}
	s.commits++
	t.done = true
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	t.s.rollbacks++
	t.s.mu.Unlock()
	t.done = true
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	return ctx.Err()
}

func (t *tx) Movie(ctx context.Context, id int64) (*models.Movie, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	m, ok := t.movies[id]
	if !ok {
		t.s.mu.RLock()
		m, ok = t.s.movies[id]
		t.s.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("movie %d: %w", id, store.ErrNotFound)
	}
	m = cloneMovie(m)
	return &m, nil
}

func (t *tx) SaveMovie(ctx context.Context, m *models.Movie) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, err := t.Movie(ctx, m.ID); err != nil {
		return err
	}
	t.movies[m.ID] = cloneMovie(*m)
	return nil
}

func (t *tx) MovieCast(ctx context.Context, id int64) (*models.MovieCast, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	c, ok := t.casts[id]
	if !ok {
		t.s.mu.RLock()
		c, ok = t.s.casts[id]
		t.s.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("movie cast %d: %w", id, store.ErrNotFound)
	}
	c.AverageRating = cloneFloat(c.AverageRating)
	return &c, nil
}

func (t *tx) SaveMovieCast(ctx context.Context, c *models.MovieCast) error {
	if _, err := t.MovieCast(ctx, c.ID); err != nil {
		return err
	}
	cp := *c
	cp.AverageRating = cloneFloat(c.AverageRating)
	t.casts[c.ID] = cp
	return nil
}

func (t *tx) MovieCrew(ctx context.Context, id int64) (*models.MovieCrew, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	c, ok := t.crews[id]
	if !ok {
		t.s.mu.RLock()
		c, ok = t.s.crews[id]
		t.s.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("movie crew %d: %w", id, store.ErrNotFound)
	}
	c.AverageRating = cloneFloat(c.AverageRating)
	return &c, nil
}

func (t *tx) SaveMovieCrew(ctx context.Context, c *models.MovieCrew) error {
	if _, err := t.MovieCrew(ctx, c.ID); err != nil {
		return err
	}
	cp := *c
	cp.AverageRating = cloneFloat(c.AverageRating)
	t.crews[c.ID] = cp
	return nil
}

func (t *tx) Person(ctx context.Context, id int64) (*models.Person, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	p, ok := t.persons[id]
	if !ok {
		t.s.mu.RLock()
		p, ok = t.s.persons[id]
		t.s.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("person %d: %w", id, store.ErrNotFound)
	}
	p = clonePerson(p)
	return &p, nil
}

func (t *tx) SavePerson(ctx context.Context, p *models.Person) error {
	if _, err := t.Person(ctx, p.ID); err != nil {
		return err
	}
	t.persons[p.ID] = clonePerson(*p)
	return nil
}

// castView merges committed and staged cast roles.
func (t *tx) castView() []models.MovieCast {
	t.s.mu.RLock()
	out := make([]models.MovieCast, 0, len(t.s.casts))
	for id, c := range t.s.casts {
		if staged, ok := t.casts[id]; ok {
			c = staged
		}
		c.AverageRating = cloneFloat(c.AverageRating)
		out = append(out, c)
	}
	t.s.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.MovieCast) int { return compareInt64(a.ID, b.ID) })
	return out
}

//nolint:dupl // cast and crew are distinct types
func (t *tx) crewView() []models.MovieCrew {
	t.s.mu.RLock()
	out := make([]models.MovieCrew, 0, len(t.s.crews))
	for id, c := range t.s.crews {
		if staged, ok := t.crews[id]; ok {
			c = staged
		}
		c.AverageRating = cloneFloat(c.AverageRating)
		out = append(out, c)
	}
	t.s.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.MovieCrew) int { return compareInt64(a.ID, b.ID) })
	return out
}

func (t *tx) CastByMovie(ctx context.Context, movieID int64) ([]models.MovieCast, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(t.castView(), func(c models.MovieCast) bool { return c.MovieID != movieID }), nil
}

func (t *tx) CrewByMovie(ctx context.Context, movieID int64) ([]models.MovieCrew, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(t.crewView(), func(c models.MovieCrew) bool { return c.MovieID != movieID }), nil
}

func (t *tx) CastByPerson(ctx context.Context, personID int64) ([]models.MovieCast, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(t.castView(), func(c models.MovieCast) bool { return c.PersonID != personID }), nil
}

func (t *tx) CrewByPerson(ctx context.Context, personID int64) ([]models.MovieCrew, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(t.crewView(), func(c models.MovieCrew) bool { return c.PersonID != personID }), nil
}

func (t *tx) RatingsByTarget(ctx context.Context, target models.TargetRef) ([]models.Rating, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.ratingsLocked(func(r *models.Rating) bool { return r.Target() == target }), nil
}

func (t *tx) RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return t.s.RatingsByAuthor(ctx, userID)
}

func (t *tx) MatchList(ctx context.Context, userID int64) (*models.UserMatchList, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	l, ok := t.matches[userID]
	if !ok {
		t.s.mu.RLock()
		l, ok = t.s.matches[userID]
		t.s.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("match list for user %d: %w", userID, store.ErrNotFound)
	}
	l = cloneMatchList(l)
	return &l, nil
}

func (t *tx) ReplaceMatchList(ctx context.Context, l *models.UserMatchList) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.matches[l.UserID] = cloneMatchList(*l)
	return nil
}
