// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/database/query"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// errTxDone is returned when a unit of work is used after it finished.
var errTxDone = errors.New("unit of work already finished")

// tx adapts a *sql.Tx to store.Tx.
type tx struct {
	q    querier
	done bool
}

func (t *tx) check(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	return ctx.Err()
}

// notFound maps sql.ErrNoRows onto store.ErrNotFound.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", what, id, err)
}

// update runs an UPDATE that must touch exactly the row with the given id.
func (t *tx) update(ctx context.Context, table, what string, id int64, stmt string, args ...any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	start := time.Now()
	res, err := t.q.ExecContext(ctx, stmt, args...)
	observe("UPDATE", table, start, err)
	if err != nil {
		return fmt.Errorf("failed to save %s %d: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save %s %d: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return nil
}

func (t *tx) Movie(ctx context.Context, id int64) (*models.Movie, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	var (
		m                  models.Movie
		releaseDate        sql.NullTime
		average, predicted sql.NullFloat64
	)
	start := time.Now()
	err := t.q.QueryRowContext(ctx,
		`SELECT id, title, release_date, released, average_rating, predicted_rating FROM movies WHERE id = ?`, id,
	).Scan(&m.ID, &m.Title, &releaseDate, &m.Released, &average, &predicted)
	observe("SELECT", "movies", start, err)
	if err != nil {
		return nil, notFound(err, "movie", id)
	}
	if releaseDate.Valid {
		d := releaseDate.Time
		m.ReleaseDate = &d
	}
	m.AverageRating = floatPtr(average)
	m.PredictedRating = floatPtr(predicted)
	return &m, nil
}

func (t *tx) SaveMovie(ctx context.Context, m *models.Movie) error {
	return t.update(ctx, "movies", "movie", m.ID,
		`UPDATE movies SET title = ?, release_date = ?, released = ?, average_rating = ?, predicted_rating = ? WHERE id = ?`,
		m.Title, nullTime(m.ReleaseDate), m.Released, nullFloat(m.AverageRating), nullFloat(m.PredictedRating), m.ID)
}

const (
	castColumns = `id, movie_id, person_id, character_name, average_rating`
	crewColumns = `id, movie_id, person_id, job, department, average_rating`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanCast(row scanner) (models.MovieCast, error) {
	var (
		c       models.MovieCast
		average sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.MovieID, &c.PersonID, &c.Character, &average)
	c.AverageRating = floatPtr(average)
	return c, err
}

func scanCrew(row scanner) (models.MovieCrew, error) {
	var (
		c       models.MovieCrew
		average sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.MovieID, &c.PersonID, &c.Job, &c.Department, &average)
	c.AverageRating = floatPtr(average)
	return c, err
}

func (t *tx) MovieCast(ctx context.Context, id int64) (*models.MovieCast, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	c, err := scanCast(t.q.QueryRowContext(ctx, `SELECT `+castColumns+` FROM movie_casts WHERE id = ?`, id))
	observe("SELECT", "movie_casts", start, err)
	if err != nil {
		return nil, notFound(err, "movie cast", id)
	}
	return &c, nil
}

func (t *tx) SaveMovieCast(ctx context.Context, c *models.MovieCast) error {
	return t.update(ctx, "movie_casts", "movie cast", c.ID,
		`UPDATE movie_casts SET average_rating = ? WHERE id = ?`, nullFloat(c.AverageRating), c.ID)
}

func (t *tx) MovieCrew(ctx context.Context, id int64) (*models.MovieCrew, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	c, err := scanCrew(t.q.QueryRowContext(ctx, `SELECT `+crewColumns+` FROM movie_crews WHERE id = ?`, id))
	observe("SELECT", "movie_crews", start, err)
	if err != nil {
		return nil, notFound(err, "movie crew", id)
	}
	return &c, nil
}

func (t *tx) SaveMovieCrew(ctx context.Context, c *models.MovieCrew) error {
	return t.update(ctx, "movie_crews", "movie crew", c.ID,
		`UPDATE movie_crews SET average_rating = ? WHERE id = ?`, nullFloat(c.AverageRating), c.ID)
}

func (t *tx) Person(ctx context.Context, id int64) (*models.Person, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	var (
		p              models.Person
		roles, byMovie sql.NullFloat64
	)
	start := time.Now()
	err := t.q.QueryRowContext(ctx,
		`SELECT id, name, average_rating_by_roles, average_rating_by_movies FROM persons WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &roles, &byMovie)
	observe("SELECT", "persons", start, err)
	if err != nil {
		return nil, notFound(err, "person", id)
	}
	p.AverageRatingByRoles = floatPtr(roles)
	p.AverageRatingByMovies = floatPtr(byMovie)
	return &p, nil
}

func (t *tx) SavePerson(ctx context.Context, p *models.Person) error {
	return t.update(ctx, "persons", "person", p.ID,
		`UPDATE persons SET average_rating_by_roles = ?, average_rating_by_movies = ? WHERE id = ?`,
		nullFloat(p.AverageRatingByRoles), nullFloat(p.AverageRatingByMovies), p.ID)
}

func (t *tx) castWhere(ctx context.Context, where *query.WhereBuilder) ([]models.MovieCast, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	clause, args := where.BuildWithPrefix()
	start := time.Now()
	rows, err := t.q.QueryContext(ctx, `SELECT `+castColumns+` FROM movie_casts `+clause+` ORDER BY id`, args...)
	observe("SELECT", "movie_casts", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query cast roles: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.MovieCast
	for rows.Next() {
		c, err := scanCast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cast role: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

//nolint:dupl // cast and crew are distinct types
func (t *tx) crewWhere(ctx context.Context, where *query.WhereBuilder) ([]models.MovieCrew, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	clause, args := where.BuildWithPrefix()
	start := time.Now()
	rows, err := t.q.QueryContext(ctx, `SELECT `+crewColumns+` FROM movie_crews `+clause+` ORDER BY id`, args...)
	observe("SELECT", "movie_crews", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query crew roles: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.MovieCrew
	for rows.Next() {
		c, err := scanCrew(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crew role: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) CastByMovie(ctx context.Context, movieID int64) ([]models.MovieCast, error) {
	return t.castWhere(ctx, query.NewWhereBuilder().AddEquals("movie_id", movieID))
}

func (t *tx) CrewByMovie(ctx context.Context, movieID int64) ([]models.MovieCrew, error) {
	return t.crewWhere(ctx, query.NewWhereBuilder().AddEquals("movie_id", movieID))
}

func (t *tx) CastByPerson(ctx context.Context, personID int64) ([]models.MovieCast, error) {
	return t.castWhere(ctx, query.NewWhereBuilder().AddEquals("person_id", personID))
}

func (t *tx) CrewByPerson(ctx context.Context, personID int64) ([]models.MovieCrew, error) {
	return t.crewWhere(ctx, query.NewWhereBuilder().AddEquals("person_id", personID))
}

func (t *tx) RatingsByTarget(ctx context.Context, target models.TargetRef) ([]models.Rating, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return queryRatings(ctx, t.q, query.NewWhereBuilder().AddTarget(target))
}

func (t *tx) RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	return queryRatings(ctx, t.q, query.NewWhereBuilder().AddEquals("author_id", userID))
}

func (t *tx) MatchList(ctx context.Context, userID int64) (*models.UserMatchList, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}

	l := models.UserMatchList{UserID: userID}
	start := time.Now()
	err := t.q.QueryRowContext(ctx,
		`SELECT updated_at FROM user_match_lists WHERE user_id = ?`, userID,
	).Scan(&l.UpdatedAt)
	observe("SELECT", "user_match_lists", start, err)
	if err != nil {
		return nil, notFound(err, "match list for user", userID)
	}

	start = time.Now()
	rows, err := t.q.QueryContext(ctx,
		`SELECT match_rank, matched_user_id, similarity FROM user_matches WHERE user_id = ? ORDER BY match_rank`, userID)
	observe("SELECT", "user_matches", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for user %d: %w", userID, err)
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var m models.UserMatch
		if err := rows.Scan(&m.Rank, &m.MatchedUserID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		l.Matches = append(l.Matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return &l, nil
}

func (t *tx) ReplaceMatchList(ctx context.Context, l *models.UserMatchList) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	updatedAt := l.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	start := time.Now()
	_, err := t.q.ExecContext(ctx, `DELETE FROM user_matches WHERE user_id = ?`, l.UserID)
	observe("DELETE", "user_matches", start, err)
	if err != nil {
		return fmt.Errorf("failed to clear matches for user %d: %w", l.UserID, err)
	}

	start = time.Now()
	_, err = t.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_match_lists (user_id, updated_at) VALUES (?, ?)`, l.UserID, updatedAt.UTC())
	observe("INSERT", "user_match_lists", start, err)
	if err != nil {
		return fmt.Errorf("failed to save match list for user %d: %w", l.UserID, err)
	}

	for _, m := range l.Matches {
		start = time.Now()
		_, err = t.q.ExecContext(ctx,
			`INSERT INTO user_matches (user_id, match_rank, matched_user_id, similarity) VALUES (?, ?, ?, ?)`,
			l.UserID, m.Rank, m.MatchedUserID, m.Similarity)
		observe("INSERT", "user_matches", start, err)
		if err != nil {
			return fmt.Errorf("failed to save match for user %d: %w", l.UserID, err)
		}
	}
	return nil
}
