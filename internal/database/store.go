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
	"iter"
	"time"

	"github.com/tomtom215/marquee/internal/database/query"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var idQueries = map[models.EntityType]string{
	models.EntityMovie:     `SELECT id FROM movies ORDER BY id`,
	models.EntityMovieCast: `SELECT id FROM movie_casts ORDER BY id`,
	models.EntityMovieCrew: `SELECT id FROM movie_crews ORDER BY id`,
	models.EntityPerson:    `SELECT id FROM persons ORDER BY id`,
	// rating authors count as users even without a users row
	models.EntityUser: `SELECT id FROM users UNION SELECT author_id FROM ratings ORDER BY 1`,
}

// IDs implements store.Store. Ids are streamed from an open cursor; the
// cursor is closed when the consumer stops or the sequence ends.
func (db *DB) IDs(ctx context.Context, entity models.EntityType) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		q, ok := idQueries[entity]
		if !ok {
			yield(0, fmt.Errorf("unknown entity type %q", entity))
			return
		}

		start := time.Now()
		rows, err := db.conn.QueryContext(ctx, q)
		observe("SELECT", entity.String(), start, err)
		if err != nil {
			yield(0, fmt.Errorf("failed to enumerate %s ids: %w", entity, err))
			return
		}
		defer closeWithLog(rows, "rows")

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				yield(0, fmt.Errorf("failed to scan %s id: %w", entity, err))
				return
			}
			if !yield(id, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(0, fmt.Errorf("failed to enumerate %s ids: %w", entity, err))
		}
	}
}

// RatingsByAuthor implements store.Store.
func (db *DB) RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error) {
	return queryRatings(ctx, db.conn, query.NewWhereBuilder().AddEquals("author_id", userID))
}

// RunInTx implements store.Store.
func (db *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	t := &tx{q: sqlTx}

	defer func() {
		t.done = true
		if p := recover(); p != nil {
			rollback(sqlTx)
			panic(p)
		}
		if err != nil {
			rollback(sqlTx)
			return
		}
		if cerr := sqlTx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	return fn(ctx, t)
}

// rollback discards a transaction. database/sql already rolled it back when
// the context was cancelled, which is not worth a log line.
func rollback(sqlTx *sql.Tx) {
	if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logging.Warn().Err(err).Msg("Failed to roll back transaction")
	}
}

// Seed implements store.Seeder. Rows are upserted by id in one transaction.
func (db *DB) Seed(ctx context.Context, ds store.Dataset) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	if err := seed(ctx, sqlTx, &ds); err != nil {
		rollback(sqlTx)
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}

func seed(ctx context.Context, q querier, ds *store.Dataset) error {
	exec := func(table, stmt string, args ...any) error {
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to seed %s: %w", table, err)
		}
		return nil
	}

	for i := range ds.Movies {
		m := &ds.Movies[i]
		if err := exec("movies",
			`INSERT OR REPLACE INTO movies (id, title, release_date, released, average_rating, predicted_rating)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.Title, nullTime(m.ReleaseDate), m.Released, nullFloat(m.AverageRating), nullFloat(m.PredictedRating),
		); err != nil {
			return err
		}
	}
	for i := range ds.Persons {
		p := &ds.Persons[i]
		if err := exec("persons",
			`INSERT OR REPLACE INTO persons (id, name, average_rating_by_roles, average_rating_by_movies)
			 VALUES (?, ?, ?, ?)`,
			p.ID, p.Name, nullFloat(p.AverageRatingByRoles), nullFloat(p.AverageRatingByMovies),
		); err != nil {
			return err
		}
	}
	for i := range ds.Casts {
		c := &ds.Casts[i]
		if err := exec("movie_casts",
			`INSERT OR REPLACE INTO movie_casts (id, movie_id, person_id, character_name, average_rating)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.MovieID, c.PersonID, c.Character, nullFloat(c.AverageRating),
		); err != nil {
			return err
		}
	}
	for i := range ds.Crews {
		c := &ds.Crews[i]
		if err := exec("movie_crews",
			`INSERT OR REPLACE INTO movie_crews (id, movie_id, person_id, job, department, average_rating)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.MovieID, c.PersonID, c.Job, c.Department, nullFloat(c.AverageRating),
		); err != nil {
			return err
		}
	}

	users := make(map[int64]struct{}, len(ds.Users))
	for _, id := range ds.Users {
		users[id] = struct{}{}
	}
	for i := range ds.Ratings {
		users[ds.Ratings[i].AuthorID] = struct{}{}
	}
	for id := range users {
		if err := exec("users", `INSERT OR IGNORE INTO users (id) VALUES (?)`, id); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for i := range ds.Ratings {
		r := ds.Ratings[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}
		if err := exec("ratings",
			`INSERT OR REPLACE INTO ratings (id, author_id, target_type, target_id, score, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.AuthorID, string(r.TargetType), r.TargetID, nullInt(r.Score), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		); err != nil {
			return err
		}
	}
	return nil
}

const ratingColumns = `id, author_id, target_type, target_id, score, created_at, updated_at`

func queryRatings(ctx context.Context, q querier, where *query.WhereBuilder) ([]models.Rating, error) {
	clause, args := where.BuildWithPrefix()
	start := time.Now()
	rows, err := q.QueryContext(ctx, `SELECT `+ratingColumns+` FROM ratings `+clause+` ORDER BY id`, args...)
	observe("SELECT", "ratings", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.Rating
	for rows.Next() {
		var (
			r          models.Rating
			targetType string
			score      sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.AuthorID, &targetType, &r.TargetID, &score, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		r.TargetType = models.EntityType(targetType)
		if score.Valid {
			r.Score = models.Int(int(score.Int64))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
