// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext bounds schema creation so a wedged file lock fails startup
// instead of hanging it.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS movies (
			id BIGINT PRIMARY KEY,
			title VARCHAR NOT NULL DEFAULT '',
			release_date DATE,
			released BOOLEAN NOT NULL DEFAULT false,
			average_rating DOUBLE,
			predicted_rating DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id BIGINT PRIMARY KEY,
			name VARCHAR NOT NULL DEFAULT '',
			average_rating_by_roles DOUBLE,
			average_rating_by_movies DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS movie_casts (
			id BIGINT PRIMARY KEY,
			movie_id BIGINT NOT NULL,
			person_id BIGINT NOT NULL,
			character_name VARCHAR NOT NULL DEFAULT '',
			average_rating DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS movie_crews (
			id BIGINT PRIMARY KEY,
			movie_id BIGINT NOT NULL,
			person_id BIGINT NOT NULL,
			job VARCHAR NOT NULL DEFAULT '',
			department VARCHAR NOT NULL DEFAULT '',
			average_rating DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS ratings (
			id BIGINT PRIMARY KEY,
			author_id BIGINT NOT NULL,
			target_type VARCHAR NOT NULL,
			target_id BIGINT NOT NULL,
			score INTEGER CHECK (score IS NULL OR score BETWEEN 1 AND 10),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		// One row per user that has ever been matched, so an empty list is
		// distinguishable from a missing one.
		`CREATE TABLE IF NOT EXISTS user_match_lists (
			user_id BIGINT PRIMARY KEY,
			updated_at TIMESTAMP NOT NULL
		)`,
		// No key: a list is replaced by delete + insert inside one transaction.
		`CREATE TABLE IF NOT EXISTS user_matches (
			user_id BIGINT NOT NULL,
			match_rank INTEGER NOT NULL,
			matched_user_id BIGINT NOT NULL,
			similarity DOUBLE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_target ON ratings(target_type, target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_author ON ratings(author_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movie_casts_movie ON movie_casts(movie_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movie_casts_person ON movie_casts(person_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movie_crews_movie ON movie_crews(movie_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movie_crews_person ON movie_crews(person_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_matches_user ON user_matches(user_id)`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
