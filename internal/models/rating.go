// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import "time"

// Score bounds for a rating.
const (
	MinScore = 1
	MaxScore = 10
)

// TargetRef identifies the entity a rating is about.
type TargetRef struct {
	Type EntityType
	ID   int64
}

// Rating is one user's opinion of a catalog entity. A rating without a
// score exists (the user interacted) but contributes to no aggregate.
type Rating struct {
	ID         int64
	AuthorID   int64
	TargetID   int64
	TargetType EntityType
	Score      *int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Target returns the rating's target reference.
func (r *Rating) Target() TargetRef {
	return TargetRef{Type: r.TargetType, ID: r.TargetID}
}

// HasScore reports whether the rating carries a concrete score.
func (r *Rating) HasScore() bool {
	return r.Score != nil
}

// Int returns a pointer to v. Handy for literal scores.
func Int(v int) *int {
	return &v
}
