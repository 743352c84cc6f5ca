// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import "time"

// UserMatch is one entry of a user's ranked match list.
type UserMatch struct {
	// Rank is 1-based; rank 1 is the most similar user.
	Rank          int
	MatchedUserID int64
	Similarity    float64
}

// UserMatchList is a user's most similar other users, best first.
// It is always replaced as a whole, never merged.
type UserMatchList struct {
	UserID    int64
	Matches   []UserMatch
	UpdatedAt time.Time
}

// MatchedUserIDs returns the matched user IDs in rank order.
func (l *UserMatchList) MatchedUserIDs() []int64 {
	ids := make([]int64, len(l.Matches))
	for i, m := range l.Matches {
		ids[i] = m.MatchedUserID
	}
	return ids
}
