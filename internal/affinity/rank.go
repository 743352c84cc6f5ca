// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package affinity

import (
	"cmp"
	"slices"

	"github.com/tomtom215/marquee/internal/models"
)

// Candidate is another user scored against a subject.
type Candidate struct {
	UserID     int64
	Similarity float64
}

// Rank orders candidates by similarity, highest first, breaking ties by
// ascending user id, and returns the first n as ranked matches.
func Rank(candidates []Candidate, n int) []models.UserMatch {
	sorted := slices.Clone(candidates)
	slices.SortFunc(sorted, func(a, b Candidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	if n < 0 {
		n = 0
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	matches := make([]models.UserMatch, len(sorted))
	for i, c := range sorted {
		matches[i] = models.UserMatch{
			Rank:          i + 1,
			MatchedUserID: c.UserID,
			Similarity:    c.Similarity,
		}
	}
	return matches
}
