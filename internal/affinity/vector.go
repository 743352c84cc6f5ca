// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package affinity ranks users by how similarly they rate the catalog.
//
// A user's taste is their rating vector: target to score, for every rating
// that carries a score. Two users are compared with Pearson correlation over
// the targets both have scored. Each user keeps the TopN most similar other
// users, replaced wholesale on every matching cycle.
package affinity

import (
	"cmp"
	"math"
	"slices"

	"github.com/tomtom215/marquee/internal/models"
)

// Vector maps a rated target to the user's score for it.
type Vector map[models.TargetRef]float64

// BuildVector collects the scored ratings of one user. When a user has
// scored the same target more than once, the most recently updated rating
// wins, with the higher rating id breaking exact timestamp ties.
func BuildVector(ratings []models.Rating) Vector {
	v := make(Vector, len(ratings))
	latest := make(map[models.TargetRef]*models.Rating, len(ratings))

	for i := range ratings {
		r := &ratings[i]
		if !r.HasScore() {
			continue
		}
		key := r.Target()
		if prev, ok := latest[key]; ok {
			if r.UpdatedAt.Before(prev.UpdatedAt) ||
				(r.UpdatedAt.Equal(prev.UpdatedAt) && r.ID < prev.ID) {
				continue
			}
		}
		latest[key] = r
		v[key] = float64(*r.Score)
	}
	return v
}

// sharedTargets returns the targets present in both vectors in a fixed
// order, so floating point sums come out identical on every run.
func sharedTargets(a, b Vector) []models.TargetRef {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := make([]models.TargetRef, 0, len(small))
	for k := range small {
		if _, ok := large[k]; ok {
			shared = append(shared, k)
		}
	}
	slices.SortFunc(shared, func(x, y models.TargetRef) int {
		if c := cmp.Compare(x.Type, y.Type); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return shared
}

// Pearson returns the correlation of a and b over their shared targets, in
// [-1, 1]. Fewer than two shared targets, or no variance on either side,
// yields 0.
func Pearson(a, b Vector) float64 {
	shared := sharedTargets(a, b)
	if len(shared) < 2 {
		return 0
	}

	var sumA, sumB float64
	for _, k := range shared {
		sumA += a[k]
		sumB += b[k]
	}
	n := float64(len(shared))
	meanA := sumA / n
	meanB := sumB / n

	var num, denA, denB float64
	for _, k := range shared {
		diffA := a[k] - meanA
		diffB := b[k] - meanB
		num += diffA * diffB
		denA += diffA * diffA
		denB += diffB * diffB
	}

	if denA == 0 || denB == 0 {
		return 0
	}

	sim := num / math.Sqrt(denA*denB)
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}
