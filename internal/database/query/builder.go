// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package query builds parameterized WHERE clauses for the database package.
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("author_id", 7)
//	wb.AddTarget(models.TargetRef{Type: models.EntityMovie, ID: 3})
//	clause, args := wb.BuildWithPrefix()
//	// WHERE author_id = ? AND target_type = ? AND target_id = ?
//
// Column names are interpolated as given and must never come from user input.
package query

import (
	"strings"

	"github.com/tomtom215/marquee/internal/models"
)

// WhereBuilder accumulates AND-joined conditions and their arguments.
type WhereBuilder struct {
	clauses []string
	args    []any
}

// NewWhereBuilder creates an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...any) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?".
func (wb *WhereBuilder) AddEquals(column string, value any) *WhereBuilder {
	return wb.AddClause(column+" = ?", value)
}

// AddTarget restricts ratings to one rated entity.
func (wb *WhereBuilder) AddTarget(target models.TargetRef) *WhereBuilder {
	return wb.
		AddEquals("target_type", string(target.Type)).
		AddEquals("target_id", target.ID)
}

// Build returns the conditions joined with AND, or "1=1" when there are none.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix is Build with a leading "WHERE ".
func (wb *WhereBuilder) BuildWithPrefix() (string, []any) {
	clause, args := wb.Build()
	return "WHERE " + clause, args
}
