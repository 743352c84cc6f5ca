// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// MatchEntry is one ranked match.
type MatchEntry struct {
	Rank       int     `json:"rank"`
	UserID     int64   `json:"user_id"`
	Similarity float64 `json:"similarity"`
}

// MatchListResponse is the body of GET /api/v1/users/{id}/matches.
type MatchListResponse struct {
	UserID    int64        `json:"user_id"`
	UpdatedAt time.Time    `json:"updated_at"`
	Matches   []MatchEntry `json:"matches"`
}

// UserMatches returns a user's stored top matches.
func (router *Router) UserMatches(w http.ResponseWriter, r *http.Request) {
	if router.store == nil {
		respondError(w, http.StatusNotImplemented, "NOT_AVAILABLE", "match lookup is not configured", nil)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_USER_ID", "user id must be a positive integer", nil)
		return
	}

	var list *models.UserMatchList
	err = router.store.RunInTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		list, err = tx.MatchList(ctx, id)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "MATCHES_NOT_FOUND", "no match list for user", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to read match list", err)
		return
	}

	resp := MatchListResponse{
		UserID:    list.UserID,
		UpdatedAt: list.UpdatedAt,
		Matches:   make([]MatchEntry, 0, len(list.Matches)),
	}
	for _, m := range list.Matches {
		resp.Matches = append(resp.Matches, MatchEntry{Rank: m.Rank, UserID: m.MatchedUserID, Similarity: m.Similarity})
	}
	respondData(w, http.StatusOK, resp)
}
