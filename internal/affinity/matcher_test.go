// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package affinity

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/lock"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
	"github.com/tomtom215/marquee/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func rate(st *memory.Store, author, movieID int64, score int) {
	st.PutRating(models.Rating{
		AuthorID:   author,
		TargetID:   movieID,
		TargetType: models.EntityMovie,
		Score:      models.Int(score),
	})
}

func runMatching(t *testing.T, st store.Store, cfg Config) *batch.Report {
	t.Helper()
	m := NewMatcher(st, cfg, clock)
	r := batch.NewRunner(st, lock.NewLocalLocker(), batch.DefaultConfig())
	report, err := r.Run(context.Background(), m.Job(), batch.TriggerManual)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return report
}

// fourUsers seeds four users rating four movies with overlapping sets.
func fourUsers() *memory.Store {
	st := memory.New()
	for id := int64(1); id <= 4; id++ {
		st.PutMovie(models.Movie{ID: id})
	}
	rate(st, 1, 1, 9)
	rate(st, 1, 2, 7)
	rate(st, 1, 3, 4)
	rate(st, 2, 1, 8)
	rate(st, 2, 2, 6)
	rate(st, 2, 4, 5)
	rate(st, 3, 2, 3)
	rate(st, 3, 3, 9)
	rate(st, 3, 4, 6)
	rate(st, 4, 1, 2)
	rate(st, 4, 3, 10)
	rate(st, 4, 4, 6)
	return st
}

func TestMatcher_FourUsers(t *testing.T) {
	st := fourUsers()
	report := runMatching(t, st, DefaultConfig())

	if report.Updated != 4 || report.Failed != 0 {
		t.Fatalf("report updated=%d failed=%d, want 4/0", report.Updated, report.Failed)
	}

	for user := int64(1); user <= 4; user++ {
		l, ok := st.GetMatchList(user)
		if !ok {
			t.Fatalf("user %d has no match list", user)
		}
		ids := l.MatchedUserIDs()
		if len(ids) != 3 {
			t.Errorf("user %d matches = %v, want 3 others", user, ids)
		}
		if slices.Contains(ids, user) {
			t.Errorf("user %d matched itself: %v", user, ids)
		}
		for i := 1; i < len(l.Matches); i++ {
			if l.Matches[i].Similarity > l.Matches[i-1].Similarity {
				t.Errorf("user %d matches not sorted: %+v", user, l.Matches)
			}
		}
		if !l.UpdatedAt.Equal(fixedNow) {
			t.Errorf("UpdatedAt = %v, want %v", l.UpdatedAt, fixedNow)
		}
	}

	// users 1 and 2 agree on movies 1 and 2
	l1, _ := st.GetMatchList(1)
	if l1.Matches[0].MatchedUserID != 2 || math.Abs(l1.Matches[0].Similarity-1) > 1e-9 {
		t.Errorf("user 1 best match = %+v, want user 2 with similarity 1", l1.Matches[0])
	}
}

func TestMatcher_NoOverlapTieBreak(t *testing.T) {
	st := memory.New()
	// users 1..13 each rate a private movie; nobody shares anything
	for user := int64(1); user <= 13; user++ {
		rate(st, user, 100+user, 7)
		rate(st, user, 200+user, 3)
	}

	runMatching(t, st, DefaultConfig())

	l, _ := st.GetMatchList(7)
	want := []int64{1, 2, 3, 4, 5, 6, 8, 9, 10, 11}
	if got := l.MatchedUserIDs(); !slices.Equal(got, want) {
		t.Errorf("user 7 matches = %v, want %v", got, want)
	}
	for _, m := range l.Matches {
		if m.Similarity != 0 {
			t.Errorf("similarity to %d = %v, want 0", m.MatchedUserID, m.Similarity)
		}
	}
}

func TestMatcher_Reproducible(t *testing.T) {
	st := fourUsers()
	// extra users so ranks are truncated and ties exist
	for user := int64(5); user <= 15; user++ {
		rate(st, user, 1, int(user%10)+1)
		rate(st, user, 2, int(user%3)+4)
		rate(st, user, 3, 5)
	}

	cfg := Config{TopN: 10, Workers: 8}
	runMatching(t, st, cfg)
	first := make(map[int64][]models.UserMatch)
	for user := int64(1); user <= 15; user++ {
		l, _ := st.GetMatchList(user)
		first[user] = l.Matches
	}

	runMatching(t, st, cfg)
	for user := int64(1); user <= 15; user++ {
		l, _ := st.GetMatchList(user)
		if !slices.Equal(l.Matches, first[user]) {
			t.Errorf("user %d matches changed between runs:\n%v\n%v", user, first[user], l.Matches)
		}
		if len(l.Matches) != 10 {
			t.Errorf("user %d has %d matches, want 10", user, len(l.Matches))
		}
	}
}

func TestMatcher_ReplacesWholeList(t *testing.T) {
	st := fourUsers()
	ctx := context.Background()

	stale := &models.UserMatchList{UserID: 1, Matches: []models.UserMatch{
		{Rank: 1, MatchedUserID: 42, Similarity: 1},
	}}
	if err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ReplaceMatchList(ctx, stale)
	}); err != nil {
		t.Fatalf("seed stale list: %v", err)
	}

	runMatching(t, st, DefaultConfig())

	l, _ := st.GetMatchList(1)
	if slices.Contains(l.MatchedUserIDs(), 42) {
		t.Errorf("stale match survived: %v", l.MatchedUserIDs())
	}
}

func TestMatcher_TopNConfig(t *testing.T) {
	st := fourUsers()
	runMatching(t, st, Config{TopN: 2})

	l, _ := st.GetMatchList(3)
	if len(l.Matches) != 2 {
		t.Errorf("len(matches) = %d, want 2", len(l.Matches))
	}
}

// flakyStore fails candidate reads for one user.
type flakyStore struct {
	*memory.Store
	badUser int64
}

func (f *flakyStore) RatingsByAuthor(ctx context.Context, userID int64) ([]models.Rating, error) {
	if userID == f.badUser {
		return nil, errors.New("replica lag")
	}
	return f.Store.RatingsByAuthor(ctx, userID)
}

func TestMatcher_CandidateFailureKeepsPreviousList(t *testing.T) {
	mem := fourUsers()
	runMatching(t, mem, DefaultConfig())
	before, _ := mem.GetMatchList(1)

	// user 4 now rates differently, but reading user 3 fails
	rate(mem, 4, 2, 1)
	st := &flakyStore{Store: mem, badUser: 3}

	report := runMatching(t, st, DefaultConfig())

	// every subject other than 3 needs user 3's vector
	if report.Failed != 3 || report.Updated != 1 {
		t.Errorf("report updated=%d failed=%d, want 1/3", report.Updated, report.Failed)
	}
	after, _ := mem.GetMatchList(1)
	if !slices.Equal(after.Matches, before.Matches) {
		t.Errorf("user 1 list changed despite failure: %v -> %v", before.Matches, after.Matches)
	}
}
