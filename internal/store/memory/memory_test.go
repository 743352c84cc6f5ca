// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package memory

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

var _ store.Store = (*Store)(nil)
var _ store.Seeder = (*Store)(nil)

func collectIDs(t *testing.T, s *Store, entity models.EntityType) ([]int64, error) {
	t.Helper()
	var ids []int64
	for id, err := range s.IDs(context.Background(), entity) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func TestStore_IDs(t *testing.T) {
	s := New()
	for _, id := range []int64{5, 1, 3} {
		s.PutMovie(models.Movie{ID: id})
	}
	s.PutUser(9)
	s.PutRating(models.Rating{AuthorID: 2, TargetID: 1, TargetType: models.EntityMovie, Score: models.Int(5)})

	tests := []struct {
		name   string
		entity models.EntityType
		want   []int64
	}{
		{"movies ascending", models.EntityMovie, []int64{1, 3, 5}},
		{"users include rating authors", models.EntityUser, []int64{2, 9}},
		{"empty entity", models.EntityPerson, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectIDs(t, s, tt.entity)
			if err != nil {
				t.Fatalf("IDs() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("IDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_IDsFault(t *testing.T) {
	s := New()
	for id := int64(1); id <= 4; id++ {
		s.PutPerson(models.Person{ID: id})
	}
	boom := errors.New("cursor lost")
	s.FailIDsAfter(models.EntityPerson, 2, boom)

	got, err := collectIDs(t, s, models.EntityPerson)
	if !errors.Is(err, boom) {
		t.Fatalf("IDs() error = %v, want %v", err, boom)
	}
	if !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("IDs() before failure = %v, want [1 2]", got)
	}
}

func TestStore_IDsUnknownEntity(t *testing.T) {
	s := New()
	if _, err := collectIDs(t, s, models.EntityType("genre")); err == nil {
		t.Fatal("IDs() expected error for unknown entity type")
	}
}

func TestStore_RunInTxCommit(t *testing.T) {
	s := New()
	s.PutMovie(models.Movie{ID: 1, Title: "A"})

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		m, err := tx.Movie(ctx, 1)
		if err != nil {
			return err
		}
		m.AverageRating = models.Float(7.5)
		if err := tx.SaveMovie(ctx, m); err != nil {
			return err
		}
		// staged write is visible inside the same unit
		again, err := tx.Movie(ctx, 1)
		if err != nil {
			return err
		}
		if again.AverageRating == nil || *again.AverageRating != 7.5 {
			t.Errorf("staged read = %v, want 7.5", models.FormatOptional(again.AverageRating))
		}
		// but not outside of it
		if committed, _ := s.GetMovie(1); committed.AverageRating != nil {
			t.Error("staged write leaked before commit")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx() error = %v", err)
	}

	m, _ := s.GetMovie(1)
	if m.AverageRating == nil || *m.AverageRating != 7.5 {
		t.Errorf("AverageRating = %s, want 7.5", models.FormatOptional(m.AverageRating))
	}
	if commits, rollbacks := s.TxStats(); commits != 1 || rollbacks != 0 {
		t.Errorf("TxStats() = (%d, %d), want (1, 0)", commits, rollbacks)
	}
}

func TestStore_RunInTxRollback(t *testing.T) {
	s := New()
	s.PutPerson(models.Person{ID: 1})
	boom := errors.New("boom")

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Person(ctx, 1)
		if err != nil {
			return err
		}
		p.AverageRatingByRoles = models.Float(3)
		if err := tx.SavePerson(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx() error = %v, want %v", err, boom)
	}

	p, _ := s.GetPerson(1)
	if p.AverageRatingByRoles != nil {
		t.Error("rolled back write was published")
	}
	if commits, rollbacks := s.TxStats(); commits != 0 || rollbacks != 1 {
		t.Errorf("TxStats() = (%d, %d), want (0, 1)", commits, rollbacks)
	}
}

func TestStore_RunInTxPanic(t *testing.T) {
	s := New()
	s.PutMovie(models.Movie{ID: 1})

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic to propagate")
		}
		m, _ := s.GetMovie(1)
		if m.Released {
			t.Error("write from panicking unit was published")
		}
		if _, rollbacks := s.TxStats(); rollbacks != 1 {
			t.Errorf("rollbacks = %d, want 1", rollbacks)
		}
	}()

	_ = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		m, _ := tx.Movie(ctx, 1)
		m.Released = true
		_ = tx.SaveMovie(ctx, m)
		panic("kaboom")
	})
}

func TestStore_TxUseAfterFinish(t *testing.T) {
	s := New()
	s.PutMovie(models.Movie{ID: 1})

	var leaked store.Tx
	_ = s.RunInTx(context.Background(), func(_ context.Context, tx store.Tx) error {
		leaked = tx
		return nil
	})

	if _, err := leaked.Movie(context.Background(), 1); !errors.Is(err, errTxDone) {
		t.Errorf("Movie() after finish error = %v, want %v", err, errTxDone)
	}
}

func TestTx_NotFound(t *testing.T) {
	s := New()
	_ = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Movie(ctx, 42); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Movie() error = %v, want ErrNotFound", err)
		}
		if err := tx.SavePerson(ctx, &models.Person{ID: 42}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("SavePerson() error = %v, want ErrNotFound", err)
		}
		if _, err := tx.MatchList(ctx, 42); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("MatchList() error = %v, want ErrNotFound", err)
		}
		return nil
	})
}

func TestTx_RolesAndRatings(t *testing.T) {
	s := New()
	if err := s.Seed(context.Background(), store.DemoDataset(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	_ = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		cast, err := tx.CastByPerson(ctx, 1)
		if err != nil {
			t.Fatalf("CastByPerson() error = %v", err)
		}
		var ids []int64
		for _, c := range cast {
			ids = append(ids, c.ID)
		}
		if !slices.Equal(ids, []int64{1, 2, 4}) {
			t.Errorf("CastByPerson(1) ids = %v, want [1 2 4]", ids)
		}

		crew, _ := tx.CrewByMovie(ctx, 6)
		if len(crew) != 1 || crew[0].PersonID != 3 {
			t.Errorf("CrewByMovie(6) = %+v, want one role for person 3", crew)
		}

		ratings, _ := tx.RatingsByTarget(ctx, models.TargetRef{Type: models.EntityMovieCast, ID: 1})
		if len(ratings) != 2 {
			t.Errorf("RatingsByTarget(cast 1) len = %d, want 2", len(ratings))
		}
		// same numeric id, different type
		movie1, _ := tx.RatingsByTarget(ctx, models.TargetRef{Type: models.EntityMovie, ID: 1})
		if len(movie1) != 3 {
			t.Errorf("RatingsByTarget(movie 1) len = %d, want 3", len(movie1))
		}
		return nil
	})
}

func TestTx_ReplaceMatchList(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := &models.UserMatchList{UserID: 1, Matches: []models.UserMatch{
		{Rank: 1, MatchedUserID: 2, Similarity: 0.9},
		{Rank: 2, MatchedUserID: 3, Similarity: 0.1},
	}}
	second := &models.UserMatchList{UserID: 1, Matches: []models.UserMatch{
		{Rank: 1, MatchedUserID: 4, Similarity: 0.5},
	}}

	for _, l := range []*models.UserMatchList{first, second} {
		if err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.ReplaceMatchList(ctx, l)
		}); err != nil {
			t.Fatalf("ReplaceMatchList() error = %v", err)
		}
	}

	got, ok := s.GetMatchList(1)
	if !ok {
		t.Fatal("match list missing")
	}
	if !slices.Equal(got.MatchedUserIDs(), []int64{4}) {
		t.Errorf("MatchedUserIDs() = %v, want [4]", got.MatchedUserIDs())
	}
}
