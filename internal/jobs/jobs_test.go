// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package jobs

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/lock"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
	"github.com/tomtom215/marquee/internal/store/memory"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func run(t *testing.T, st store.Store, job batch.Job) *batch.Report {
	t.Helper()
	r := batch.NewRunner(st, lock.NewLocalLocker(), batch.DefaultConfig())
	report, err := r.Run(context.Background(), job, batch.TriggerManual)
	if err != nil {
		t.Fatalf("Run(%s) error = %v", job.Name(), err)
	}
	return report
}

func rate(st *memory.Store, author int64, target models.EntityType, id int64, score *int) {
	st.PutRating(models.Rating{AuthorID: author, TargetID: id, TargetType: target, Score: score})
}

func assertFloat(t *testing.T, field string, got *float64, want *float64) {
	t.Helper()
	switch {
	case want == nil && got == nil:
	case want == nil || got == nil:
		t.Errorf("%s = %s, want %s", field, models.FormatOptional(got), models.FormatOptional(want))
	case math.Abs(*got-*want) > 1e-9:
		t.Errorf("%s = %v, want %v", field, *got, *want)
	}
}

func TestAll(t *testing.T) {
	all := All(func() time.Time { return now })
	for _, name := range []string{
		MovieAverageRating, MovieCastAverageRating, MovieCrewAverageRating,
		PersonAverageByRoles, PersonAverageByMovies, MoviePredictedRating, MovieReleasedStatus,
	} {
		job, ok := all[name]
		if !ok {
			t.Errorf("All() missing %s", name)
			continue
		}
		if job.Name() != name {
			t.Errorf("All()[%s].Name() = %s", name, job.Name())
		}
	}
	if len(all) != 7 {
		t.Errorf("len(All()) = %d, want 7", len(all))
	}
}

func TestMovieAverageRating(t *testing.T) {
	tests := []struct {
		name   string
		scores []*int
		prior  *float64
		want   *float64
	}{
		{"mean of two", []*int{models.Int(3), models.Int(6)}, nil, models.Float(4.5)},
		{"absent scores ignored", []*int{models.Int(8), nil, models.Int(10)}, nil, models.Float(9)},
		{"no ratings stays unset", nil, nil, nil},
		{"only absent scores stays unset", []*int{nil, nil}, nil, nil},
		{"no ratings keeps prior value", nil, models.Float(7), models.Float(7)},
		{"overwrites stale value", []*int{models.Int(2)}, models.Float(9), models.Float(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			st.PutMovie(models.Movie{ID: 1, AverageRating: tt.prior})
			for i, s := range tt.scores {
				rate(st, int64(i+1), models.EntityMovie, 1, s)
			}
			// a cast rating with the same numeric id must not leak in
			rate(st, 99, models.EntityMovieCast, 1, models.Int(1))

			run(t, st, NewMovieAverageRating())

			m, _ := st.GetMovie(1)
			assertFloat(t, "AverageRating", m.AverageRating, tt.want)
		})
	}
}

func TestRoleAverageRatings(t *testing.T) {
	st := memory.New()
	st.PutMovieCast(models.MovieCast{ID: 1, MovieID: 1, PersonID: 1})
	st.PutMovieCast(models.MovieCast{ID: 2, MovieID: 1, PersonID: 2})
	st.PutMovieCrew(models.MovieCrew{ID: 1, MovieID: 1, PersonID: 3})
	rate(st, 1, models.EntityMovieCast, 1, models.Int(4))
	rate(st, 2, models.EntityMovieCast, 1, models.Int(5))
	rate(st, 1, models.EntityMovieCrew, 1, models.Int(7))

	castReport := run(t, st, NewMovieCastAverageRating())
	run(t, st, NewMovieCrewAverageRating())

	c1, _ := st.GetMovieCast(1)
	assertFloat(t, "cast 1", c1.AverageRating, models.Float(4.5))
	c2, _ := st.GetMovieCast(2)
	assertFloat(t, "cast 2", c2.AverageRating, nil)
	crew, _ := st.GetMovieCrew(1)
	assertFloat(t, "crew 1", crew.AverageRating, models.Float(7))

	if castReport.Updated != 1 || castReport.Unchanged != 1 {
		t.Errorf("cast report updated=%d unchanged=%d, want 1/1", castReport.Updated, castReport.Unchanged)
	}
}

func TestPersonAverages(t *testing.T) {
	st := memory.New()
	st.PutPerson(models.Person{ID: 1})
	st.PutPerson(models.Person{ID: 2})
	st.PutMovie(models.Movie{ID: 10, AverageRating: models.Float(8)})
	st.PutMovie(models.Movie{ID: 11, AverageRating: models.Float(6)})
	st.PutMovie(models.Movie{ID: 12})

	// person 1: two roles on movie 10, one on movie 11, one unrated role on 12
	st.PutMovieCast(models.MovieCast{ID: 1, MovieID: 10, PersonID: 1, AverageRating: models.Float(9)})
	st.PutMovieCrew(models.MovieCrew{ID: 1, MovieID: 10, PersonID: 1, AverageRating: models.Float(5)})
	st.PutMovieCast(models.MovieCast{ID: 2, MovieID: 11, PersonID: 1, AverageRating: models.Float(4)})
	st.PutMovieCrew(models.MovieCrew{ID: 2, MovieID: 12, PersonID: 1})

	run(t, st, NewPersonAverageByRoles())
	run(t, st, NewPersonAverageByMovies())

	p1, _ := st.GetPerson(1)
	assertFloat(t, "by roles", p1.AverageRatingByRoles, models.Float(6))
	// movie 10 counted once
	assertFloat(t, "by movies", p1.AverageRatingByMovies, models.Float(7))

	p2, _ := st.GetPerson(2)
	assertFloat(t, "person 2 by roles", p2.AverageRatingByRoles, nil)
	assertFloat(t, "person 2 by movies", p2.AverageRatingByMovies, nil)
}

func TestMoviePredictedRating(t *testing.T) {
	st := memory.New()
	st.PutPerson(models.Person{ID: 1, AverageRatingByRoles: models.Float(6)})
	st.PutPerson(models.Person{ID: 2, AverageRatingByRoles: models.Float(9)})
	st.PutPerson(models.Person{ID: 3})

	st.PutMovie(models.Movie{ID: 1, Released: false})
	st.PutMovie(models.Movie{ID: 2, Released: true})
	st.PutMovie(models.Movie{ID: 3, Released: false})

	// movie 1: person 1 in two roles, person 2 once, person 3 without a value
	st.PutMovieCast(models.MovieCast{ID: 1, MovieID: 1, PersonID: 1})
	st.PutMovieCrew(models.MovieCrew{ID: 1, MovieID: 1, PersonID: 1})
	st.PutMovieCrew(models.MovieCrew{ID: 2, MovieID: 1, PersonID: 2})
	st.PutMovieCast(models.MovieCast{ID: 2, MovieID: 1, PersonID: 3})
	st.PutMovieCast(models.MovieCast{ID: 3, MovieID: 2, PersonID: 2})
	st.PutMovieCast(models.MovieCast{ID: 4, MovieID: 3, PersonID: 3})

	run(t, st, NewMoviePredictedRating())

	m1, _ := st.GetMovie(1)
	assertFloat(t, "unreleased prediction", m1.PredictedRating, models.Float(7.5))
	m2, _ := st.GetMovie(2)
	assertFloat(t, "released prediction", m2.PredictedRating, nil)
	m3, _ := st.GetMovie(3)
	assertFloat(t, "no inputs prediction", m3.PredictedRating, nil)
}

func TestMovieReleasedStatus(t *testing.T) {
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 1, 0)

	tests := []struct {
		name     string
		movie    models.Movie
		want     bool
		wantDiff bool
	}{
		{"past date flips", models.Movie{ReleaseDate: &past}, true, true},
		{"release date equal to now flips", models.Movie{ReleaseDate: &now}, true, true},
		{"future date stays", models.Movie{ReleaseDate: &future}, false, false},
		{"no date stays", models.Movie{}, false, false},
		{"released with future date never reverts", models.Movie{ReleaseDate: &future, Released: true}, true, false},
		{"already released unaffected", models.Movie{ReleaseDate: &past, Released: true}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			tt.movie.ID = 1
			st.PutMovie(tt.movie)

			report := run(t, st, NewMovieReleasedStatus(func() time.Time { return now }))

			m, _ := st.GetMovie(1)
			if m.Released != tt.want {
				t.Errorf("Released = %v, want %v", m.Released, tt.want)
			}
			if got := report.Updated == 1; got != tt.wantDiff {
				t.Errorf("updated = %v, want %v", got, tt.wantDiff)
			}
		})
	}
}

func TestJobs_Idempotent(t *testing.T) {
	st := memory.New()
	if err := st.Seed(context.Background(), store.DemoDataset(now)); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	ordered := []batch.Job{
		NewMovieAverageRating(),
		NewMovieCastAverageRating(),
		NewMovieCrewAverageRating(),
		NewPersonAverageByRoles(),
		NewPersonAverageByMovies(),
		NewMoviePredictedRating(),
		NewMovieReleasedStatus(func() time.Time { return now }),
	}

	snapshot := func() []string {
		var out []string
		for id := int64(1); id <= 6; id++ {
			m, _ := st.GetMovie(id)
			out = append(out, models.FormatOptional(m.AverageRating), models.FormatOptional(m.PredictedRating))
		}
		for id := int64(1); id <= 3; id++ {
			p, _ := st.GetPerson(id)
			out = append(out, models.FormatOptional(p.AverageRatingByRoles), models.FormatOptional(p.AverageRatingByMovies))
		}
		return out
	}

	for _, j := range ordered {
		run(t, st, j)
	}
	first := snapshot()

	for _, j := range ordered {
		report := run(t, st, j)
		if report.Updated != 0 {
			t.Errorf("second %s run updated %d ids, want 0", j.Name(), report.Updated)
		}
	}
	second := snapshot()

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("snapshot differs at %d: %s vs %s", i, first[i], second[i])
		}
	}

	// the due movie in the demo catalog was flipped
	m5, _ := st.GetMovie(5)
	if !m5.Released {
		t.Error("movie 5 should be released after the first cycle")
	}
}

// failingStore fails saves for one movie id.
type failingStore struct {
	*memory.Store
	failID int64
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failID: f.failID})
	})
}

type failingTx struct {
	store.Tx
	failID int64
}

func (f *failingTx) SaveMovie(ctx context.Context, m *models.Movie) error {
	if m.ID == f.failID {
		return errors.New("disk on fire")
	}
	return f.Tx.SaveMovie(ctx, m)
}

func TestMovieAverageRating_PartialFailure(t *testing.T) {
	mem := memory.New()
	for id := int64(1); id <= 3; id++ {
		mem.PutMovie(models.Movie{ID: id})
		rate(mem, 1, models.EntityMovie, id, models.Int(int(id)*2))
	}
	mem.PutMovie(models.Movie{ID: 4, AverageRating: models.Float(1)})
	rate(mem, 1, models.EntityMovie, 4, models.Int(9))

	st := &failingStore{Store: mem, failID: 2}
	report := run(t, st, NewMovieAverageRating())

	if report.Status != batch.StatusPartial || report.Failed != 1 {
		t.Errorf("report status=%s failed=%d, want partial/1", report.Status, report.Failed)
	}

	want := map[int64]*float64{1: models.Float(2), 2: nil, 3: models.Float(6), 4: models.Float(9)}
	for id, w := range want {
		m, _ := mem.GetMovie(id)
		assertFloat(t, "movie", m.AverageRating, w)
	}
}
