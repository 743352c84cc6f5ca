// Marquee - Catalog Aggregates and User Affinity Matching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package affinity

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/batch"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/store"
)

// JobName is the batch job name of the matching cycle.
const JobName = "user-top-matches"

// DefaultTopN is the length of a full match list.
const DefaultTopN = 10

// Config tunes the matcher.
type Config struct {
	// TopN is the number of matches kept per user.
	TopN int

	// Workers bounds concurrent candidate vector reads for one subject.
	Workers int
}

// DefaultConfig returns the standard top-10 configuration.
func DefaultConfig() Config {
	return Config{TopN: DefaultTopN, Workers: 4}
}

// Matcher recomputes users' match lists.
type Matcher struct {
	store store.Store
	cfg   Config
	now   func() time.Time
}

// NewMatcher creates a matcher reading candidate vectors from st.
func NewMatcher(st store.Store, cfg Config, now func() time.Time) *Matcher {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Matcher{store: st, cfg: cfg, now: now}
}

// UpdateUserTopMatches replaces userID's match list with the TopN most
// similar other users. The subject's vector and the new list go through tx;
// candidate vectors are read-only scans outside of it. Any read failure
// fails the whole subject and leaves its previous list in place.
func (m *Matcher) UpdateUserTopMatches(ctx context.Context, tx store.Tx, userID int64) error {
	own, err := tx.RatingsByAuthor(ctx, userID)
	if err != nil {
		return fmt.Errorf("ratings of user %d: %w", userID, err)
	}
	subject := BuildVector(own)

	candidates, err := m.scoreCandidates(ctx, userID, subject)
	if err != nil {
		return err
	}
	metrics.RecordAffinityCandidates(len(candidates))

	list := &models.UserMatchList{
		UserID:    userID,
		Matches:   Rank(candidates, m.cfg.TopN),
		UpdatedAt: m.now().UTC(),
	}
	if err := tx.ReplaceMatchList(ctx, list); err != nil {
		return fmt.Errorf("replace match list of user %d: %w", userID, err)
	}

	logging.Ctx(ctx).Debug().
		Int64("user_id", userID).
		Int("candidates", len(candidates)).
		Ints64("matches", list.MatchedUserIDs()).
		Msg("Match list replaced")
	return nil
}

// candidateIDs lists every user but the subject. The id cursor is closed
// before it returns, so candidate reads never wait behind it.
func (m *Matcher) candidateIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for otherID, err := range m.store.IDs(ctx, models.EntityUser) {
		if err != nil {
			return nil, fmt.Errorf("enumerate candidates for user %d: %w", userID, err)
		}
		if otherID != userID {
			ids = append(ids, otherID)
		}
	}
	return ids, nil
}

// scoreCandidates scores every user but the subject.
func (m *Matcher) scoreCandidates(ctx context.Context, userID int64, subject Vector) ([]Candidate, error) {
	ids, err := m.candidateIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)

	var (
		mu         sync.Mutex
		candidates = make([]Candidate, 0, len(ids))
	)
	for _, otherID := range ids {
		g.Go(func() error {
			ratings, err := m.store.RatingsByAuthor(gctx, otherID)
			if err != nil {
				return fmt.Errorf("ratings of candidate %d: %w", otherID, err)
			}
			sim := Pearson(subject, BuildVector(ratings))

			mu.Lock()
			candidates = append(candidates, Candidate{UserID: otherID, Similarity: sim})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Job adapts the matcher to the batch runner: one subject user per id.
func (m *Matcher) Job() batch.Job {
	return matchJob{m: m}
}

type matchJob struct {
	m *Matcher
}

func (matchJob) Name() string { return JobName }

func (matchJob) IDs(ctx context.Context, st store.Store) iter.Seq2[int64, error] {
	return st.IDs(ctx, models.EntityUser)
}

func (j matchJob) Update(ctx context.Context, tx store.Tx, id int64) error {
	return j.m.UpdateUserTopMatches(ctx, tx, id)
}
