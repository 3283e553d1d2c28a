// Package leaderboard maintains per-season aggregates and serves ranked pages.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

const (
	defaultSeasonLength = 7 * 24 * time.Hour
	defaultMaxLimit     = 100
	msPerMinute         = 60_000.0
)

// SideResult is one human side's contribution from a finished match.
type SideResult struct {
	UserID     string
	Cohort     string
	Rating     int
	Result     model.Result
	Correct    int
	Answered   int
	ResponseMs int64
}

// Record folds r into the active season's aggregate using tx. Counters are
// incremented by the store, so concurrent finalizations for one user both
// count. It is a no-op when no season is active.
func Record(ctx context.Context, tx repository.Store, r SideResult) error {
	season, err := tx.ActiveSeason(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	delta := &model.LeaderboardEntry{
		SeasonID:   season.ID,
		UserID:     r.UserID,
		Cohort:     r.Cohort,
		Rating:     r.Rating,
		Matches:    1,
		Correct:    r.Correct,
		Answered:   r.Answered,
		ResponseMs: r.ResponseMs,
	}
	switch r.Result {
	case model.ResultWin:
		delta.Wins = 1
	case model.ResultDraw:
		delta.Draws = 1
	case model.ResultLoss:
		delta.Losses = 1
	}
	if err := tx.AddLeaderboardResult(ctx, delta); err != nil {
		return err
	}
	metrics.RecordLeaderboardUpdate()
	return nil
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSeasonLength sets how long a season runs.
func WithSeasonLength(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.seasonLength = d
		}
	}
}

// WithMaxLimit caps the page size.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service reads leaderboards and rotates seasons.
type Service struct {
	store        repository.Store
	clock        clockwork.Clock
	seasonLength time.Duration
	maxLimit     int
	logger       logger.Logger
}

// New creates a leaderboard Service.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		clock:        clockwork.NewRealClock(),
		seasonLength: defaultSeasonLength,
		maxLimit:     defaultMaxLimit,
		logger:       logger.Get().Named("leaderboard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxLimit returns the configured page cap.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Top returns up to limit ranked entries. An empty seasonID selects the
// active season.
func (s *Service) Top(ctx context.Context, seasonID, cohort string, limit int) (*types.Leaderboard, error) {
	const op = "leaderboard.top"
	if limit < 1 || limit > s.maxLimit {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "limit must be between 1 and %d", s.maxLimit)
	}
	var season *model.Season
	var err error
	if seasonID == "" {
		season, err = s.store.ActiveSeason(ctx)
	} else {
		season, err = s.store.GetSeason(ctx, seasonID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.WrapKind(op, fault.ErrNotFound, err)
	}
	if err != nil {
		return nil, fault.Wrap(op, err)
	}

	rows, err := s.store.TopLeaderboard(ctx, season.ID, cohort, limit)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].UserID
	}
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	byID := make(map[string]*model.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	out := &types.Leaderboard{SeasonID: season.ID, Cohort: cohort, Entries: make([]types.Entry, 0, len(rows))}
	for i, row := range rows {
		e := types.Entry{
			Rank:       i + 1,
			UserID:     row.UserID,
			Tier:       string(rating.TierFor(row.Rating)),
			Rating:     row.Rating,
			Matches:    row.Matches,
			Wins:       row.Wins,
			Accuracy:   Accuracy(row.Correct, row.Answered),
			Efficiency: Efficiency(row.Correct, row.ResponseMs),
		}
		if u, ok := byID[row.UserID]; ok {
			e.Tag = u.Tag()
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

// Accuracy is correct answers over answered rounds.
func Accuracy(correct, answered int) float64 {
	if answered == 0 {
		return 0
	}
	return float64(correct) / float64(answered)
}

// Efficiency is correct answers per minute of response time.
func Efficiency(correct int, responseMs int64) float64 {
	if responseMs <= 0 {
		return 0
	}
	return float64(correct) / (float64(responseMs) / msPerMinute)
}

// EnsureActive returns the active season, opening one that starts now if
// none exists.
func (s *Service) EnsureActive(ctx context.Context) (*model.Season, error) {
	const op = "leaderboard.ensure_active"
	var out *model.Season
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		cur, err := tx.ActiveSeason(ctx)
		if err == nil {
			out = cur
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		out, err = s.open(ctx, tx, s.clock.Now().UTC())
		return err
	})
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return out, nil
}

// Rotate closes the active season once its end has passed and opens the next
// one. It reports whether a rotation happened.
func (s *Service) Rotate(ctx context.Context) (bool, error) {
	const op = "leaderboard.rotate"
	now := s.clock.Now().UTC()
	rotated := false
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		cur, err := tx.ActiveSeason(ctx)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			_, err = s.open(ctx, tx, now)
			rotated = err == nil
			return err
		case err != nil:
			return err
		case now.Before(cur.EndsAt):
			return nil
		}
		if err := tx.DeactivateSeason(ctx, cur.ID); err != nil {
			return err
		}
		next, err := s.open(ctx, tx, cur.EndsAt)
		if err != nil {
			return err
		}
		rotated = true
		metrics.RecordSeasonRotation()
		s.logger.Info(ctx, "season rotated",
			logger.String("closed", cur.ID),
			logger.String("opened", next.ID),
		)
		return nil
	})
	if err != nil {
		return false, fault.Wrap(op, err)
	}
	return rotated, nil
}

func (s *Service) open(ctx context.Context, tx repository.Store, start time.Time) (*model.Season, error) {
	season := &model.Season{
		Name:     fmt.Sprintf("Season %s", start.Format("2006-01-02")),
		StartsAt: start,
		EndsAt:   start.Add(s.seasonLength),
		Active:   true,
	}
	if err := tx.CreateSeason(ctx, season); err != nil {
		return nil, err
	}
	return season, nil
}
