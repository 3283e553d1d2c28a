// Package matchmaking pairs waiting players by rating. There is no queue
// data structure: every poll is a fresh query over users with a live
// heartbeat, with a rating band that widens the longer the caller waits.
package matchmaking

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// Defaults for band widening and queue liveness.
const (
	DefaultBandBase     = 100
	DefaultBandStep     = 10
	DefaultBandInterval = 2 * time.Second
	DefaultGiveUp       = 12 * time.Second
	DefaultHeartbeatTTL = 5 * time.Second
)

// MatchCreator starts matches. The engine satisfies it.
type MatchCreator interface {
	CreateMatch(ctx context.Context, playerAID string, opp types.OpponentSpec, mode string) (string, error)
}

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithBand sets the base half-width and how much it grows per interval.
func WithBand(base, step int, interval time.Duration) Option {
	return func(q *Queue) {
		if base > 0 {
			q.bandBase = base
		}
		if step >= 0 {
			q.bandStep = step
		}
		if interval > 0 {
			q.bandInterval = interval
		}
	}
}

// WithGiveUp sets the wait after which a bot match is created.
func WithGiveUp(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.giveUp = d
		}
	}
}

// WithHeartbeatTTL sets how long a poll keeps a user in the waiting pool.
func WithHeartbeatTTL(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.heartbeatTTL = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// Queue runs matchmaking polls.
type Queue struct {
	store        repository.Store
	creator      MatchCreator
	clock        clockwork.Clock
	bandBase     int
	bandStep     int
	bandInterval time.Duration
	giveUp       time.Duration
	heartbeatTTL time.Duration
	logger       logger.Logger
}

// New creates a Queue.
func New(store repository.Store, creator MatchCreator, opts ...Option) *Queue {
	q := &Queue{
		store:        store,
		creator:      creator,
		clock:        clockwork.NewRealClock(),
		bandBase:     DefaultBandBase,
		bandStep:     DefaultBandStep,
		bandInterval: DefaultBandInterval,
		giveUp:       DefaultGiveUp,
		heartbeatTTL: DefaultHeartbeatTTL,
		logger:       logger.Get().Named("matchmaking"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// BandWidth is the rating half-width after waiting elapsed.
func (q *Queue) BandWidth(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	return q.bandBase + q.bandStep*int(elapsed/q.bandInterval)
}

// FindHumanOpponent returns the waiting user closest to userRating inside
// the current band, or "" when nobody qualifies. It never writes.
func (q *Queue) FindHumanOpponent(ctx context.Context, userID string, userRating int, queueStart time.Time) (string, error) {
	now := q.clock.Now().UTC()
	band := q.BandWidth(now.Sub(queueStart))
	u, err := q.store.FindClosestRated(ctx, userID, userRating, userRating-band, userRating+band, now.Add(-q.heartbeatTTL))
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fault.Wrap("matchmaking.find_human_opponent", err)
	}
	return u.ID, nil
}

// Poll is one matchmaking step for userID, who joined at queueStart.
func (q *Queue) Poll(ctx context.Context, userID string, queueStart time.Time) (*types.PollResult, error) {
	const op = "matchmaking.poll"
	if userID == "" || queueStart.IsZero() {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "user id and queue start are required")
	}
	now := q.clock.Now().UTC()
	elapsed := now.Sub(queueStart)
	if elapsed < 0 {
		elapsed = 0
	}
	res := &types.PollResult{Status: types.PollWaiting, BandWidth: q.BandWidth(elapsed), ElapsedMs: elapsed.Milliseconds()}

	u, err := q.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fault.WrapKind(op, fault.ErrNotFound, err)
	}
	if err != nil {
		return nil, fault.Wrap(op, err)
	}

	if m, err := q.store.ActiveMatchFor(ctx, userID); err == nil {
		return q.matched(res, m.ID, m.OpponentKind), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fault.Wrap(op, err)
	}

	if err := q.store.SetQueueHeartbeat(ctx, &now, userID); err != nil {
		return nil, fault.Wrap(op, err)
	}

	oppID, err := q.FindHumanOpponent(ctx, userID, u.Rating, queueStart)
	if err != nil {
		return nil, err
	}
	// The smaller id creates the match; the other side finds it on its
	// next poll through ActiveMatchFor.
	if oppID != "" && userID < oppID {
		id, err := q.creator.CreateMatch(ctx, userID, types.OpponentSpec{Kind: model.OpponentHuman, PlayerBID: oppID}, "ranked")
		if fault.CodeOf(err) == fault.CodeConflict {
			// One side got into another match first.
			return q.settle(ctx, res, userID)
		}
		if err != nil {
			return nil, err
		}
		q.logger.Info(ctx, "human match made",
			logger.String("user_id", userID),
			logger.String("opponent_id", oppID),
			logger.Int("band", res.BandWidth),
		)
		return q.matched(res, id, model.OpponentHuman), nil
	}

	if elapsed >= q.giveUp {
		id, err := q.creator.CreateMatch(ctx, userID, types.OpponentSpec{Kind: model.OpponentBot}, "ranked")
		if fault.CodeOf(err) == fault.CodeConflict {
			return q.settle(ctx, res, userID)
		}
		if err != nil {
			return nil, err
		}
		q.logger.Info(ctx, "queue gave up, bot match made",
			logger.String("user_id", userID),
			logger.Duration("waited", elapsed),
		)
		return q.matched(res, id, model.OpponentBot), nil
	}

	metrics.RecordMatchmakingPoll(string(types.PollWaiting), "")
	return res, nil
}

// settle reports the match userID ended up in after a lost creation race,
// or keeps waiting when there is none.
func (q *Queue) settle(ctx context.Context, res *types.PollResult, userID string) (*types.PollResult, error) {
	m, err := q.store.ActiveMatchFor(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.RecordMatchmakingPoll(string(types.PollWaiting), "")
		return res, nil
	}
	if err != nil {
		return nil, fault.Wrap("matchmaking.poll", err)
	}
	return q.matched(res, m.ID, m.OpponentKind), nil
}

func (q *Queue) matched(res *types.PollResult, matchID string, kind model.OpponentKind) *types.PollResult {
	res.Status = types.PollMatched
	res.MatchID = matchID
	res.OpponentKind = kind
	metrics.RecordMatchmakingPoll(string(types.PollMatched), string(kind))
	metrics.RecordMatchmakingWait(float64(res.ElapsedMs))
	return res
}

// Leave removes userID from the waiting pool.
func (q *Queue) Leave(ctx context.Context, userID string) error {
	const op = "matchmaking.leave"
	if userID == "" {
		return fault.NewKindf(op, fault.ErrBadRequest, "user id is required")
	}
	if err := q.store.SetQueueHeartbeat(ctx, nil, userID); err != nil {
		return fault.Wrap(op, err)
	}
	return nil
}
