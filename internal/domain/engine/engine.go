// Package engine runs the match lifecycle: creation, per-round answering,
// timeouts and finalization. All state lives in the repository; the engine
// holds no per-match memory, so any number of instances may serve the same
// match concurrently.
package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/bot"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// Publisher receives the id of every match that reaches COMPLETED.
type Publisher interface {
	MatchCompleted(ctx context.Context, matchID string)
}

// Engine implements the match lifecycle on top of a Store.
type Engine struct {
	store          repository.Store
	clock          clockwork.Clock
	oracle         bot.Oracle
	rating         *rating.Calculator
	roundDuration  time.Duration
	roundsPerMatch int
	oversample     int
	abandonAfter   time.Duration
	publisher      Publisher
	logger         logger.Logger
}

// New creates an Engine.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		clock:          clockwork.NewRealClock(),
		oracle:         bot.Deterministic{},
		rating:         rating.New(),
		roundDuration:  DefaultRoundDuration,
		roundsPerMatch: DefaultRoundsPerMatch,
		oversample:     DefaultOversample,
		abandonAfter:   defaultAbandonAfter,
		logger:         logger.Get().Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.oversample < e.roundsPerMatch {
		e.oversample = e.roundsPerMatch
	}
	return e
}

// RoundDuration returns the configured answer window.
func (e *Engine) RoundDuration() time.Duration { return e.roundDuration }

func (e *Engine) now() time.Time { return e.clock.Now().UTC() }

// CreateMatch starts a match for playerAID against the given opponent, or
// returns the id of the ACTIVE match that already exists between them. A
// player already in some other ACTIVE match gets CONFLICT.
func (e *Engine) CreateMatch(ctx context.Context, playerAID string, opp types.OpponentSpec, mode string) (string, error) {
	const op = "engine.create_match"
	if playerAID == "" {
		return "", fault.NewKindf(op, fault.ErrBadRequest, "player id is required")
	}
	switch opp.Kind {
	case model.OpponentBot:
		opp.PlayerBID = ""
	case model.OpponentHuman:
		if opp.PlayerBID == "" {
			return "", fault.NewKindf(op, fault.ErrBadRequest, "human opponent requires player_b_id")
		}
		if opp.PlayerBID == playerAID {
			return "", fault.NewKindf(op, fault.ErrBadRequest, "a player cannot face themselves")
		}
	default:
		return "", fault.NewKindf(op, fault.ErrBadRequest, "unknown opponent kind %q", opp.Kind)
	}

	if existing, err := e.store.FindActiveMatch(ctx, opp.Kind, playerAID, opp.PlayerBID); err == nil {
		return existing.ID, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", fault.Wrap(op, err)
	}

	userA, err := e.store.GetUser(ctx, playerAID)
	if err != nil {
		return "", storeErr(op, err)
	}
	ratingB := userA.Rating
	if opp.Kind == model.OpponentHuman {
		userB, err := e.store.GetUser(ctx, opp.PlayerBID)
		if err != nil {
			return "", storeErr(op, err)
		}
		ratingB = userB.Rating
	}

	picked, err := e.pickQuestions(ctx)
	if err != nil {
		return "", fault.Wrap(op, err)
	}

	m := &model.Match{
		ID:            model.NewID(),
		PlayerAID:     playerAID,
		OpponentKind:  opp.Kind,
		Status:        model.MatchActive,
		Mode:          mode,
		StartedAt:     e.now(),
		RatingABefore: userA.Rating,
		RatingBBefore: ratingB,
		ResultA:       model.ResultUnknown,
	}
	if opp.Kind == model.OpponentHuman {
		b := opp.PlayerBID
		m.PlayerBID = &b
	}
	rounds := make([]model.Round, len(picked))
	for i, q := range picked {
		opts, _ := q.OptionList()
		rounds[i] = model.Round{
			ID:           model.NewID(),
			MatchID:      m.ID,
			Index:        i,
			QuestionID:   q.ID,
			CorrectIndex: q.CorrectIndex,
			OptionCount:  len(opts),
			Difficulty:   q.Difficulty,
		}
	}

	ids := []string{playerAID}
	if opp.PlayerBID != "" {
		ids = append(ids, opp.PlayerBID)
	}
	matchID := m.ID
	err = e.store.Transaction(ctx, func(tx repository.Store) error {
		if existing, err := tx.FindActiveMatch(ctx, opp.Kind, playerAID, opp.PlayerBID); err == nil {
			matchID = existing.ID
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ActiveMatchFor(ctx, id); err == nil {
				return fault.NewKindf(op, fault.ErrConflict, "player %s is already in a match", id)
			} else if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if err := tx.CreateMatch(ctx, m, rounds); err != nil {
			return err
		}
		return tx.SetQueueHeartbeat(ctx, nil, ids...)
	})
	if errors.Is(err, repository.ErrConflict) && opp.Kind == model.OpponentBot {
		// A concurrent retry won the one-active-bot-match index.
		existing, findErr := e.store.FindActiveMatch(ctx, opp.Kind, playerAID, "")
		if findErr == nil {
			return existing.ID, nil
		}
	}
	if err != nil {
		return "", storeErr(op, err)
	}
	if matchID == m.ID {
		metrics.RecordMatchCreated(string(opp.Kind))
		e.logger.Info(ctx, "match created",
			logger.String("match_id", m.ID),
			logger.String("player_a", playerAID),
			logger.String("kind", string(opp.Kind)),
		)
	}
	return matchID, nil
}

// pickQuestions samples an oversized candidate set, drops malformed rows,
// shuffles and keeps roundsPerMatch of them.
func (e *Engine) pickQuestions(ctx context.Context) ([]model.Question, error) {
	candidates, err := e.store.SampleQuestions(ctx, e.oversample)
	if err != nil {
		return nil, err
	}
	usable := candidates[:0]
	for _, q := range candidates {
		opts, err := q.OptionList()
		if err != nil || len(opts) < 2 || q.CorrectIndex < 0 || q.CorrectIndex >= len(opts) {
			continue
		}
		usable = append(usable, q)
	}
	if len(usable) < e.roundsPerMatch {
		return nil, fault.NewKindf("engine.pick_questions", fault.ErrNoQuestions,
			"need %d questions, have %d", e.roundsPerMatch, len(usable))
	}
	rand.Shuffle(len(usable), func(i, j int) { usable[i], usable[j] = usable[j], usable[i] })
	return usable[:e.roundsPerMatch], nil
}

// ActiveMatchFor returns the id of the user's ACTIVE match.
func (e *Engine) ActiveMatchFor(ctx context.Context, userID string) (string, error) {
	const op = "engine.active_match_for"
	if userID == "" {
		return "", fault.NewKindf(op, fault.ErrBadRequest, "user id is required")
	}
	m, err := e.store.ActiveMatchFor(ctx, userID)
	if err != nil {
		return "", storeErr(op, err)
	}
	return m.ID, nil
}

// loadParticipant fetches the match and resolves userID's side.
func (e *Engine) loadParticipant(ctx context.Context, op, matchID, userID string) (*model.Match, model.Side, error) {
	if matchID == "" || userID == "" {
		return nil, "", fault.NewKindf(op, fault.ErrBadRequest, "match id and user id are required")
	}
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, "", storeErr(op, err)
	}
	side, ok := m.SideOf(userID)
	if !ok {
		return nil, "", fault.NewKindf(op, fault.ErrForbidden, "user is not a participant")
	}
	return m, side, nil
}

// storeErr classifies repository sentinels.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fault.WrapKind(op, fault.ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fault.WrapKind(op, fault.ErrConflict, err)
	default:
		return fault.Wrap(op, err)
	}
}
