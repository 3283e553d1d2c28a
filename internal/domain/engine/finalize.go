package engine

import (
	"context"
	"errors"

	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/leaderboard"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// errAlreadyCompleted aborts a finalize transaction that lost the race to
// another finalizer.
var errAlreadyCompleted = errors.New("match already completed")

// FinalizeMatch completes the match and applies rating changes exactly once.
// Repeated calls return the stored outcome, even with a different override.
// A nil override derives the result from the scores.
func (e *Engine) FinalizeMatch(ctx context.Context, matchID, userID string, override *model.Result) (*types.MatchOutcome, error) {
	const op = "engine.finalize_match"
	if override != nil {
		switch *override {
		case model.ResultWin, model.ResultLoss, model.ResultDraw:
		default:
			return nil, fault.NewKindf(op, fault.ErrBadRequest, "invalid result override %q", *override)
		}
	}
	m, side, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Completed() {
		// The override is the caller's own result; the match stores side A's.
		if override != nil && side == model.SideB {
			r := override.Invert()
			override = &r
		}
		if m, err = e.finalize(ctx, matchID, override); err != nil {
			return nil, fault.Wrap(op, err)
		}
	} else {
		metrics.RecordFinalizeReplay()
	}
	return outcomeFor(m, side), nil
}

// Outcome returns the stored outcome of a completed match for userID.
func (e *Engine) Outcome(ctx context.Context, matchID, userID string) (*types.MatchOutcome, error) {
	const op = "engine.outcome"
	m, side, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	if !m.Completed() {
		return nil, fault.NewKindf(op, fault.ErrConflict, "match %s is still active", m.ID)
	}
	return outcomeFor(m, side), nil
}

// RoundLogs returns userID's telemetry rows for a match, in round order.
func (e *Engine) RoundLogs(ctx context.Context, matchID, userID string) ([]model.RoundLog, error) {
	const op = "engine.round_logs"
	m, _, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	all, err := e.store.ListRoundLogs(ctx, m.ID)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	out := make([]model.RoundLog, 0, len(all))
	for _, l := range all {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

// finalize runs the completion transaction and returns the stored match.
// The ACTIVE to COMPLETED write is the guard: a finalizer that loses the
// race rolls back and reads the winner's result.
func (e *Engine) finalize(ctx context.Context, matchID string, override *model.Result) (*model.Match, error) {
	var (
		final  *model.Match
		replay bool
	)
	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Completed() {
			final, replay = m, true
			return nil
		}
		now := e.now()

		rounds, err := tx.ListRounds(ctx, m.ID)
		if err != nil {
			return err
		}
		for i := range rounds {
			if rounds[i].EndedAt != nil {
				continue
			}
			if m.IsBot() && rounds[i].AnswerB == nil {
				if _, err := tx.SetRoundAnswer(ctx, rounds[i].ID, model.SideB, e.botChoice(m, &rounds[i]), now); err != nil {
					return err
				}
			}
			if _, err := tx.EndRound(ctx, rounds[i].ID, now, false); err != nil {
				return err
			}
			metrics.RecordRoundEnded("finalize")
		}
		if rounds, err = tx.ListRounds(ctx, m.ID); err != nil {
			return err
		}

		scoreA, scoreB := tally(rounds)
		result := deriveResult(scoreA, scoreB)
		if override != nil {
			result = *override
		}
		nearMiss := result == model.ResultLoss && scoreB-scoreA == 1
		var deciding *int
		if nearMiss {
			deciding = decidingRound(rounds, scoreA, scoreB)
		}

		newA, newB := e.rating.Update(m.RatingABefore, m.RatingBBefore, actualScore(result))
		m.Status = model.MatchCompleted
		m.EndedAt = &now
		m.ScoreA, m.ScoreB = scoreA, scoreB
		m.ResultA = result
		m.NearMiss = nearMiss
		m.DecidingRoundIndex = deciding
		m.RatingAAfter = &newA
		if !m.IsBot() {
			m.RatingBAfter = &newB
		}

		applied, err := tx.CompleteMatch(ctx, m)
		if err != nil {
			return err
		}
		if !applied {
			return errAlreadyCompleted
		}
		if err := tx.MarkDeciding(ctx, m.ID, deciding); err != nil {
			return err
		}

		logs, err := tx.ListRoundLogs(ctx, m.ID)
		if err != nil {
			return err
		}
		if err := e.applySide(ctx, tx, m, model.SideA, newA, result, rounds, logs); err != nil {
			return err
		}
		if !m.IsBot() {
			if err := e.applySide(ctx, tx, m, model.SideB, newB, result.Invert(), rounds, logs); err != nil {
				return err
			}
		}
		final = m
		return nil
	})
	if errors.Is(err, errAlreadyCompleted) {
		final, err = e.store.GetMatch(ctx, matchID)
		replay = true
	}
	if err != nil {
		return nil, err
	}
	if replay {
		return final, nil
	}

	metrics.RecordMatchFinalized(string(final.ResultA))
	e.logger.Info(ctx, "match finalized",
		logger.String("match_id", final.ID),
		logger.String("result_a", string(final.ResultA)),
		logger.Int("score_a", final.ScoreA),
		logger.Int("score_b", final.ScoreB),
	)
	if e.publisher != nil {
		e.publisher.MatchCompleted(ctx, final.ID)
	}
	return final, nil
}

// applySide persists the new rating for one human side and folds the match
// into the season leaderboard.
func (e *Engine) applySide(ctx context.Context, tx repository.Store, m *model.Match, side model.Side, newRating int, result model.Result, rounds []model.Round, logs []model.RoundLog) error {
	userID := playerOn(m, side)
	if err := tx.UpdateUserRating(ctx, userID, newRating, string(rating.TierFor(newRating))); err != nil {
		return err
	}
	u, err := tx.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	sr := leaderboard.SideResult{
		UserID: userID,
		Cohort: u.Cohort,
		Rating: newRating,
		Result: result,
	}
	for i := range rounds {
		if rounds[i].Answer(side) == nil {
			continue
		}
		sr.Answered++
		if rounds[i].Correct(side) {
			sr.Correct++
		}
	}
	for _, l := range logs {
		if l.UserID == userID && !l.TimedOut {
			sr.ResponseMs += l.LatencyMs
		}
	}
	return leaderboard.Record(ctx, tx, sr)
}

func deriveResult(scoreA, scoreB int) model.Result {
	switch {
	case scoreA > scoreB:
		return model.ResultWin
	case scoreA < scoreB:
		return model.ResultLoss
	default:
		return model.ResultDraw
	}
}

func actualScore(r model.Result) float64 {
	switch r {
	case model.ResultWin:
		return rating.Win
	case model.ResultDraw:
		return rating.Draw
	default:
		return rating.Loss
	}
}

// decidingRound returns the first round side A got wrong whose correction
// would have closed the gap.
func decidingRound(rounds []model.Round, scoreA, scoreB int) *int {
	if scoreA+1 < scoreB {
		return nil
	}
	for i := range rounds {
		if !rounds[i].Correct(model.SideA) {
			idx := rounds[i].Index
			return &idx
		}
	}
	return nil
}

// outcomeFor projects the stored result onto side. Near-miss and the
// deciding round describe side A's loss and are only reported to side A.
func outcomeFor(m *model.Match, side model.Side) *types.MatchOutcome {
	out := &types.MatchOutcome{MatchID: m.ID}
	if side == model.SideA {
		out.Result = m.ResultA
		out.RatingBefore = m.RatingABefore
		out.RatingAfter = derefOr(m.RatingAAfter, m.RatingABefore)
		out.Score, out.OpponentScore = m.ScoreA, m.ScoreB
		out.NearMiss = m.NearMiss
		out.DecidingRoundIndex = m.DecidingRoundIndex
		return out
	}
	out.Result = m.ResultA.Invert()
	out.RatingBefore = m.RatingBBefore
	out.RatingAfter = derefOr(m.RatingBAfter, m.RatingBBefore)
	out.Score, out.OpponentScore = m.ScoreB, m.ScoreA
	return out
}

func derefOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
