package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// SubmitAnswer records userID's choice for roundID. Replays against an ended
// round or a completed match are no-ops. A submission that arrives after the
// deadline is not recorded; it closes the round as a timeout instead.
func (e *Engine) SubmitAnswer(ctx context.Context, matchID, roundID, userID string, selected int, firstCommitMs *int64) (*types.SubmitResult, error) {
	const op = "engine.submit_answer"
	if roundID == "" {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "round id is required")
	}
	if selected < 0 {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "selected index must not be negative")
	}
	m, side, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	rounds, err := e.store.ListRounds(ctx, m.ID)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	var target *model.Round
	for i := range rounds {
		if rounds[i].ID == roundID {
			target = &rounds[i]
			break
		}
	}
	if target == nil {
		return nil, fault.NewKindf(op, fault.ErrNotFound, "round %s is not part of match %s", roundID, m.ID)
	}

	if m.Completed() {
		metrics.RecordAnswer("duplicate")
		return &types.SubmitResult{RoundComplete: target.EndedAt != nil, MatchComplete: true}, nil
	}
	if target.EndedAt != nil {
		metrics.RecordAnswer("duplicate")
		done, err := e.finishIfDone(ctx, m.ID, rounds)
		if err != nil {
			return nil, fault.Wrap(op, err)
		}
		return &types.SubmitResult{RoundComplete: true, MatchComplete: done}, nil
	}

	now := e.now()
	p := progressOf(m, rounds, e.roundDuration, now)
	if p.current == nil || p.current.ID != target.ID {
		return nil, fault.NewKindf(op, fault.ErrConflict, "round %d is not open yet", target.Index)
	}
	if selected >= target.OptionCount {
		return nil, fault.NewKindf(op, fault.ErrBadRequest, "selected index %d out of range", selected)
	}
	if p.status == types.RoundStatusExpired {
		metrics.RecordAnswer("late")
		if err := e.expireRound(ctx, m, target, p.start, now); err != nil {
			return nil, fault.Wrap(op, err)
		}
		done, err := e.finishIfLast(ctx, m.ID, p, rounds)
		if err != nil {
			return nil, fault.Wrap(op, err)
		}
		return &types.SubmitResult{RoundComplete: true, MatchComplete: done}, nil
	}

	selectedText := ""
	if qs, err := e.questionsFor(ctx, []model.Round{*target}); err == nil {
		if q, ok := qs[target.QuestionID]; ok {
			if opts, err := q.OptionList(); err == nil && selected < len(opts) {
				selectedText = opts[selected]
			}
		}
	}

	var (
		applied  bool
		roundEnd bool
	)
	err = e.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		applied, err = tx.SetRoundAnswer(ctx, target.ID, side, selected, now)
		if err != nil {
			return err
		}
		if m.IsBot() {
			if _, err := tx.SetRoundAnswer(ctx, target.ID, model.SideB, e.botChoice(m, target), now); err != nil {
				return err
			}
		}
		r, err := tx.GetRound(ctx, target.ID)
		if err != nil {
			return err
		}
		if r.EndedAt == nil && r.BothAnswered() {
			ended, err := tx.EndRound(ctx, r.ID, now, false)
			if err != nil {
				return err
			}
			if ended {
				metrics.RecordRoundEnded("answered")
			}
			roundEnd = true
		} else {
			roundEnd = r.EndedAt != nil
		}
		if !applied {
			return nil
		}
		sel := selected
		return tx.UpsertRoundLog(ctx, &model.RoundLog{
			MatchID:       m.ID,
			UserID:        userID,
			RoundIndex:    target.Index,
			Correct:       selected == target.CorrectIndex,
			LatencyMs:     now.Sub(p.start).Milliseconds(),
			SelectedIndex: &sel,
			SelectedText:  selectedText,
			FirstCommitMs: firstCommitMs,
		})
	})
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	if applied {
		metrics.RecordAnswer("accepted")
	} else {
		metrics.RecordAnswer("duplicate")
	}

	res := &types.SubmitResult{RoundComplete: roundEnd}
	if roundEnd {
		done, err := e.finishIfLast(ctx, m.ID, p, rounds)
		if err != nil {
			return nil, fault.Wrap(op, err)
		}
		res.MatchComplete = done
	}
	return res, nil
}

// FinalizeRound is the timeout poll. When the current round's deadline has
// passed it closes the round and advances; before the deadline it only
// reports the current state.
func (e *Engine) FinalizeRound(ctx context.Context, matchID, userID string) (*types.TimeoutResult, error) {
	const op = "engine.finalize_round"
	m, _, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	if m.Completed() {
		return &types.TimeoutResult{MatchComplete: true, RoundStatus: types.RoundStatusResolved}, nil
	}
	res, err := e.advance(ctx, m)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return res, nil
}

// advance expires the current round when it is overdue and finalizes the
// match once every round has ended.
func (e *Engine) advance(ctx context.Context, m *model.Match) (*types.TimeoutResult, error) {
	rounds, err := e.store.ListRounds(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	p := progressOf(m, rounds, e.roundDuration, now)
	switch {
	case p.current == nil:
		if _, err := e.finalize(ctx, m.ID, nil); err != nil {
			return nil, err
		}
		return &types.TimeoutResult{MatchComplete: true, RoundStatus: types.RoundStatusResolved}, nil
	case p.status == types.RoundStatusOpen:
		return timeoutResult(p), nil
	}

	if err := e.expireRound(ctx, m, p.current, p.start, now); err != nil {
		return nil, err
	}
	if p.last(rounds) {
		if _, err := e.finalize(ctx, m.ID, nil); err != nil {
			return nil, err
		}
		return &types.TimeoutResult{MatchComplete: true, RoundStatus: types.RoundStatusResolved}, nil
	}

	rounds, err = e.store.ListRounds(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return timeoutResult(progressOf(m, rounds, e.roundDuration, e.now())), nil
}

func timeoutResult(p progress) *types.TimeoutResult {
	res := &types.TimeoutResult{RoundStatus: p.status}
	if p.current != nil {
		idx := p.current.Index
		dl := p.deadline.UnixMilli()
		res.CurrentRoundIndex = &idx
		res.RoundDeadlineMs = &dl
	} else {
		res.MatchComplete = true
	}
	return res
}

// expireRound closes r as timed out. The bot still gets its answer; every
// human who never answered receives a timed-out log row.
func (e *Engine) expireRound(ctx context.Context, m *model.Match, r *model.Round, start, now time.Time) error {
	return e.store.Transaction(ctx, func(tx repository.Store) error {
		if m.IsBot() {
			if _, err := tx.SetRoundAnswer(ctx, r.ID, model.SideB, e.botChoice(m, r), now); err != nil {
				return err
			}
		}
		ended, err := tx.EndRound(ctx, r.ID, now, true)
		if err != nil || !ended {
			return err
		}
		metrics.RecordRoundEnded("timeout")

		cur, err := tx.GetRound(ctx, r.ID)
		if err != nil {
			return err
		}
		for _, side := range []model.Side{model.SideA, model.SideB} {
			userID := playerOn(m, side)
			if userID == "" || cur.Answer(side) != nil {
				continue
			}
			if err := tx.UpsertRoundLog(ctx, &model.RoundLog{
				MatchID:    m.ID,
				UserID:     userID,
				RoundIndex: r.Index,
				LatencyMs:  now.Sub(start).Milliseconds(),
				TimedOut:   true,
			}); err != nil {
				return err
			}
		}
		e.logger.Debug(ctx, "round expired",
			logger.String("match_id", m.ID),
			logger.Int("round", r.Index),
		)
		return nil
	})
}

// finishIfLast finalizes when the round that just ended was the last one.
func (e *Engine) finishIfLast(ctx context.Context, matchID string, p progress, rounds []model.Round) (bool, error) {
	if !p.last(rounds) {
		return false, nil
	}
	if _, err := e.finalize(ctx, matchID, nil); err != nil {
		return false, err
	}
	return true, nil
}

// finishIfDone finalizes a match whose rounds have all ended but whose
// finalization did not run yet.
func (e *Engine) finishIfDone(ctx context.Context, matchID string, rounds []model.Round) (bool, error) {
	for i := range rounds {
		if rounds[i].EndedAt == nil {
			return false, nil
		}
	}
	if _, err := e.finalize(ctx, matchID, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) botChoice(m *model.Match, r *model.Round) int {
	seed := fmt.Sprintf("%s:%d:%s", m.ID, r.Index, r.QuestionID)
	return e.oracle.Choose(seed, r.Difficulty, r.CorrectIndex, r.OptionCount)
}

// playerOn returns the human user id on side, or "" for the bot.
func playerOn(m *model.Match, side model.Side) string {
	if side == model.SideA {
		return m.PlayerAID
	}
	if m.PlayerBID == nil {
		return ""
	}
	return *m.PlayerBID
}
