package engine

import (
	"context"
	"time"

	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
)

// progress is the server-side view of where a match stands.
type progress struct {
	current  *model.Round
	start    time.Time
	deadline time.Time
	status   types.RoundStatus
}

// progressOf locates the first round without an end timestamp. Its window
// starts when the previous round ended, or at match start for round 0.
func progressOf(m *model.Match, rounds []model.Round, d time.Duration, now time.Time) progress {
	anchor := m.StartedAt
	for i := range rounds {
		r := &rounds[i]
		if r.EndedAt != nil {
			anchor = *r.EndedAt
			continue
		}
		p := progress{current: r, start: anchor, deadline: anchor.Add(d), status: types.RoundStatusOpen}
		if !now.Before(p.deadline) {
			p.status = types.RoundStatusExpired
		}
		return p
	}
	return progress{status: types.RoundStatusResolved}
}

func (p progress) last(rounds []model.Round) bool {
	return p.current != nil && p.current.Index == rounds[len(rounds)-1].Index
}

// tally counts correct answers per side over ended rounds.
func tally(rounds []model.Round) (scoreA, scoreB int) {
	for i := range rounds {
		if rounds[i].EndedAt == nil {
			continue
		}
		if rounds[i].Correct(model.SideA) {
			scoreA++
		}
		if rounds[i].Correct(model.SideB) {
			scoreB++
		}
	}
	return scoreA, scoreB
}

func otherSide(s model.Side) model.Side {
	if s == model.SideA {
		return model.SideB
	}
	return model.SideA
}

// GetMatchView returns the match as userID may see it.
func (e *Engine) GetMatchView(ctx context.Context, matchID, userID string) (*types.MatchView, error) {
	const op = "engine.get_match_view"
	m, side, err := e.loadParticipant(ctx, op, matchID, userID)
	if err != nil {
		return nil, err
	}
	rounds, err := e.store.ListRounds(ctx, m.ID)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	questions, err := e.questionsFor(ctx, rounds)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}

	now := e.now()
	view := &types.MatchView{
		MatchID:      m.ID,
		Status:       m.Status,
		OpponentKind: m.OpponentKind,
		Side:         side,
		Rounds:       make([]types.RoundView, 0, len(rounds)),
		RoundStatus:  types.RoundStatusResolved,
		ServerNowMs:  now.UnixMilli(),
	}
	if !m.Completed() {
		p := progressOf(m, rounds, e.roundDuration, now)
		view.RoundStatus = p.status
		if p.current != nil {
			idx := p.current.Index
			dl := p.deadline.UnixMilli()
			view.CurrentRoundIndex = &idx
			view.RoundDeadlineMs = &dl
		}
	}

	opp := otherSide(side)
	for i := range rounds {
		r := &rounds[i]
		rv := types.RoundView{
			ID:         r.ID,
			Index:      r.Index,
			QuestionID: r.QuestionID,
			Difficulty: r.Difficulty,
			State:      r.State(),
			MyAnswer:   r.Answer(side),
			TimedOut:   r.TimedOut,
		}
		if q, ok := questions[r.QuestionID]; ok {
			rv.Prompt = q.Prompt
			rv.Options, _ = q.OptionList()
		}
		if r.EndedAt != nil {
			ended := r.EndedAt.UnixMilli()
			correct := r.CorrectIndex
			rv.EndedAtMs = &ended
			rv.CorrectIndex = &correct
			rv.OpponentAnswer = r.Answer(opp)
		}
		view.Rounds = append(view.Rounds, rv)
	}

	scoreA, scoreB := tally(rounds)
	if side == model.SideA {
		view.MyScore, view.OpponentScore = scoreA, scoreB
	} else {
		view.MyScore, view.OpponentScore = scoreB, scoreA
	}
	return view, nil
}

func (e *Engine) questionsFor(ctx context.Context, rounds []model.Round) (map[string]model.Question, error) {
	ids := make([]string, len(rounds))
	for i := range rounds {
		ids[i] = rounds[i].QuestionID
	}
	qs, err := e.store.GetQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Question, len(qs))
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}
