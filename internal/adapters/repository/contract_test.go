package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/pkg/logger"
)

func init() {
	_ = logger.Init()
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func seedQuestions(t *testing.T, s Store, n int) {
	t.Helper()
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{Prompt: fmt.Sprintf("q%d", i), CorrectIndex: i % 4, Difficulty: "medium"}
		if err := qs[i].SetOptions([]string{"a", "b", "c", "d"}); err != nil {
			t.Fatalf("set options: %v", err)
		}
	}
	if err := s.CreateQuestions(context.Background(), qs); err != nil {
		t.Fatalf("create questions: %v", err)
	}
}

func newMatch(a string, b *string, kind model.OpponentKind) (*model.Match, []model.Round) {
	m := &model.Match{
		PlayerAID:    a,
		PlayerBID:    b,
		OpponentKind: kind,
		Status:       model.MatchActive,
		StartedAt:    baseTime,
		ResultA:      model.ResultUnknown,
	}
	rounds := make([]model.Round, 5)
	for i := range rounds {
		rounds[i] = model.Round{Index: i, QuestionID: fmt.Sprintf("q%d", i), CorrectIndex: 1, OptionCount: 4, Difficulty: "medium"}
	}
	return m, rounds
}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("users and name uniqueness", func(t *testing.T) {
		s := newStore(t)
		u := &model.User{ID: "u1", DisplayName: "Ada", CanonicalName: "ada", Discriminator: 7, Rating: 1200, Tier: "Silver"}
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
		dup := &model.User{ID: "u2", DisplayName: "ADA", CanonicalName: "ada", Discriminator: 7, Rating: 1200, Tier: "Silver"}
		if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on duplicate name pair, got %v", err)
		}
		dup.Discriminator = 8
		if err := s.CreateUser(ctx, dup); err != nil {
			t.Fatalf("create second user: %v", err)
		}
		if err := s.RenameUser(ctx, "u2", "Ada", "ada", 7, baseTime); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict on rename into taken pair, got %v", err)
		}
		taken, err := s.TakenDiscriminators(ctx, "ada")
		if err != nil || len(taken) != 2 || taken[0] != 7 || taken[1] != 8 {
			t.Fatalf("unexpected discriminators %v (%v)", taken, err)
		}
		if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if err := s.UpdateUserRating(ctx, "u1", 1216, "Silver"); err != nil {
			t.Fatalf("update rating: %v", err)
		}
		got, _ := s.GetUser(ctx, "u1")
		if got.Rating != 1216 {
			t.Fatalf("expected rating 1216, got %d", got.Rating)
		}
	})

	t.Run("closest rated waiting user", func(t *testing.T) {
		s := newStore(t)
		for i, r := range []int{1200, 1290, 1150, 1500} {
			u := &model.User{ID: fmt.Sprintf("p%d", i), DisplayName: "P", CanonicalName: "p", Discriminator: i, Rating: r, Tier: "Silver"}
			if err := s.CreateUser(ctx, u); err != nil {
				t.Fatalf("create: %v", err)
			}
		}
		alive := baseTime
		stale := baseTime.Add(-time.Minute)
		_ = s.SetQueueHeartbeat(ctx, &alive, "p0", "p1", "p3")
		_ = s.SetQueueHeartbeat(ctx, &stale, "p2")

		got, err := s.FindClosestRated(ctx, "p0", 1200, 1100, 1300, baseTime.Add(-5*time.Second))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.ID != "p1" {
			t.Fatalf("expected p1 (stale p2 excluded), got %s", got.ID)
		}
		if _, err := s.FindClosestRated(ctx, "p0", 1200, 1250, 1260, baseTime.Add(-5*time.Second)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		_ = s.SetQueueHeartbeat(ctx, nil, "p1")
		if _, err := s.FindClosestRated(ctx, "p0", 1200, 1100, 1300, baseTime.Add(-5*time.Second)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected cleared heartbeat to leave the pool, got %v", err)
		}
	})

	t.Run("questions", func(t *testing.T) {
		s := newStore(t)
		seedQuestions(t, s, 12)
		n, err := s.CountQuestions(ctx)
		if err != nil || n != 12 {
			t.Fatalf("expected 12 questions, got %d (%v)", n, err)
		}
		sample, err := s.SampleQuestions(ctx, 5)
		if err != nil || len(sample) != 5 {
			t.Fatalf("expected 5 sampled, got %d (%v)", len(sample), err)
		}
		seen := map[string]bool{}
		for _, q := range sample {
			if seen[q.ID] {
				t.Fatalf("duplicate question %s in sample", q.ID)
			}
			seen[q.ID] = true
		}
		got, err := s.GetQuestions(ctx, []string{sample[0].ID, sample[1].ID})
		if err != nil || len(got) != 2 {
			t.Fatalf("expected 2 questions, got %d (%v)", len(got), err)
		}
	})

	t.Run("conditional round writes", func(t *testing.T) {
		s := newStore(t)
		m, rounds := newMatch("u1", nil, model.OpponentBot)
		if err := s.CreateMatch(ctx, m, rounds); err != nil {
			t.Fatalf("create match: %v", err)
		}
		listed, err := s.ListRounds(ctx, m.ID)
		if err != nil || len(listed) != 5 {
			t.Fatalf("expected 5 rounds, got %d (%v)", len(listed), err)
		}
		for i, r := range listed {
			if r.Index != i {
				t.Fatalf("rounds out of order: %d at %d", r.Index, i)
			}
		}
		r0 := listed[0].ID

		ok, err := s.SetRoundAnswer(ctx, r0, model.SideA, 1, baseTime)
		if err != nil || !ok {
			t.Fatalf("first answer should apply: %v %v", ok, err)
		}
		ok, _ = s.SetRoundAnswer(ctx, r0, model.SideA, 2, baseTime)
		if ok {
			t.Fatal("second answer for the same side must not apply")
		}
		ok, _ = s.EndRound(ctx, r0, baseTime, false)
		if !ok {
			t.Fatal("first end should apply")
		}
		ok, _ = s.EndRound(ctx, r0, baseTime.Add(time.Second), true)
		if ok {
			t.Fatal("second end must not apply")
		}
		ok, _ = s.SetRoundAnswer(ctx, r0, model.SideB, 1, baseTime)
		if ok {
			t.Fatal("answers after end must not apply")
		}
		got, _ := s.GetRound(ctx, r0)
		if got.AnswerA == nil || *got.AnswerA != 1 || got.TimedOut || got.EndedAt == nil {
			t.Fatalf("unexpected round state %+v", got)
		}

		if err := s.MarkDeciding(ctx, m.ID, intPtr(3)); err != nil {
			t.Fatalf("mark deciding: %v", err)
		}
		if err := s.MarkDeciding(ctx, m.ID, intPtr(1)); err != nil {
			t.Fatalf("mark deciding: %v", err)
		}
		listed, _ = s.ListRounds(ctx, m.ID)
		for _, r := range listed {
			if r.Deciding != (r.Index == 1) {
				t.Fatalf("round %d deciding=%v", r.Index, r.Deciding)
			}
		}
	})

	t.Run("match completion applies once", func(t *testing.T) {
		s := newStore(t)
		b := "u2"
		m, rounds := newMatch("u1", &b, model.OpponentHuman)
		if err := s.CreateMatch(ctx, m, rounds); err != nil {
			t.Fatalf("create match: %v", err)
		}
		if got, err := s.FindActiveMatch(ctx, model.OpponentHuman, "u2", "u1"); err != nil || got.ID != m.ID {
			t.Fatalf("expected reversed pair lookup to find match: %v", err)
		}
		if got, err := s.ActiveMatchFor(ctx, "u2"); err != nil || got.ID != m.ID {
			t.Fatalf("expected active match for side B: %v", err)
		}
		end := baseTime.Add(time.Minute)
		final := *m
		final.EndedAt = &end
		final.ScoreA, final.ScoreB = 3, 2
		final.ResultA = model.ResultWin
		final.RatingAAfter, final.RatingBAfter = intPtr(1216), intPtr(1184)
		ok, err := s.CompleteMatch(ctx, &final)
		if err != nil || !ok {
			t.Fatalf("first completion should apply: %v %v", ok, err)
		}
		final.ResultA = model.ResultLoss
		ok, _ = s.CompleteMatch(ctx, &final)
		if ok {
			t.Fatal("second completion must not apply")
		}
		stored, _ := s.GetMatch(ctx, m.ID)
		if stored.Status != model.MatchCompleted || stored.ResultA != model.ResultWin || *stored.RatingAAfter != 1216 {
			t.Fatalf("unexpected stored match %+v", stored)
		}
		if _, err := s.ActiveMatchFor(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("completed match must not be active, got %v", err)
		}
		active, _ := s.ListActiveMatches(ctx, 10)
		if len(active) != 0 {
			t.Fatalf("expected no active matches, got %d", len(active))
		}
	})

	t.Run("one active bot match per player", func(t *testing.T) {
		s := newStore(t)
		first, rounds := newMatch("u1", nil, model.OpponentBot)
		if err := s.CreateMatch(ctx, first, rounds); err != nil {
			t.Fatalf("create match: %v", err)
		}
		second, rounds := newMatch("u1", nil, model.OpponentBot)
		if err := s.CreateMatch(ctx, second, rounds); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected conflict for a second active bot match, got %v", err)
		}
		end := baseTime.Add(time.Minute)
		done := *first
		done.EndedAt = &end
		done.ResultA = model.ResultDraw
		if ok, err := s.CompleteMatch(ctx, &done); err != nil || !ok {
			t.Fatalf("complete: %v %v", ok, err)
		}
		third, rounds := newMatch("u1", nil, model.OpponentBot)
		if err := s.CreateMatch(ctx, third, rounds); err != nil {
			t.Fatalf("a new bot match after completion should be allowed: %v", err)
		}
	})

	t.Run("transaction rollback", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		err := s.Transaction(ctx, func(tx Store) error {
			m, rounds := newMatch("u1", nil, model.OpponentBot)
			if err := tx.CreateMatch(ctx, m, rounds); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := s.ActiveMatchFor(ctx, "u1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("rolled back match must not be visible, got %v", err)
		}
	})

	t.Run("round log upsert", func(t *testing.T) {
		s := newStore(t)
		l := &model.RoundLog{MatchID: "m1", UserID: "u1", RoundIndex: 0, Correct: false, TimedOut: true}
		if err := s.UpsertRoundLog(ctx, l); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		l2 := &model.RoundLog{MatchID: "m1", UserID: "u1", RoundIndex: 0, Correct: true, LatencyMs: 900, SelectedText: "b"}
		if err := s.UpsertRoundLog(ctx, l2); err != nil {
			t.Fatalf("upsert again: %v", err)
		}
		logs, err := s.ListRoundLogs(ctx, "m1")
		if err != nil || len(logs) != 1 {
			t.Fatalf("expected exactly one log row, got %d (%v)", len(logs), err)
		}
		if !logs[0].Correct || logs[0].LatencyMs != 900 || logs[0].SelectedText != "b" {
			t.Fatalf("upsert did not replace values: %+v", logs[0])
		}
	})

	t.Run("seasons and leaderboard", func(t *testing.T) {
		s := newStore(t)
		season := &model.Season{Name: "S1", StartsAt: baseTime, EndsAt: baseTime.Add(7 * 24 * time.Hour), Active: true}
		if err := s.CreateSeason(ctx, season); err != nil {
			t.Fatalf("create season: %v", err)
		}
		got, err := s.ActiveSeason(ctx)
		if err != nil || got.ID != season.ID {
			t.Fatalf("expected active season: %v", err)
		}
		entries := []model.LeaderboardEntry{
			{SeasonID: season.ID, UserID: "a", Rating: 1300, Wins: 2, Cohort: "x"},
			{SeasonID: season.ID, UserID: "b", Rating: 1300, Wins: 5, Cohort: "y"},
			{SeasonID: season.ID, UserID: "c", Rating: 1400, Wins: 1, Cohort: "x"},
		}
		for i := range entries {
			if err := s.AddLeaderboardResult(ctx, &entries[i]); err != nil {
				t.Fatalf("add entry: %v", err)
			}
		}
		more := &model.LeaderboardEntry{SeasonID: season.ID, UserID: "a", Rating: 1250, Matches: 1, Wins: 1, Correct: 4, Answered: 5, ResponseMs: 700, Cohort: "x"}
		if err := s.AddLeaderboardResult(ctx, more); err != nil {
			t.Fatalf("add entry again: %v", err)
		}
		a, err := s.GetLeaderboardEntry(ctx, season.ID, "a")
		if err != nil {
			t.Fatalf("get entry: %v", err)
		}
		if a.Wins != 3 || a.Matches != 1 || a.Correct != 4 || a.ResponseMs != 700 || a.Rating != 1250 {
			t.Fatalf("counters not accumulated: %+v", a)
		}
		top, err := s.TopLeaderboard(ctx, season.ID, "", 10)
		if err != nil || len(top) != 3 {
			t.Fatalf("expected 3 entries, got %d (%v)", len(top), err)
		}
		if top[0].UserID != "c" || top[1].UserID != "b" || top[2].UserID != "a" || top[2].Wins != 3 {
			t.Fatalf("unexpected order %+v", top)
		}
		cohort, _ := s.TopLeaderboard(ctx, season.ID, "x", 1)
		if len(cohort) != 1 || cohort[0].UserID != "c" {
			t.Fatalf("unexpected cohort page %+v", cohort)
		}
		if err := s.DeactivateSeason(ctx, season.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := s.ActiveSeason(ctx); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected no active season, got %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}
