package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/archive"
	"github.com/okian/battle/internal/adapters/feedback"
	service "github.com/okian/battle/internal/app"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given two players and an archiving service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		clock := clockwork.NewFakeClockAt(epoch)
		store := seededStore(10)
		sink := archive.NewMemorySink()
		svc := service.New(store,
			service.WithClock(clock),
			service.WithArchiveSink(sink),
			service.WithoutScheduler(),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		for _, u := range []struct{ id, name string }{{"alice", "Alice"}, {"bob", "Bob"}} {
			_, err := svc.Register(ctx, u.id, u.name, "beta")
			So(err, ShouldBeNil)
		}

		Convey("When both queue, play and finish a ranked match", func() {
			start := clock.Now().UnixMilli()

			res, err := svc.Poll(ctx, "alice", start)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, types.PollWaiting)

			res, err = svc.Poll(ctx, "bob", start)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, types.PollWaiting)

			res, err = svc.Poll(ctx, "alice", start)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, types.PollMatched)
			So(res.OpponentKind, ShouldEqual, model.OpponentHuman)
			matchID := res.MatchID

			res, err = svc.Poll(ctx, "bob", start)
			So(err, ShouldBeNil)
			So(res.Status, ShouldEqual, types.PollMatched)
			So(res.MatchID, ShouldEqual, matchID)

			rounds, err := store.ListRounds(ctx, matchID)
			So(err, ShouldBeNil)
			So(rounds, ShouldHaveLength, 5)
			var last *types.SubmitResult
			for _, r := range rounds {
				clock.Advance(2 * time.Second)
				_, err := svc.SubmitAnswer(ctx, matchID, r.ID, "alice", r.CorrectIndex, nil)
				So(err, ShouldBeNil)
				last, err = svc.SubmitAnswer(ctx, matchID, r.ID, "bob", (r.CorrectIndex+1)%r.OptionCount, nil)
				So(err, ShouldBeNil)
				So(last.RoundComplete, ShouldBeTrue)
			}
			So(last.MatchComplete, ShouldBeTrue)

			Convey("Then both sides see mirrored outcomes", func() {
				a, err := svc.FinalizeMatch(ctx, matchID, "alice", nil)
				So(err, ShouldBeNil)
				So(a.Result, ShouldEqual, model.ResultWin)
				So(a.Score, ShouldEqual, 5)
				So(a.RatingAfter, ShouldEqual, 1216)

				b, err := svc.FinalizeMatch(ctx, matchID, "bob", nil)
				So(err, ShouldBeNil)
				So(b.Result, ShouldEqual, model.ResultLoss)
				So(b.OpponentScore, ShouldEqual, 5)
				So(b.RatingAfter, ShouldEqual, 1184)
			})

			Convey("Then the summary falls back to canned feedback", func() {
				sum, err := svc.Summary(ctx, matchID, "bob")
				So(err, ShouldBeNil)
				So(sum.Logs, ShouldHaveLength, 5)
				So(sum.Feedback, ShouldEqual, feedback.Fallback(sum.Outcome))
			})

			Convey("Then the season leaderboard ranks the winner first", func() {
				board, err := svc.Leaderboard(ctx, "", "beta", 10)
				So(err, ShouldBeNil)
				So(board.Entries, ShouldHaveLength, 2)
				So(board.Entries[0].UserID, ShouldEqual, "alice")
				So(board.Entries[0].Rating, ShouldEqual, 1216)
				So(board.Entries[0].Wins, ShouldEqual, 1)
				So(board.Entries[0].Accuracy, ShouldEqual, 1.0)
				So(board.Entries[1].Accuracy, ShouldEqual, 0.0)
			})

			Convey("Then the match is archived once", func() {
				deadline := time.Now().Add(5 * time.Second)
				for len(sink.Keys()) == 0 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
				So(sink.Keys(), ShouldHaveLength, 1)
				So(svc.GetStats()["archive_enabled"], ShouldEqual, true)
			})

			Convey("Then neither player has an active match", func() {
				_, err := svc.ActiveMatch(ctx, "alice")
				So(err, ShouldNotBeNil)
			})
		})
	})
}
