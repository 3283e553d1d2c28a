package leaderboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var seasonStart = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newService() (*Service, *repository.MemoryStore, *clockwork.FakeClock) {
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(seasonStart)
	svc := New(store, WithClock(clock), WithSeasonLength(7*24*time.Hour), WithMaxLimit(50))
	return svc, store, clock
}

func addUser(ctx context.Context, store *repository.MemoryStore, id, name string, disc int, cohort string) {
	err := store.CreateUser(ctx, &model.User{
		ID:            id,
		DisplayName:   name,
		CanonicalName: name,
		Discriminator: disc,
		Rating:        1200,
		Tier:          "Silver",
		Cohort:        cohort,
	})
	So(err, ShouldBeNil)
}

func record(ctx context.Context, store *repository.MemoryStore, r SideResult) {
	So(store.Transaction(ctx, func(tx repository.Store) error {
		return Record(ctx, tx, r)
	}), ShouldBeNil)
}

func TestRecordAndTop(t *testing.T) {
	Convey("Given an active season with three players", t, func() {
		ctx := context.Background()
		svc, store, _ := newService()
		season, err := svc.EnsureActive(ctx)
		So(err, ShouldBeNil)

		addUser(ctx, store, "u-ada", "ada", 7, "beta")
		addUser(ctx, store, "u-bob", "bob", 12, "beta")
		addUser(ctx, store, "u-cy", "cy", 3, "gamma")

		record(ctx, store, SideResult{UserID: "u-ada", Cohort: "beta", Rating: 1216, Result: model.ResultWin, Correct: 4, Answered: 5, ResponseMs: 30_000})
		record(ctx, store, SideResult{UserID: "u-ada", Cohort: "beta", Rating: 1230, Result: model.ResultDraw, Correct: 2, Answered: 5, ResponseMs: 30_000})
		record(ctx, store, SideResult{UserID: "u-bob", Cohort: "beta", Rating: 1184, Result: model.ResultLoss, Correct: 1, Answered: 4, ResponseMs: 20_000})
		record(ctx, store, SideResult{UserID: "u-cy", Cohort: "gamma", Rating: 1400, Result: model.ResultWin, Correct: 5, Answered: 5, ResponseMs: 10_000})

		Convey("Then the aggregate accumulates per user", func() {
			e, err := store.GetLeaderboardEntry(ctx, season.ID, "u-ada")
			So(err, ShouldBeNil)
			So(e.Matches, ShouldEqual, 2)
			So(e.Wins, ShouldEqual, 1)
			So(e.Draws, ShouldEqual, 1)
			So(e.Losses, ShouldEqual, 0)
			So(e.Rating, ShouldEqual, 1230)
			So(e.Correct, ShouldEqual, 6)
			So(e.Answered, ShouldEqual, 10)
			So(e.ResponseMs, ShouldEqual, int64(60_000))
		})

		Convey("When one user finishes matches concurrently", func() {
			var wg sync.WaitGroup
			errs := make([]error, 20)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = Record(ctx, store, SideResult{UserID: "u-bob", Cohort: "beta", Rating: 1190, Result: model.ResultWin, Correct: 1, Answered: 1})
				}(i)
			}
			wg.Wait()

			Convey("Then every match is counted", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				e, err := store.GetLeaderboardEntry(ctx, season.ID, "u-bob")
				So(err, ShouldBeNil)
				So(e.Matches, ShouldEqual, 21)
				So(e.Wins, ShouldEqual, 20)
				So(e.Losses, ShouldEqual, 1)
				So(e.Answered, ShouldEqual, 24)
			})
		})

		Convey("When the active season is read without a cohort", func() {
			board, err := svc.Top(ctx, "", "", 10)

			Convey("Then entries are ranked by rating", func() {
				So(err, ShouldBeNil)
				So(board.SeasonID, ShouldEqual, season.ID)
				So(board.Entries, ShouldHaveLength, 3)
				So(board.Entries[0].UserID, ShouldEqual, "u-cy")
				So(board.Entries[0].Rank, ShouldEqual, 1)
				So(board.Entries[0].Tier, ShouldEqual, "Gold")
				So(board.Entries[1].UserID, ShouldEqual, "u-ada")
				So(board.Entries[1].Tag, ShouldEqual, "ada#0007")
				So(board.Entries[1].Accuracy, ShouldAlmostEqual, 0.6)
				So(board.Entries[1].Efficiency, ShouldAlmostEqual, 6.0)
				So(board.Entries[2].UserID, ShouldEqual, "u-bob")
				So(board.Entries[2].Rank, ShouldEqual, 3)
			})
		})

		Convey("When a cohort is requested", func() {
			board, err := svc.Top(ctx, "", "beta", 10)

			Convey("Then only that cohort is listed", func() {
				So(err, ShouldBeNil)
				So(board.Cohort, ShouldEqual, "beta")
				So(board.Entries, ShouldHaveLength, 2)
				So(board.Entries[0].UserID, ShouldEqual, "u-ada")
			})
		})

		Convey("When the limit is smaller than the field", func() {
			board, err := svc.Top(ctx, season.ID, "", 1)

			Convey("Then the page is truncated", func() {
				So(err, ShouldBeNil)
				So(board.Entries, ShouldHaveLength, 1)
			})
		})

		Convey("When the limit is out of range", func() {
			_, errLow := svc.Top(ctx, "", "", 0)
			_, errHigh := svc.Top(ctx, "", "", svc.MaxLimit()+1)

			Convey("Then the request is rejected", func() {
				So(fault.CodeOf(errLow), ShouldEqual, fault.CodeBadRequest)
				So(fault.CodeOf(errHigh), ShouldEqual, fault.CodeBadRequest)
			})
		})

		Convey("When an unknown season is requested", func() {
			_, err := svc.Top(ctx, "no-such-season", "", 10)

			Convey("Then it is not found", func() {
				So(fault.CodeOf(err), ShouldEqual, fault.CodeNotFound)
			})
		})
	})

	Convey("Given no season at all", t, func() {
		ctx := context.Background()
		svc, store, _ := newService()

		Convey("Record is a no-op and Top is not found", func() {
			record(ctx, store, SideResult{UserID: "u-ada", Result: model.ResultWin})
			_, err := svc.Top(ctx, "", "", 10)
			So(fault.CodeOf(err), ShouldEqual, fault.CodeNotFound)
		})
	})
}

func TestSeasons(t *testing.T) {
	Convey("Given a leaderboard service", t, func() {
		ctx := context.Background()
		svc, store, clock := newService()

		Convey("EnsureActive opens one season and then reuses it", func() {
			first, err := svc.EnsureActive(ctx)
			So(err, ShouldBeNil)
			So(first.StartsAt, ShouldEqual, seasonStart)
			So(first.EndsAt, ShouldEqual, seasonStart.Add(7*24*time.Hour))
			So(first.Active, ShouldBeTrue)

			again, err := svc.EnsureActive(ctx)
			So(err, ShouldBeNil)
			So(again.ID, ShouldEqual, first.ID)
		})

		Convey("Rotate opens a season when none is active", func() {
			rotated, err := svc.Rotate(ctx)
			So(err, ShouldBeNil)
			So(rotated, ShouldBeTrue)
			_, err = store.ActiveSeason(ctx)
			So(err, ShouldBeNil)
		})

		Convey("When the active season has not ended", func() {
			first, _ := svc.EnsureActive(ctx)
			clock.Advance(3 * 24 * time.Hour)
			rotated, err := svc.Rotate(ctx)

			Convey("Then nothing changes", func() {
				So(err, ShouldBeNil)
				So(rotated, ShouldBeFalse)
				cur, _ := store.ActiveSeason(ctx)
				So(cur.ID, ShouldEqual, first.ID)
			})
		})

		Convey("When the active season has ended", func() {
			first, _ := svc.EnsureActive(ctx)
			addUser(ctx, store, "u-ada", "ada", 1, "")
			record(ctx, store, SideResult{UserID: "u-ada", Rating: 1216, Result: model.ResultWin, Correct: 3, Answered: 5, ResponseMs: 15_000})

			clock.Advance(7*24*time.Hour + time.Minute)
			rotated, err := svc.Rotate(ctx)

			Convey("Then the next season starts where the last one ended", func() {
				So(err, ShouldBeNil)
				So(rotated, ShouldBeTrue)
				cur, err := store.ActiveSeason(ctx)
				So(err, ShouldBeNil)
				So(cur.ID, ShouldNotEqual, first.ID)
				So(cur.StartsAt, ShouldEqual, first.EndsAt)

				fresh, err := svc.Top(ctx, "", "", 10)
				So(err, ShouldBeNil)
				So(fresh.Entries, ShouldBeEmpty)

				old, err := svc.Top(ctx, first.ID, "", 10)
				So(err, ShouldBeNil)
				So(old.Entries, ShouldHaveLength, 1)
				So(old.Entries[0].Matches, ShouldEqual, 1)
			})
		})
	})
}

func TestRatios(t *testing.T) {
	Convey("Accuracy and efficiency guard empty denominators", t, func() {
		So(Accuracy(0, 0), ShouldEqual, 0)
		So(Accuracy(3, 4), ShouldAlmostEqual, 0.75)
		So(Efficiency(5, 0), ShouldEqual, 0)
		So(Efficiency(2, 30_000), ShouldAlmostEqual, 4.0)
	})
}
