package bot_test

import (
	"fmt"
	"testing"

	"github.com/okian/battle/internal/domain/bot"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWasCorrect(t *testing.T) {
	Convey("Given a fixed seed", t, func() {
		Convey("Then the outcome is reproducible per difficulty", func() {
			for _, d := range []string{"easy", "medium", "hard", "weird"} {
				first := bot.WasCorrect("q-42", d)
				for i := 0; i < 5; i++ {
					So(bot.WasCorrect("q-42", d), ShouldEqual, first)
				}
			}
		})
	})

	Convey("Given many seeds", t, func() {
		rate := func(difficulty string) float64 {
			hits := 0
			const n = 4000
			for i := 0; i < n; i++ {
				if bot.WasCorrect(fmt.Sprintf("match-%d:round-%d", i, i%5), difficulty) {
					hits++
				}
			}
			return float64(hits) / n
		}

		Convey("Then easy questions are answered correctly more often than hard ones", func() {
			easy, medium, hard := rate("easy"), rate("medium"), rate("hard")
			So(easy, ShouldBeGreaterThan, medium)
			So(medium, ShouldBeGreaterThan, hard)
			So(hard, ShouldBeGreaterThan, 0.3)
			So(easy, ShouldBeLessThan, 0.95)
		})

		Convey("Then unknown difficulties land near the flat fallback", func() {
			So(rate("legendary"), ShouldAlmostEqual, 0.75, 0.07)
		})
	})
}

func TestChoose(t *testing.T) {
	Convey("Given a four option question", t, func() {
		Convey("Then the chosen index is always a valid option", func() {
			for i := 0; i < 500; i++ {
				for correct := 0; correct < 4; correct++ {
					seed := fmt.Sprintf("seed-%d", i)
					idx := bot.Choose(seed, "medium", correct, 4)
					So(idx, ShouldBeBetweenOrEqual, 0, 3)
					if bot.WasCorrect(seed, "medium") {
						So(idx, ShouldEqual, correct)
					} else {
						So(idx, ShouldNotEqual, correct)
					}
				}
			}
		})

		Convey("Then the oracle type agrees with the function", func() {
			var o bot.Oracle = bot.Deterministic{}
			So(o.Choose("abc", "hard", 2, 4), ShouldEqual, bot.Choose("abc", "hard", 2, 4))
		})
	})

	Convey("Given a single option question", t, func() {
		So(bot.Choose("x", "hard", 0, 1), ShouldEqual, 0)
	})
}
