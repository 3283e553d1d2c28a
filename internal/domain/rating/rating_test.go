package rating_test

import (
	"testing"

	"github.com/okian/battle/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestUpdate(t *testing.T) {
	Convey("Given two equally rated players", t, func() {
		Convey("When A wins", func() {
			a, b := rating.Update(1200, 1200, rating.Win)
			Convey("Then A gains half the K-factor and B loses it", func() {
				So(a, ShouldEqual, 1216)
				So(b, ShouldEqual, 1184)
			})
		})

		Convey("When they draw", func() {
			a, b := rating.Update(1200, 1200, rating.Draw)
			So(a, ShouldEqual, 1200)
			So(b, ShouldEqual, 1200)
		})

		Convey("When A loses", func() {
			a, b := rating.Update(1200, 1200, rating.Loss)
			So(a, ShouldEqual, 1184)
			So(b, ShouldEqual, 1216)
		})
	})

	Convey("Given an underdog", t, func() {
		Convey("When the lower rated side wins", func() {
			a, b := rating.Update(1000, 1400, rating.Win)
			Convey("Then the gain is close to the full K-factor", func() {
				So(a, ShouldEqual, 1029)
				So(b, ShouldEqual, 1371)
			})
		})

		Convey("When the favourite wins", func() {
			a, _ := rating.Update(1400, 1000, rating.Win)
			So(a, ShouldEqual, 1403)
		})
	})

	Convey("Given many rating pairs and outcomes", t, func() {
		pairs := [][2]int{{1200, 1200}, {900, 1700}, {1550, 1549}, {2000, 800}, {1337, 1412}}
		outcomes := []float64{rating.Win, rating.Draw, rating.Loss}

		Convey("Then updates are deterministic and zero-sum within rounding", func() {
			for _, p := range pairs {
				for _, o := range outcomes {
					a1, b1 := rating.Update(p[0], p[1], o)
					a2, b2 := rating.Update(p[0], p[1], o)
					So(a1, ShouldEqual, a2)
					So(b1, ShouldEqual, b2)
					So(abs((a1-p[0])+(b1-p[1])), ShouldBeLessThanOrEqualTo, 1)
				}
			}
		})
	})

	Convey("Given a custom K-factor", t, func() {
		calc := rating.New(rating.WithK(16))
		a, b := calc.Update(1200, 1200, rating.Win)
		So(calc.K(), ShouldEqual, 16)
		So(a, ShouldEqual, 1208)
		So(b, ShouldEqual, 1192)
	})
}

func TestTierFor(t *testing.T) {
	Convey("Given ratings around each boundary", t, func() {
		So(rating.TierFor(1149), ShouldEqual, rating.TierBronze)
		So(rating.TierFor(1150), ShouldEqual, rating.TierSilver)
		So(rating.TierFor(1200), ShouldEqual, rating.TierSilver)
		So(rating.TierFor(1349), ShouldEqual, rating.TierSilver)
		So(rating.TierFor(1350), ShouldEqual, rating.TierGold)
		So(rating.TierFor(1549), ShouldEqual, rating.TierGold)
		So(rating.TierFor(1550), ShouldEqual, rating.TierPlatinum)
	})
}
