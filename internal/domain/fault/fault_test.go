package fault_test

import (
	"errors"
	"testing"

	"github.com/okian/battle/internal/domain/fault"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCodeOf(t *testing.T) {
	Convey("Given errors of each kind", t, func() {
		Convey("Then kinds map to their wire codes", func() {
			So(fault.CodeOf(fault.NewKind("op", fault.ErrBadRequest)), ShouldEqual, fault.CodeBadRequest)
			So(fault.CodeOf(fault.NewKind("op", fault.ErrNotFound)), ShouldEqual, fault.CodeNotFound)
			So(fault.CodeOf(fault.NewKind("op", fault.ErrForbidden)), ShouldEqual, fault.CodeForbidden)
			So(fault.CodeOf(fault.NewKind("op", fault.ErrConflict)), ShouldEqual, fault.CodeConflict)
			So(fault.CodeOf(fault.NewKind("op", fault.ErrNoQuestions)), ShouldEqual, fault.CodeNoQuestions)
		})

		Convey("Then unclassified errors are internal", func() {
			So(fault.CodeOf(errors.New("boom")), ShouldEqual, fault.CodeInternal)
			So(fault.CodeOf(nil), ShouldEqual, fault.Code(""))
		})
	})
}

func TestWrap(t *testing.T) {
	Convey("Given a wrapped error", t, func() {
		cause := errors.New("db down")

		Convey("When wrapping without a kind", func() {
			err := fault.Wrap("engine.create", cause)

			Convey("Then it is internal and keeps the cause", func() {
				So(errors.Is(err, fault.ErrInternal), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "engine.create")
			})
		})

		Convey("When wrapping an already classified error", func() {
			inner := fault.NewKind("store.get", fault.ErrNotFound)
			err := fault.Wrap("engine.view", inner)

			Convey("Then the original kind survives", func() {
				So(fault.CodeOf(err), ShouldEqual, fault.CodeNotFound)
				So(errors.Is(err, fault.ErrInternal), ShouldBeFalse)
			})
		})

		Convey("When wrapping nil", func() {
			So(fault.Wrap("op", nil), ShouldBeNil)
			So(fault.WrapKind("op", fault.ErrConflict, nil), ShouldBeNil)
		})

		Convey("When wrapping with an explicit kind", func() {
			err := fault.WrapKind("identity.rename", fault.ErrConflict, cause)
			So(fault.CodeOf(err), ShouldEqual, fault.CodeConflict)
			So(errors.Is(err, cause), ShouldBeTrue)
		})
	})
}
