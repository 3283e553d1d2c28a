package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/battle/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Storage, convey.ShouldEqual, config.StorageMemory)
			convey.So(cfg.RoundsPerMatch, convey.ShouldEqual, 5)
			convey.So(cfg.KFactor, convey.ShouldEqual, 32)
			convey.So(cfg.StartingRating, convey.ShouldEqual, 1200)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then duration accessors convert units", func() {
			convey.So(cfg.RoundDuration(), convey.ShouldEqual, 25*time.Second)
			convey.So(cfg.QueueGiveUp(), convey.ShouldEqual, 12*time.Second)
			convey.So(cfg.QueueHeartbeatTTL(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.BandStepInterval(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.NameChangeCooldown(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.SweeperInterval(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.AbandonedMatchAfter(), convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.SeasonLength(), convey.ShouldEqual, 7*24*time.Hour)
			convey.So(cfg.FeedbackTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.DBConnMaxLifetime(), convey.ShouldEqual, 5*time.Minute)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := map[string]func(c *config.Config){
			"addr must not be empty":        func(c *config.Config) { c.Addr = " " },
			"database_dsn is required":      func(c *config.Config) { c.Storage = config.StoragePostgres },
			"storage must be":               func(c *config.Config) { c.Storage = "redis" },
			"round_duration_ms must be":     func(c *config.Config) { c.RoundDurationMs = 0 },
			"k_factor must be positive":     func(c *config.Config) { c.KFactor = -1 },
			"band_step must not be":         func(c *config.Config) { c.BandStep = -1 },
			"question_oversample":           func(c *config.Config) { c.QuestionOversample = 3 },
			"archive_bucket is required":    func(c *config.Config) { c.ArchiveEnabled = true },
			"max_leaderboard_limit must be": func(c *config.Config) { c.MaxLeaderboardLimit = 0 },
		}
		for want, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, want)
		}
	})

	convey.Convey("Given postgres storage with a dsn", t, func() {
		cfg := config.New()
		cfg.Storage = config.StoragePostgres
		cfg.DatabaseDSN = "postgres://battle@localhost/battle"
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
