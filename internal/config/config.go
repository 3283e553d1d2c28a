// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers a .env file, an optional YAML file and BATTLE_* environment
//     variables on top of the defaults.
//   - Durations are stored as integers in the unit named by the key and
//     exposed as time.Duration through accessor methods.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// GinMode is debug, release or test.
	GinMode string `koanf:"gin_mode"`
	// PprofEnabled mounts /debug/pprof.
	PprofEnabled bool `koanf:"pprof_enabled"`

	// Storage selects the store backend: memory or postgres.
	Storage              string `koanf:"storage"`
	DatabaseDSN          string `koanf:"database_dsn"`
	DBMaxOpenConns       int    `koanf:"db_max_open_conns"`
	DBMaxIdleConns       int    `koanf:"db_max_idle_conns"`
	DBConnMaxLifetimeSec int    `koanf:"db_conn_max_lifetime_sec"`

	RoundDurationMs    int `koanf:"round_duration_ms"`
	RoundsPerMatch     int `koanf:"rounds_per_match"`
	QuestionOversample int `koanf:"question_oversample"`
	KFactor            int `koanf:"k_factor"`
	StartingRating     int `koanf:"starting_rating"`

	QueueGiveUpMs       int `koanf:"queue_give_up_ms"`
	QueueHeartbeatTTLMs int `koanf:"queue_heartbeat_ttl_ms"`
	BandBase            int `koanf:"band_base"`
	BandStep            int `koanf:"band_step"`
	BandStepIntervalMs  int `koanf:"band_step_interval_ms"`

	NameChangeCooldownHours     int `koanf:"name_change_cooldown_hours"`
	DiscriminatorRandomAttempts int `koanf:"discriminator_random_attempts"`

	SweeperIntervalSec     int `koanf:"sweeper_interval_sec"`
	AbandonedMatchAfterMin int `koanf:"abandoned_match_after_min"`
	SeasonLengthDays       int `koanf:"season_length_days"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// QuestionBankPath is a YAML file seeded into an empty question table.
	QuestionBankPath string `koanf:"question_bank_path"`

	ArchiveEnabled         bool   `koanf:"archive_enabled"`
	ArchiveBucket          string `koanf:"archive_bucket"`
	ArchiveEndpoint        string `koanf:"archive_endpoint"`
	ArchiveRegion          string `koanf:"archive_region"`
	ArchiveAccessKeyID     string `koanf:"archive_access_key_id"`
	ArchiveSecretAccessKey string `koanf:"archive_secret_access_key"`
	ArchiveWorkerCount     int    `koanf:"archive_worker_count"`
	ArchiveQueueSize       int    `koanf:"archive_queue_size"`
	ArchiveDedupeSize      int    `koanf:"archive_dedupe_size"`

	// FeedbackURL is the text-generation endpoint; empty uses canned text.
	FeedbackURL       string `koanf:"feedback_url"`
	FeedbackTimeoutMs int    `koanf:"feedback_timeout_ms"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                    "info",
		LogFormat:                   "text",
		Addr:                        ":9080",
		GinMode:                     "release",
		Storage:                     StorageMemory,
		DBMaxOpenConns:              20,
		DBMaxIdleConns:              5,
		DBConnMaxLifetimeSec:        300,
		RoundDurationMs:             25_000,
		RoundsPerMatch:              5,
		QuestionOversample:          20,
		KFactor:                     32,
		StartingRating:              1200,
		QueueGiveUpMs:               12_000,
		QueueHeartbeatTTLMs:         5_000,
		BandBase:                    100,
		BandStep:                    10,
		BandStepIntervalMs:          2_000,
		NameChangeCooldownHours:     24,
		DiscriminatorRandomAttempts: 12,
		SweeperIntervalSec:          5,
		AbandonedMatchAfterMin:      30,
		SeasonLengthDays:            7,
		MaxLeaderboardLimit:         100,
		ArchiveRegion:               "auto",
		ArchiveWorkerCount:          4,
		ArchiveQueueSize:            1024,
		ArchiveDedupeSize:           50_000,
		FeedbackTimeoutMs:           2_000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return invalid("addr must not be empty")
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return invalid("database_dsn is required for postgres storage")
		}
	default:
		return invalid("storage must be memory or postgres, got %q", c.Storage)
	}

	positive := []struct {
		key string
		val int
	}{
		{"round_duration_ms", c.RoundDurationMs},
		{"rounds_per_match", c.RoundsPerMatch},
		{"k_factor", c.KFactor},
		{"starting_rating", c.StartingRating},
		{"queue_give_up_ms", c.QueueGiveUpMs},
		{"queue_heartbeat_ttl_ms", c.QueueHeartbeatTTLMs},
		{"band_base", c.BandBase},
		{"band_step_interval_ms", c.BandStepIntervalMs},
		{"sweeper_interval_sec", c.SweeperIntervalSec},
		{"abandoned_match_after_min", c.AbandonedMatchAfterMin},
		{"season_length_days", c.SeasonLengthDays},
		{"max_leaderboard_limit", c.MaxLeaderboardLimit},
		{"feedback_timeout_ms", c.FeedbackTimeoutMs},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return invalid("%s must be positive, got %d", p.key, p.val)
		}
	}
	if c.BandStep < 0 {
		return invalid("band_step must not be negative, got %d", c.BandStep)
	}
	if c.QuestionOversample < c.RoundsPerMatch {
		return invalid("question_oversample (%d) must be at least rounds_per_match (%d)", c.QuestionOversample, c.RoundsPerMatch)
	}
	if c.ArchiveEnabled {
		if strings.TrimSpace(c.ArchiveBucket) == "" {
			return invalid("archive_bucket is required when archive is enabled")
		}
		if c.ArchiveWorkerCount <= 0 || c.ArchiveQueueSize <= 0 {
			return invalid("archive_worker_count and archive_queue_size must be positive")
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// RoundDuration is the answer window of one round.
func (c *Config) RoundDuration() time.Duration { return ms(c.RoundDurationMs) }

// QueueGiveUp is how long a player waits before a bot match.
func (c *Config) QueueGiveUp() time.Duration { return ms(c.QueueGiveUpMs) }

// QueueHeartbeatTTL is how long a queue heartbeat keeps a player poolable.
func (c *Config) QueueHeartbeatTTL() time.Duration { return ms(c.QueueHeartbeatTTLMs) }

// BandStepInterval is the time between rating band widenings.
func (c *Config) BandStepInterval() time.Duration { return ms(c.BandStepIntervalMs) }

// NameChangeCooldown is the minimum time between renames.
func (c *Config) NameChangeCooldown() time.Duration {
	return time.Duration(c.NameChangeCooldownHours) * time.Hour
}

// SweeperInterval is the stale round sweep period.
func (c *Config) SweeperInterval() time.Duration {
	return time.Duration(c.SweeperIntervalSec) * time.Second
}

// AbandonedMatchAfter is the age at which ACTIVE matches are force-finalized.
func (c *Config) AbandonedMatchAfter() time.Duration {
	return time.Duration(c.AbandonedMatchAfterMin) * time.Minute
}

// SeasonLength is the duration of one leaderboard season.
func (c *Config) SeasonLength() time.Duration {
	return time.Duration(c.SeasonLengthDays) * 24 * time.Hour
}

// DBConnMaxLifetime bounds pooled connection reuse.
func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSec) * time.Second
}

// FeedbackTimeout bounds one feedback call.
func (c *Config) FeedbackTimeout() time.Duration { return ms(c.FeedbackTimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
