package engine

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/domain/bot"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/pkg/logger"
)

// Default engine configuration.
const (
	DefaultRoundDuration  = 25 * time.Second
	DefaultRoundsPerMatch = 5
	DefaultOversample     = 20
	defaultAbandonAfter   = 30 * time.Minute
	defaultSweepBatch     = 200
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock sets the server clock. Every deadline is computed from it.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithOracle replaces the bot answer source.
func WithOracle(o bot.Oracle) Option {
	return func(e *Engine) {
		if o != nil {
			e.oracle = o
		}
	}
}

// WithRating sets the rating calculator.
func WithRating(c *rating.Calculator) Option {
	return func(e *Engine) {
		if c != nil {
			e.rating = c
		}
	}
}

// WithRoundDuration sets the per-round answer window.
func WithRoundDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.roundDuration = d
		}
	}
}

// WithRoundsPerMatch sets how many rounds a match has.
func WithRoundsPerMatch(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.roundsPerMatch = n
		}
	}
}

// WithOversample sets how many candidate questions are drawn before shuffling.
func WithOversample(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.oversample = n
		}
	}
}

// WithAbandonAfter sets the age after which the sweeper force-finalizes an
// ACTIVE match.
func WithAbandonAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.abandonAfter = d
		}
	}
}

// WithPublisher registers a sink for completed matches.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
