// Package rating implements the logistic (Elo) skill rating update and tier bands.
package rating

import "math"

// Defaults for new players and the update step.
const (
	DefaultK      = 32
	StartingValue = 1200
	scaleFactor   = 400.0
)

// Match outcomes from one side's perspective.
const (
	Win  = 1.0
	Draw = 0.5
	Loss = 0.0
)

// Tier is a display band derived purely from a rating.
type Tier string

// Tier bands, ascending.
const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

const (
	silverFloor   = 1150
	goldFloor     = 1350
	platinumFloor = 1550
)

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithK sets the K-factor.
func WithK(k float64) Option {
	return func(c *Calculator) {
		if k > 0 {
			c.k = k
		}
	}
}

// Calculator applies Elo updates with a fixed K-factor.
type Calculator struct {
	k float64
}

// New returns a Calculator with K=32 unless overridden.
func New(opts ...Option) *Calculator {
	c := &Calculator{k: DefaultK}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// K returns the configured K-factor.
func (c *Calculator) K() float64 { return c.k }

// Update returns both sides' new ratings. scoreA is 1 for a win by A, 0.5 for a
// draw and 0 for a loss; B's actual score is the complement.
func (c *Calculator) Update(ratingA, ratingB int, scoreA float64) (int, int) {
	expA := Expected(ratingA, ratingB)
	expB := Expected(ratingB, ratingA)
	newA := int(math.Round(float64(ratingA) + c.k*(scoreA-expA)))
	newB := int(math.Round(float64(ratingB) + c.k*((1-scoreA)-expB)))
	return newA, newB
}

// Update applies the default calculator.
func Update(ratingA, ratingB int, scoreA float64) (int, int) {
	return defaultCalculator.Update(ratingA, ratingB, scoreA)
}

var defaultCalculator = New()

// Expected is the probability that a side rated r beats one rated opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/scaleFactor))
}

// TierFor maps a rating to its band.
func TierFor(r int) Tier {
	switch {
	case r < silverFloor:
		return TierBronze
	case r < goldFloor:
		return TierSilver
	case r < platinumFloor:
		return TierGold
	default:
		return TierPlatinum
	}
}
