// Package bot decides how the virtual opponent answers a round.
//
// Outcomes are a pure function of (seed, difficulty) so replays and tests are
// reproducible. The engine calls Choose once per round and stores the result
// as an option index, the same representation used for human answers.
package bot

import (
	"math"
	"strings"
)

// Difficulty tags understood by the oracle.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

const (
	fallbackProbability = 0.75
	sineScale           = 10000.0
	wrongPickOffset     = 7919.0
)

type band struct{ lo, hi float64 }

var bands = map[string]band{
	DifficultyEasy:   {0.70, 0.85},
	DifficultyMedium: {0.55, 0.70},
	DifficultyHard:   {0.40, 0.55},
}

// Oracle is the seam the match engine uses to obtain bot answers.
type Oracle interface {
	// Choose returns the option index the bot selects for a round.
	Choose(seed, difficulty string, correctIndex, optionCount int) int
}

// Deterministic is the production Oracle.
type Deterministic struct{}

// Choose implements Oracle.
func (Deterministic) Choose(seed, difficulty string, correctIndex, optionCount int) int {
	return Choose(seed, difficulty, correctIndex, optionCount)
}

// WasCorrect reports whether the bot answers the question identified by seed
// correctly. A single draw picks both the probability inside the difficulty
// band and the outcome. Unknown difficulties use a flat 75%.
func WasCorrect(seed, difficulty string) bool {
	r := draw(seedNumber(seed))
	b, ok := bands[strings.ToLower(strings.TrimSpace(difficulty))]
	if !ok {
		return r < fallbackProbability
	}
	p := b.lo + r*(b.hi-b.lo)
	return r < p
}

// Choose maps WasCorrect onto an option index: the correct index when the bot
// is right, otherwise a deterministic wrong option.
func Choose(seed, difficulty string, correctIndex, optionCount int) int {
	if WasCorrect(seed, difficulty) || optionCount < 2 {
		return correctIndex
	}
	r := draw(seedNumber(seed) + wrongPickOffset)
	idx := int(r * float64(optionCount-1))
	if idx >= optionCount-1 {
		idx = optionCount - 2
	}
	if idx >= correctIndex {
		idx++
	}
	return idx
}

// seedNumber folds the seed into a positional checksum so that anagrams differ.
func seedNumber(seed string) float64 {
	var n float64
	for i, c := range seed {
		n += float64(c) * float64(i+1)
	}
	return n + float64(len(seed))
}

// draw returns a value in [0,1) from a sine hash of n.
func draw(n float64) float64 {
	x := math.Sin(n) * sineScale
	return x - math.Floor(x)
}
