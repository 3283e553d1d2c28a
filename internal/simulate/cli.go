// Package simulate drives a running battle server over HTTP with synthetic
// players playing bot matches, then checks the leaderboard they produced.
package simulate

import "os"

// Worker configuration constants.
const (
	workerChannelMultiplier = 2
)

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Battle Simulator
================

Registers synthetic players, plays bot matches for each of them concurrently
and verifies the cohort leaderboard afterwards.

Usage:
  go run ./cmd/battle-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -players int
        Number of synthetic players (default 20)
  -matches int
        Bot matches per player (default 3)
  -cohort string
        Cohort every player registers into (default "sim")
  -top int
        Leaderboard page size to fetch (default 50)
  -workers int
        Number of concurrent players (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed uint
        Answer picker seed, 0 picks one (default 0)
  -verbose
        Log every finished match
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run ./cmd/battle-sim

  # A larger run against another instance
  go run ./cmd/battle-sim -players 100 -matches 5 -workers 16 -url http://localhost:8080
`)
}
