package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/battle/internal/simulate"
	"github.com/okian/battle/pkg/logger"
)

// Default configuration constants.
const (
	defaultPlayers     = 20
	defaultMatches     = 3
	defaultTopN        = 50
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players = flag.Int("players", defaultPlayers, "Number of synthetic players")
		matches = flag.Int("matches", defaultMatches, "Bot matches per player")
		cohort  = flag.String("cohort", "sim", "Cohort every player registers into")
		topN    = flag.Int("top", defaultTopN, "Leaderboard page size to fetch")
		workers = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent players")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed    = flag.Uint64("seed", 0, "Answer picker seed, 0 picks one")
		verbose = flag.Bool("verbose", false, "Log every finished match")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:          *baseURL,
		Players:          *players,
		MatchesPerPlayer: *matches,
		Cohort:           *cohort,
		TopN:             *topN,
		Workers:          *workers,
		Timeout:          *timeout,
		Seed:             *seed,
		Verbose:          *verbose,
	}

	if _, err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
