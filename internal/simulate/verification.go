package simulate

import (
	"context"
	"fmt"

	"github.com/okian/battle/pkg/logger"
)

// verifyLeaderboard checks that ranks are dense, ratings never increase down
// the page and every simulated player shows the number of matches it played.
// When the page is shorter than topN it must hold every player that played.
func verifyLeaderboard(entries []Entry, played map[string]int, topN int) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && e.Rating > entries[i-1].Rating {
			return fmt.Errorf("leaderboard not sorted: %s (%d) above %s (%d)",
				entries[i-1].Tag, entries[i-1].Rating, e.Tag, e.Rating)
		}
		if n, ok := played[e.UserID]; ok && e.Matches != n {
			return fmt.Errorf("%s shows %d matches, played %d", e.Tag, e.Matches, n)
		}
		seen[e.UserID] = true
	}
	if len(entries) < topN {
		for id, n := range played {
			if n > 0 && !seen[id] {
				return fmt.Errorf("player %s played %d matches but is missing from the leaderboard", id, n)
			}
		}
	}
	return nil
}

// displayTopPlayers logs the head of the leaderboard.
func displayTopPlayers(ctx context.Context, log logger.Logger, entries []Entry, verbose bool) {
	topN := 10
	if verbose || len(entries) < topN {
		topN = len(entries)
	}
	for _, e := range entries[:topN] {
		log.Info(ctx, "leaderboard",
			logger.Int("rank", e.Rank),
			logger.String("tag", e.Tag),
			logger.Int("rating", e.Rating),
			logger.Int("matches", e.Matches),
			logger.Int("wins", e.Wins))
	}
}
