package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/battle/pkg/logger"
)

// Run registers synthetic players, plays bot matches for each of them
// concurrently and checks the resulting leaderboard.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if config.Players <= 0 || config.MatchesPerPlayer <= 0 || config.Workers <= 0 {
		return nil, errors.New("players, matches and workers must be positive")
	}
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")
	client := newHTTPClient(config.BaseURL, config.Timeout)

	log.Info(ctx, "starting battle simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("players", config.Players),
		logger.Int("matchesPerPlayer", config.MatchesPerPlayer),
		logger.Int("workers", config.Workers),
		logger.String("cohort", config.Cohort),
		logger.Duration("timeout", config.Timeout))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Register players
	players, err := registerPlayers(ctx, client, config)
	if err != nil {
		return stats, fmt.Errorf("player registration failed: %w", err)
	}
	stats.PlayersRegistered = len(players)

	// Step 3: Play matches concurrently
	played := playMatches(ctx, client, config, players, stats)

	// Step 4: Fetch and verify the cohort leaderboard
	board, err := getLeaderboard(ctx, client, config)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board.Entries)
	if err := verifyLeaderboard(board.Entries, played, config.TopN); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	displayTopPlayers(ctx, log, board.Entries, config.Verbose)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *httpClient) error {
	var health struct {
		Status string `json:"status"`
	}
	if err := client.do(ctx, http.MethodGet, "/healthz", "", nil, &health); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", health.Status)
	}
	return nil
}

func registerPlayers(ctx context.Context, client *httpClient, config *Config) ([]identity, error) {
	players := make([]identity, 0, config.Players)
	for i := 0; i < config.Players; i++ {
		body := map[string]string{
			"display_name": fmt.Sprintf("Sim %03d", i+1),
			"cohort":       config.Cohort,
		}
		var id identity
		if err := client.do(ctx, http.MethodPost, "/identity", "sim-"+uuid.NewString(), body, &id); err != nil {
			return nil, err
		}
		players = append(players, id)
	}
	return players, nil
}

// playMatches fans players out to workers. Each player plays its matches
// sequentially since a user holds at most one active match. It returns the
// number of completed matches per player id.
func playMatches(ctx context.Context, client *httpClient, config *Config, players []identity, stats *Stats) map[string]int {
	var (
		played, failed, answers int64
		wins, draws, losses     int64
		mu                      sync.Mutex
		perPlayer               = make(map[string]int, len(players))
	)

	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	playerChan := make(chan identity, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, uint64(workerID)))
			for p := range playerChan {
				for m := 0; m < config.MatchesPerPlayer; m++ {
					if ctx.Err() != nil {
						return
					}
					out, n, err := playMatch(ctx, client, p.ID, rng)
					atomic.AddInt64(&answers, int64(n))
					if err != nil {
						atomic.AddInt64(&failed, 1)
						logger.Get().Warn(ctx, "match failed", logger.String("player", p.Tag), logger.Error(err))
						continue
					}
					atomic.AddInt64(&played, 1)
					switch out.Result {
					case "WIN":
						atomic.AddInt64(&wins, 1)
					case "DRAW":
						atomic.AddInt64(&draws, 1)
					default:
						atomic.AddInt64(&losses, 1)
					}
					mu.Lock()
					perPlayer[p.ID]++
					mu.Unlock()
					if config.Verbose {
						logger.Get().Info(ctx, "match finished",
							logger.String("player", p.Tag),
							logger.String("result", out.Result),
							logger.Int("score", out.Score),
							logger.Int("opponentScore", out.OpponentScore),
							logger.Int("ratingAfter", out.RatingAfter))
					}
				}
			}
		}(w)
	}

	go func() {
		defer close(playerChan)
		for _, p := range players {
			select {
			case <-ctx.Done():
				return
			case playerChan <- p:
			}
		}
	}()
	wg.Wait()

	stats.MatchesPlayed = int(atomic.LoadInt64(&played))
	stats.MatchesFailed = int(atomic.LoadInt64(&failed))
	stats.AnswersSubmitted = int(atomic.LoadInt64(&answers))
	stats.Wins = int(atomic.LoadInt64(&wins))
	stats.Draws = int(atomic.LoadInt64(&draws))
	stats.Losses = int(atomic.LoadInt64(&losses))
	return perPlayer
}

// playMatch runs one bot match to completion, answering every round at
// random, then finalizes it and reads the summary.
func playMatch(ctx context.Context, client *httpClient, userID string, rng *rand.Rand) (*outcome, int, error) {
	var created struct {
		MatchID string `json:"match_id"`
	}
	req := map[string]any{"opponent": map[string]string{"kind": "BOT"}}
	if err := client.do(ctx, http.MethodPost, "/matches", userID, req, &created); err != nil {
		return nil, 0, fmt.Errorf("create match: %w", err)
	}
	path := "/matches/" + created.MatchID

	answered := 0
	for step := 0; ; step++ {
		var view matchView
		if err := client.do(ctx, http.MethodGet, path, userID, nil, &view); err != nil {
			return nil, answered, fmt.Errorf("view match: %w", err)
		}
		if step > 2*len(view.Rounds)+1 {
			return nil, answered, fmt.Errorf("match %s did not progress", created.MatchID)
		}
		if view.CurrentRoundIndex == nil {
			break
		}
		round := view.Rounds[*view.CurrentRoundIndex]
		choice := 0
		if len(round.Options) > 0 {
			choice = rng.IntN(len(round.Options))
		}
		var res submitResult
		body := map[string]int{"selected_index": choice}
		if err := client.do(ctx, http.MethodPost, path+"/rounds/"+round.ID+"/answer", userID, body, &res); err != nil {
			return nil, answered, fmt.Errorf("answer round %d: %w", round.Index, err)
		}
		answered++
		if res.MatchComplete {
			break
		}
	}

	var out outcome
	if err := client.do(ctx, http.MethodPost, path+"/finalize", userID, map[string]any{}, &out); err != nil {
		return nil, answered, fmt.Errorf("finalize: %w", err)
	}
	var sum summary
	if err := client.do(ctx, http.MethodGet, path+"/summary", userID, nil, &sum); err != nil {
		return nil, answered, fmt.Errorf("summary: %w", err)
	}
	return &out, answered, nil
}

func getLeaderboard(ctx context.Context, client *httpClient, config *Config) (*leaderboard, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(config.TopN))
	if config.Cohort != "" {
		q.Set("cohort", config.Cohort)
	}
	var board leaderboard
	// The route only needs a caller id.
	if err := client.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode(), "sim-reader", nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var matchesPerSecond float64
	if stats.Duration > 0 {
		matchesPerSecond = float64(stats.MatchesPlayed) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("playersRegistered", stats.PlayersRegistered),
		logger.Int("matchesPlayed", stats.MatchesPlayed),
		logger.Int("matchesFailed", stats.MatchesFailed),
		logger.Int("wins", stats.Wins),
		logger.Int("draws", stats.Draws),
		logger.Int("losses", stats.Losses),
		logger.Int("answersSubmitted", stats.AnswersSubmitted),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchesPerSecond", matchesPerSecond))
}
