package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Players          int           // Number of synthetic players
	MatchesPerPlayer int           // Bot matches each player plays
	Cohort           string        // Cohort every player registers into
	TopN             int           // Leaderboard page size to fetch
	Workers          int           // Number of concurrent players
	Timeout          time.Duration // HTTP request timeout
	Seed             uint64        // Answer picker seed; 0 picks one
	Verbose          bool          // Log every finished match
}

// Stats holds run statistics.
type Stats struct {
	PlayersRegistered  int
	MatchesPlayed      int
	MatchesFailed      int
	Wins               int
	Draws              int
	Losses             int
	AnswersSubmitted   int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}

// identity is the subset of the identity payload the simulator reads.
type identity struct {
	ID     string `json:"id"`
	Tag    string `json:"tag"`
	Rating int    `json:"rating"`
}

type roundView struct {
	ID      string   `json:"id"`
	Index   int      `json:"index"`
	Options []string `json:"options"`
	State   string   `json:"state"`
}

type matchView struct {
	MatchID           string      `json:"match_id"`
	Status            string      `json:"status"`
	Rounds            []roundView `json:"rounds"`
	CurrentRoundIndex *int        `json:"current_round_index"`
}

type submitResult struct {
	RoundComplete bool `json:"round_complete"`
	MatchComplete bool `json:"match_complete"`
}

type outcome struct {
	MatchID       string `json:"match_id"`
	Result        string `json:"result"`
	RatingBefore  int    `json:"rating_before"`
	RatingAfter   int    `json:"rating_after"`
	Score         int    `json:"score"`
	OpponentScore int    `json:"opponent_score"`
}

type summary struct {
	Outcome  outcome `json:"outcome"`
	Feedback string  `json:"feedback"`
}

// Entry represents a leaderboard row.
type Entry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Tag     string `json:"tag"`
	Rating  int    `json:"rating"`
	Matches int    `json:"matches"`
	Wins    int    `json:"wins"`
}

type leaderboard struct {
	SeasonID string  `json:"season_id"`
	Entries  []Entry `json:"entries"`
}
