// Package types contains the read shapes returned across the API boundary.
package types

import "github.com/okian/battle/internal/domain/model"

// RoundStatus describes the current round from the server clock's view.
type RoundStatus string

// Round statuses.
const (
	// RoundStatusOpen means the current round still accepts answers.
	RoundStatusOpen RoundStatus = "OPEN"
	// RoundStatusExpired means the deadline passed but nobody closed the round yet.
	RoundStatusExpired RoundStatus = "EXPIRED"
	// RoundStatusResolved means every round has ended.
	RoundStatusResolved RoundStatus = "RESOLVED"
)

// OpponentSpec is the tagged opponent variant for match creation.
type OpponentSpec struct {
	Kind      model.OpponentKind `json:"kind"`
	PlayerBID string             `json:"player_b_id,omitempty"`
}

// RoundView is a round as one participant may see it. The opponent's answer
// and the correct index are only revealed once the round has ended.
type RoundView struct {
	ID             string           `json:"id"`
	Index          int              `json:"index"`
	QuestionID     string           `json:"question_id"`
	Prompt         string           `json:"prompt"`
	Options        []string         `json:"options"`
	Difficulty     string           `json:"difficulty"`
	State          model.RoundState `json:"state"`
	MyAnswer       *int             `json:"my_answer,omitempty"`
	OpponentAnswer *int             `json:"opponent_answer,omitempty"`
	CorrectIndex   *int             `json:"correct_index,omitempty"`
	EndedAtMs      *int64           `json:"ended_at_ms,omitempty"`
	TimedOut       bool             `json:"timed_out"`
}

// MatchView is the polling projection of a match.
type MatchView struct {
	MatchID           string             `json:"match_id"`
	Status            model.MatchStatus  `json:"status"`
	OpponentKind      model.OpponentKind `json:"opponent_kind"`
	Side              model.Side         `json:"side"`
	Rounds            []RoundView        `json:"rounds"`
	CurrentRoundIndex *int               `json:"current_round_index"`
	RoundDeadlineMs   *int64             `json:"round_deadline_ms"`
	RoundStatus       RoundStatus        `json:"round_status"`
	ServerNowMs       int64              `json:"server_now_ms"`
	MyScore           int                `json:"my_score"`
	OpponentScore     int                `json:"opponent_score"`
}

// SubmitResult is returned by answer submission.
type SubmitResult struct {
	RoundComplete bool `json:"round_complete"`
	MatchComplete bool `json:"match_complete"`
}

// TimeoutResult is returned by the timeout poll.
type TimeoutResult struct {
	MatchComplete     bool        `json:"match_complete"`
	CurrentRoundIndex *int        `json:"current_round_index"`
	RoundDeadlineMs   *int64      `json:"round_deadline_ms"`
	RoundStatus       RoundStatus `json:"round_status"`
}

// MatchOutcome is the finalized result from the requesting side's view.
type MatchOutcome struct {
	MatchID            string       `json:"match_id"`
	Result             model.Result `json:"result"`
	RatingBefore       int          `json:"rating_before"`
	RatingAfter        int          `json:"rating_after"`
	Score              int          `json:"score"`
	OpponentScore      int          `json:"opponent_score"`
	NearMiss           bool         `json:"near_miss"`
	DecidingRoundIndex *int         `json:"deciding_round_index"`
}

// MatchSummary is the post-match screen.
type MatchSummary struct {
	Outcome  MatchOutcome     `json:"outcome"`
	Logs     []model.RoundLog `json:"logs"`
	Feedback string           `json:"feedback"`
}

// PollStatus is the matchmaking session state.
type PollStatus string

// Poll statuses.
const (
	PollWaiting PollStatus = "WAITING"
	PollMatched PollStatus = "MATCHED"
)

// PollResult is returned on each matchmaking poll.
type PollResult struct {
	Status       PollStatus         `json:"status"`
	MatchID      string             `json:"match_id,omitempty"`
	OpponentKind model.OpponentKind `json:"opponent_kind,omitempty"`
	BandWidth    int                `json:"band_width"`
	ElapsedMs    int64              `json:"elapsed_ms"`
}

// Identity is the public view of a user.
type Identity struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Tag           string `json:"tag"`
	Discriminator int    `json:"discriminator"`
	Rating        int    `json:"rating"`
	Tier          string `json:"tier"`
	Cohort        string `json:"cohort,omitempty"`
}

// Entry represents a leaderboard row.
type Entry struct {
	Rank       int     `json:"rank"`
	UserID     string  `json:"user_id"`
	Tag        string  `json:"tag"`
	Tier       string  `json:"tier"`
	Rating     int     `json:"rating"`
	Matches    int     `json:"matches"`
	Wins       int     `json:"wins"`
	Accuracy   float64 `json:"accuracy"`
	Efficiency float64 `json:"efficiency"`
}

// Leaderboard is a ranked page for one season.
type Leaderboard struct {
	SeasonID string  `json:"season_id"`
	Cohort   string  `json:"cohort,omitempty"`
	Entries  []Entry `json:"entries"`
}
