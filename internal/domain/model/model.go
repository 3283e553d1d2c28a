// Package model contains the persisted domain records shared by the store,
// the engine and the archive.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewID returns a fresh record id.
func NewID() string { return uuid.NewString() }

// OpponentKind distinguishes bot matches from human ones.
type OpponentKind string

// Opponent kinds.
const (
	OpponentBot   OpponentKind = "BOT"
	OpponentHuman OpponentKind = "HUMAN"
)

// MatchStatus is the match lifecycle state. COMPLETED is terminal.
type MatchStatus string

// Match states.
const (
	MatchActive    MatchStatus = "ACTIVE"
	MatchCompleted MatchStatus = "COMPLETED"
)

// Result is the declared outcome for side A.
type Result string

// Results.
const (
	ResultWin     Result = "WIN"
	ResultLoss    Result = "LOSS"
	ResultDraw    Result = "DRAW"
	ResultUnknown Result = "UNKNOWN"
)

// Invert returns the same outcome seen from the other side.
func (r Result) Invert() Result {
	switch r {
	case ResultWin:
		return ResultLoss
	case ResultLoss:
		return ResultWin
	default:
		return r
	}
}

// RoundState is derived from the end timestamp.
type RoundState string

// Round states.
const (
	RoundOpen  RoundState = "OPEN"
	RoundEnded RoundState = "ENDED"
)

// Side identifies which half of a match a user plays.
type Side string

// Sides.
const (
	SideA Side = "A"
	SideB Side = "B"
)

// User is a player identity. ID is the opaque client-generated id.
type User struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	DisplayName      string     `gorm:"size:64;not null" json:"display_name"`
	CanonicalName    string     `gorm:"size:64;not null;uniqueIndex:idx_users_name_disc,priority:1" json:"canonical_name"`
	Discriminator    int        `gorm:"not null;uniqueIndex:idx_users_name_disc,priority:2" json:"discriminator"`
	Rating           int        `gorm:"not null;index" json:"rating"`
	Tier             string     `gorm:"size:16;not null" json:"tier"`
	Cohort           string     `gorm:"size:64;index" json:"cohort,omitempty"`
	LastNameChangeAt *time.Time `json:"last_name_change_at,omitempty"`
	QueueHeartbeatAt *time.Time `gorm:"index" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Tag renders the public handle, e.g. "Ada#0042".
func (u *User) Tag() string {
	return fmt.Sprintf("%s#%04d", u.DisplayName, u.Discriminator)
}

// Question is an immutable multiple-choice prompt.
type Question struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Prompt       string         `gorm:"type:text;not null" json:"prompt"`
	Options      datatypes.JSON `gorm:"not null" json:"options"`
	CorrectIndex int            `gorm:"not null" json:"-"`
	Difficulty   string         `gorm:"size:16;not null;index" json:"difficulty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BeforeCreate assigns an id when none was supplied.
func (q *Question) BeforeCreate(_ *gorm.DB) error {
	if q.ID == "" {
		q.ID = NewID()
	}
	return nil
}

// OptionList decodes the option strings.
func (q *Question) OptionList() ([]string, error) {
	var out []string
	if len(q.Options) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(q.Options, &out); err != nil {
		return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
	}
	return out, nil
}

// SetOptions encodes opts into the JSON column.
func (q *Question) SetOptions(opts []string) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	q.Options = datatypes.JSON(raw)
	return nil
}

// Match is one 1v1 game. PlayerBID is nil for bot matches.
type Match struct {
	ID                 string       `gorm:"primaryKey;size:36" json:"id"`
	PlayerAID          string       `gorm:"size:64;not null;index;uniqueIndex:idx_matches_active_bot,where:status = 'ACTIVE' AND opponent_kind = 'BOT'" json:"player_a_id"`
	PlayerBID          *string      `gorm:"size:64;index" json:"player_b_id,omitempty"`
	OpponentKind       OpponentKind `gorm:"size:8;not null" json:"opponent_kind"`
	Status             MatchStatus  `gorm:"size:16;not null;index" json:"status"`
	Mode               string       `gorm:"size:32" json:"mode,omitempty"`
	StartedAt          time.Time    `gorm:"not null" json:"started_at"`
	EndedAt            *time.Time   `json:"ended_at,omitempty"`
	RatingABefore      int          `json:"rating_a_before"`
	RatingBBefore      int          `json:"rating_b_before"`
	RatingAAfter       *int         `json:"rating_a_after,omitempty"`
	RatingBAfter       *int         `json:"rating_b_after,omitempty"`
	ScoreA             int          `json:"score_a"`
	ScoreB             int          `json:"score_b"`
	ResultA            Result       `gorm:"size:8;not null;default:UNKNOWN" json:"result_a"`
	NearMiss           bool         `json:"near_miss"`
	DecidingRoundIndex *int         `json:"deciding_round_index,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// BeforeCreate assigns an id when none was supplied.
func (m *Match) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return nil
}

// SideOf reports which side userID plays, if any.
func (m *Match) SideOf(userID string) (Side, bool) {
	switch {
	case userID == "":
		return "", false
	case m.PlayerAID == userID:
		return SideA, true
	case m.PlayerBID != nil && *m.PlayerBID == userID:
		return SideB, true
	default:
		return "", false
	}
}

// IsBot reports whether side B is the virtual opponent.
func (m *Match) IsBot() bool { return m.OpponentKind == OpponentBot }

// Completed reports whether the match reached its terminal state.
func (m *Match) Completed() bool { return m.Status == MatchCompleted }

// Round is one timed question inside a match.
type Round struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	MatchID      string     `gorm:"size:36;not null;uniqueIndex:idx_rounds_match_index,priority:1" json:"match_id"`
	Index        int        `gorm:"column:round_index;not null;uniqueIndex:idx_rounds_match_index,priority:2" json:"index"`
	QuestionID   string     `gorm:"size:36;not null" json:"question_id"`
	CorrectIndex int        `gorm:"not null" json:"-"`
	OptionCount  int        `gorm:"not null" json:"option_count"`
	Difficulty   string     `gorm:"size:16" json:"difficulty"`
	AnswerA      *int       `json:"answer_a,omitempty"`
	AnswerB      *int       `json:"answer_b,omitempty"`
	AnsweredAtA  *time.Time `json:"answered_at_a,omitempty"`
	AnsweredAtB  *time.Time `json:"answered_at_b,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	TimedOut     bool       `json:"timed_out"`
	Deciding     bool       `json:"deciding"`
}

// BeforeCreate assigns an id when none was supplied.
func (r *Round) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	return nil
}

// State derives OPEN/ENDED from the end timestamp.
func (r *Round) State() RoundState {
	if r.EndedAt != nil {
		return RoundEnded
	}
	return RoundOpen
}

// Answer returns the stored answer for side.
func (r *Round) Answer(side Side) *int {
	if side == SideA {
		return r.AnswerA
	}
	return r.AnswerB
}

// Correct reports whether side answered this round correctly.
func (r *Round) Correct(side Side) bool {
	a := r.Answer(side)
	return a != nil && *a == r.CorrectIndex
}

// BothAnswered reports whether each side has submitted.
func (r *Round) BothAnswered() bool {
	return r.AnswerA != nil && r.AnswerB != nil
}

// RoundLog is per-user telemetry for one round, unique on (match, user, round).
type RoundLog struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	MatchID       string    `gorm:"size:36;not null;uniqueIndex:idx_round_logs_key,priority:1" json:"match_id"`
	UserID        string    `gorm:"size:64;not null;uniqueIndex:idx_round_logs_key,priority:2" json:"user_id"`
	RoundIndex    int       `gorm:"not null;uniqueIndex:idx_round_logs_key,priority:3" json:"round_index"`
	Correct       bool      `json:"correct"`
	LatencyMs     int64     `json:"latency_ms"`
	TimedOut      bool      `json:"timed_out"`
	SelectedIndex *int      `json:"selected_index,omitempty"`
	SelectedText  string    `gorm:"type:text" json:"selected_text"`
	FirstCommitMs *int64    `json:"first_commit_ms,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when none was supplied.
func (l *RoundLog) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = NewID()
	}
	return nil
}

// Season is a leaderboard period. Exactly one is active at a time.
type Season struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	Active    bool      `gorm:"not null;index" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns an id when none was supplied.
func (s *Season) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	return nil
}

// LeaderboardEntry aggregates a user's results within one season.
type LeaderboardEntry struct {
	SeasonID   string    `gorm:"primaryKey;size:36" json:"season_id"`
	UserID     string    `gorm:"primaryKey;size:64" json:"user_id"`
	Cohort     string    `gorm:"size:64;index" json:"cohort,omitempty"`
	Rating     int       `gorm:"index" json:"rating"`
	Matches    int       `json:"matches"`
	Wins       int       `json:"wins"`
	Draws      int       `json:"draws"`
	Losses     int       `json:"losses"`
	Correct    int       `json:"correct"`
	Answered   int       `json:"answered"`
	ResponseMs int64     `json:"response_ms"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// All lists every persisted record type, in migration order.
func All() []any {
	return []any{
		&User{},
		&Question{},
		&Match{},
		&Round{},
		&RoundLog{},
		&Season{},
		&LeaderboardEntry{},
	}
}
