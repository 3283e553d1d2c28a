// Package repository defines the persistence contract for matches, rounds,
// users and leaderboard aggregates, with GORM and in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/battle/internal/domain/model"
)

// Store provides read/write access to all persisted state.
//
// Every state transition that must happen at most once is exposed as a
// conditional write that reports whether it applied. Callers never rely on
// in-process locks for correctness.
type Store interface {
	// Transaction runs fn atomically. Any error returned by fn rolls back every
	// write performed through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUsers(ctx context.Context, ids []string) ([]model.User, error)
	// CreateUser returns ErrConflict when the id or the name/discriminator pair exists.
	CreateUser(ctx context.Context, u *model.User) error
	// RenameUser returns ErrConflict when the name/discriminator pair is taken.
	RenameUser(ctx context.Context, id, displayName, canonical string, discriminator int, at time.Time) error
	UpdateUserRating(ctx context.Context, id string, rating int, tier string) error
	// SetQueueHeartbeat records (or with nil clears) the matchmaking heartbeat.
	SetQueueHeartbeat(ctx context.Context, at *time.Time, ids ...string) error
	// FindClosestRated returns the waiting user whose rating is nearest to target
	// inside [minRating, maxRating], excluding excludeID. ErrNotFound if none.
	FindClosestRated(ctx context.Context, excludeID string, target, minRating, maxRating int, aliveSince time.Time) (*model.User, error)
	// TakenDiscriminators lists discriminators in use for a canonical name.
	TakenDiscriminators(ctx context.Context, canonical string) ([]int, error)

	CountQuestions(ctx context.Context) (int64, error)
	CreateQuestions(ctx context.Context, qs []model.Question) error
	// SampleQuestions returns up to n random questions.
	SampleQuestions(ctx context.Context, n int) ([]model.Question, error)
	GetQuestions(ctx context.Context, ids []string) ([]model.Question, error)

	// CreateMatch inserts the match and its rounds. It returns ErrConflict when
	// player A already has an ACTIVE bot match.
	CreateMatch(ctx context.Context, m *model.Match, rounds []model.Round) error
	GetMatch(ctx context.Context, id string) (*model.Match, error)
	// FindActiveMatch returns an ACTIVE match of kind between playerA and
	// playerB (either orientation; playerB is ignored for bot matches).
	FindActiveMatch(ctx context.Context, kind model.OpponentKind, playerA, playerB string) (*model.Match, error)
	// ActiveMatchFor returns any ACTIVE match the user plays in.
	ActiveMatchFor(ctx context.Context, userID string) (*model.Match, error)
	ListActiveMatches(ctx context.Context, limit int) ([]model.Match, error)
	// CompleteMatch persists final fields only if the match is still ACTIVE.
	CompleteMatch(ctx context.Context, m *model.Match) (bool, error)

	// ListRounds returns a match's rounds ordered by index.
	ListRounds(ctx context.Context, matchID string) ([]model.Round, error)
	GetRound(ctx context.Context, id string) (*model.Round, error)
	// SetRoundAnswer writes side's answer only if the round is open and the
	// side has not answered yet.
	SetRoundAnswer(ctx context.Context, roundID string, side model.Side, answer int, at time.Time) (bool, error)
	// EndRound sets the end timestamp only if it is not set yet.
	EndRound(ctx context.Context, roundID string, at time.Time, timedOut bool) (bool, error)
	// MarkDeciding clears every deciding flag of the match and, if index is
	// non-nil, sets it on that round.
	MarkDeciding(ctx context.Context, matchID string, index *int) error

	// UpsertRoundLog inserts or replaces the (match, user, round) row.
	UpsertRoundLog(ctx context.Context, l *model.RoundLog) error
	ListRoundLogs(ctx context.Context, matchID string) ([]model.RoundLog, error)

	ActiveSeason(ctx context.Context) (*model.Season, error)
	GetSeason(ctx context.Context, id string) (*model.Season, error)
	CreateSeason(ctx context.Context, s *model.Season) error
	DeactivateSeason(ctx context.Context, id string) error
	GetLeaderboardEntry(ctx context.Context, seasonID, userID string) (*model.LeaderboardEntry, error)
	// AddLeaderboardResult inserts delta or, when the row exists, adds its
	// counters to the stored ones and replaces cohort and rating.
	AddLeaderboardResult(ctx context.Context, delta *model.LeaderboardEntry) error
	// TopLeaderboard orders by rating desc, wins desc, user id.
	TopLeaderboard(ctx context.Context, seasonID, cohort string, limit int) ([]model.LeaderboardEntry, error)
}
