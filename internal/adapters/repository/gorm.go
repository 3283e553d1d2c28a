package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const leaderboardTable = "leaderboard_entries"

// GormStore implements Store on a relational database through GORM.
type GormStore struct {
	db            *gorm.DB
	slowThreshold time.Duration
	logger        logger.Logger
}

// NewGormStore wraps db. The store installs its own SQL logger on a session so
// the caller's *gorm.DB is left untouched.
func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{
		slowThreshold: defaultSlowThreshold,
		logger:        logger.Get().Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.db = db.Session(&gorm.Session{Logger: newGormLogger(s.logger, s.slowThreshold)})
	return s
}

// Migrate creates or updates every table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(model.All()...)
}

// DB exposes the underlying handle, e.g. for pool tuning or health checks.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) with(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

// mapError translates driver errors to store sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return ErrConflict
	}
	return err
}

// Transaction implements Store.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, slowThreshold: s.slowThreshold, logger: s.logger})
	})
}

// GetUser implements Store.
func (s *GormStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.with(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// GetUsers implements Store.
func (s *GormStore) GetUsers(ctx context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	if len(ids) == 0 {
		return out, nil
	}
	err := s.with(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, mapError(err)
}

// CreateUser implements Store.
func (s *GormStore) CreateUser(ctx context.Context, u *model.User) error {
	return mapError(s.with(ctx).Create(u).Error)
}

// RenameUser implements Store.
func (s *GormStore) RenameUser(ctx context.Context, id, displayName, canonical string, discriminator int, at time.Time) error {
	res := s.with(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]any{
		"display_name":        displayName,
		"canonical_name":      canonical,
		"discriminator":       discriminator,
		"last_name_change_at": at.UTC(),
	})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserRating implements Store.
func (s *GormStore) UpdateUserRating(ctx context.Context, id string, r int, tier string) error {
	res := s.with(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]any{
		"rating": r,
		"tier":   tier,
	})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQueueHeartbeat implements Store.
func (s *GormStore) SetQueueHeartbeat(ctx context.Context, at *time.Time, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	var v any
	if at != nil {
		v = at.UTC()
	}
	err := s.with(ctx).Model(&model.User{}).Where("id IN ?", ids).Update("queue_heartbeat_at", v).Error
	return mapError(err)
}

// FindClosestRated implements Store.
func (s *GormStore) FindClosestRated(ctx context.Context, excludeID string, target, minRating, maxRating int, aliveSince time.Time) (*model.User, error) {
	var u model.User
	err := s.with(ctx).
		Where("id <> ? AND rating BETWEEN ? AND ?", excludeID, minRating, maxRating).
		Where("queue_heartbeat_at IS NOT NULL AND queue_heartbeat_at >= ?", aliveSince.UTC()).
		Order(fmt.Sprintf("ABS(rating - %d), id", target)).
		Take(&u).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// TakenDiscriminators implements Store.
func (s *GormStore) TakenDiscriminators(ctx context.Context, canonical string) ([]int, error) {
	var out []int
	err := s.with(ctx).Model(&model.User{}).
		Where("canonical_name = ?", canonical).
		Order("discriminator").
		Pluck("discriminator", &out).Error
	return out, mapError(err)
}

// CountQuestions implements Store.
func (s *GormStore) CountQuestions(ctx context.Context) (int64, error) {
	var n int64
	err := s.with(ctx).Model(&model.Question{}).Count(&n).Error
	return n, mapError(err)
}

// CreateQuestions implements Store.
func (s *GormStore) CreateQuestions(ctx context.Context, qs []model.Question) error {
	if len(qs) == 0 {
		return nil
	}
	return mapError(s.with(ctx).CreateInBatches(qs, 100).Error)
}

// SampleQuestions implements Store.
func (s *GormStore) SampleQuestions(ctx context.Context, n int) ([]model.Question, error) {
	var out []model.Question
	err := s.with(ctx).Order("RANDOM()").Limit(n).Find(&out).Error
	return out, mapError(err)
}

// GetQuestions implements Store.
func (s *GormStore) GetQuestions(ctx context.Context, ids []string) ([]model.Question, error) {
	var out []model.Question
	if len(ids) == 0 {
		return out, nil
	}
	err := s.with(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, mapError(err)
}

// CreateMatch implements Store.
func (s *GormStore) CreateMatch(ctx context.Context, m *model.Match, rounds []model.Round) error {
	return s.with(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return mapError(err)
		}
		for i := range rounds {
			rounds[i].MatchID = m.ID
		}
		if len(rounds) == 0 {
			return nil
		}
		return mapError(tx.Create(&rounds).Error)
	})
}

// GetMatch implements Store.
func (s *GormStore) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := s.with(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// FindActiveMatch implements Store.
func (s *GormStore) FindActiveMatch(ctx context.Context, kind model.OpponentKind, playerA, playerB string) (*model.Match, error) {
	q := s.with(ctx).Where("status = ? AND opponent_kind = ?", model.MatchActive, kind)
	if kind == model.OpponentBot {
		q = q.Where("player_a_id = ?", playerA)
	} else {
		q = q.Where("(player_a_id = ? AND player_b_id = ?) OR (player_a_id = ? AND player_b_id = ?)",
			playerA, playerB, playerB, playerA)
	}
	var m model.Match
	if err := q.Order("started_at DESC").First(&m).Error; err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// ActiveMatchFor implements Store.
func (s *GormStore) ActiveMatchFor(ctx context.Context, userID string) (*model.Match, error) {
	var m model.Match
	err := s.with(ctx).
		Where("status = ?", model.MatchActive).
		Where("player_a_id = ? OR player_b_id = ?", userID, userID).
		Order("started_at DESC").
		First(&m).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

// ListActiveMatches implements Store.
func (s *GormStore) ListActiveMatches(ctx context.Context, limit int) ([]model.Match, error) {
	var out []model.Match
	q := s.with(ctx).Where("status = ?", model.MatchActive).Order("started_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, mapError(err)
}

// CompleteMatch implements Store.
func (s *GormStore) CompleteMatch(ctx context.Context, m *model.Match) (bool, error) {
	res := s.with(ctx).Model(&model.Match{}).
		Where("id = ? AND status = ?", m.ID, model.MatchActive).
		Updates(map[string]any{
			"status":               model.MatchCompleted,
			"ended_at":             m.EndedAt,
			"score_a":              m.ScoreA,
			"score_b":              m.ScoreB,
			"result_a":             m.ResultA,
			"near_miss":            m.NearMiss,
			"deciding_round_index": m.DecidingRoundIndex,
			"rating_a_after":       m.RatingAAfter,
			"rating_b_after":       m.RatingBAfter,
		})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListRounds implements Store.
func (s *GormStore) ListRounds(ctx context.Context, matchID string) ([]model.Round, error) {
	var out []model.Round
	err := s.with(ctx).Where("match_id = ?", matchID).Order("round_index").Find(&out).Error
	return out, mapError(err)
}

// GetRound implements Store.
func (s *GormStore) GetRound(ctx context.Context, id string) (*model.Round, error) {
	var r model.Round
	if err := s.with(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

// SetRoundAnswer implements Store.
func (s *GormStore) SetRoundAnswer(ctx context.Context, roundID string, side model.Side, answer int, at time.Time) (bool, error) {
	answerCol, atCol := "answer_a", "answered_at_a"
	if side == model.SideB {
		answerCol, atCol = "answer_b", "answered_at_b"
	}
	res := s.with(ctx).Model(&model.Round{}).
		Where("id = ? AND ended_at IS NULL AND "+answerCol+" IS NULL", roundID).
		Updates(map[string]any{answerCol: answer, atCol: at.UTC()})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// EndRound implements Store.
func (s *GormStore) EndRound(ctx context.Context, roundID string, at time.Time, timedOut bool) (bool, error) {
	res := s.with(ctx).Model(&model.Round{}).
		Where("id = ? AND ended_at IS NULL", roundID).
		Updates(map[string]any{"ended_at": at.UTC(), "timed_out": timedOut})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkDeciding implements Store.
func (s *GormStore) MarkDeciding(ctx context.Context, matchID string, index *int) error {
	db := s.with(ctx)
	if err := db.Model(&model.Round{}).Where("match_id = ?", matchID).Update("deciding", false).Error; err != nil {
		return mapError(err)
	}
	if index == nil {
		return nil
	}
	err := db.Model(&model.Round{}).Where("match_id = ? AND round_index = ?", matchID, *index).Update("deciding", true).Error
	return mapError(err)
}

// UpsertRoundLog implements Store.
func (s *GormStore) UpsertRoundLog(ctx context.Context, l *model.RoundLog) error {
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "match_id"}, {Name: "user_id"}, {Name: "round_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"correct", "latency_ms", "timed_out", "selected_index", "selected_text", "first_commit_ms", "updated_at",
		}),
	}).Create(l).Error
	return mapError(err)
}

// ListRoundLogs implements Store.
func (s *GormStore) ListRoundLogs(ctx context.Context, matchID string) ([]model.RoundLog, error) {
	var out []model.RoundLog
	err := s.with(ctx).Where("match_id = ?", matchID).Order("round_index, user_id").Find(&out).Error
	return out, mapError(err)
}

// ActiveSeason implements Store.
func (s *GormStore) ActiveSeason(ctx context.Context) (*model.Season, error) {
	var season model.Season
	if err := s.with(ctx).Where("active = ?", true).Order("starts_at DESC").First(&season).Error; err != nil {
		return nil, mapError(err)
	}
	return &season, nil
}

// GetSeason implements Store.
func (s *GormStore) GetSeason(ctx context.Context, id string) (*model.Season, error) {
	var season model.Season
	if err := s.with(ctx).Where("id = ?", id).First(&season).Error; err != nil {
		return nil, mapError(err)
	}
	return &season, nil
}

// CreateSeason implements Store.
func (s *GormStore) CreateSeason(ctx context.Context, season *model.Season) error {
	return mapError(s.with(ctx).Create(season).Error)
}

// DeactivateSeason implements Store.
func (s *GormStore) DeactivateSeason(ctx context.Context, id string) error {
	res := s.with(ctx).Model(&model.Season{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLeaderboardEntry implements Store.
func (s *GormStore) GetLeaderboardEntry(ctx context.Context, seasonID, userID string) (*model.LeaderboardEntry, error) {
	var e model.LeaderboardEntry
	err := s.with(ctx).Where("season_id = ? AND user_id = ?", seasonID, userID).First(&e).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

// AddLeaderboardResult implements Store.
func (s *GormStore) AddLeaderboardResult(ctx context.Context, delta *model.LeaderboardEntry) error {
	add := func(col string) clause.Expr {
		return gorm.Expr(leaderboardTable + "." + col + " + excluded." + col)
	}
	err := s.with(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "season_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"cohort":      gorm.Expr("excluded.cohort"),
			"rating":      gorm.Expr("excluded.rating"),
			"updated_at":  gorm.Expr("excluded.updated_at"),
			"matches":     add("matches"),
			"wins":        add("wins"),
			"draws":       add("draws"),
			"losses":      add("losses"),
			"correct":     add("correct"),
			"answered":    add("answered"),
			"response_ms": add("response_ms"),
		}),
	}).Create(delta).Error
	return mapError(err)
}

// TopLeaderboard implements Store.
func (s *GormStore) TopLeaderboard(ctx context.Context, seasonID, cohort string, limit int) ([]model.LeaderboardEntry, error) {
	q := s.with(ctx).Where("season_id = ?", seasonID)
	if cohort != "" {
		q = q.Where("cohort = ?", cohort)
	}
	var out []model.LeaderboardEntry
	err := q.Order("rating DESC, wins DESC, user_id").Limit(limit).Find(&out).Error
	return out, mapError(err)
}

var _ Store = (*GormStore)(nil)
