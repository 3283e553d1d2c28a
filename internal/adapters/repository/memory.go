package repository

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/okian/battle/internal/domain/model"
)

type logKey struct {
	matchID string
	userID  string
	round   int
}

type boardKey struct {
	seasonID string
	userID   string
}

type memData struct {
	users     map[string]model.User
	questions []model.Question
	matches   map[string]model.Match
	rounds    map[string]model.Round
	logs      map[logKey]model.RoundLog
	seasons   map[string]model.Season
	board     map[boardKey]model.LeaderboardEntry
}

func newMemData() *memData {
	return &memData{
		users:   make(map[string]model.User),
		matches: make(map[string]model.Match),
		rounds:  make(map[string]model.Round),
		logs:    make(map[logKey]model.RoundLog),
		seasons: make(map[string]model.Season),
		board:   make(map[boardKey]model.LeaderboardEntry),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		c.users[k] = v
	}
	c.questions = append([]model.Question(nil), d.questions...)
	for k, v := range d.matches {
		c.matches[k] = v
	}
	for k, v := range d.rounds {
		c.rounds[k] = v
	}
	for k, v := range d.logs {
		c.logs[k] = v
	}
	for k, v := range d.seasons {
		c.seasons[k] = v
	}
	for k, v := range d.board {
		c.board[k] = v
	}
	return c
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// MemoryStore implements Store in process memory. Transactions serialize on a
// single mutex and restore a snapshot when fn fails.
type MemoryStore struct {
	mu   sync.Locker
	data *memData
	inTx bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, data: newMemData()}
}

// Transaction implements Store.
func (s *MemoryStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemoryStore{mu: nopLocker{}, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func newID() string { return model.NewID() }

func copyTime(t time.Time) *time.Time { return &t }

// GetUser implements Store.
func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUsers implements Store.
func (s *MemoryStore) GetUsers(_ context.Context, ids []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.data.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *MemoryStore) nameTaken(canonical string, disc int, exceptID string) bool {
	for id, u := range s.data.users {
		if id != exceptID && u.CanonicalName == canonical && u.Discriminator == disc {
			return true
		}
	}
	return false
}

// CreateUser implements Store.
func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.users[u.ID]; ok {
		return ErrConflict
	}
	if s.nameTaken(u.CanonicalName, u.Discriminator, "") {
		return ErrConflict
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.data.users[u.ID] = *u
	return nil
}

// RenameUser implements Store.
func (s *MemoryStore) RenameUser(_ context.Context, id, displayName, canonical string, discriminator int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return ErrNotFound
	}
	if s.nameTaken(canonical, discriminator, id) {
		return ErrConflict
	}
	u.DisplayName = displayName
	u.CanonicalName = canonical
	u.Discriminator = discriminator
	u.LastNameChangeAt = copyTime(at)
	u.UpdatedAt = at
	s.data.users[id] = u
	return nil
}

// UpdateUserRating implements Store.
func (s *MemoryStore) UpdateUserRating(_ context.Context, id string, r int, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Rating = r
	u.Tier = tier
	s.data.users[id] = u
	return nil
}

// SetQueueHeartbeat implements Store.
func (s *MemoryStore) SetQueueHeartbeat(_ context.Context, at *time.Time, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		u, ok := s.data.users[id]
		if !ok {
			continue
		}
		if at == nil {
			u.QueueHeartbeatAt = nil
		} else {
			u.QueueHeartbeatAt = copyTime(*at)
		}
		s.data.users[id] = u
	}
	return nil
}

// FindClosestRated implements Store.
func (s *MemoryStore) FindClosestRated(_ context.Context, excludeID string, target, minRating, maxRating int, aliveSince time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.User
	bestGap := 0
	for id, u := range s.data.users {
		if id == excludeID || u.QueueHeartbeatAt == nil || u.QueueHeartbeatAt.Before(aliveSince) {
			continue
		}
		if u.Rating < minRating || u.Rating > maxRating {
			continue
		}
		gap := u.Rating - target
		if gap < 0 {
			gap = -gap
		}
		if best == nil || gap < bestGap || (gap == bestGap && u.ID < best.ID) {
			cand := u
			best = &cand
			bestGap = gap
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// TakenDiscriminators implements Store.
func (s *MemoryStore) TakenDiscriminators(_ context.Context, canonical string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, u := range s.data.users {
		if u.CanonicalName == canonical {
			out = append(out, u.Discriminator)
		}
	}
	sort.Ints(out)
	return out, nil
}

// CountQuestions implements Store.
func (s *MemoryStore) CountQuestions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data.questions)), nil
}

// CreateQuestions implements Store.
func (s *MemoryStore) CreateQuestions(_ context.Context, qs []model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range qs {
		if qs[i].ID == "" {
			qs[i].ID = newID()
		}
		s.data.questions = append(s.data.questions, qs[i])
	}
	return nil
}

// SampleQuestions implements Store.
func (s *MemoryStore) SampleQuestions(_ context.Context, n int) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm := rand.Perm(len(s.data.questions))
	if n > len(perm) {
		n = len(perm)
	}
	out := make([]model.Question, 0, n)
	for _, i := range perm[:n] {
		out = append(out, s.data.questions[i])
	}
	return out, nil
}

// GetQuestions implements Store.
func (s *MemoryStore) GetQuestions(_ context.Context, ids []string) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Question
	for _, q := range s.data.questions {
		if want[q.ID] {
			out = append(out, q)
		}
	}
	return out, nil
}

// CreateMatch implements Store.
func (s *MemoryStore) CreateMatch(_ context.Context, m *model.Match, rounds []model.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = newID()
	}
	if _, ok := s.data.matches[m.ID]; ok {
		return ErrConflict
	}
	if m.Status == model.MatchActive && m.OpponentKind == model.OpponentBot {
		for _, other := range s.data.matches {
			if other.Status == model.MatchActive && other.OpponentKind == model.OpponentBot && other.PlayerAID == m.PlayerAID {
				return ErrConflict
			}
		}
	}
	seen := make(map[int]bool, len(rounds))
	for i := range rounds {
		if seen[rounds[i].Index] {
			return ErrConflict
		}
		seen[rounds[i].Index] = true
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.data.matches[m.ID] = *m
	for i := range rounds {
		if rounds[i].ID == "" {
			rounds[i].ID = newID()
		}
		rounds[i].MatchID = m.ID
		s.data.rounds[rounds[i].ID] = rounds[i]
	}
	return nil
}

// GetMatch implements Store.
func (s *MemoryStore) GetMatch(_ context.Context, id string) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// FindActiveMatch implements Store.
func (s *MemoryStore) FindActiveMatch(_ context.Context, kind model.OpponentKind, playerA, playerB string) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Match
	for _, m := range s.data.matches {
		if m.Status != model.MatchActive || m.OpponentKind != kind {
			continue
		}
		ok := false
		if kind == model.OpponentBot {
			ok = m.PlayerAID == playerA
		} else if m.PlayerBID != nil {
			b := *m.PlayerBID
			ok = (m.PlayerAID == playerA && b == playerB) || (m.PlayerAID == playerB && b == playerA)
		}
		if ok && (found == nil || m.StartedAt.After(found.StartedAt)) {
			cand := m
			found = &cand
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ActiveMatchFor implements Store.
func (s *MemoryStore) ActiveMatchFor(_ context.Context, userID string) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *model.Match
	for _, m := range s.data.matches {
		if m.Status != model.MatchActive {
			continue
		}
		if _, ok := m.SideOf(userID); ok && (found == nil || m.StartedAt.After(found.StartedAt)) {
			cand := m
			found = &cand
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// ListActiveMatches implements Store.
func (s *MemoryStore) ListActiveMatches(_ context.Context, limit int) ([]model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Match
	for _, m := range s.data.matches {
		if m.Status == model.MatchActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompleteMatch implements Store.
func (s *MemoryStore) CompleteMatch(_ context.Context, m *model.Match) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data.matches[m.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != model.MatchActive {
		return false, nil
	}
	cur.Status = model.MatchCompleted
	cur.EndedAt = m.EndedAt
	cur.ScoreA, cur.ScoreB = m.ScoreA, m.ScoreB
	cur.ResultA = m.ResultA
	cur.NearMiss = m.NearMiss
	cur.DecidingRoundIndex = m.DecidingRoundIndex
	cur.RatingAAfter, cur.RatingBAfter = m.RatingAAfter, m.RatingBAfter
	cur.UpdatedAt = time.Now()
	s.data.matches[m.ID] = cur
	return true, nil
}

// ListRounds implements Store.
func (s *MemoryStore) ListRounds(_ context.Context, matchID string) ([]model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Round
	for _, r := range s.data.rounds {
		if r.MatchID == matchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// GetRound implements Store.
func (s *MemoryStore) GetRound(_ context.Context, id string) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rounds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// SetRoundAnswer implements Store.
func (s *MemoryStore) SetRoundAnswer(_ context.Context, roundID string, side model.Side, answer int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rounds[roundID]
	if !ok {
		return false, ErrNotFound
	}
	if r.EndedAt != nil || r.Answer(side) != nil {
		return false, nil
	}
	v := answer
	if side == model.SideA {
		r.AnswerA, r.AnsweredAtA = &v, copyTime(at)
	} else {
		r.AnswerB, r.AnsweredAtB = &v, copyTime(at)
	}
	s.data.rounds[roundID] = r
	return true, nil
}

// EndRound implements Store.
func (s *MemoryStore) EndRound(_ context.Context, roundID string, at time.Time, timedOut bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rounds[roundID]
	if !ok {
		return false, ErrNotFound
	}
	if r.EndedAt != nil {
		return false, nil
	}
	r.EndedAt = copyTime(at)
	r.TimedOut = timedOut
	s.data.rounds[roundID] = r
	return true, nil
}

// MarkDeciding implements Store.
func (s *MemoryStore) MarkDeciding(_ context.Context, matchID string, index *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.data.rounds {
		if r.MatchID != matchID {
			continue
		}
		r.Deciding = index != nil && r.Index == *index
		s.data.rounds[id] = r
	}
	return nil
}

// UpsertRoundLog implements Store.
func (s *MemoryStore) UpsertRoundLog(_ context.Context, l *model.RoundLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey{l.MatchID, l.UserID, l.RoundIndex}
	now := time.Now()
	if cur, ok := s.data.logs[key]; ok {
		l.ID = cur.ID
		l.CreatedAt = cur.CreatedAt
	} else {
		if l.ID == "" {
			l.ID = newID()
		}
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	s.data.logs[key] = *l
	return nil
}

// ListRoundLogs implements Store.
func (s *MemoryStore) ListRoundLogs(_ context.Context, matchID string) ([]model.RoundLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RoundLog
	for k, l := range s.data.logs {
		if k.matchID == matchID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoundIndex != out[j].RoundIndex {
			return out[i].RoundIndex < out[j].RoundIndex
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// ActiveSeason implements Store.
func (s *MemoryStore) ActiveSeason(_ context.Context) (*model.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, season := range s.data.seasons {
		if season.Active {
			return &season, nil
		}
	}
	return nil, ErrNotFound
}

// GetSeason implements Store.
func (s *MemoryStore) GetSeason(_ context.Context, id string) (*model.Season, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.data.seasons[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &season, nil
}

// CreateSeason implements Store.
func (s *MemoryStore) CreateSeason(_ context.Context, season *model.Season) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if season.ID == "" {
		season.ID = newID()
	}
	if _, ok := s.data.seasons[season.ID]; ok {
		return ErrConflict
	}
	season.CreatedAt = time.Now()
	s.data.seasons[season.ID] = *season
	return nil
}

// DeactivateSeason implements Store.
func (s *MemoryStore) DeactivateSeason(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	season, ok := s.data.seasons[id]
	if !ok {
		return ErrNotFound
	}
	season.Active = false
	s.data.seasons[id] = season
	return nil
}

// GetLeaderboardEntry implements Store.
func (s *MemoryStore) GetLeaderboardEntry(_ context.Context, seasonID, userID string) (*model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.board[boardKey{seasonID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// AddLeaderboardResult implements Store.
func (s *MemoryStore) AddLeaderboardResult(_ context.Context, delta *model.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := boardKey{delta.SeasonID, delta.UserID}
	e, ok := s.data.board[key]
	if !ok {
		e = model.LeaderboardEntry{SeasonID: delta.SeasonID, UserID: delta.UserID}
	}
	e.Cohort = delta.Cohort
	e.Rating = delta.Rating
	e.Matches += delta.Matches
	e.Wins += delta.Wins
	e.Draws += delta.Draws
	e.Losses += delta.Losses
	e.Correct += delta.Correct
	e.Answered += delta.Answered
	e.ResponseMs += delta.ResponseMs
	e.UpdatedAt = time.Now()
	s.data.board[key] = e
	return nil
}

// TopLeaderboard implements Store.
func (s *MemoryStore) TopLeaderboard(_ context.Context, seasonID, cohort string, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LeaderboardEntry
	for k, e := range s.data.board {
		if k.seasonID != seasonID || (cohort != "" && e.Cohort != cohort) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
