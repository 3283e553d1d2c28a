// Package service wires the domain components into the single facade the
// HTTP API depends on, and owns the background workers.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/archive"
	"github.com/okian/battle/internal/adapters/feedback"
	"github.com/okian/battle/internal/adapters/mq/queue"
	"github.com/okian/battle/internal/adapters/mq/worker"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/adapters/scheduler"
	"github.com/okian/battle/internal/config"
	"github.com/okian/battle/internal/domain/dedupe"
	"github.com/okian/battle/internal/domain/engine"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/internal/domain/identity"
	"github.com/okian/battle/internal/domain/leaderboard"
	"github.com/okian/battle/internal/domain/matchmaking"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/rating"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// FeedbackSource writes the post-match paragraph. It never fails; it
// degrades to canned text instead.
type FeedbackSource interface {
	Feedback(ctx context.Context, out types.MatchOutcome, logs []model.RoundLog) string
}

// Service implements the API dependencies for the battle backend.
type Service struct {
	mu sync.Mutex

	store    repository.Store
	cfg      *config.Config
	clock    clockwork.Clock
	sink     archive.Sink
	feedback FeedbackSource
	logger   logger.Logger

	identity    *identity.Registry
	engine      *engine.Engine
	matchmaking *matchmaking.Queue
	leaderboard *leaderboard.Service

	// Archive pipeline; nil when no sink is configured.
	archiver *archive.Archiver
	jobs     *queue.InMemoryQueue
	deduper  dedupe.Deduper
	pool     *worker.Pool

	scheduler    *scheduler.Scheduler
	schedulerOff bool
	started      bool
	startedAt    time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithClock injects the clock shared by every component.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithArchiveSink enables the archive pipeline with the given sink.
func WithArchiveSink(sink archive.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithFeedback overrides the feedback source.
func WithFeedback(f FeedbackSource) Option {
	return func(s *Service) {
		if f != nil {
			s.feedback = f
		}
	}
}

// WithoutScheduler disables the sweeper and season rotation jobs.
func WithoutScheduler() Option {
	return func(s *Service) { s.schedulerOff = true }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs every component on top of store. Nothing runs until Start.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   config.New(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg
	if s.feedback == nil {
		s.feedback = feedback.New(cfg.FeedbackURL, feedback.WithTimeout(cfg.FeedbackTimeout()))
	}

	engineOpts := []engine.Option{
		engine.WithClock(s.clock),
		engine.WithRating(rating.New(rating.WithK(float64(cfg.KFactor)))),
		engine.WithRoundDuration(cfg.RoundDuration()),
		engine.WithRoundsPerMatch(cfg.RoundsPerMatch),
		engine.WithOversample(cfg.QuestionOversample),
		engine.WithAbandonAfter(cfg.AbandonedMatchAfter()),
	}
	if s.sink != nil {
		s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(cfg.ArchiveQueueSize))
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.ArchiveDedupeSize))
		s.archiver = archive.New(store, s.jobs, s.sink, archive.WithClock(s.clock))
		s.pool = worker.NewPool(cfg.ArchiveWorkerCount, s.jobs, s.archiver, s.deduper)
		engineOpts = append(engineOpts, engine.WithPublisher(s.archiver))
	}
	s.engine = engine.New(store, engineOpts...)

	s.identity = identity.New(store,
		identity.WithClock(s.clock),
		identity.WithRenameCooldown(cfg.NameChangeCooldown()),
		identity.WithRandomAttempts(cfg.DiscriminatorRandomAttempts),
		identity.WithStartingRating(cfg.StartingRating),
	)
	s.matchmaking = matchmaking.New(store, s.engine,
		matchmaking.WithClock(s.clock),
		matchmaking.WithBand(cfg.BandBase, cfg.BandStep, cfg.BandStepInterval()),
		matchmaking.WithGiveUp(cfg.QueueGiveUp()),
		matchmaking.WithHeartbeatTTL(cfg.QueueHeartbeatTTL()),
	)
	s.leaderboard = leaderboard.New(store,
		leaderboard.WithClock(s.clock),
		leaderboard.WithSeasonLength(cfg.SeasonLength()),
		leaderboard.WithMaxLimit(cfg.MaxLeaderboardLimit),
	)
	if !s.schedulerOff {
		s.scheduler = scheduler.New(s.engine, s.leaderboard,
			scheduler.WithClock(s.clock),
			scheduler.WithSweepInterval(cfg.SweeperInterval()),
		)
	}
	return s
}

// Start opens the first season if needed and launches the background work.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting battle service...")

	if _, err := s.leaderboard.EnsureActive(ctx); err != nil {
		return fmt.Errorf("ensure active season: %w", err)
	}
	if s.pool != nil {
		s.pool.Start(ctx)
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "battle service started",
		logger.Bool("archive", s.archiver != nil),
		logger.Bool("scheduler", s.scheduler != nil),
		logger.Int("archive_workers", s.poolSize()),
	)
	return nil
}

// Stop halts the scheduler and drains pending archive jobs.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping battle service...")

	var errs []error
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain archive workers: %w", err))
		}
	}
	s.started = false
	s.logger.Info(ctx, "battle service stopped")
	return errors.Join(errs...)
}

// Register creates the caller's identity on first contact.
func (s *Service) Register(ctx context.Context, userID, displayName, cohort string) (*types.Identity, error) {
	return s.identity.EnsureUser(ctx, userID, displayName, cohort)
}

// Identity returns the caller's identity.
func (s *Service) Identity(ctx context.Context, userID string) (*types.Identity, error) {
	return s.identity.Get(ctx, userID)
}

// Rename changes the caller's display name.
func (s *Service) Rename(ctx context.Context, userID, displayName string) (*types.Identity, error) {
	return s.identity.Rename(ctx, userID, displayName)
}

// Poll runs one matchmaking step. queueStartedAtMs is the client's queue
// entry time in Unix milliseconds.
func (s *Service) Poll(ctx context.Context, userID string, queueStartedAtMs int64) (*types.PollResult, error) {
	if queueStartedAtMs <= 0 {
		return nil, fault.NewKindf("service.poll", fault.ErrBadRequest, "queue_started_at_ms is required")
	}
	return s.matchmaking.Poll(ctx, userID, time.UnixMilli(queueStartedAtMs).UTC())
}

// LeaveQueue stops matchmaking for the caller.
func (s *Service) LeaveQueue(ctx context.Context, userID string) error {
	return s.matchmaking.Leave(ctx, userID)
}

// CreateMatch starts a match with the caller as side A.
func (s *Service) CreateMatch(ctx context.Context, userID string, opp types.OpponentSpec, mode string) (string, error) {
	return s.engine.CreateMatch(ctx, userID, opp, mode)
}

// ActiveMatch returns the caller's ACTIVE match id.
func (s *Service) ActiveMatch(ctx context.Context, userID string) (string, error) {
	return s.engine.ActiveMatchFor(ctx, userID)
}

// MatchView returns the polling view of a match.
func (s *Service) MatchView(ctx context.Context, matchID, userID string) (*types.MatchView, error) {
	return s.engine.GetMatchView(ctx, matchID, userID)
}

// SubmitAnswer records the caller's answer for a round.
func (s *Service) SubmitAnswer(ctx context.Context, matchID, roundID, userID string, selected int, firstCommitMs *int64) (*types.SubmitResult, error) {
	return s.engine.SubmitAnswer(ctx, matchID, roundID, userID, selected, firstCommitMs)
}

// FinalizeRound applies the timeout path for the current round.
func (s *Service) FinalizeRound(ctx context.Context, matchID, userID string) (*types.TimeoutResult, error) {
	return s.engine.FinalizeRound(ctx, matchID, userID)
}

// FinalizeMatch completes the match, at most once.
func (s *Service) FinalizeMatch(ctx context.Context, matchID, userID string, override *model.Result) (*types.MatchOutcome, error) {
	return s.engine.FinalizeMatch(ctx, matchID, userID, override)
}

// Summary is the post-match screen: outcome, the caller's round logs and a
// feedback paragraph.
func (s *Service) Summary(ctx context.Context, matchID, userID string) (*types.MatchSummary, error) {
	out, err := s.engine.Outcome(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	logs, err := s.engine.RoundLogs(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	return &types.MatchSummary{
		Outcome:  *out,
		Logs:     logs,
		Feedback: s.feedback.Feedback(ctx, *out, logs),
	}, nil
}

// Leaderboard returns a ranked page; an empty seasonID means the active season.
func (s *Service) Leaderboard(ctx context.Context, seasonID, cohort string, limit int) (*types.Leaderboard, error) {
	return s.leaderboard.Top(ctx, seasonID, cohort, limit)
}

// MaxLeaderboardLimit caps the leaderboard page size.
func (s *Service) MaxLeaderboardLimit() int { return s.leaderboard.MaxLimit() }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]any{
		"started":         s.started,
		"archive_enabled": s.archiver != nil,
		"archive_workers": s.poolSize(),
	}
	if s.started {
		stats["uptime_seconds"] = int64(s.clock.Since(s.startedAt).Seconds())
	}
	if s.jobs != nil {
		n := s.jobs.Len(context.Background())
		stats["archive_queue_length"] = n
		metrics.UpdateQueueSize(n)
	}
	if s.deduper != nil {
		stats["archive_dedupe_size"] = s.deduper.Size()
	}
	return stats
}

func (s *Service) poolSize() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Size()
}
