// Package scheduler runs the periodic maintenance jobs: the stale round
// sweeper and the weekly season rotation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/domain/engine"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

const defaultSweepInterval = 5 * time.Second

// Sweeper advances or finalizes stale matches.
type Sweeper interface {
	Sweep(ctx context.Context) (engine.SweepStats, error)
}

// Rotator closes an expired season and opens the next one.
type Rotator interface {
	Rotate(ctx context.Context) (bool, error)
}

// Scheduler owns a gocron scheduler and its jobs.
type Scheduler struct {
	sweeper       Sweeper
	rotator       Rotator
	clock         clockwork.Clock
	sweepInterval time.Duration
	rotateDay     time.Weekday
	logger        logger.Logger

	mu     sync.Mutex
	sched  gocron.Scheduler
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock gocron schedules against.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSweepInterval sets how often the sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRotationDay sets the weekday (UTC midnight) of the rotation check.
func WithRotationDay(d time.Weekday) Option {
	return func(s *Scheduler) { s.rotateDay = d }
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler. Either job may be nil to disable it.
func New(sweeper Sweeper, rotator Rotator, opts ...Option) *Scheduler {
	s := &Scheduler{
		sweeper:       sweeper,
		rotator:       rotator,
		clock:         clockwork.NewRealClock(),
		sweepInterval: defaultSweepInterval,
		rotateDay:     time.Monday,
		logger:        logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the jobs and starts the scheduler. Both jobs also run
// once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return errors.New("scheduler already started")
	}

	sched, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)

	if s.sweeper != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(s.sweepInterval),
			gocron.NewTask(s.sweep, runCtx),
			gocron.WithName("sweeper"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("register sweeper: %w", err)
		}
	}
	if s.rotator != nil {
		_, err = sched.NewJob(
			gocron.WeeklyJob(1,
				gocron.NewWeekdays(s.rotateDay),
				gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0)),
			),
			gocron.NewTask(s.rotate, runCtx),
			gocron.WithName("season-rotation"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("register season rotation: %w", err)
		}
	}

	sched.Start()
	s.sched, s.cancel = sched, cancel
	s.logger.Info(ctx, "scheduler started",
		logger.Duration("sweep_interval", s.sweepInterval),
		logger.String("rotation_day", s.rotateDay.String()),
	)
	return nil
}

// Stop cancels running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	s.cancel()
	err := s.sched.Shutdown()
	s.sched, s.cancel = nil, nil
	return err
}

func (s *Scheduler) sweep(ctx context.Context) {
	stats, err := s.sweeper.Sweep(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", string(fault.CodeOf(err)))
		s.logger.Error(ctx, "sweep failed", logger.Error(err))
		return
	}
	if stats.Completed > 0 || stats.Abandoned > 0 {
		s.logger.Info(ctx, "sweep finished",
			logger.Int("scanned", stats.Scanned),
			logger.Int("completed", stats.Completed),
			logger.Int("abandoned", stats.Abandoned),
		)
	}
}

func (s *Scheduler) rotate(ctx context.Context) {
	rotated, err := s.rotator.Rotate(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("scheduler", string(fault.CodeOf(err)))
		s.logger.Error(ctx, "season rotation failed", logger.Error(err))
		return
	}
	if rotated {
		s.logger.Info(ctx, "season rotated")
	}
}
