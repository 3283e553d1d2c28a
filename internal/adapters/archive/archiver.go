package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/mq/queue"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

// Archiver queues completed matches and uploads their snapshots.
// It is both the engine's completion publisher and the worker processor.
type Archiver struct {
	store  repository.Store
	queue  queue.Queue
	sink   Sink
	clock  clockwork.Clock
	logger logger.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock sets the clock used for job and export timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(a *Archiver) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Archiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Archiver.
func New(store repository.Store, q queue.Queue, sink Sink, opts ...Option) *Archiver {
	a := &Archiver{
		store:  store,
		queue:  q,
		sink:   sink,
		clock:  clockwork.NewRealClock(),
		logger: logger.Get().Named("archive"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// MatchCompleted enqueues an export job. A full queue drops the job; the
// match itself is already durable in the store.
func (a *Archiver) MatchCompleted(ctx context.Context, matchID string) {
	job := queue.Job{MatchID: matchID, EnqueuedAt: a.clock.Now().UTC(), Attempt: 1}
	if !a.queue.Enqueue(ctx, job) {
		metrics.RecordArchiveUpload("dropped")
		a.logger.Warn(ctx, "archive job dropped", logger.String("match_id", matchID))
	}
}

// Process builds and uploads the snapshot for job.
func (a *Archiver) Process(ctx context.Context, job queue.Job) error {
	snap, err := Build(ctx, a.store, job.MatchID, a.clock.Now())
	if err != nil {
		metrics.RecordArchiveUpload("error")
		return err
	}
	if !snap.Match.Completed() {
		metrics.RecordArchiveUpload("error")
		return fmt.Errorf("match %s is still active", job.MatchID)
	}
	body, err := json.Marshal(snap)
	if err != nil {
		metrics.RecordArchiveUpload("error")
		return fmt.Errorf("encode snapshot %s: %w", job.MatchID, err)
	}
	key := Key(&snap.Match)
	if err := a.sink.Put(ctx, key, body); err != nil {
		metrics.RecordArchiveUpload("error")
		return err
	}
	metrics.RecordArchiveUpload("ok")
	a.logger.Debug(ctx, "match archived",
		logger.String("match_id", job.MatchID),
		logger.String("key", key),
		logger.Int("bytes", len(body)),
	)
	return nil
}

// Fetch downloads and decodes the snapshot stored under key.
func (a *Archiver) Fetch(ctx context.Context, key string) (*Snapshot, error) {
	body, err := a.sink.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}
