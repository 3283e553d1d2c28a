package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/battle/internal/adapters/mq/queue"
	"github.com/okian/battle/internal/adapters/repository"
	"github.com/okian/battle/internal/domain/engine"
	"github.com/okian/battle/internal/domain/model"
	"github.com/okian/battle/internal/domain/types"
	"github.com/okian/battle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(ctx context.Context, store repository.Store, questions bool) {
	_ = store.CreateUser(ctx, &model.User{
		ID: "alice", DisplayName: "alice", CanonicalName: "alice", Discriminator: 1,
		Rating: 1200, Tier: "Silver",
	})
	if !questions {
		return
	}
	qs := make([]model.Question, 8)
	for i := range qs {
		qs[i] = model.Question{ID: fmt.Sprintf("q%02d", i), Prompt: "p", CorrectIndex: 2, Difficulty: "easy"}
		_ = qs[i].SetOptions([]string{"a", "b", "c", "d"})
	}
	_ = store.CreateQuestions(ctx, qs)
}

type harness struct {
	ctx      context.Context
	store    *repository.MemoryStore
	queue    *queue.InMemoryQueue
	sink     *MemorySink
	archiver *Archiver
	engine   *engine.Engine
	clock    *clockwork.FakeClock
}

func newHarness() *harness {
	h := &harness{
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		queue: queue.NewInMemoryQueue(queue.WithCapacity(4)),
		sink:  NewMemorySink(),
		clock: clockwork.NewFakeClockAt(epoch),
	}
	seed(h.ctx, h.store, true)
	h.archiver = New(h.store, h.queue, h.sink, WithClock(h.clock))
	h.engine = engine.New(h.store, engine.WithClock(h.clock), engine.WithPublisher(h.archiver))
	return h
}

// completeBotMatch plays and finalizes a bot match for alice.
func (h *harness) completeBotMatch() (string, *types.MatchOutcome) {
	id, err := h.engine.CreateMatch(h.ctx, "alice", types.OpponentSpec{Kind: model.OpponentBot}, "ranked")
	So(err, ShouldBeNil)
	rounds, _ := h.store.ListRounds(h.ctx, id)
	for i, r := range rounds[:3] {
		h.clock.Advance(time.Second)
		answer := r.CorrectIndex
		if i == 1 {
			answer = (r.CorrectIndex + 1) % r.OptionCount
		}
		_, err := h.engine.SubmitAnswer(h.ctx, id, r.ID, "alice", answer, nil)
		So(err, ShouldBeNil)
	}
	out, err := h.engine.FinalizeMatch(h.ctx, id, "alice", nil)
	So(err, ShouldBeNil)
	return id, out
}

func (h *harness) drain() queue.Job {
	select {
	case job := <-h.queue.Dequeue(h.ctx):
		return job
	default:
		return queue.Job{}
	}
}

func TestArchiver(t *testing.T) {
	Convey("Given a completed bot match", t, func() {
		h := newHarness()
		id, _ := h.completeBotMatch()

		Convey("completion enqueues exactly one job", func() {
			So(h.queue.Len(h.ctx), ShouldEqual, 1)
			job := h.drain()
			So(job.MatchID, ShouldEqual, id)
			So(job.EnqueuedAt, ShouldEqual, epoch.Add(3*time.Second))
			So(job.Attempt, ShouldEqual, 1)
		})

		Convey("processing uploads a snapshot under a dated key", func() {
			So(h.archiver.Process(h.ctx, h.drain()), ShouldBeNil)
			key := fmt.Sprintf("matches/2026/03/01/%s.json", id)
			So(h.sink.Keys(), ShouldResemble, []string{key})

			snap, err := h.archiver.Fetch(h.ctx, key)
			So(err, ShouldBeNil)
			So(snap.Version, ShouldEqual, SnapshotVersion)
			So(snap.Match.ID, ShouldEqual, id)
			So(snap.Match.Status, ShouldEqual, model.MatchCompleted)
			So(snap.Rounds, ShouldHaveLength, 5)
			So(snap.Logs, ShouldHaveLength, 3)
			for _, r := range snap.Rounds {
				So(r.CorrectIndex, ShouldEqual, 2)
				So(r.EndedAt, ShouldNotBeNil)
			}
		})

		Convey("the snapshot JSON carries the answer key", func() {
			So(h.archiver.Process(h.ctx, h.drain()), ShouldBeNil)
			raw, err := h.sink.Get(h.ctx, h.sink.Keys()[0])
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"correct_index":2`)
		})

		Convey("an active match is not archived", func() {
			other, err := h.engine.CreateMatch(h.ctx, "alice", types.OpponentSpec{Kind: model.OpponentBot}, "ranked")
			So(err, ShouldBeNil)
			err = h.archiver.Process(h.ctx, queue.Job{MatchID: other})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "still active")
		})

		Convey("an unknown match fails", func() {
			So(h.archiver.Process(h.ctx, queue.Job{MatchID: "missing"}), ShouldNotBeNil)
		})

		Convey("a missing key reports ErrNotFound", func() {
			_, err := h.archiver.Fetch(h.ctx, "matches/none.json")
			So(err, ShouldEqual, ErrNotFound)
		})
	})

	Convey("A full queue drops the job without blocking", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		a := New(repository.NewMemoryStore(), q, NewMemorySink())
		a.MatchCompleted(context.Background(), "m1")
		a.MatchCompleted(context.Background(), "m2")
		So(q.Len(context.Background()), ShouldEqual, 1)
	})
}

func TestRestore(t *testing.T) {
	Convey("Given a snapshot of a completed match", t, func() {
		h := newHarness()
		id, original := h.completeBotMatch()
		snap, err := Build(h.ctx, h.store, id, h.clock.Now())
		So(err, ShouldBeNil)

		raw, err := json.Marshal(snap)
		So(err, ShouldBeNil)
		var decoded Snapshot
		So(json.Unmarshal(raw, &decoded), ShouldBeNil)

		target := repository.NewMemoryStore()
		seed(h.ctx, target, false)

		Convey("restoring reproduces the stored outcome without re-rating", func() {
			So(Restore(h.ctx, target, &decoded), ShouldBeNil)

			e := engine.New(target, engine.WithClock(h.clock))
			draw := model.ResultDraw
			out, err := e.FinalizeMatch(h.ctx, id, "alice", &draw)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, original)

			u, err := target.GetUser(h.ctx, "alice")
			So(err, ShouldBeNil)
			So(u.Rating, ShouldEqual, 1200)

			rounds, err := target.ListRounds(h.ctx, id)
			So(err, ShouldBeNil)
			So(rounds, ShouldHaveLength, 5)
			So(rounds[0].CorrectIndex, ShouldEqual, 2)

			logs, err := e.RoundLogs(h.ctx, id, "alice")
			So(err, ShouldBeNil)
			So(logs, ShouldHaveLength, 3)
		})

		Convey("restoring twice is a no-op", func() {
			So(Restore(h.ctx, target, &decoded), ShouldBeNil)
			So(Restore(h.ctx, target, &decoded), ShouldBeNil)
			rounds, _ := target.ListRounds(h.ctx, id)
			So(rounds, ShouldHaveLength, 5)
		})

		Convey("an unknown version is rejected", func() {
			decoded.Version = 99
			So(Restore(h.ctx, target, &decoded), ShouldNotBeNil)
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Key dates by end time, falling back to start", t, func() {
		end := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
		m := &model.Match{ID: "m1", StartedAt: epoch}
		So(Key(m), ShouldEqual, "matches/2026/03/01/m1.json")
		m.EndedAt = &end
		So(Key(m), ShouldEqual, "matches/2026/12/31/m1.json")
	})
}

// fakeBucket is a minimal path-style S3 endpoint.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = body
		b.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := b.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3Sink(t *testing.T) {
	Convey("Given an S3-compatible endpoint", t, func() {
		ctx := context.Background()
		bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
		srv := httptest.NewServer(bucket)
		defer srv.Close()

		sink, err := NewS3Sink(ctx, S3Config{
			Bucket:          "battle-archive",
			Endpoint:        srv.URL,
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
		})
		So(err, ShouldBeNil)

		Convey("Put writes a JSON object under the bucket path", func() {
			So(sink.Put(ctx, "matches/2026/03/01/m1.json", []byte(`{"version":1}`)), ShouldBeNil)
			path := "/battle-archive/matches/2026/03/01/m1.json"
			So(string(bucket.objects[path]), ShouldContainSubstring, `{"version":1}`)
			So(bucket.types[path], ShouldEqual, "application/json")

			body, err := sink.Get(ctx, "matches/2026/03/01/m1.json")
			So(err, ShouldBeNil)
			So(strings.TrimSpace(string(body)), ShouldContainSubstring, `{"version":1}`)
		})

		Convey("Get maps a missing key to ErrNotFound", func() {
			_, err := sink.Get(ctx, "matches/none.json")
			So(err, ShouldEqual, ErrNotFound)
		})
	})

	Convey("A bucket name is required", t, func() {
		_, err := NewS3Sink(context.Background(), S3Config{})
		So(err, ShouldNotBeNil)
	})
}
