package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then metrics are registered under the default namespace", func() {
				manager.matchesCreated.WithLabelValues("BOT").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "battle_arena_matches_created_total")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and const labels follow the options", func() {
				manager.finalizeReplays.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() != "test_unit_finalize_replays_total" {
						continue
					}
					found = true
					labels := f.GetMetric()[0].GetLabel()
					So(labels, ShouldHaveLength, 1)
					So(labels[0].GetName(), ShouldEqual, "env")
					So(labels[0].GetValue(), ShouldEqual, "test")
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "battle")
				So(manager.subsystem, ShouldEqual, "arena")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording match lifecycle metrics", func() {
			created := testutil.ToFloat64(globalManager.matchesCreated.WithLabelValues("HUMAN"))
			finalized := testutil.ToFloat64(globalManager.matchesFinalized.WithLabelValues("WIN"))
			replays := testutil.ToFloat64(globalManager.finalizeReplays)
			late := testutil.ToFloat64(globalManager.answers.WithLabelValues("late"))
			timeouts := testutil.ToFloat64(globalManager.roundsEnded.WithLabelValues("timeout"))

			RecordMatchCreated("HUMAN")
			RecordMatchFinalized("WIN")
			RecordFinalizeReplay()
			RecordAnswer("late")
			RecordRoundEnded("timeout")

			Convey("Then each counter moves by one", func() {
				So(testutil.ToFloat64(globalManager.matchesCreated.WithLabelValues("HUMAN")), ShouldEqual, created+1)
				So(testutil.ToFloat64(globalManager.matchesFinalized.WithLabelValues("WIN")), ShouldEqual, finalized+1)
				So(testutil.ToFloat64(globalManager.finalizeReplays), ShouldEqual, replays+1)
				So(testutil.ToFloat64(globalManager.answers.WithLabelValues("late")), ShouldEqual, late+1)
				So(testutil.ToFloat64(globalManager.roundsEnded.WithLabelValues("timeout")), ShouldEqual, timeouts+1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(64)
			UpdateWorkerActiveCount(3)

			Convey("Then the latest value wins", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(globalManager.workerActiveCount), ShouldEqual, 3)
			})
		})

		Convey("When recording the remaining helpers", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordMatchmakingPoll("MATCHED", "BOT")
					RecordMatchmakingWait(12000)
					RecordLeaderboardUpdate()
					RecordSeasonRotation()
					RecordIdentityChange("register")
					RecordSweeperAction("expire")
					RecordHTTPRequest("/v1/matches", "POST", "201")
					RecordHTTPRequestDuration("/v1/matches", "POST", "201", 3.5)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordWorkerProcessingLatency(12)
					RecordWorkerError()
					RecordArchiveUpload("ok")
					RecordArchiveDuplicate()
					RecordErrorByComponent("engine", "INTERNAL")
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.answers.WithLabelValues("accepted"))
		const goroutines, perG = 8, 50

		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perG; j++ {
					RecordAnswer("accepted")
					RecordHTTPRequest("/v1/matches/:id", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then every increment is counted", func() {
			So(testutil.ToFloat64(globalManager.answers.WithLabelValues("accepted")), ShouldEqual, before+goroutines*perG)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the package registry", t, func() {
		RecordSeasonRotation()
		families, err := GetRegistry().Gather()

		Convey("Then it exposes the battle metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
