// Package metrics provides Prometheus metrics for the battle service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the battle service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Match lifecycle
	matchesCreated   *prometheus.CounterVec
	matchesFinalized *prometheus.CounterVec
	finalizeReplays  prometheus.Counter
	answers          *prometheus.CounterVec
	roundsEnded      *prometheus.CounterVec

	// Matchmaking
	matchmakingPolls   *prometheus.CounterVec
	matchmakingWaitMs  prometheus.Histogram
	leaderboardUpdates prometheus.Counter
	identityChanges    *prometheus.CounterVec
	seasonRotations    prometheus.Counter
	sweeperActions     *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Archive queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueueRate        prometheus.Counter
	queueDequeueRate        prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	archiveUploads          *prometheus.CounterVec
	archiveDuplicates       prometheus.Counter

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "battle",
		subsystem:        "arena",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	m.matchesCreated = auto.NewCounterVec(
		m.counterOpts("matches_created_total", "Matches created by opponent kind"),
		[]string{"kind"},
	)
	m.matchesFinalized = auto.NewCounterVec(
		m.counterOpts("matches_finalized_total", "Matches finalized by side A result"),
		[]string{"result"},
	)
	m.finalizeReplays = auto.NewCounter(
		m.counterOpts("finalize_replays_total", "Finalize calls answered from the stored outcome"),
	)
	m.answers = auto.NewCounterVec(
		m.counterOpts("answers_total", "Answer submissions by outcome"),
		[]string{"outcome"},
	)
	m.roundsEnded = auto.NewCounterVec(
		m.counterOpts("rounds_ended_total", "Rounds ended by reason"),
		[]string{"reason"},
	)

	m.matchmakingPolls = auto.NewCounterVec(
		m.counterOpts("matchmaking_polls_total", "Matchmaking polls by resulting status and opponent kind"),
		[]string{"status", "kind"},
	)
	m.matchmakingWaitMs = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "matchmaking_wait_milliseconds",
		Help:        "Time spent in the queue before a match was made",
		Buckets:     []float64{250, 500, 1000, 2000, 4000, 8000, 12000, 20000},
		ConstLabels: m.constLabels,
	})
	m.leaderboardUpdates = auto.NewCounter(
		m.counterOpts("leaderboard_updates_total", "Leaderboard aggregate updates"),
	)
	m.identityChanges = auto.NewCounterVec(
		m.counterOpts("identity_changes_total", "Identity registrations and renames"),
		[]string{"action"},
	)
	m.seasonRotations = auto.NewCounter(
		m.counterOpts("season_rotations_total", "Seasons closed and reopened"),
	)
	m.sweeperActions = auto.NewCounterVec(
		m.counterOpts("sweeper_actions_total", "Background sweeper actions by kind"),
		[]string{"action"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the archive queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum archive queue capacity"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running archive workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Archive job processing latency in milliseconds"),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))
	m.archiveUploads = auto.NewCounterVec(
		m.counterOpts("archive_uploads_total", "Match snapshot uploads by status"),
		[]string{"status"},
	)
	m.archiveDuplicates = auto.NewCounter(
		m.counterOpts("archive_duplicates_total", "Archive jobs skipped because the match was already archived"),
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
}

// RecordMatchCreated counts a new match.
func RecordMatchCreated(kind string) {
	globalManager.matchesCreated.WithLabelValues(kind).Inc()
}

// RecordMatchFinalized counts a completed match by side A result.
func RecordMatchFinalized(result string) {
	globalManager.matchesFinalized.WithLabelValues(result).Inc()
}

// RecordFinalizeReplay counts a finalize call served from stored state.
func RecordFinalizeReplay() {
	globalManager.finalizeReplays.Inc()
}

// RecordAnswer counts a submission: accepted, duplicate or late.
func RecordAnswer(outcome string) {
	globalManager.answers.WithLabelValues(outcome).Inc()
}

// RecordRoundEnded counts a round end: answered, timeout or finalize.
func RecordRoundEnded(reason string) {
	globalManager.roundsEnded.WithLabelValues(reason).Inc()
}

// RecordMatchmakingPoll counts a poll outcome.
func RecordMatchmakingPoll(status, kind string) {
	globalManager.matchmakingPolls.WithLabelValues(status, kind).Inc()
}

// RecordMatchmakingWait records queue wait before a match in milliseconds.
func RecordMatchmakingWait(ms float64) {
	globalManager.matchmakingWaitMs.Observe(ms)
}

// RecordLeaderboardUpdate increments the leaderboard updates counter.
func RecordLeaderboardUpdate() {
	globalManager.leaderboardUpdates.Inc()
}

// RecordIdentityChange counts a registration or rename.
func RecordIdentityChange(action string) {
	globalManager.identityChanges.WithLabelValues(action).Inc()
}

// RecordSeasonRotation counts a season rollover.
func RecordSeasonRotation() {
	globalManager.seasonRotations.Inc()
}

// RecordSweeperAction counts one sweeper action (expire, finalize, abandon).
func RecordSweeperAction(action string) {
	globalManager.sweeperActions.WithLabelValues(action).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordArchiveUpload counts a snapshot upload attempt by status.
func RecordArchiveUpload(status string) {
	globalManager.archiveUploads.WithLabelValues(status).Inc()
}

// RecordArchiveDuplicate counts a skipped re-archive.
func RecordArchiveDuplicate() {
	globalManager.archiveDuplicates.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
