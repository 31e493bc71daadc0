package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the recorder's Prometheus collectors.
type Metrics struct {
	// Worker pool
	WorkersBusy      prometheus.Gauge
	Assignments      prometheus.Counter
	AssignmentMisses prometheus.Counter
	PendingSessions  prometheus.Gauge
	PendingExpired   prometheus.Counter

	// Sessions
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	FinalizeTimeouts prometheus.Counter

	// Pipeline
	PipelineRuns   *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	Placeholders   *prometheus.CounterVec
	SegmentsMerged prometheus.Histogram

	// Retries
	Retries   *prometheus.CounterVec
	Exhausted *prometheus.CounterVec

	// Uploads
	UploadCacheEvents *prometheus.CounterVec
	FilesUploaded     prometheus.Counter
	FilesFailed       prometheus.Counter

	// Maintenance jobs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkersBusy: f.NewGauge(prometheus.GaugeOpts{
			Name: "meetrec_workers_busy",
			Help: "Current number of workers bound to a session",
		}),
		Assignments: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_assignments_total",
			Help: "Total number of worker assignments",
		}),
		AssignmentMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_assignment_misses_total",
			Help: "Total number of assignment requests that found no free worker",
		}),
		PendingSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "meetrec_pending_sessions",
			Help: "Sessions waiting for a worker",
		}),
		PendingExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_pending_expired_total",
			Help: "Sessions dropped after waiting too long for a worker",
		}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "meetrec_active_sessions",
			Help: "Current number of sessions that are not closed",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_sessions_closed_total",
			Help: "Total number of sessions closed by outcome",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetrec_session_duration_seconds",
			Help:    "Length of recorded sessions",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8), // 1m to ~2h
		}),
		FinalizeTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_finalize_timeouts_total",
			Help: "Sessions closed with placeholders because results did not arrive in time",
		}),

		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_pipeline_runs_total",
			Help: "Pipeline runs by result",
		}, []string{"result"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetrec_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		Placeholders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_placeholders_total",
			Help: "Outputs replaced by their placeholder",
		}, []string{"field"}),
		SegmentsMerged: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetrec_segments_merged",
			Help:    "Transcript segments per session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		Retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_retries_total",
			Help: "Retried operations",
		}, []string{"op"}),
		Exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_retries_exhausted_total",
			Help: "Operations that gave up after all attempts",
		}, []string{"op"}),

		UploadCacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_upload_cache_events_total",
			Help: "Upload connection cache events",
		}, []string{"event"}),
		FilesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_files_uploaded_total",
			Help: "Files uploaded to the destination",
		}),
		FilesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "meetrec_files_failed_total",
			Help: "Files that could not be uploaded",
		}),

		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_job_runs_total",
			Help: "Maintenance job runs by status",
		}, []string{"job", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetrec_job_duration_seconds",
			Help:    "Maintenance job run time",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meetrec_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meetrec_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordStage observes how long a pipeline stage took.
func (m *Metrics) RecordStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRetry counts one retry of op.
func (m *Metrics) RecordRetry(op string) {
	m.Retries.WithLabelValues(opLabel(op)).Inc()
}

func (m *Metrics) RecordExhausted(op string) {
	m.Exhausted.WithLabelValues(opLabel(op)).Inc()
}

func (m *Metrics) RecordUploadEvent(event string) {
	m.UploadCacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordUpload(uploaded, failed int) {
	m.FilesUploaded.Add(float64(uploaded))
	m.FilesFailed.Add(float64(failed))
}

func (m *Metrics) RecordPlaceholder(field string) {
	m.Placeholders.WithLabelValues(field).Inc()
}

func (m *Metrics) RecordSessionClosed(outcome string, d time.Duration) {
	m.SessionsClosed.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(d.Seconds())
	m.ActiveSessions.Dec()
}

func (m *Metrics) RecordJob(job string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) RecordHTTP(method, route, status string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// opLabel keeps the part of an operation name before ":", e.g. "upload" for
// "upload: summary.txt".
func opLabel(op string) string {
	label, _, _ := strings.Cut(op, ":")
	return strings.TrimSpace(label)
}
