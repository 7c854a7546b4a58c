package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voxgate pipeline
type Metrics struct {
	// Pipeline operation metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec
	ActiveWorkers   prometheus.Gauge

	// Decision metrics
	QualityScore    *prometheus.HistogramVec
	MatchSimilarity *prometheus.HistogramVec
	MatchDecisions  *prometheus.CounterVec
	AffectDominant  *prometheus.CounterVec

	// Model metrics
	ModelInitAttempts *prometheus.CounterVec

	// Enrollment metrics
	Enrollments *prometheus.CounterVec

	// Audit and archive metrics
	AuditRecords   *prometheus.CounterVec
	ArchiveUploads *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Pipeline operation metrics
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_requests_total",
			Help: "Total number of pipeline operations by outcome",
		}, []string{"operation", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxgate_request_duration_seconds",
			Help:    "End-to-end duration of pipeline operations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"operation"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxgate_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"stage"}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxgate_active_workers",
			Help: "Current number of busy CPU workers",
		}),

		// Decision metrics
		QualityScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxgate_quality_score",
			Help:    "Composite quality score of ingested audio",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
		}, []string{"profile"}),
		MatchSimilarity: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxgate_match_similarity",
			Help:    "Best cosine similarity of recognitions and verifications",
			Buckets: prometheus.LinearBuckets(-1, 0.1, 21), // -1.0 to 1.0
		}, []string{"kind"}),
		MatchDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_match_decisions_total",
			Help: "Total number of match decisions",
		}, []string{"kind", "accepted"}),
		AffectDominant: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_affect_dominant_total",
			Help: "Dominant label of affect readings",
		}, []string{"label"}),

		// Model metrics
		ModelInitAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_model_init_attempts_total",
			Help: "Model source load attempts",
		}, []string{"capability", "source", "success"}),

		// Enrollment metrics
		Enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_enrollments_total",
			Help: "Total number of enrollment attempts by outcome",
		}, []string{"outcome"}),

		// Audit and archive metrics
		AuditRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_audit_records_total",
			Help: "Total number of audit records written",
		}, []string{"kind"}),
		ArchiveUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_archive_uploads_total",
			Help: "Total number of raw audio archive uploads",
		}, []string{"success"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxgate_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxgate_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// RecordRequest records a finished pipeline operation
func (m *Metrics) RecordRequest(operation, outcome string, durationSeconds float64) {
	m.Requests.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordStage records the duration of one pipeline stage
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// SetActiveWorkers sets the number of busy workers
func (m *Metrics) SetActiveWorkers(count int) {
	m.ActiveWorkers.Set(float64(count))
}

// RecordQuality records a composite quality score
func (m *Metrics) RecordQuality(profile string, score float64) {
	m.QualityScore.WithLabelValues(profile).Observe(score)
}

// RecordMatch records a match decision
func (m *Metrics) RecordMatch(kind string, similarity float64, accepted bool) {
	m.MatchSimilarity.WithLabelValues(kind).Observe(similarity)
	m.MatchDecisions.WithLabelValues(kind, boolLabel(accepted)).Inc()
}

// RecordAffect records the dominant label of an affect reading
func (m *Metrics) RecordAffect(label string) {
	m.AffectDominant.WithLabelValues(label).Inc()
}

// RecordModelInit records one model source load attempt
func (m *Metrics) RecordModelInit(capability, source string, success bool) {
	m.ModelInitAttempts.WithLabelValues(capability, source, boolLabel(success)).Inc()
}

// RecordEnrollment records an enrollment attempt
func (m *Metrics) RecordEnrollment(outcome string) {
	m.Enrollments.WithLabelValues(outcome).Inc()
}

// RecordAudit records a stored audit record
func (m *Metrics) RecordAudit(kind string) {
	m.AuditRecords.WithLabelValues(kind).Inc()
}

// RecordArchiveUpload records an archive upload attempt
func (m *Metrics) RecordArchiveUpload(success bool) {
	m.ArchiveUploads.WithLabelValues(boolLabel(success)).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
