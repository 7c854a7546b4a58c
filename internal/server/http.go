package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voxgate/internal/audit"
	"github.com/skypro1111/voxgate/internal/config"
	"github.com/skypro1111/voxgate/internal/metrics"
	"github.com/skypro1111/voxgate/internal/pipeline"
)

const (
	serviceName    = "voxgate"
	serviceVersion = "1.0.0"
)

// Pipeline is the part of the service exposed for monitoring
type Pipeline interface {
	GetStats() pipeline.Stats
	AuditLog(ctx context.Context, f audit.Filter) ([]audit.Record, error)
	AuditStats(ctx context.Context, f audit.Filter) (*pipeline.AuditStats, error)
}

// HTTPServer provides HTTP endpoints for monitoring
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	pipeline Pipeline
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// NewHTTPServer creates a new monitoring server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger, appConfig *config.Config,
	p Pipeline, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		pipeline:  p,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	return mux
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/audit", h.withMetrics("/audit", h.handleAudit))
	mux.HandleFunc("/audit/stats", h.withMetrics("/audit/stats", h.handleAuditStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		if h.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP monitoring server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP monitoring server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

// handleHealth implements the /health endpoint. The service is unavailable
// until the embedding capability is ready.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.pipeline.GetStats()
	status, code := "healthy", http.StatusOK
	switch {
	case !stats.Models.Embedding.Ready:
		status, code = "unavailable", http.StatusServiceUnavailable
	case stats.Models.Classification.Configured && !stats.Models.Classification.Ready:
		status = "degraded"
	}

	health := map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]any{
			"models":  stats.Models,
			"workers": stats.Workers,
		},
	}

	h.writeJSON(w, code, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config
	sanitizedConfig := map[string]any{
		"audio": map[string]any{
			"target_sample_rate_hz": c.Audio.TargetSampleRate,
			"min_duration_s":        c.Audio.MinDuration,
			"max_duration_s":        c.Audio.MaxDuration,
			"max_upload_bytes":      c.Audio.MaxUploadBytes,
		},
		"vad": map[string]any{
			"frame_ms":         c.VAD.FrameMs,
			"energy_threshold": c.VAD.EnergyThreshold,
			"zcr_max":          c.VAD.ZCRMax,
		},
		"quality": map[string]any{
			"quality_threshold":     c.Quality.Threshold,
			"speaker_weight_vector": c.Quality.SpeakerWeights,
			"affect_weight_vector":  c.Quality.AffectWeights,
		},
		"enrollment": map[string]any{
			"sample_cap":       c.Enrollment.SampleCap,
			"required_samples": c.Enrollment.RequiredSamples,
		},
		"matching": map[string]any{
			"similarity_threshold": c.Matching.SimilarityThreshold,
			"top_k":                c.Matching.TopK,
		},
		"model": map[string]any{
			"device":    c.Model.Device,
			"cache_dir": c.Model.CacheDir,
			"registry":  c.Model.Registry.Endpoint,
			// api key omitted
		},
		"store": map[string]any{
			"backend": c.Store.Backend,
		},
		"audit": map[string]any{
			"sink": c.Audit.Sink,
		},
		"archive": map[string]any{
			"enabled": c.Archive.Enabled,
			"bucket":  c.Archive.Bucket,
			"prefix":  c.Archive.Prefix,
			// credentials omitted
		},
		"workers": map[string]any{
			"size": c.Workers.Size,
		},
		"logging": map[string]any{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.pipeline.GetStats(),
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleAudit implements the /audit endpoint: ?kind=&subject=&limit=
func (h *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, err := parseAuditFilter(r, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.pipeline.AuditLog(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to list audit records", slog.String("error", err.Error()))
		http.Error(w, "Failed to list audit records", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleAuditStats implements the /audit/stats endpoint. Without a limit
// every matching record is aggregated.
func (h *HTTPServer) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	f, err := parseAuditFilter(r, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := h.pipeline.AuditStats(r.Context(), f)
	if err != nil {
		h.logger.Error("Failed to summarize audit records", slog.String("error", err.Error()))
		http.Error(w, "Failed to summarize audit records", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// parseAuditFilter reads kind, subject and limit query parameters
func parseAuditFilter(r *http.Request, defaultLimit int) (audit.Filter, error) {
	q := r.URL.Query()
	kind, err := audit.ParseKind(q.Get("kind"))
	if err != nil {
		return audit.Filter{}, err
	}

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return audit.Filter{}, errors.New("invalid limit")
		}
	}

	return audit.Filter{Kind: kind, SubjectID: q.Get("subject"), Limit: limit}, nil
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "voxgate audio analysis pipeline",
		"version": serviceVersion,
		"endpoints": map[string]any{
			"GET /":            "API documentation",
			"GET /health":      "Model readiness and worker pool state",
			"GET /config":      "Get service configuration",
			"GET /stats":       "Get pipeline statistics",
			"GET /audit":       "List recent decisions (kind, subject, limit)",
			"GET /audit/stats": "Aggregate recorded decisions (kind, subject, limit)",
			"GET /metrics":     "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
