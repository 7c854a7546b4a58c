package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/voxgate/internal/affect"
	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/audit"
	"github.com/skypro1111/voxgate/internal/domain"
	"github.com/skypro1111/voxgate/internal/enrollment"
	"github.com/skypro1111/voxgate/internal/matching"
	"github.com/skypro1111/voxgate/internal/metrics"
	"github.com/skypro1111/voxgate/internal/model"
	"github.com/skypro1111/voxgate/internal/quality"
	"github.com/skypro1111/voxgate/internal/store"
)

// Operation names used in metrics, logs and statistics
const (
	OpRegister    = "register"
	OpRecognize   = "recognize"
	OpVerify      = "verify"
	OpAffect      = "affect"
	OpBatchAffect = "batch_affect"
	OpStatus      = "status"
	OpRemove      = "remove"
	OpForget      = "forget"
)

// Ingestor decodes and normalizes raw uploads
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, enhancement audio.Enhancement) (*audio.Waveform, error)
}

// Assessor scores a canonical waveform
type Assessor interface {
	Assess(w *audio.Waveform, profile quality.Profile) *quality.Score
}

// Models is the capability holder. *model.Gateway satisfies it.
type Models interface {
	Ready(c model.Capability) bool
	Embed(ctx context.Context, w *audio.Waveform) (domain.Embedding, error)
	Classify(ctx context.Context, w *audio.Waveform) ([]float64, error)
	Labels() []string
	Status() model.Status
}

// GalleryProvider supplies the enrolled identities for recognition.
// store.Store satisfies it.
type GalleryProvider interface {
	ActiveEmbeddings(ctx context.Context) ([]store.Entry, error)
}

// Archiver keeps raw uploads. *archive.Archive satisfies it.
type Archiver interface {
	Store(ctx context.Context, kind string, data []byte) (string, error)
}

// Recorder writes audit records. *audit.Recorder satisfies it.
type Recorder interface {
	Record(ctx context.Context, r audit.Record) (audit.Record, error)
	List(ctx context.Context, f audit.Filter) ([]audit.Record, error)
}

// Config contains the decision parameters of the service
type Config struct {
	QualityThreshold    float64
	SimilarityThreshold float64
	TopK                int
	Workers             int
}

// Validate checks the decision parameters
func (c Config) Validate() error {
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be in [0, 1], got %f", c.QualityThreshold)
	}
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [-1, 1], got %f", c.SimilarityThreshold)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top k cannot be negative, got %d", c.TopK)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", c.Workers)
	}
	return nil
}

// Deps are the collaborators of a Service. Archiver and Metrics are optional.
type Deps struct {
	Ingestor Ingestor
	Assessor Assessor
	Models   Models
	Ledger   *enrollment.Ledger
	Store    store.Store
	Recorder Recorder
	Archiver Archiver
	Metrics  *metrics.Metrics
}

// Registration is the outcome of RegisterSample
type Registration struct {
	IdentityID  string            `json:"identity_id"`
	SampleIndex int               `json:"sample_index"`
	Quality     *quality.Score    `json:"quality"`
	Status      enrollment.Status `json:"status"`
	AuditID     string            `json:"audit_id,omitempty"`
}

// BatchItem is the result of one upload in BatchDetectAffect
type BatchItem struct {
	Result *affect.Result `json:"result,omitempty"`
	Err    error          `json:"-"`
}

// OperationStats counts calls of one operation
type OperationStats struct {
	Total       uint64            `json:"total"`
	Success     uint64            `json:"success"`
	Failed      uint64            `json:"failed"`
	SuccessRate float64           `json:"success_rate"`
	ByClass     map[string]uint64 `json:"by_outcome"`
}

// AuditStats aggregates recorded decisions next to per-operation outcomes
type AuditStats struct {
	Decisions  audit.Summary             `json:"decisions"`
	Operations map[string]OperationStats `json:"operations"`
}

// AffectOption adjusts a DetectAffect call
type AffectOption func(*affectOptions)

type affectOptions struct {
	subjectID string
}

// WithSubject attributes affect readings to an identity in the audit trail
func WithSubject(id string) AffectOption {
	return func(o *affectOptions) { o.subjectID = id }
}

func buildAffectOptions(opts []AffectOption) (affectOptions, error) {
	var o affectOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.subjectID != "" {
		if err := domain.ValidateIdentityID(o.subjectID); err != nil {
			return o, err
		}
	}
	return o, nil
}

// Stats represents service statistics
type Stats struct {
	Workers    PoolStats                 `json:"workers"`
	Models     model.Status              `json:"models"`
	Operations map[string]OperationStats `json:"operations"`
	StartedAt  time.Time                 `json:"started_at"`
}

// Service implements the pipeline operations
type Service struct {
	config   Config
	ingestor Ingestor
	assessor Assessor
	models   Models
	ledger   *enrollment.Ledger
	store    store.Store
	recorder Recorder
	archiver Archiver
	metrics  *metrics.Metrics
	pool     *Pool
	logger   *slog.Logger

	statsMu   sync.Mutex
	ops       map[string]*OperationStats
	startedAt time.Time
}

// NewService wires the pipeline
func NewService(config Config, deps Deps, logger *slog.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	switch {
	case deps.Ingestor == nil:
		return nil, errors.New("pipeline: ingestor is required")
	case deps.Assessor == nil:
		return nil, errors.New("pipeline: assessor is required")
	case deps.Models == nil:
		return nil, errors.New("pipeline: models are required")
	case deps.Ledger == nil:
		return nil, errors.New("pipeline: enrollment ledger is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Recorder == nil:
		return nil, errors.New("pipeline: audit recorder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var onChange func(int)
	if deps.Metrics != nil {
		onChange = deps.Metrics.SetActiveWorkers
	}
	pool, err := NewPool(config.Workers, onChange)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	return &Service{
		config:    config,
		ingestor:  deps.Ingestor,
		assessor:  deps.Assessor,
		models:    deps.Models,
		ledger:    deps.Ledger,
		store:     deps.Store,
		recorder:  deps.Recorder,
		archiver:  deps.Archiver,
		metrics:   deps.Metrics,
		pool:      pool,
		logger:    logger,
		ops:       make(map[string]*OperationStats),
		startedAt: time.Now(),
	}, nil
}

// analysis is the gated, model-ready form of one upload
type analysis struct {
	waveform *audio.Waveform
	score    *quality.Score
}

// analyze ingests and scores an upload on the worker pool and enforces
// the quality threshold
func (s *Service) analyze(ctx context.Context, data []byte, profile quality.Profile) (*analysis, error) {
	enhancement := audio.EnhanceDenoise
	if profile == quality.ProfileAffect {
		enhancement = audio.EnhancePreEmphasis
	}

	var a analysis
	err := s.pool.Do(ctx, func() error {
		start := time.Now()
		w, err := s.ingestor.Ingest(ctx, data, enhancement)
		s.recordStage("ingest", start)
		if err != nil {
			return err
		}

		start = time.Now()
		a.waveform = w
		a.score = s.assessor.Assess(w, profile)
		s.recordStage("quality", start)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordQuality(string(profile), a.score.Composite)
	}
	if len(a.score.Degraded) > 0 {
		s.logger.Debug("Quality sub-metrics degraded",
			slog.String("profile", string(profile)),
			slog.Any("metrics", a.score.Degraded),
		)
	}

	if err := quality.Enforce(a.score, s.config.QualityThreshold); err != nil {
		return &a, err
	}
	return &a, nil
}

func (s *Service) embed(ctx context.Context, w *audio.Waveform) (domain.Embedding, error) {
	var emb domain.Embedding
	err := s.pool.Do(ctx, func() error {
		start := time.Now()
		var err error
		emb, err = s.models.Embed(ctx, w)
		s.recordStage("embed", start)
		return err
	})
	return emb, err
}

func (s *Service) requireReady(c model.Capability) error {
	if !s.models.Ready(c) {
		return fmt.Errorf("%w: %s", domain.ErrModelNotInitialized, c)
	}
	return nil
}

// RegisterSample enrolls one upload for an identity. A rejected upload
// leaves the identity unchanged.
func (s *Service) RegisterSample(ctx context.Context, identityID string, data []byte) (reg *Registration, err error) {
	start := time.Now()
	defer func() { s.finish(OpRegister, start, err, identityID) }()

	if err := domain.ValidateIdentityID(identityID); err != nil {
		return nil, err
	}
	if err := s.requireReady(model.CapabilityEmbedding); err != nil {
		return nil, err
	}

	a, err := s.analyze(ctx, data, quality.ProfileSpeaker)
	if err != nil {
		s.recordEnrollment(err)
		return nil, err
	}

	emb, err := s.embed(ctx, a.waveform)
	if err != nil {
		return nil, err
	}

	index, err := s.ledger.Enroll(ctx, identityID, emb, a.score.Composite, a.waveform.Duration)
	s.recordEnrollment(err)
	if err != nil {
		return nil, err
	}

	// The sample is committed from here on. Later failures are logged so a
	// caller retrying on error cannot fill the identity with duplicates.
	st, err := s.ledger.Status(ctx, identityID)
	if err != nil {
		s.logger.Error("Failed to read enrollment status",
			slog.String("identity_id", identityID),
			slog.String("error", err.Error()),
		)
		st = enrollment.Status{IdentityID: identityID}
	}

	var auditID string
	rec, err := s.recorder.Record(ctx, audit.Record{
		Kind:         audit.KindEnrollment,
		SubjectID:    identityID,
		Latency:      time.Since(start),
		InputQuality: a.score.Composite,
		ArchiveKey:   s.archive(ctx, "enrollment", data),
		Enrollment: &audit.Enrollment{
			SampleIndex: index,
			Registered:  st.Registered,
			IsComplete:  st.IsComplete,
		},
	})
	if err != nil {
		s.logger.Error("Failed to record enrollment",
			slog.String("identity_id", identityID),
			slog.Int("sample_index", index),
			slog.String("error", err.Error()),
		)
	} else {
		auditID = rec.ID
	}

	return &Registration{
		IdentityID:  identityID,
		SampleIndex: index,
		Quality:     a.score,
		Status:      st,
		AuditID:     auditID,
	}, nil
}

// Recognize identifies the speaker of an upload against the gallery. A nil
// gallery uses the enrolled store. A rejected match is a successful call.
func (s *Service) Recognize(ctx context.Context, data []byte, gallery GalleryProvider) (result *matching.Result, err error) {
	start := time.Now()
	defer func() { s.finish(OpRecognize, start, err, "") }()

	if gallery == nil {
		gallery = s.store
	}

	if err := s.requireReady(model.CapabilityEmbedding); err != nil {
		return nil, err
	}

	a, err := s.analyze(ctx, data, quality.ProfileSpeaker)
	if err != nil {
		return nil, err
	}

	emb, err := s.embed(ctx, a.waveform)
	if err != nil {
		return nil, err
	}

	entries, err := gallery.ActiveEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read gallery: %w", err)
	}

	err = s.pool.Do(ctx, func() error {
		matchStart := time.Now()
		var err error
		result, err = matching.Recognize(emb, entries, s.config.SimilarityThreshold, s.config.TopK)
		s.recordStage("match", matchStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.finishMatch(ctx, audit.KindRecognition, "", result, a, data, start)
	return result, nil
}

// Verify checks an upload against the samples of one identity
func (s *Service) Verify(ctx context.Context, identityID string, data []byte) (result *matching.Result, err error) {
	start := time.Now()
	defer func() { s.finish(OpVerify, start, err, identityID) }()

	if err := domain.ValidateIdentityID(identityID); err != nil {
		return nil, err
	}
	if err := s.requireReady(model.CapabilityEmbedding); err != nil {
		return nil, err
	}

	samples, err := s.ledger.Samples(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %s has no enrolled samples", domain.ErrIdentityNotFound, identityID)
	}

	a, err := s.analyze(ctx, data, quality.ProfileSpeaker)
	if err != nil {
		return nil, err
	}

	emb, err := s.embed(ctx, a.waveform)
	if err != nil {
		return nil, err
	}

	gallery := []store.Entry{{IdentityID: identityID, Samples: samples}}
	err = s.pool.Do(ctx, func() error {
		matchStart := time.Now()
		var err error
		result, err = matching.Recognize(emb, gallery, s.config.SimilarityThreshold, 0)
		s.recordStage("match", matchStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.finishMatch(ctx, audit.KindVerification, identityID, result, a, data, start)
	return result, nil
}

func (s *Service) finishMatch(ctx context.Context, kind audit.Kind, subject string, result *matching.Result,
	a *analysis, data []byte, start time.Time) {
	result.Probe.Quality = a.score.Composite
	result.Probe.Duration = a.waveform.Duration

	if s.metrics != nil {
		s.metrics.RecordMatch(string(kind), result.Confidence, result.Accepted)
	}

	attrs := []any{
		slog.String("kind", string(kind)),
		slog.Bool("accepted", result.Accepted),
		slog.Float64("confidence", result.Confidence),
		slog.Float64("threshold", result.Threshold),
	}
	if result.Selected != nil {
		attrs = append(attrs, slog.String("selected", *result.Selected))
	}
	s.logger.Info("Match decision", attrs...)

	_, err := s.recorder.Record(ctx, audit.Record{
		Kind:         kind,
		SubjectID:    subject,
		Latency:      time.Since(start),
		InputQuality: a.score.Composite,
		ArchiveKey:   s.archive(ctx, string(kind), data),
		Match:        result,
	})
	if err != nil {
		s.logger.Error("Failed to record match decision", slog.String("error", err.Error()))
	}
}

// DetectAffect classifies the affect of an upload
func (s *Service) DetectAffect(ctx context.Context, data []byte, opts ...AffectOption) (result *affect.Result, err error) {
	start := time.Now()
	o, err := buildAffectOptions(opts)
	defer func() { s.finish(OpAffect, start, err, o.subjectID) }()
	if err != nil {
		return nil, err
	}

	return s.detectAffect(ctx, data, o, start)
}

func (s *Service) detectAffect(ctx context.Context, data []byte, o affectOptions, start time.Time) (*affect.Result, error) {
	if err := s.requireReady(model.CapabilityClassification); err != nil {
		return nil, err
	}

	a, err := s.analyze(ctx, data, quality.ProfileAffect)
	if err != nil {
		return nil, err
	}

	var dist []float64
	err = s.pool.Do(ctx, func() error {
		classifyStart := time.Now()
		var err error
		dist, err = s.models.Classify(ctx, a.waveform)
		s.recordStage("classify", classifyStart)
		return err
	})
	if err != nil {
		return nil, err
	}

	analyzer, err := affect.NewAnalyzer(s.models.Labels())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	result, err := analyzer.Analyze(dist)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordAffect(result.Dominant)
	}

	_, err = s.recorder.Record(ctx, audit.Record{
		Kind:         audit.KindAffect,
		SubjectID:    o.subjectID,
		Latency:      time.Since(start),
		InputQuality: a.score.Composite,
		ArchiveKey:   s.archive(ctx, "affect", data),
		Affect:       result,
	})
	if err != nil {
		s.logger.Error("Failed to record affect reading", slog.String("error", err.Error()))
	}

	return result, nil
}

// BatchDetectAffect classifies several uploads concurrently. Each item
// carries its own result or error, in input order.
func (s *Service) BatchDetectAffect(ctx context.Context, uploads [][]byte, opts ...AffectOption) []BatchItem {
	start := time.Now()
	items := make([]BatchItem, len(uploads))

	o, err := buildAffectOptions(opts)
	if err != nil {
		for i := range items {
			items[i].Err = err
		}
		s.finish(OpBatchAffect, start, err, o.subjectID)
		return items
	}

	var wg sync.WaitGroup
	for i, data := range uploads {
		wg.Add(1)
		go func(i int, data []byte) {
			defer wg.Done()
			itemStart := time.Now()
			items[i].Result, items[i].Err = s.detectAffect(ctx, data, o, itemStart)
			s.finish(OpAffect, itemStart, items[i].Err, o.subjectID)
		}(i, data)
	}
	wg.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	s.logger.Info("Batch affect detection finished",
		slog.Int("items", len(items)),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(start)),
	)

	var batchErr error
	if failed == len(items) && len(items) > 0 {
		batchErr = items[0].Err
	}
	s.finish(OpBatchAffect, start, batchErr, o.subjectID)

	return items
}

// EnrollmentStatus reports enrollment progress of an identity
func (s *Service) EnrollmentStatus(ctx context.Context, identityID string) (st enrollment.Status, err error) {
	start := time.Now()
	defer func() { s.finish(OpStatus, start, err, identityID) }()

	return s.ledger.Status(ctx, identityID)
}

// RemoveSample deletes one enrolled sample
func (s *Service) RemoveSample(ctx context.Context, identityID string, index int) (err error) {
	start := time.Now()
	defer func() { s.finish(OpRemove, start, err, identityID) }()

	return s.ledger.Remove(ctx, identityID, index)
}

// ForgetIdentity destroys an identity and its embeddings
func (s *Service) ForgetIdentity(ctx context.Context, identityID string) (err error) {
	start := time.Now()
	defer func() { s.finish(OpForget, start, err, identityID) }()

	return s.ledger.Forget(ctx, identityID)
}

// Identities lists every known identity
func (s *Service) Identities(ctx context.Context) ([]store.Identity, error) {
	return s.store.Identities(ctx)
}

// AuditLog lists recorded decisions, newest first
func (s *Service) AuditLog(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	return s.recorder.List(ctx, f)
}

// AuditStats summarizes recorded decisions matching f together with the
// per-operation success rates of this process.
func (s *Service) AuditStats(ctx context.Context, f audit.Filter) (*AuditStats, error) {
	records, err := s.recorder.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list audit records: %w", err)
	}
	return &AuditStats{
		Decisions:  audit.Summarize(records),
		Operations: s.GetStats().Operations,
	}, nil
}

// GetStats returns current service statistics
func (s *Service) GetStats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	ops := make(map[string]OperationStats, len(s.ops))
	for name, st := range s.ops {
		cp := *st
		cp.ByClass = make(map[string]uint64, len(st.ByClass))
		for k, v := range st.ByClass {
			cp.ByClass[k] = v
		}
		if cp.Total > 0 {
			cp.SuccessRate = float64(cp.Success) / float64(cp.Total)
		}
		ops[name] = cp
	}

	return Stats{
		Workers:    s.pool.GetStats(),
		Models:     s.models.Status(),
		Operations: ops,
		StartedAt:  s.startedAt,
	}
}

func (s *Service) archive(ctx context.Context, kind string, data []byte) string {
	if s.archiver == nil {
		return ""
	}
	key, err := s.archiver.Store(ctx, kind, data)
	if err != nil {
		s.logger.Warn("Raw audio not archived",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return key
}

func (s *Service) recordStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordStage(stage, time.Since(start).Seconds())
	}
}

func (s *Service) recordEnrollment(err error) {
	if s.metrics != nil {
		s.metrics.RecordEnrollment(Outcome(err))
	}
}

// finish counts an operation and logs failures
func (s *Service) finish(op string, start time.Time, err error, identityID string) {
	outcome := Outcome(err)
	elapsed := time.Since(start)

	s.statsMu.Lock()
	st, ok := s.ops[op]
	if !ok {
		st = &OperationStats{ByClass: make(map[string]uint64)}
		s.ops[op] = st
	}
	st.Total++
	if err == nil {
		st.Success++
	} else {
		st.Failed++
	}
	st.ByClass[outcome]++
	s.statsMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRequest(op, outcome, elapsed.Seconds())
	}

	if err == nil {
		return
	}

	attrs := []any{
		slog.String("operation", op),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
		slog.String("error", err.Error()),
	}
	if identityID != "" {
		attrs = append(attrs, slog.String("identity_id", identityID))
	}
	if outcome == OutcomeError {
		s.logger.Error("Operation failed", attrs...)
	} else {
		s.logger.Info("Operation rejected", attrs...)
	}
}
