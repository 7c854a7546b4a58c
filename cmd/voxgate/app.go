package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/voxgate/internal/archive"
	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/audit"
	"github.com/skypro1111/voxgate/internal/config"
	"github.com/skypro1111/voxgate/internal/enrollment"
	"github.com/skypro1111/voxgate/internal/metrics"
	"github.com/skypro1111/voxgate/internal/model"
	"github.com/skypro1111/voxgate/internal/pipeline"
	"github.com/skypro1111/voxgate/internal/quality"
	"github.com/skypro1111/voxgate/internal/registry"
	"github.com/skypro1111/voxgate/internal/store"
	"github.com/skypro1111/voxgate/internal/vad"
)

// app owns every long-lived component built from the configuration
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	gateway  *model.Gateway
	models   *registry.Client
	store    store.Store
	ledger   *enrollment.Ledger
	recorder *audit.Recorder
	service  *pipeline.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	ingestor, err := audio.NewIngestor(audio.IngestConfig{
		TargetSampleRate: cfg.Audio.TargetSampleRate,
		MinDuration:      cfg.Audio.MinDuration,
		MaxDuration:      cfg.Audio.MaxDuration,
		MaxUploadBytes:   cfg.Audio.MaxUploadBytes,
		FrameSize:        cfg.Audio.FrameSize,
		DenoiseFrames:    cfg.Audio.DenoiseFrames,
		DenoiseAlpha:     cfg.Audio.DenoiseAlpha,
		DenoiseFloor:     cfg.Audio.DenoiseFloor,
		PreEmphasis:      cfg.Audio.PreEmphasis,
		PeakLevel:        cfg.Audio.PeakLevel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestor: %w", err)
	}

	processor, err := vad.NewProcessor(cfg.VAD.EnergyThreshold, cfg.VAD.ZCRMax,
		cfg.VAD.GetFrameDuration(), cfg.Audio.TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create vad processor: %w", err)
	}

	assessor, err := quality.NewAssessor(quality.FromConfig(cfg.Quality), processor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create quality assessor: %w", err)
	}

	var fetcher model.Fetcher
	if cfg.Model.Registry.Endpoint != "" {
		a.models, err = registry.NewClient(registry.Config{
			Endpoint:      cfg.Model.Registry.Endpoint,
			APIKey:        cfg.Model.Registry.APIKey,
			CacheDir:      cfg.Model.CacheDir,
			Timeout:       cfg.Model.Registry.GetTimeoutDuration(),
			MaxRetries:    cfg.Model.Registry.MaxRetries,
			MaxConcurrent: cfg.Model.Registry.MaxConcurrent,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create model registry client: %w", err)
		}
		fetcher = a.models
	}

	embedders, err := model.EmbeddingLoaders(cfg.Model, cfg.Audio.TargetSampleRate, fetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to configure embedding sources: %w", err)
	}
	classifiers, err := model.ClassificationLoaders(cfg.Model, cfg.Audio.TargetSampleRate, fetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to configure classification sources: %w", err)
	}
	a.gateway = model.NewGateway(model.GatewayConfig{
		Device:         cfg.Model.Device,
		Embedding:      embedders,
		Classification: classifiers,
		Observer:       a.metrics,
	}, logger)

	a.store, err = store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding store: %w", err)
	}

	a.ledger, err = enrollment.NewLedger(a.store, enrollment.Config{
		SampleCap:        cfg.Enrollment.SampleCap,
		RequiredSamples:  cfg.Enrollment.RequiredSamples,
		QualityThreshold: cfg.Quality.Threshold,
		LockIdleTimeout:  cfg.Enrollment.GetLockIdleTimeout(),
	}, logger)
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("failed to create enrollment ledger: %w", err)
	}

	sink, err := audit.Open(cfg.Audit)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open audit sink: %w", err)
	}
	a.recorder, err = audit.NewRecorder(sink, a.metrics, logger)
	if err != nil {
		sink.Close()
		a.Close()
		return nil, fmt.Errorf("failed to create audit recorder: %w", err)
	}

	deps := pipeline.Deps{
		Ingestor: ingestor,
		Assessor: assessor,
		Models:   a.gateway,
		Ledger:   a.ledger,
		Store:    a.store,
		Recorder: a.recorder,
		Metrics:  a.metrics,
	}

	arch, err := archive.Open(cfg.Archive, a.metrics, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open audio archive: %w", err)
	}
	if arch != nil {
		deps.Archiver = arch
	}

	a.service, err = pipeline.NewService(pipeline.Config{
		QualityThreshold:    cfg.Quality.Threshold,
		SimilarityThreshold: cfg.Matching.SimilarityThreshold,
		TopK:                cfg.Matching.TopK,
		Workers:             cfg.Workers.Size,
	}, deps, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return a, nil
}

// initModels loads the configured capabilities. A classifier failure is
// logged and leaves affect detection unavailable.
func (a *app) initModels(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Model.GetInitTimeout())
	defer cancel()

	if err := a.gateway.InitializeCapability(ctx, model.CapabilityEmbedding); err != nil {
		return err
	}

	if a.gateway.Configured(model.CapabilityClassification) {
		if err := a.gateway.InitializeCapability(ctx, model.CapabilityClassification); err != nil {
			a.logger.Warn("Affect detection unavailable", slog.String("error", err.Error()))
		}
	}

	st := a.gateway.Status()
	a.logger.Info("Models initialized",
		slog.String("device", string(st.Device)),
		slog.String("embedding", st.Embedding.Model),
		slog.Bool("classification_ready", st.Classification.Ready),
	)
	return nil
}

// maxModelRetryInterval caps the doubling delay between initialization retries
const maxModelRetryInterval = time.Minute

// capabilityLoader is the part of the model gateway the retry loop drives
type capabilityLoader interface {
	Configured(c model.Capability) bool
	Ready(c model.Capability) bool
	InitializeCapability(ctx context.Context, c model.Capability) error
}

// pendingCapabilities lists configured capabilities that are not ready yet
func pendingCapabilities(l capabilityLoader) []model.Capability {
	var pending []model.Capability
	for _, c := range []model.Capability{model.CapabilityEmbedding, model.CapabilityClassification} {
		if l.Configured(c) && !l.Ready(c) {
			pending = append(pending, c)
		}
	}
	return pending
}

// retryModels re-initializes unready capabilities with exponential backoff
// until all of them are ready or ctx is done.
func retryModels(ctx context.Context, l capabilityLoader, attemptTimeout, interval time.Duration, logger *slog.Logger) {
	delay := interval
	for attempt := 1; ; attempt++ {
		pending := pendingCapabilities(l)
		if len(pending) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		for _, c := range pending {
			attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
			err := l.InitializeCapability(attemptCtx, c)
			cancel()
			if err != nil {
				logger.Warn("Model initialization retry failed",
					slog.String("capability", string(c)),
					slog.Int("attempt", attempt),
					slog.Duration("next_retry", min(delay*2, maxModelRetryInterval)),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.Info("Model capability recovered",
				slog.String("capability", string(c)),
				slog.Int("attempt", attempt),
			)
		}

		delay = min(delay*2, maxModelRetryInterval)
	}
}

// Close releases every component that was opened
func (a *app) Close() error {
	var errs []error
	if a.ledger != nil {
		a.ledger.Stop()
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if a.models != nil {
		errs = append(errs, a.models.Close())
	}
	return errors.Join(errs...)
}
