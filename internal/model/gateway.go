package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/domain"
)

// GatewayConfig contains the sources and device preference of a gateway
type GatewayConfig struct {
	Device         string      // auto, cpu or cuda
	Probe          func() bool // accelerator probe consulted for "auto"
	Embedding      []Loader[Embedder]
	Classification []Loader[Classifier]
	Observer       InitObserver
}

// Gateway holds the embedding and classification capabilities. Each
// capability is initialized at most once; a failed attempt leaves it
// uninitialized so a later call can retry.
type Gateway struct {
	config GatewayConfig
	logger *slog.Logger

	deviceOnce sync.Once
	device     atomic.Value // Device

	embedding      *slot[Embedder]
	classification *slot[Classifier]
}

// CapabilityStatus reports the readiness of a single capability
type CapabilityStatus struct {
	Capability    Capability `json:"capability"`
	Configured    bool       `json:"configured"`
	Ready         bool       `json:"ready"`
	Source        string     `json:"source,omitempty"`
	Model         string     `json:"model,omitempty"`
	Version       string     `json:"version,omitempty"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	InitializedAt time.Time  `json:"initialized_at,omitempty"`
}

// Status reports the gateway state
type Status struct {
	Device         Device           `json:"device,omitempty"`
	Embedding      CapabilityStatus `json:"embedding"`
	Classification CapabilityStatus `json:"classification"`
}

// NewGateway creates a gateway. Nothing is loaded until Initialize.
func NewGateway(config GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:         config,
		logger:         logger,
		embedding:      newSlot(CapabilityEmbedding, config.Embedding),
		classification: newSlot(CapabilityClassification, config.Classification),
	}
}

// Device returns the resolved device, or "" before the first initialization
func (g *Gateway) Device() Device {
	d, _ := g.device.Load().(Device)
	return d
}

func (g *Gateway) resolveDevice() Device {
	g.deviceOnce.Do(func() {
		d := ResolveDevice(g.config.Device, g.config.Probe)
		g.device.Store(d)
		g.logger.Info("Model device selected",
			slog.String("preference", g.config.Device),
			slog.String("device", string(d)))
	})
	return g.Device()
}

// Initialize loads every configured capability. Already initialized
// capabilities are left untouched. Failures are joined.
func (g *Gateway) Initialize(ctx context.Context) error {
	var errs []error
	for _, c := range []Capability{CapabilityEmbedding, CapabilityClassification} {
		if !g.Configured(c) {
			continue
		}
		if err := g.InitializeCapability(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitializeCapability loads one capability. Concurrent callers share the
// single in-flight attempt and receive its result.
func (g *Gateway) InitializeCapability(ctx context.Context, c Capability) error {
	device := g.resolveDevice()
	switch c {
	case CapabilityEmbedding:
		return g.embedding.initialize(ctx, device, g.logger, g.config.Observer)
	case CapabilityClassification:
		return g.classification.initialize(ctx, device, g.logger, g.config.Observer)
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
}

// Configured reports whether any source is configured for c
func (g *Gateway) Configured(c Capability) bool {
	switch c {
	case CapabilityEmbedding:
		return len(g.embedding.loaders) > 0
	case CapabilityClassification:
		return len(g.classification.loaders) > 0
	}
	return false
}

// Ready reports whether c has been initialized
func (g *Gateway) Ready(c Capability) bool {
	switch c {
	case CapabilityEmbedding:
		return g.embedding.active.Load() != nil
	case CapabilityClassification:
		return g.classification.active.Load() != nil
	}
	return false
}

// Status returns a snapshot of both capabilities
func (g *Gateway) Status() Status {
	return Status{
		Device:         g.Device(),
		Embedding:      g.embedding.status(),
		Classification: g.classification.status(),
	}
}

// Embed returns a unit-length embedding of w
func (g *Gateway) Embed(ctx context.Context, w *audio.Waveform) (domain.Embedding, error) {
	active := g.embedding.active.Load()
	if active == nil {
		return domain.Embedding{}, fmt.Errorf("%s: %w", CapabilityEmbedding, domain.ErrModelNotInitialized)
	}

	raw, err := active.model.Embed(ctx, w)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("embedding failed: %w", err)
	}

	if dim := active.model.Dimension(); dim > 0 && len(raw) != dim {
		return domain.Embedding{}, fmt.Errorf("model %s returned %d values, expected %d: %w",
			active.loader.Name, len(raw), dim, domain.ErrDimensionMismatch)
	}

	vec, err := domain.Normalize(raw)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("embedding failed: %w", err)
	}

	return domain.Embedding{
		Vector:       vec,
		Model:        active.loader.Name,
		ModelVersion: active.loader.Version,
	}, nil
}

// EmbeddingModel returns the name and version of the active embedder
func (g *Gateway) EmbeddingModel() (string, string, bool) {
	active := g.embedding.active.Load()
	if active == nil {
		return "", "", false
	}
	return active.loader.Name, active.loader.Version, true
}

// Labels returns the label order of the active classifier
func (g *Gateway) Labels() []string {
	active := g.classification.active.Load()
	if active == nil {
		return nil
	}
	return append([]string(nil), active.model.Labels()...)
}

// Classify returns a distribution over Labels that sums to 1
func (g *Gateway) Classify(ctx context.Context, w *audio.Waveform) ([]float64, error) {
	active := g.classification.active.Load()
	if active == nil {
		return nil, fmt.Errorf("%s: %w", CapabilityClassification, domain.ErrModelNotInitialized)
	}

	probs, err := active.model.Classify(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	if len(probs) != len(active.model.Labels()) {
		return nil, fmt.Errorf("model %s returned %d probabilities for %d labels: %w",
			active.loader.Name, len(probs), len(active.model.Labels()), domain.ErrInvalidDistribution)
	}

	return renormalize(probs)
}

// Close releases every loaded model
func (g *Gateway) Close() error {
	return errors.Join(g.embedding.close(), g.classification.close())
}

func renormalize(probs []float64) ([]float64, error) {
	var sum float64
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, fmt.Errorf("probability %d is %f: %w", i, p, domain.ErrInvalidDistribution)
		}
		sum += p
	}
	if sum <= 0 {
		return nil, fmt.Errorf("probabilities sum to zero: %w", domain.ErrInvalidDistribution)
	}
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = p / sum
	}
	return out, nil
}

type loaded[T io.Closer] struct {
	model  T
	loader Loader[T]
	at     time.Time
}

type call struct {
	done chan struct{}
	err  error
}

// slot is the init-once holder of one capability
type slot[T io.Closer] struct {
	capability Capability
	loaders    []Loader[T]

	active atomic.Pointer[loaded[T]]

	mu       sync.Mutex
	inflight *call
	attempts int
	lastErr  error
}

func newSlot[T io.Closer](c Capability, loaders []Loader[T]) *slot[T] {
	return &slot[T]{capability: c, loaders: loaders}
}

func (s *slot[T]) initialize(ctx context.Context, device Device, logger *slog.Logger, observer InitObserver) error {
	if s.active.Load() != nil {
		return nil
	}

	s.mu.Lock()
	if s.active.Load() != nil {
		s.mu.Unlock()
		return nil
	}
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c := &call{done: make(chan struct{})}
	s.inflight = c
	s.mu.Unlock()

	result, err := s.load(ctx, device, logger, observer)

	s.mu.Lock()
	if err == nil {
		s.active.Store(result)
	}
	s.inflight = nil
	s.attempts++
	s.lastErr = err
	s.mu.Unlock()

	c.err = err
	close(c.done)
	return err
}

func (s *slot[T]) load(ctx context.Context, device Device, logger *slog.Logger, observer InitObserver) (*loaded[T], error) {
	initErr := &domain.ModelInitError{Capability: string(s.capability)}

	for _, l := range s.loaders {
		if err := ctx.Err(); err != nil {
			initErr.Attempts = append(initErr.Attempts, domain.SourceFailure{Source: l.ID(), Err: err})
			break
		}

		start := time.Now()
		m, err := l.Load(ctx, device)
		if observer != nil {
			observer.RecordModelInit(string(s.capability), string(l.Kind), err == nil)
		}
		if err != nil {
			logger.Warn("Model source failed",
				slog.String("capability", string(s.capability)),
				slog.String("source", l.ID()),
				slog.String("error", err.Error()))
			initErr.Attempts = append(initErr.Attempts, domain.SourceFailure{Source: l.ID(), Err: err})
			continue
		}

		logger.Info("Model initialized",
			slog.String("capability", string(s.capability)),
			slog.String("source", l.ID()),
			slog.String("version", l.Version),
			slog.String("device", string(device)),
			slog.Duration("took", time.Since(start)))

		return &loaded[T]{model: m, loader: l, at: time.Now()}, nil
	}

	return nil, initErr
}

func (s *slot[T]) status() CapabilityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := CapabilityStatus{
		Capability: s.capability,
		Configured: len(s.loaders) > 0,
		Attempts:   s.attempts,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if active := s.active.Load(); active != nil {
		st.Ready = true
		st.Source = string(active.loader.Kind)
		st.Model = active.loader.Name
		st.Version = active.loader.Version
		st.InitializedAt = active.at
	}
	return st
}

func (s *slot[T]) close() error {
	active := s.active.Swap(nil)
	if active == nil {
		return nil
	}
	return active.model.Close()
}
