package model

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEmbedder struct {
	vec    []float32
	closed atomic.Bool
}

func (f *fakeEmbedder) Embed(context.Context, *audio.Waveform) ([]float32, error) {
	return append([]float32(nil), f.vec...), nil
}
func (f *fakeEmbedder) Dimension() int { return len(f.vec) }
func (f *fakeEmbedder) Close() error   { f.closed.Store(true); return nil }

type fakeClassifier struct {
	labels []string
	probs  []float64
}

func (f *fakeClassifier) Classify(context.Context, *audio.Waveform) ([]float64, error) {
	return append([]float64(nil), f.probs...), nil
}
func (f *fakeClassifier) Labels() []string { return f.labels }
func (f *fakeClassifier) Close() error     { return nil }

type recordingObserver struct {
	mu       sync.Mutex
	attempts []string
}

func (r *recordingObserver) RecordModelInit(capability, source string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "fail"
	if success {
		outcome = "ok"
	}
	r.attempts = append(r.attempts, capability+"/"+source+"/"+outcome)
}

func embedderLoader(kind SourceKind, name string, e Embedder, err error) Loader[Embedder] {
	return Loader[Embedder]{
		Kind: kind, Name: name, Version: "1",
		Load: func(context.Context, Device) (Embedder, error) { return e, err },
	}
}

func TestEmbedBeforeInitialize(t *testing.T) {
	g := NewGateway(GatewayConfig{
		Embedding: []Loader[Embedder]{embedderLoader(SourceBuiltin, "fake", &fakeEmbedder{vec: []float32{1, 0}}, nil)},
	}, quietLogger())

	_, err := g.Embed(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrModelNotInitialized)

	_, err = g.Classify(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrModelNotInitialized)

	assert.False(t, g.Ready(CapabilityEmbedding))
	assert.Equal(t, Device(""), g.Device())
}

func TestInitializeFallsBackInPriorityOrder(t *testing.T) {
	observer := &recordingObserver{}
	g := NewGateway(GatewayConfig{
		Device: "cpu",
		Embedding: []Loader[Embedder]{
			embedderLoader(SourceCache, "ecapa", nil, errors.New("not cached")),
			embedderLoader(SourceBuiltin, "fake", &fakeEmbedder{vec: []float32{3, 4}}, nil),
		},
		Observer: observer,
	}, quietLogger())

	require.NoError(t, g.Initialize(context.Background()))

	status := g.Status()
	assert.Equal(t, DeviceCPU, status.Device)
	assert.True(t, status.Embedding.Ready)
	assert.Equal(t, "builtin", status.Embedding.Source)
	assert.Equal(t, "fake", status.Embedding.Model)
	assert.False(t, status.Classification.Configured)
	assert.Equal(t, []string{"embedding/cache/fail", "embedding/builtin/ok"}, observer.attempts)

	emb, err := g.Embed(context.Background(), &audio.Waveform{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, emb.Norm(), 1e-6)
	assert.InDelta(t, 0.6, emb.Vector[0], 1e-6)
	assert.Equal(t, "fake", emb.Model)
	assert.Equal(t, "1", emb.ModelVersion)
}

func TestInitializeFailureIsRecoverable(t *testing.T) {
	var calls atomic.Int32
	g := NewGateway(GatewayConfig{
		Embedding: []Loader[Embedder]{{
			Kind: SourceRegistry, Name: "ecapa", Version: "2",
			Load: func(context.Context, Device) (Embedder, error) {
				if calls.Add(1) == 1 {
					return nil, errors.New("registry unreachable")
				}
				return &fakeEmbedder{vec: []float32{1}}, nil
			},
		}},
	}, quietLogger())

	err := g.InitializeCapability(context.Background(), CapabilityEmbedding)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelInit)

	var initErr *domain.ModelInitError
	require.ErrorAs(t, err, &initErr)
	require.Len(t, initErr.Attempts, 1)
	assert.Equal(t, "registry:ecapa", initErr.Attempts[0].Source)
	assert.False(t, g.Ready(CapabilityEmbedding))
	assert.Contains(t, g.Status().Embedding.LastError, "registry unreachable")

	require.NoError(t, g.InitializeCapability(context.Background(), CapabilityEmbedding))
	assert.True(t, g.Ready(CapabilityEmbedding))
	assert.Equal(t, 2, g.Status().Embedding.Attempts)
}

func TestInitializeConcurrentCallersShareOneAttempt(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	g := NewGateway(GatewayConfig{
		Embedding: []Loader[Embedder]{{
			Kind: SourceBuiltin, Name: "slow",
			Load: func(context.Context, Device) (Embedder, error) {
				loads.Add(1)
				<-release
				return &fakeEmbedder{vec: []float32{1, 1}}, nil
			},
		}},
	}, quietLogger())

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- g.InitializeCapability(context.Background(), CapabilityEmbedding)
		}()
	}

	// Give every caller time to block on the in-flight attempt.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())

	require.NoError(t, g.InitializeCapability(context.Background(), CapabilityEmbedding))
	assert.Equal(t, int32(1), loads.Load(), "initialized capability must not reload")
}

func TestDeviceResolvedOnce(t *testing.T) {
	var accelerator atomic.Bool
	accelerator.Store(true)
	g := NewGateway(GatewayConfig{
		Device: "auto",
		Probe:  func() bool { return accelerator.Load() },
		Embedding: []Loader[Embedder]{{
			Kind: SourceBuiltin, Name: "fake",
			Load: func(_ context.Context, d Device) (Embedder, error) {
				assert.Equal(t, DeviceCUDA, d)
				return &fakeEmbedder{vec: []float32{1}}, nil
			},
		}},
	}, quietLogger())

	require.NoError(t, g.Initialize(context.Background()))
	accelerator.Store(false)
	require.NoError(t, g.Initialize(context.Background()))
	assert.Equal(t, DeviceCUDA, g.Device())
}

func TestResolveDevice(t *testing.T) {
	yes := func() bool { return true }
	no := func() bool { return false }

	assert.Equal(t, DeviceCPU, ResolveDevice("cpu", yes))
	assert.Equal(t, DeviceCUDA, ResolveDevice("cuda", no))
	assert.Equal(t, DeviceCUDA, ResolveDevice("auto", yes))
	assert.Equal(t, DeviceCPU, ResolveDevice("auto", no))
	assert.Equal(t, DeviceCPU, ResolveDevice("auto", nil))
}

func TestClassifyRenormalizes(t *testing.T) {
	labels := []string{"a", "b", "c"}
	newGateway := func(probs []float64) *Gateway {
		g := NewGateway(GatewayConfig{
			Classification: []Loader[Classifier]{{
				Kind: SourceBuiltin, Name: "fake",
				Load: func(context.Context, Device) (Classifier, error) {
					return &fakeClassifier{labels: labels, probs: probs}, nil
				},
			}},
		}, quietLogger())
		require.NoError(t, g.Initialize(context.Background()))
		return g
	}

	probs, err := newGateway([]float64{2, 1, 1}).Classify(context.Background(), &audio.Waveform{})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.25}, probs, 1e-12)

	_, err = newGateway([]float64{0.5, -0.1, 0.6}).Classify(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	_, err = newGateway([]float64{0.5, 0.5}).Classify(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	_, err = newGateway([]float64{0, 0, math.NaN()}).Classify(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrInvalidDistribution)

	assert.Equal(t, labels, newGateway([]float64{1, 1, 1}).Labels())
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	g := NewGateway(GatewayConfig{
		Embedding: []Loader[Embedder]{embedderLoader(SourceBuiltin, "liar", &lyingEmbedder{}, nil)},
	}, quietLogger())
	require.NoError(t, g.Initialize(context.Background()))

	_, err := g.Embed(context.Background(), &audio.Waveform{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

type lyingEmbedder struct{ fakeEmbedder }

func (l *lyingEmbedder) Embed(context.Context, *audio.Waveform) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}
func (l *lyingEmbedder) Dimension() int { return 4 }

func TestCloseReleasesModels(t *testing.T) {
	e := &fakeEmbedder{vec: []float32{1}}
	g := NewGateway(GatewayConfig{
		Embedding: []Loader[Embedder]{embedderLoader(SourceBuiltin, "fake", e, nil)},
	}, quietLogger())
	require.NoError(t, g.Initialize(context.Background()))

	require.NoError(t, g.Close())
	assert.True(t, e.closed.Load())
	assert.False(t, g.Ready(CapabilityEmbedding))
}

func TestSoftmaxAndWindow(t *testing.T) {
	p := softmax([]float32{0, 0, 1})
	var sum float64
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, p[2], p[0])

	dst := make([]float32, 4)
	fitWindow(dst, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float32{2, 3, 4, 5}, dst)

	fitWindow(dst, []float64{7})
	assert.Equal(t, []float32{7, 0, 0, 0}, dst)
}
