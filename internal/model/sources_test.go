package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voxgate/internal/config"
	"github.com/skypro1111/voxgate/internal/domain"
)

type stubFetcher struct {
	calls []string
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, name, version, file string) (string, error) {
	s.calls = append(s.calls, name+"@"+version+"/"+file)
	if s.err != nil {
		return "", s.err
	}
	return "/nonexistent/" + file, nil
}

func TestDefaultSourcesFallBackToBuiltin(t *testing.T) {
	cfg := config.Default().Model
	cfg.CacheDir = t.TempDir()

	embedders, err := EmbeddingLoaders(cfg, 16000, nil)
	require.NoError(t, err)
	require.Len(t, embedders, 2)
	assert.Equal(t, SourceCache, embedders[0].Kind)
	assert.Equal(t, SourceBuiltin, embedders[1].Kind)

	classifiers, err := ClassificationLoaders(cfg, 16000, nil)
	require.NoError(t, err)
	require.Len(t, classifiers, 1)

	g := NewGateway(GatewayConfig{
		Device:         "cpu",
		Embedding:      embedders,
		Classification: classifiers,
	}, quietLogger())

	err = g.Initialize(context.Background())
	require.Error(t, err, "classifier is not in the empty cache")
	assert.ErrorIs(t, err, domain.ErrModelInit)

	status := g.Status()
	assert.True(t, status.Embedding.Ready)
	assert.Equal(t, LogMelName, status.Embedding.Model)
	assert.False(t, status.Classification.Ready)
	assert.Contains(t, status.Classification.LastError, "not in cache")

	emb, err := g.Embed(context.Background(), voiced(200, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 80, emb.Dimension())
	assert.InDelta(t, 1.0, emb.Norm(), 1e-6)
}

func TestRegistrySourceUsesFetcher(t *testing.T) {
	cfg := config.Default().Model
	cfg.Embedding.Sources = []config.SourceConfig{
		{Kind: "registry", Name: "ecapa", Version: "3", Path: "ecapa.onnx",
			InputName: "waveform", OutputName: "embedding", WindowSeconds: 3, Dimension: 192},
	}

	fetcher := &stubFetcher{}
	loaders, err := EmbeddingLoaders(cfg, 16000, fetcher)
	require.NoError(t, err)

	_, err = loaders[0].Load(context.Background(), DeviceCPU)
	assert.Error(t, err)
	assert.Equal(t, []string{"ecapa@3/ecapa.onnx"}, fetcher.calls)

	fetcher.err = errors.New("registry down")
	_, err = loaders[0].Load(context.Background(), DeviceCPU)
	assert.ErrorContains(t, err, "registry down")

	loaders, err = EmbeddingLoaders(cfg, 16000, nil)
	require.NoError(t, err)
	_, err = loaders[0].Load(context.Background(), DeviceCPU)
	assert.ErrorContains(t, err, "registry is not configured")
}

func TestSourceConfigErrors(t *testing.T) {
	cfg := config.Default().Model

	cfg.Embedding.Sources = []config.SourceConfig{{Kind: "builtin", Name: "wav2vec"}}
	_, err := EmbeddingLoaders(cfg, 16000, nil)
	assert.Error(t, err)

	cfg.Classification.Sources = []config.SourceConfig{{Kind: "builtin", Name: "prosody"}}
	_, err = ClassificationLoaders(cfg, 16000, nil)
	assert.Error(t, err)
}

func TestONNXOptionsValidate(t *testing.T) {
	opts := ONNXOptions{Path: "m.onnx", InputName: "in", OutputName: "out", WindowSamples: 16000, OutputSize: 7}
	assert.NoError(t, opts.Validate())

	opts.OutputSize = 0
	assert.Error(t, opts.Validate())
}
