package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/domain"
)

func voiced(freq, gain float64, seed int64) *audio.Waveform {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, 16000)
	for i := range samples {
		x := 2 * math.Pi * freq * float64(i) / 16000
		samples[i] = gain * (0.5*math.Sin(x) + 0.2*math.Sin(3*x) + 0.01*rng.NormFloat64())
	}
	return &audio.Waveform{Samples: samples, SampleRate: 16000, Duration: 1}
}

func cosine(a, b []float32) float64 {
	na, err := domain.Normalize(a)
	if err != nil {
		return math.NaN()
	}
	nb, err := domain.Normalize(b)
	if err != nil {
		return math.NaN()
	}
	var dot float64
	for i := range na {
		dot += float64(na[i]) * float64(nb[i])
	}
	return dot
}

func TestLogMelEncoderShape(t *testing.T) {
	enc, err := NewLogMelEncoder(DefaultLogMelConfig())
	require.NoError(t, err)
	assert.Equal(t, 80, enc.Dimension())

	vec, err := enc.Embed(context.Background(), voiced(180, 1, 1))
	require.NoError(t, err)
	assert.Len(t, vec, 80)

	again, err := enc.Embed(context.Background(), voiced(180, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, vec, again)
}

func TestLogMelEncoderIgnoresGain(t *testing.T) {
	enc, err := NewLogMelEncoder(DefaultLogMelConfig())
	require.NoError(t, err)

	loud, err := enc.Embed(context.Background(), voiced(180, 1, 1))
	require.NoError(t, err)
	quiet, err := enc.Embed(context.Background(), voiced(180, 0.5, 1))
	require.NoError(t, err)

	assert.InDeltaSlice(t, loud, quiet, 1e-3)
	assert.InDelta(t, 1.0, cosine(loud, quiet), 1e-6)
}

func TestLogMelEncoderSeparatesPitch(t *testing.T) {
	enc, err := NewLogMelEncoder(DefaultLogMelConfig())
	require.NoError(t, err)

	a, err := enc.Embed(context.Background(), voiced(120, 1, 1))
	require.NoError(t, err)
	b, err := enc.Embed(context.Background(), voiced(120, 1, 2))
	require.NoError(t, err)
	c, err := enc.Embed(context.Background(), voiced(900, 1, 1))
	require.NoError(t, err)

	assert.Greater(t, cosine(a, b), cosine(a, c))
}

func TestLogMelEncoderErrors(t *testing.T) {
	enc, err := NewLogMelEncoder(DefaultLogMelConfig())
	require.NoError(t, err)

	_, err = enc.Embed(context.Background(), &audio.Waveform{Samples: make([]float64, 1000), SampleRate: 8000})
	assert.Error(t, err)

	_, err = enc.Embed(context.Background(), &audio.Waveform{Samples: make([]float64, 100), SampleRate: 16000})
	assert.Error(t, err)

	_, err = enc.Embed(context.Background(), nil)
	assert.Error(t, err)

	cfg := DefaultLogMelConfig()
	cfg.FrameLength = 1024
	_, err = NewLogMelEncoder(cfg)
	assert.Error(t, err)
}
