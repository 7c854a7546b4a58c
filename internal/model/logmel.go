package model

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/dsp"
)

// LogMelName is the builtin embedding source name
const LogMelName = "logmel-stats"

// LogMelConfig configures the builtin statistics encoder
type LogMelConfig struct {
	SampleRate  int
	NumMels     int
	FrameLength int // samples, 25 ms at 16 kHz
	FrameShift  int // samples, 10 ms at 16 kHz
	FFTSize     int
}

// DefaultLogMelConfig returns the encoder settings for 16 kHz audio
func DefaultLogMelConfig() LogMelConfig {
	return LogMelConfig{
		SampleRate:  16000,
		NumMels:     40,
		FrameLength: 400,
		FrameShift:  160,
		FFTSize:     512,
	}
}

// LogMelEncoder is a pure-Go embedder that summarizes a waveform by the
// per-band mean and standard deviation of its log-mel energies. The mean
// vector has its across-band average removed so overall loudness does not
// dominate the cosine similarity.
type LogMelEncoder struct {
	config LogMelConfig
	bank   [][]float64
	window []float64

	stftPool sync.Pool
}

// NewLogMelEncoder creates the builtin encoder
func NewLogMelEncoder(config LogMelConfig) (*LogMelEncoder, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.NumMels < 2 {
		return nil, fmt.Errorf("need at least 2 mel bands, got %d", config.NumMels)
	}
	if config.FrameLength < 2 || config.FrameLength > config.FFTSize {
		return nil, fmt.Errorf("frame length %d must be in [2, %d]", config.FrameLength, config.FFTSize)
	}
	if config.FrameShift < 1 {
		return nil, fmt.Errorf("frame shift must be positive, got %d", config.FrameShift)
	}

	e := &LogMelEncoder{
		config: config,
		bank:   dsp.MelFilterBank(config.NumMels, config.FFTSize, config.SampleRate, 20, 0),
		window: dsp.HammingWindow(config.FrameLength),
	}
	e.stftPool.New = func() any {
		s, _ := dsp.NewSTFTWithWindow(e.window, config.FFTSize, config.FrameShift)
		return s
	}
	return e, nil
}

// Dimension returns twice the number of mel bands
func (e *LogMelEncoder) Dimension() int { return 2 * e.config.NumMels }

// Embed computes the statistics vector. The result is not unit length.
func (e *LogMelEncoder) Embed(ctx context.Context, w *audio.Waveform) ([]float32, error) {
	if w == nil {
		return nil, fmt.Errorf("waveform cannot be nil")
	}
	if w.SampleRate != e.config.SampleRate {
		return nil, fmt.Errorf("expected %d Hz audio, got %d Hz", e.config.SampleRate, w.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stft := e.stftPool.Get().(*dsp.STFT)
	spectra := stft.Forward(w.Samples)
	e.stftPool.Put(stft)

	if len(spectra) == 0 {
		return nil, fmt.Errorf("need at least %d samples, got %d", e.config.FrameLength, len(w.Samples))
	}

	mels := e.config.NumMels
	sum := make([]float64, mels)
	sumSq := make([]float64, mels)
	power := make([]float64, e.config.FFTSize/2+1)
	scale := 1 / float64(e.config.FFTSize)

	for _, spec := range spectra {
		for k, c := range spec {
			m := cmplx.Abs(c)
			power[k] = m * m * scale
		}
		for b, v := range dsp.LogMel(e.bank, power) {
			sum[b] += v
			sumSq[b] += v * v
		}
	}

	n := float64(len(spectra))
	mean := make([]float64, mels)
	var grand float64
	for b := range mean {
		mean[b] = sum[b] / n
		grand += mean[b]
	}
	grand /= float64(mels)

	out := make([]float32, 2*mels)
	for b := 0; b < mels; b++ {
		variance := sumSq[b]/n - mean[b]*mean[b]
		if variance < 0 {
			variance = 0
		}
		out[b] = float32(mean[b] - grand)
		out[mels+b] = float32(math.Sqrt(variance))
	}
	return out, nil
}

// Close is a no-op
func (e *LogMelEncoder) Close() error { return nil }
