package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return out
}

func TestSTFTPeakBin(t *testing.T) {
	const rate = 16000
	s, err := NewSTFT(512, 256)
	require.NoError(t, err)

	// 1000 Hz lands exactly on bin 32 for a 512 point FFT at 16 kHz.
	mags := s.Magnitudes(sine(1000, rate, rate))
	require.NotEmpty(t, mags)

	for _, frame := range mags {
		peak := 0
		for k := range frame {
			if frame[k] > frame[peak] {
				peak = k
			}
		}
		assert.Equal(t, 32, peak)
	}
	assert.InDelta(t, 1000.0, s.BinFrequency(32, rate), 1e-9)
}

func TestSTFTFrameCount(t *testing.T) {
	s, err := NewSTFT(512, 256)
	require.NoError(t, err)

	assert.Equal(t, 0, s.FrameCount(100))
	assert.Equal(t, 1, s.FrameCount(512))
	assert.Equal(t, 3, s.FrameCount(1024))
	assert.Equal(t, 257, s.Bins())
}

func TestSTFTInverseReconstructsWindowedFrame(t *testing.T) {
	s, err := NewSTFT(256, 128)
	require.NoError(t, err)

	signal := sine(440, 8000, 256)
	spectra := s.Forward(signal)
	require.Len(t, spectra, 1)

	frame := s.Inverse(spectra[0])
	window := HannWindow(256)
	for i := range frame {
		assert.InDelta(t, signal[i]*window[i], frame[i], 1e-9)
	}
}

func TestNewSTFTValidation(t *testing.T) {
	_, err := NewSTFT(1, 1)
	assert.Error(t, err)

	_, err = NewSTFT(512, 0)
	assert.Error(t, err)

	_, err = NewSTFTWithWindow(HammingWindow(600), 512, 160)
	assert.Error(t, err)
}

func TestMelFilterBankShape(t *testing.T) {
	bank := MelFilterBank(40, 512, 16000, 20, 7600)
	require.Len(t, bank, 40)
	for m, filter := range bank {
		assert.Len(t, filter, 257)
		var peak float64
		for _, w := range filter {
			assert.GreaterOrEqual(t, w, 0.0)
			peak = math.Max(peak, w)
		}
		assert.Greater(t, peak, 0.0, "filter %d is empty", m)
	}

	energies := LogMel(bank, make([]float64, 257))
	for _, e := range energies {
		assert.InDelta(t, math.Log(1e-10), e, 1e-9)
	}
}
