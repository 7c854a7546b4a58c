package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// HannWindow returns a periodic Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// HammingWindow returns a symmetric Hamming window of length n.
func HammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// STFT slices a signal into windowed frames and transforms each one.
// Frames are zero-padded when the window is shorter than the FFT size.
// An STFT reuses FFT work buffers and is not safe for concurrent use.
type STFT struct {
	FFTSize int
	Hop     int
	window  []float64
	fft     *fourier.FFT
}

// NewSTFT builds a transform with a Hann window of fftSize samples.
func NewSTFT(fftSize, hop int) (*STFT, error) {
	return NewSTFTWithWindow(HannWindow(fftSize), fftSize, hop)
}

// NewSTFTWithWindow builds a transform with a caller supplied window.
func NewSTFTWithWindow(window []float64, fftSize, hop int) (*STFT, error) {
	if fftSize < 2 {
		return nil, fmt.Errorf("fft size must be at least 2, got %d", fftSize)
	}
	if hop < 1 {
		return nil, fmt.Errorf("hop must be positive, got %d", hop)
	}
	if len(window) == 0 || len(window) > fftSize {
		return nil, fmt.Errorf("window length %d must be in [1, %d]", len(window), fftSize)
	}
	return &STFT{
		FFTSize: fftSize,
		Hop:     hop,
		window:  window,
		fft:     fourier.NewFFT(fftSize),
	}, nil
}

// Bins returns the number of non-negative frequency bins.
func (s *STFT) Bins() int { return s.FFTSize/2 + 1 }

// FrameCount returns how many full windows fit in n samples.
func (s *STFT) FrameCount(n int) int {
	w := len(s.window)
	if n < w {
		return 0
	}
	return (n-w)/s.Hop + 1
}

// Forward returns the complex spectrum of every frame.
func (s *STFT) Forward(signal []float64) [][]complex128 {
	frames := s.FrameCount(len(signal))
	out := make([][]complex128, frames)
	buf := make([]float64, s.FFTSize)
	for f := 0; f < frames; f++ {
		start := f * s.Hop
		for i := range buf {
			buf[i] = 0
		}
		for i, w := range s.window {
			buf[i] = signal[start+i] * w
		}
		out[f] = s.fft.Coefficients(nil, buf)
	}
	return out
}

// Magnitudes returns |X| for every frame.
func (s *STFT) Magnitudes(signal []float64) [][]float64 {
	spectra := s.Forward(signal)
	out := make([][]float64, len(spectra))
	for f, spec := range spectra {
		mags := make([]float64, len(spec))
		for k, c := range spec {
			mags[k] = cmplx.Abs(c)
		}
		out[f] = mags
	}
	return out
}

// Inverse transforms one spectrum back to fftSize time-domain samples.
// gonum leaves the sequence unscaled, so the result is divided by the size.
func (s *STFT) Inverse(spectrum []complex128) []float64 {
	seq := s.fft.Sequence(nil, spectrum)
	scale := 1 / float64(s.FFTSize)
	for i := range seq {
		seq[i] *= scale
	}
	return seq
}

// BinFrequency returns the centre frequency of bin k in Hz.
func (s *STFT) BinFrequency(k, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(s.FFTSize)
}
