package audio

import (
	"fmt"
	"math"
	"math/cmplx"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/skypro1111/voxgate/internal/dsp"
)

// Downmix averages interleaved channels into a mono signal
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return append([]float64(nil), samples...)
	}

	frames := len(samples) / channels
	mono := make([]float64, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float64(channels)
	}
	return mono
}

// Resample converts a mono signal between sample rates
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return samples, nil
	}

	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", fromRate, toRate)
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d Hz -> %d Hz: %w", fromRate, toRate, err)
	}

	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("failed to flush resampler %d Hz -> %d Hz: %w", fromRate, toRate, err)
	}
	out = append(out, tail...)

	return alignResampled(out, r.GetLatency(), ResampledLength(len(samples), fromRate, toRate)), nil
}

// ResampledLength is the sample count a signal of n samples has after
// conversion from fromRate to toRate.
func ResampledLength(n, fromRate, toRate int) int {
	if fromRate <= 0 || toRate <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(toRate) / float64(fromRate)))
}

// alignResampled drops up to latency leading filter-delay samples, then
// trims or zero-pads the result to exactly want samples.
func alignResampled(out []float64, latency, want int) []float64 {
	if extra := len(out) - want; extra > 0 && latency > 0 {
		out = out[min(latency, extra):]
	}

	if len(out) >= want {
		return out[:want]
	}

	padded := make([]float64, want)
	copy(padded, out)
	return padded
}

// PreEmphasis applies y[n] = x[n] - coef*x[n-1]
func PreEmphasis(samples []float64, coef float64) []float64 {
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - coef*samples[i-1]
	}
	return out
}

// PeakNormalize scales the signal so its absolute peak equals level.
// Digital silence is returned unchanged.
func PeakNormalize(samples []float64, level float64) []float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}

	out := make([]float64, len(samples))
	if peak == 0 {
		return out
	}

	scale := level / peak
	for i, s := range samples {
		out[i] = s * scale
	}
	return out
}

// SpectralSubtraction removes a stationary noise estimate taken from the
// leading frames of the signal.
type SpectralSubtraction struct {
	FrameSize   int     // FFT size, hop is half of it
	NoiseFrames int     // leading frames averaged into the noise profile
	Alpha       float64 // over-subtraction factor
	Floor       float64 // minimum fraction of the original magnitude kept
}

// Apply returns the denoised signal. Signals shorter than one frame are
// returned unchanged.
func (s SpectralSubtraction) Apply(samples []float64) ([]float64, error) {
	if len(samples) < s.FrameSize {
		return append([]float64(nil), samples...), nil
	}

	hop := s.FrameSize / 2
	stft, err := dsp.NewSTFT(s.FrameSize, hop)
	if err != nil {
		return nil, err
	}

	spectra := stft.Forward(samples)
	noiseFrames := s.NoiseFrames
	if noiseFrames > len(spectra) {
		noiseFrames = len(spectra)
	}

	noise := make([]float64, stft.Bins())
	for f := 0; f < noiseFrames; f++ {
		for k, c := range spectra[f] {
			noise[k] += cmplx.Abs(c)
		}
	}
	for k := range noise {
		noise[k] /= float64(noiseFrames)
	}

	window := dsp.HannWindow(s.FrameSize)
	acc := make([]float64, len(samples))
	wsum := make([]float64, len(samples))

	for f, spec := range spectra {
		for k, c := range spec {
			mag := cmplx.Abs(c)
			if mag == 0 {
				continue
			}
			clean := mag - s.Alpha*noise[k]
			if floor := s.Floor * mag; clean < floor {
				clean = floor
			}
			spec[k] = c * complex(clean/mag, 0)
		}

		frame := stft.Inverse(spec)
		start := f * hop
		for i, v := range frame {
			acc[start+i] += v
			wsum[start+i] += window[i]
		}
	}

	out := make([]float64, len(samples))
	for i := range out {
		if wsum[i] > 1e-3 {
			out[i] = acc[i] / wsum[i]
		} else {
			out[i] = samples[i]
		}
	}
	return out, nil
}
