package quality

import (
	"fmt"
	"math"
)

// NormalizerKind selects the shape of a normalizer
type NormalizerKind string

const (
	// KindRamp rises linearly from Low (0) to High (1)
	KindRamp NormalizerKind = "ramp"
	// KindPeak is 1 at Center and falls linearly to 0 at Center±Width
	KindPeak NormalizerKind = "peak"
)

// Normalizer maps a raw sub-metric onto [0,1] with clamping
type Normalizer struct {
	Kind   NormalizerKind `json:"kind"`
	Low    float64        `json:"low,omitempty"`
	High   float64        `json:"high,omitempty"`
	Center float64        `json:"center,omitempty"`
	Width  float64        `json:"width,omitempty"`
}

// Ramp returns a rising normalizer over [lo, hi]
func Ramp(lo, hi float64) Normalizer {
	return Normalizer{Kind: KindRamp, Low: lo, High: hi}
}

// Peak returns a triangular normalizer centred on center
func Peak(center, width float64) Normalizer {
	return Normalizer{Kind: KindPeak, Center: center, Width: width}
}

// Validate checks the normalizer parameters
func (n Normalizer) Validate() error {
	switch n.Kind {
	case KindRamp:
		if n.High <= n.Low {
			return fmt.Errorf("ramp high (%f) must be greater than low (%f)", n.High, n.Low)
		}
	case KindPeak:
		if n.Width <= 0 {
			return fmt.Errorf("peak width must be positive, got %f", n.Width)
		}
	default:
		return fmt.Errorf("unknown normalizer kind '%s'", n.Kind)
	}
	return nil
}

// Apply maps x onto [0,1]
func (n Normalizer) Apply(x float64) float64 {
	var v float64
	switch n.Kind {
	case KindRamp:
		v = (x - n.Low) / (n.High - n.Low)
	case KindPeak:
		v = 1 - math.Abs(x-n.Center)/n.Width
	default:
		return neutral
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalizers holds one normalizer per sub-metric
type Normalizers struct {
	SNR       Normalizer `json:"snr_db"`
	ZCR       Normalizer `json:"zero_crossing_rate"`
	Centroid  Normalizer `json:"spectral_centroid"`
	Bandwidth Normalizer `json:"spectral_bandwidth"`
	VAD       Normalizer `json:"voice_activity_ratio"`
}

// DefaultNormalizers returns the calibrated ranges for 16 kHz speech
func DefaultNormalizers() Normalizers {
	return Normalizers{
		SNR:       Ramp(0, 20),
		ZCR:       Peak(0.1, 0.2),
		Centroid:  Peak(1500, 2000),
		Bandwidth: Peak(1500, 1500),
		VAD:       Ramp(0, 1),
	}
}

// Validate checks every normalizer
func (n Normalizers) Validate() error {
	for _, m := range Metrics {
		if err := n.get(m).Validate(); err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
	}
	return nil
}

func (n Normalizers) get(m Metric) Normalizer {
	switch m {
	case MetricSNR:
		return n.SNR
	case MetricZCR:
		return n.ZCR
	case MetricCentroid:
		return n.Centroid
	case MetricBandwidth:
		return n.Bandwidth
	default:
		return n.VAD
	}
}
