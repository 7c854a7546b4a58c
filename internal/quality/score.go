package quality

import (
	"fmt"
	"math"

	"github.com/skypro1111/voxgate/internal/domain"
)

// Profile selects the weight vector used for the composite
type Profile string

const (
	ProfileSpeaker Profile = "speaker"
	ProfileAffect  Profile = "affect"
)

// Metric names a quality sub-metric
type Metric string

const (
	MetricSNR       Metric = "snr_db"
	MetricZCR       Metric = "zero_crossing_rate"
	MetricCentroid  Metric = "spectral_centroid"
	MetricBandwidth Metric = "spectral_bandwidth"
	MetricVAD       Metric = "voice_activity_ratio"
)

// Metrics lists the sub-metrics in report order
var Metrics = []Metric{MetricSNR, MetricZCR, MetricCentroid, MetricBandwidth, MetricVAD}

// neutral is the normalized value of a sub-metric that could not be computed
const neutral = 0.5

// SubMetrics holds one value per sub-metric
type SubMetrics struct {
	SNR       float64 `json:"snr_db"`
	ZCR       float64 `json:"zero_crossing_rate"`
	Centroid  float64 `json:"spectral_centroid"`
	Bandwidth float64 `json:"spectral_bandwidth"`
	VAD       float64 `json:"voice_activity_ratio"`
}

// Get returns the value of a single sub-metric
func (s SubMetrics) Get(m Metric) float64 {
	switch m {
	case MetricSNR:
		return s.SNR
	case MetricZCR:
		return s.ZCR
	case MetricCentroid:
		return s.Centroid
	case MetricBandwidth:
		return s.Bandwidth
	default:
		return s.VAD
	}
}

func (s *SubMetrics) set(m Metric, v float64) {
	switch m {
	case MetricSNR:
		s.SNR = v
	case MetricZCR:
		s.ZCR = v
	case MetricCentroid:
		s.Centroid = v
	case MetricBandwidth:
		s.Bandwidth = v
	default:
		s.VAD = v
	}
}

// Weights is a per-profile weight vector. Weights are non-negative and sum to 1.
type Weights SubMetrics

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.SNR + w.ZCR + w.Centroid + w.Bandwidth + w.VAD
}

// Validate checks sign and sum
func (w Weights) Validate() error {
	for _, m := range Metrics {
		if v := SubMetrics(w).Get(m); v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight for %s must be non-negative, got %f", m, v)
		}
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %f", w.Sum())
	}
	return nil
}

// Score is the outcome of a quality assessment
type Score struct {
	Composite  float64    `json:"composite"`
	Profile    Profile    `json:"profile"`
	Raw        SubMetrics `json:"raw"`
	Normalized SubMetrics `json:"normalized"`
	Degraded   []Metric   `json:"degraded,omitempty"`
}

// IsDegraded reports whether m fell back to the neutral value
func (s *Score) IsDegraded(m Metric) bool {
	for _, d := range s.Degraded {
		if d == m {
			return true
		}
	}
	return false
}

// Enforce returns a QualityTooLowError when the composite is below minimum
func Enforce(score *Score, minimum float64) error {
	if score == nil {
		return &domain.QualityTooLowError{Score: 0, Threshold: minimum}
	}
	if score.Composite < minimum {
		return &domain.QualityTooLowError{Score: score.Composite, Threshold: minimum}
	}
	return nil
}

// composite computes the weighted sum of the normalized sub-metrics
func composite(n SubMetrics, w Weights) float64 {
	var sum float64
	for _, m := range Metrics {
		sum += n.Get(m) * SubMetrics(w).Get(m)
	}
	return clamp01(sum)
}
