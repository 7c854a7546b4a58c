package quality

import (
	"github.com/skypro1111/voxgate/internal/config"
)

// FromConfig builds assessor parameters from the quality section. FFT and
// noise-floor frame sizes keep their defaults.
func FromConfig(cfg config.QualityConfig) Config {
	c := DefaultConfig()
	c.SpeakerWeights = weightsFrom(cfg.SpeakerWeights)
	c.AffectWeights = weightsFrom(cfg.AffectWeights)
	c.Normalizers = Normalizers{
		SNR:       normalizerFrom(cfg.Normalization.SNR),
		ZCR:       normalizerFrom(cfg.Normalization.ZCR),
		Centroid:  normalizerFrom(cfg.Normalization.Centroid),
		Bandwidth: normalizerFrom(cfg.Normalization.Bandwidth),
		VAD:       normalizerFrom(cfg.Normalization.VAD),
	}
	return c
}

func weightsFrom(w config.WeightVector) Weights {
	return Weights{SNR: w.SNR, ZCR: w.ZCR, Centroid: w.Centroid, Bandwidth: w.Bandwidth, VAD: w.VAD}
}

func normalizerFrom(n config.NormalizerConfig) Normalizer {
	return Normalizer{
		Kind:   NormalizerKind(n.Kind),
		Low:    n.Low,
		High:   n.High,
		Center: n.Center,
		Width:  n.Width,
	}
}
