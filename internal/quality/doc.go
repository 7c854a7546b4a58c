// Package quality scores canonical waveforms before they reach a model.
//
// Five sub-metrics are measured (SNR, zero-crossing rate, spectral centroid,
// spectral bandwidth and voice-activity ratio), each mapped onto [0,1] by a
// clamped linear normalizer and combined with the weight vector of the
// requested profile. A sub-metric that cannot be computed is reported as
// degraded and contributes the neutral value 0.5.
package quality
