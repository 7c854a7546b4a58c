// Package audio handles decoding, resampling and enhancement of uploaded audio.
// It walks RIFF/WAVE chunks (PCM and IEEE float), decodes MPEG audio, down-mixes
// to mono, resamples to the pipeline rate and applies spectral-subtraction
// denoising or pre-emphasis before peak normalization.
package audio
