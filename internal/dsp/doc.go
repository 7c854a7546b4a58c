// Package dsp provides the short-time Fourier transform, analysis windows and
// mel filterbanks shared by waveform enhancement, quality metrics and the
// builtin embedding encoder. FFTs are computed with gonum's dsp/fourier.
package dsp
