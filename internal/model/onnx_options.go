package model

import (
	"fmt"
	"math"
)

// ONNXOptions describes a single-input, single-output ONNX model that
// consumes a fixed window of mono float32 samples.
type ONNXOptions struct {
	Path          string
	LibraryPath   string // onnxruntime shared library, empty for the loader default
	InputName     string
	OutputName    string
	WindowSamples int // waveforms are centre-cropped or zero-padded to this length
	OutputSize    int
	Device        Device
}

// Validate checks the options before any native call is made
func (o ONNXOptions) Validate() error {
	if o.Path == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if o.InputName == "" || o.OutputName == "" {
		return fmt.Errorf("input and output names are required")
	}
	if o.WindowSamples < 1 {
		return fmt.Errorf("window must be at least one sample, got %d", o.WindowSamples)
	}
	if o.OutputSize < 1 {
		return fmt.Errorf("output size must be positive, got %d", o.OutputSize)
	}
	return nil
}

// fitWindow centre-crops or zero-pads samples into dst
func fitWindow(dst []float32, samples []float64) {
	clear(dst)
	if len(samples) >= len(dst) {
		offset := (len(samples) - len(dst)) / 2
		for i := range dst {
			dst[i] = float32(samples[offset+i])
		}
		return
	}
	for i, s := range samples {
		dst[i] = float32(s)
	}
}

// softmax converts logits into probabilities
func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
