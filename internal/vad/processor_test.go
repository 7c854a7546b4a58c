package vad

import (
	"math"
	"testing"
	"time"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := NewProcessor(0.02, 0.5, 30*time.Millisecond, 16000)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}
	return p
}

func TestNewProcessor(t *testing.T) {
	p := newTestProcessor(t)

	if p.GetFrameSize() != 480 {
		t.Errorf("Expected frame size 480, got %d", p.GetFrameSize())
	}

	stats := p.GetStats()
	if stats.TotalFrames != 0 || stats.TotalCalls != 0 {
		t.Errorf("Expected empty statistics, got %+v", stats)
	}
}

func TestNewProcessorValidation(t *testing.T) {
	tests := []struct {
		name       string
		energy     float64
		zcrMax     float64
		frame      time.Duration
		sampleRate int
		expectErr  bool
	}{
		{"valid parameters", 0.02, 0.5, 30 * time.Millisecond, 16000, false},
		{"energy threshold zero", 0, 0.5, 30 * time.Millisecond, 16000, true},
		{"energy threshold too high", 1.0, 0.5, 30 * time.Millisecond, 16000, true},
		{"zcr max too high", 0.02, 1.5, 30 * time.Millisecond, 16000, true},
		{"zero sample rate", 0.02, 0.5, 30 * time.Millisecond, 0, true},
		{"frame too short", 0.02, 0.5, 50 * time.Microsecond, 16000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.energy, tt.zcrMax, tt.frame, tt.sampleRate)
			if tt.expectErr && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestAnalyzeFindsSpeechSegment(t *testing.T) {
	p := newTestProcessor(t)

	// 1s silence, 1s tone, 1s silence
	samples := make([]float64, 48000)
	for i := 16000; i < 32000; i++ {
		samples[i] = 0.5 * math.Sin(2*math.Pi*200*float64(i)/16000)
	}

	result, err := p.Analyze(samples, 16000)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.TotalFrames != 100 {
		t.Errorf("Expected 100 frames, got %d", result.TotalFrames)
	}

	if result.ActiveFrames != 34 {
		t.Errorf("Expected 34 active frames, got %d", result.ActiveFrames)
	}

	if math.Abs(result.Ratio-0.34) > 1e-9 {
		t.Errorf("Expected ratio 0.34, got %f", result.Ratio)
	}

	if len(result.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(result.Segments))
	}

	seg := result.Segments[0]
	if seg.Start != 990*time.Millisecond || seg.End != 2010*time.Millisecond {
		t.Errorf("Expected segment 990ms-2010ms, got %v-%v", seg.Start, seg.End)
	}

	if seg.Frames != 34 {
		t.Errorf("Expected 34 frames in segment, got %d", seg.Frames)
	}
}

func TestAnalyzeRejectsNoiseLikeFrames(t *testing.T) {
	p := newTestProcessor(t)

	// Loud but alternating every sample: a zero-crossing rate near 1.
	samples := make([]float64, 4800)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}

	result, err := p.Analyze(samples, 16000)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if result.ActiveFrames != 0 {
		t.Errorf("Expected no active frames, got %d", result.ActiveFrames)
	}

	if len(result.Segments) != 0 {
		t.Errorf("Expected no segments, got %d", len(result.Segments))
	}
}

func TestAnalyzeSegmentRunsToEnd(t *testing.T) {
	p := newTestProcessor(t)

	samples := make([]float64, 9600)
	for i := 4800; i < len(samples); i++ {
		samples[i] = 0.3 * math.Sin(2*math.Pi*150*float64(i)/16000)
	}

	result, err := p.Analyze(samples, 16000)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(result.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(result.Segments))
	}

	if result.Segments[0].End != 600*time.Millisecond {
		t.Errorf("Expected segment to end at 600ms, got %v", result.Segments[0].End)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	p := newTestProcessor(t)

	if _, err := p.Analyze(make([]float64, 16000), 8000); err == nil {
		t.Error("Expected error for mismatched sample rate")
	}

	if _, err := p.Analyze(make([]float64, 100), 16000); err == nil {
		t.Error("Expected error for input shorter than a frame")
	}
}

func TestStatsAndReset(t *testing.T) {
	p := newTestProcessor(t)

	samples := make([]float64, 960)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*200*float64(i)/16000)
	}

	for i := 0; i < 3; i++ {
		if _, err := p.Analyze(samples, 16000); err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
	}

	stats := p.GetStats()
	if stats.TotalCalls != 3 || stats.TotalFrames != 6 || stats.ActiveFrames != 6 {
		t.Errorf("Unexpected statistics %+v", stats)
	}

	if stats.ActivePercentage != 100 {
		t.Errorf("Expected 100%% active, got %f", stats.ActivePercentage)
	}

	p.Reset()
	if p.GetStats().TotalFrames != 0 {
		t.Error("Expected statistics to be cleared")
	}
}

func TestZeroCrossingRate(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{"alternating", []float64{1, -1, 1, -1}, 0.75},
		{"silence", []float64{0, 0, 0, 0}, 0},
		{"zeros keep sign", []float64{1, 0, 1, 0}, 0},
		{"single sample", []float64{1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZeroCrossingRate(tt.samples); got != tt.expected {
				t.Errorf("Expected %f, got %f", tt.expected, got)
			}
		})
	}
}
