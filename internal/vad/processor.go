package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Processor classifies fixed-duration frames as active speech using frame
// energy and zero-crossing rate. It is safe for concurrent use; only the
// statistics are shared between calls.
type Processor struct {
	energyThreshold float64 // RMS on the normalized waveform
	zcrMax          float64 // crossings per sample above which a frame is noise-like
	frameSize       int     // samples per frame
	sampleRate      int

	// Statistics
	totalFrames   uint64
	activeFrames  uint64
	totalCalls    uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// FrameResult represents the classification of one frame
type FrameResult struct {
	Index  int     `json:"index"`
	RMS    float64 `json:"rms"`
	ZCR    float64 `json:"zcr"`
	Active bool    `json:"active"`
}

// VoiceSegment represents a continuous run of active frames
type VoiceSegment struct {
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
	Duration time.Duration `json:"duration"`
	Frames   int           `json:"frames"`
}

// Result summarizes voice activity over a whole waveform
type Result struct {
	TotalFrames  int             `json:"total_frames"`
	ActiveFrames int             `json:"active_frames"`
	Ratio        float64         `json:"ratio"`
	Segments     []*VoiceSegment `json:"segments"`
}

// ProcessorStats represents processor statistics
type ProcessorStats struct {
	TotalCalls       uint64    `json:"total_calls"`
	TotalFrames      uint64    `json:"total_frames"`
	ActiveFrames     uint64    `json:"active_frames"`
	ActivePercentage float64   `json:"active_percentage"`
	LastProcessed    time.Time `json:"last_processed"`
	EnergyThreshold  float64   `json:"energy_threshold"`
	ZCRMax           float64   `json:"zcr_max"`
}

// NewProcessor creates a new voice activity processor
func NewProcessor(energyThreshold, zcrMax float64, frameDuration time.Duration, sampleRate int) (*Processor, error) {
	if energyThreshold <= 0 || energyThreshold >= 1 {
		return nil, fmt.Errorf("energy threshold must be in (0, 1), got %f", energyThreshold)
	}

	if zcrMax <= 0 || zcrMax > 1 {
		return nil, fmt.Errorf("zcr max must be in (0, 1], got %f", zcrMax)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	frameSize := int(frameDuration.Seconds() * float64(sampleRate))
	if frameSize < 2 {
		return nil, fmt.Errorf("frame duration %v is too short for %d Hz", frameDuration, sampleRate)
	}

	return &Processor{
		energyThreshold: energyThreshold,
		zcrMax:          zcrMax,
		frameSize:       frameSize,
		sampleRate:      sampleRate,
	}, nil
}

// ProcessFrame classifies a single frame of samples
func (p *Processor) ProcessFrame(index int, samples []float64) FrameResult {
	rms := RMS(samples)
	zcr := ZeroCrossingRate(samples)
	return FrameResult{
		Index:  index,
		RMS:    rms,
		ZCR:    zcr,
		Active: rms >= p.energyThreshold && zcr <= p.zcrMax,
	}
}

// Analyze splits samples into non-overlapping frames, classifies each one
// and groups consecutive active frames into segments. A trailing partial
// frame is ignored.
func (p *Processor) Analyze(samples []float64, sampleRate int) (*Result, error) {
	if sampleRate != p.sampleRate {
		return nil, fmt.Errorf("expected %d Hz audio, got %d Hz", p.sampleRate, sampleRate)
	}

	frames := len(samples) / p.frameSize
	if frames == 0 {
		return nil, fmt.Errorf("need at least %d samples for one frame, got %d", p.frameSize, len(samples))
	}

	frameDur := time.Duration(float64(p.frameSize) / float64(p.sampleRate) * float64(time.Second))
	result := &Result{TotalFrames: frames}
	var current *VoiceSegment

	for i := 0; i < frames; i++ {
		fr := p.ProcessFrame(i, samples[i*p.frameSize:(i+1)*p.frameSize])
		if fr.Active {
			result.ActiveFrames++
			if current == nil {
				current = &VoiceSegment{Start: time.Duration(i) * frameDur}
			}
			current.Frames++
			continue
		}
		if current != nil {
			current.End = time.Duration(i) * frameDur
			current.Duration = current.End - current.Start
			result.Segments = append(result.Segments, current)
			current = nil
		}
	}

	if current != nil {
		current.End = time.Duration(frames) * frameDur
		current.Duration = current.End - current.Start
		result.Segments = append(result.Segments, current)
	}

	result.Ratio = float64(result.ActiveFrames) / float64(frames)

	p.mu.Lock()
	p.totalCalls++
	p.totalFrames += uint64(frames)
	p.activeFrames += uint64(result.ActiveFrames)
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return result, nil
}

// RMS returns the root mean square amplitude
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate returns sign changes per sample. Zero samples take the
// sign of their predecessor so that digital silence has no crossings.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	prevPositive := samples[0] >= 0
	for _, s := range samples[1:] {
		if s == 0 {
			continue
		}
		positive := s > 0
		if positive != prevPositive {
			crossings++
		}
		prevPositive = positive
	}
	return float64(crossings) / float64(len(samples))
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	activePercentage := float64(0)
	if p.totalFrames > 0 {
		activePercentage = float64(p.activeFrames) / float64(p.totalFrames) * 100
	}

	return ProcessorStats{
		TotalCalls:       p.totalCalls,
		TotalFrames:      p.totalFrames,
		ActiveFrames:     p.activeFrames,
		ActivePercentage: activePercentage,
		LastProcessed:    p.lastProcessed,
		EnergyThreshold:  p.energyThreshold,
		ZCRMax:           p.zcrMax,
	}
}

// Reset clears the statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalCalls = 0
	p.totalFrames = 0
	p.activeFrames = 0
	p.lastProcessed = time.Time{}
}

// GetFrameSize returns the frame size in samples
func (p *Processor) GetFrameSize() int {
	return p.frameSize
}
