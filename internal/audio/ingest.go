package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skypro1111/voxgate/internal/domain"
)

// Waveform is canonical mono audio at the pipeline sample rate
type Waveform struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Duration   float64   `json:"duration_seconds"`
}

// Float32 returns the samples converted for model input
func (w *Waveform) Float32() []float32 {
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = float32(s)
	}
	return out
}

// Peak returns the largest absolute sample value
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, s := range w.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	return peak
}

// Enhancement selects the clean-up applied before normalization
type Enhancement int

const (
	EnhanceNone Enhancement = iota
	EnhanceDenoise
	EnhancePreEmphasis
)

func (e Enhancement) String() string {
	switch e {
	case EnhanceDenoise:
		return "denoise"
	case EnhancePreEmphasis:
		return "pre_emphasis"
	default:
		return "none"
	}
}

// IngestConfig contains the decoding and enhancement parameters
type IngestConfig struct {
	TargetSampleRate int
	MinDuration      float64 // seconds
	MaxDuration      float64 // seconds
	MaxUploadBytes   int
	FrameSize        int
	DenoiseFrames    int
	DenoiseAlpha     float64
	DenoiseFloor     float64
	PreEmphasis      float64
	PeakLevel        float64
}

// DefaultIngestConfig returns 16 kHz ingestion for 3-30 second clips
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		TargetSampleRate: 16000,
		MinDuration:      3.0,
		MaxDuration:      30.0,
		MaxUploadBytes:   10 * 1024 * 1024,
		FrameSize:        512,
		DenoiseFrames:    10,
		DenoiseAlpha:     2.0,
		DenoiseFloor:     0.1,
		PreEmphasis:      0.97,
		PeakLevel:        0.95,
	}
}

// Ingestor turns untrusted audio payloads into canonical waveforms
type Ingestor struct {
	cfg    IngestConfig
	logger *slog.Logger
}

// NewIngestor creates an ingestor after validating its configuration
func NewIngestor(cfg IngestConfig, logger *slog.Logger) (*Ingestor, error) {
	if cfg.TargetSampleRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", cfg.TargetSampleRate)
	}

	if cfg.MinDuration <= 0 || cfg.MaxDuration <= cfg.MinDuration {
		return nil, fmt.Errorf("invalid duration bounds [%f, %f]", cfg.MinDuration, cfg.MaxDuration)
	}

	if cfg.PeakLevel <= 0 || cfg.PeakLevel > 0.95 {
		return nil, fmt.Errorf("peak level must be in (0, 0.95], got %f", cfg.PeakLevel)
	}

	if cfg.FrameSize < 2 {
		return nil, fmt.Errorf("frame size must be at least 2, got %d", cfg.FrameSize)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Ingestor{cfg: cfg, logger: logger}, nil
}

// Config returns the active configuration
func (in *Ingestor) Config() IngestConfig { return in.cfg }

// Ingest decodes, validates, resamples, down-mixes, enhances and
// peak-normalizes an audio payload. It keeps no state between calls.
func (in *Ingestor) Ingest(ctx context.Context, data []byte, enhancement Enhancement) (*Waveform, error) {
	start := time.Now()

	if len(data) == 0 {
		return nil, &domain.AudioDecodeError{Reason: "empty payload"}
	}

	if in.cfg.MaxUploadBytes > 0 && len(data) > in.cfg.MaxUploadBytes {
		return nil, &domain.AudioDecodeError{
			Reason: fmt.Sprintf("payload of %d bytes exceeds limit of %d", len(data), in.cfg.MaxUploadBytes),
		}
	}

	// Reject over-long WAV uploads from the header before converting samples.
	if Sniff(data) == ContainerWAV {
		if info, err := GetWAVInfo(data); err == nil && info.Duration > in.cfg.MaxDuration {
			return nil, &domain.DurationOutOfRangeError{
				Duration: info.Duration, Min: in.cfg.MinDuration, Max: in.cfg.MaxDuration,
			}
		}
	}

	pcm, err := Decode(data)
	if err != nil {
		return nil, &domain.AudioDecodeError{Reason: "decode", Err: err}
	}

	duration := pcm.Duration()
	if duration < in.cfg.MinDuration || duration > in.cfg.MaxDuration {
		return nil, &domain.DurationOutOfRangeError{
			Duration: duration, Min: in.cfg.MinDuration, Max: in.cfg.MaxDuration,
		}
	}

	for i, s := range pcm.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, &domain.AudioDecodeError{Reason: fmt.Sprintf("non-finite sample at index %d", i)}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Averaging and resampling are both linear, so down-mixing first only
	// saves work.
	mono := Downmix(pcm.Samples, pcm.Channels)

	resampled, err := Resample(mono, pcm.SampleRate, in.cfg.TargetSampleRate)
	if err != nil {
		return nil, &domain.AudioDecodeError{Reason: "resample", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enhanced, err := in.enhance(resampled, enhancement)
	if err != nil {
		return nil, &domain.AudioDecodeError{Reason: "enhance", Err: err}
	}

	samples := PeakNormalize(enhanced, in.cfg.PeakLevel)
	w := &Waveform{
		Samples:    samples,
		SampleRate: in.cfg.TargetSampleRate,
		Duration:   float64(len(samples)) / float64(in.cfg.TargetSampleRate),
	}

	// The bounds hold for the waveform handed downstream, not just the source.
	if w.Duration < in.cfg.MinDuration-halfSample(in.cfg.TargetSampleRate) || w.Duration > in.cfg.MaxDuration+halfSample(in.cfg.TargetSampleRate) {
		return nil, &domain.DurationOutOfRangeError{
			Duration: w.Duration, Min: in.cfg.MinDuration, Max: in.cfg.MaxDuration,
		}
	}

	in.logger.Debug("Audio ingested",
		slog.String("container", string(Sniff(data))),
		slog.Int("source_rate", pcm.SampleRate),
		slog.Int("source_channels", pcm.Channels),
		slog.Float64("duration", w.Duration),
		slog.String("enhancement", enhancement.String()),
		slog.Duration("elapsed", time.Since(start)),
	)

	return w, nil
}

// halfSample is the rounding slack of a rate conversion, in seconds.
func halfSample(rate int) float64 {
	return 0.5 / float64(rate)
}

func (in *Ingestor) enhance(samples []float64, enhancement Enhancement) ([]float64, error) {
	switch enhancement {
	case EnhanceDenoise:
		return SpectralSubtraction{
			FrameSize:   in.cfg.FrameSize,
			NoiseFrames: in.cfg.DenoiseFrames,
			Alpha:       in.cfg.DenoiseAlpha,
			Floor:       in.cfg.DenoiseFloor,
		}.Apply(samples)
	case EnhancePreEmphasis:
		return PreEmphasis(samples, in.cfg.PreEmphasis), nil
	default:
		return samples, nil
	}
}
