package quality

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/skypro1111/voxgate/internal/audio"
	"github.com/skypro1111/voxgate/internal/dsp"
	"github.com/skypro1111/voxgate/internal/vad"
)

// maxSNR is reported when the noise floor is exactly zero
const maxSNR = 60.0

// Config contains the assessor parameters
type Config struct {
	SpeakerWeights Weights
	AffectWeights  Weights
	Normalizers    Normalizers
	FFTSize        int           // STFT size for spectral metrics
	SNRFrame       time.Duration // frame length for the noise floor estimate
}

// DefaultConfig returns the weights and ranges used by the pipeline
func DefaultConfig() Config {
	return Config{
		SpeakerWeights: Weights{SNR: 0.3, ZCR: 0.2, Centroid: 0.1, Bandwidth: 0.1, VAD: 0.3},
		AffectWeights:  Weights{SNR: 0.3, ZCR: 0.2, Centroid: 0.2, Bandwidth: 0.1, VAD: 0.2},
		Normalizers:    DefaultNormalizers(),
		FFTSize:        512,
		SNRFrame:       20 * time.Millisecond,
	}
}

// Assessor computes composite quality scores. It is safe for concurrent use.
type Assessor struct {
	config Config
	vad    *vad.Processor
	logger *slog.Logger

	stftPool sync.Pool
}

// NewAssessor creates a quality assessor backed by the given VAD processor
func NewAssessor(config Config, processor *vad.Processor, logger *slog.Logger) (*Assessor, error) {
	if processor == nil {
		return nil, fmt.Errorf("vad processor cannot be nil")
	}

	if err := config.SpeakerWeights.Validate(); err != nil {
		return nil, fmt.Errorf("speaker weights: %w", err)
	}

	if err := config.AffectWeights.Validate(); err != nil {
		return nil, fmt.Errorf("affect weights: %w", err)
	}

	if err := config.Normalizers.Validate(); err != nil {
		return nil, fmt.Errorf("normalizers: %w", err)
	}

	if config.FFTSize < 64 || config.FFTSize&(config.FFTSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two of at least 64, got %d", config.FFTSize)
	}

	if config.SNRFrame <= 0 {
		return nil, fmt.Errorf("snr frame must be positive, got %v", config.SNRFrame)
	}

	if logger == nil {
		logger = slog.Default()
	}

	a := &Assessor{
		config: config,
		vad:    processor,
		logger: logger,
	}
	a.stftPool.New = func() any {
		s, _ := dsp.NewSTFT(config.FFTSize, config.FFTSize/2)
		return s
	}
	return a, nil
}

// Weights returns the weight vector of a profile
func (a *Assessor) Weights(profile Profile) Weights {
	if profile == ProfileAffect {
		return a.config.AffectWeights
	}
	return a.config.SpeakerWeights
}

// Assess scores a waveform. It never fails: a sub-metric that cannot be
// computed takes the neutral normalized value and is listed as degraded.
func (a *Assessor) Assess(w *audio.Waveform, profile Profile) *Score {
	if profile != ProfileAffect {
		profile = ProfileSpeaker
	}
	score := &Score{Profile: profile}

	var samples []float64
	sampleRate := 0
	if w != nil {
		samples = w.Samples
		sampleRate = w.SampleRate
	}

	raw := map[Metric]func() (float64, error){
		MetricSNR: func() (float64, error) { return a.snr(samples, sampleRate) },
		MetricZCR: func() (float64, error) { return zcr(samples) },
		MetricVAD: func() (float64, error) { return a.voiceActivity(samples, sampleRate) },
	}

	centroid, bandwidth, specErr := a.spectralShape(samples, sampleRate)
	raw[MetricCentroid] = func() (float64, error) { return centroid, specErr }
	raw[MetricBandwidth] = func() (float64, error) { return bandwidth, specErr }

	for _, m := range Metrics {
		v, err := raw[m]()
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = fmt.Errorf("non-finite value")
		}
		if err != nil {
			a.logger.Debug("Quality sub-metric degraded",
				slog.String("metric", string(m)),
				slog.String("error", err.Error()))
			score.Degraded = append(score.Degraded, m)
			score.Normalized.set(m, neutral)
			continue
		}
		score.Raw.set(m, v)
		score.Normalized.set(m, a.config.Normalizers.get(m).Apply(v))
	}

	score.Composite = composite(score.Normalized, a.Weights(profile))

	a.logger.Debug("Quality assessed",
		slog.String("profile", string(profile)),
		slog.Float64("composite", score.Composite),
		slog.Float64("snr_db", score.Raw.SNR),
		slog.Float64("vad_ratio", score.Raw.VAD),
		slog.Int("degraded", len(score.Degraded)))

	return score
}

// snr compares the mean signal power with the 10th percentile of frame energies
func (a *Assessor) snr(samples []float64, sampleRate int) (float64, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	frame := int(a.config.SNRFrame.Seconds() * float64(sampleRate))
	if frame < 1 || len(samples) < frame {
		return 0, fmt.Errorf("need at least %d samples, got %d", frame, len(samples))
	}

	energies := make([]float64, 0, len(samples)/frame)
	for start := 0; start+frame <= len(samples); start += frame {
		energies = append(energies, meanSquare(samples[start:start+frame]))
	}
	sort.Float64s(energies)
	floor := stat.Quantile(0.1, stat.Empirical, energies, nil)

	signal := meanSquare(samples)
	if signal == 0 {
		return 0, fmt.Errorf("signal has no energy")
	}
	if floor == 0 {
		return maxSNR, nil
	}
	return math.Min(10*math.Log10(signal/floor), maxSNR), nil
}

func zcr(samples []float64) (float64, error) {
	if len(samples) < 2 {
		return 0, fmt.Errorf("need at least 2 samples, got %d", len(samples))
	}
	return vad.ZeroCrossingRate(samples), nil
}

func (a *Assessor) voiceActivity(samples []float64, sampleRate int) (float64, error) {
	result, err := a.vad.Analyze(samples, sampleRate)
	if err != nil {
		return 0, err
	}
	return result.Ratio, nil
}

// spectralShape returns the magnitude-weighted centroid and bandwidth in Hz
// averaged over frames that carry energy.
func (a *Assessor) spectralShape(samples []float64, sampleRate int) (float64, float64, error) {
	if sampleRate <= 0 {
		return 0, 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	stft := a.stftPool.Get().(*dsp.STFT)
	defer a.stftPool.Put(stft)

	frames := stft.Magnitudes(samples)
	if len(frames) == 0 {
		return 0, 0, fmt.Errorf("need at least %d samples for one frame, got %d", stft.FFTSize, len(samples))
	}

	freqs := make([]float64, stft.Bins())
	for k := range freqs {
		freqs[k] = stft.BinFrequency(k, sampleRate)
	}

	centroids := make([]float64, 0, len(frames))
	bandwidths := make([]float64, 0, len(frames))
	for _, mags := range frames {
		var total float64
		for _, m := range mags {
			total += m
		}
		if total <= 1e-12 {
			continue
		}
		c := stat.Mean(freqs, mags)
		var spread float64
		for k, m := range mags {
			d := freqs[k] - c
			spread += d * d * m
		}
		centroids = append(centroids, c)
		bandwidths = append(bandwidths, math.Sqrt(spread/total))
	}

	if len(centroids) == 0 {
		return 0, 0, fmt.Errorf("empty spectrum")
	}
	return stat.Mean(centroids, nil), stat.Mean(bandwidths, nil), nil
}

func meanSquare(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum / float64(len(samples))
}
