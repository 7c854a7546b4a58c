package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pipeline configuration
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Quality    QualityConfig    `yaml:"quality"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Matching   MatchingConfig   `yaml:"matching"`
	Model      ModelConfig      `yaml:"model"`
	Store      StoreConfig      `yaml:"store"`
	Audit      AuditConfig      `yaml:"audit"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Workers    WorkersConfig    `yaml:"workers"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HTTPConfig contains monitoring HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains ingestion and enhancement parameters
type AudioConfig struct {
	TargetSampleRate int     `yaml:"target_sample_rate_hz"`
	MinDuration      float64 `yaml:"min_duration_s"`
	MaxDuration      float64 `yaml:"max_duration_s"`
	MaxUploadBytes   int     `yaml:"max_upload_bytes"`
	FrameSize        int     `yaml:"frame_size"`     // samples per STFT frame used for denoising
	DenoiseFrames    int     `yaml:"denoise_frames"` // leading frames used as the noise profile
	DenoiseAlpha     float64 `yaml:"denoise_alpha"`
	DenoiseFloor     float64 `yaml:"denoise_floor"`
	PreEmphasis      float64 `yaml:"pre_emphasis"`
	PeakLevel        float64 `yaml:"peak_level"`
}

// VADConfig contains the voice activity heuristic parameters
type VADConfig struct {
	FrameMs         int     `yaml:"frame_ms"`
	EnergyThreshold float64 `yaml:"energy_threshold"` // RMS on the normalized waveform
	ZCRMax          float64 `yaml:"zcr_max"`
}

// QualityConfig contains the quality gate threshold and per-profile weights
type QualityConfig struct {
	Threshold      float64             `yaml:"quality_threshold"`
	SpeakerWeights WeightVector        `yaml:"speaker_weight_vector"`
	AffectWeights  WeightVector        `yaml:"affect_weight_vector"`
	Normalization  NormalizationConfig `yaml:"normalization"`
}

// WeightVector assigns a weight to each normalized sub-metric
type WeightVector struct {
	SNR       float64 `yaml:"snr"`
	ZCR       float64 `yaml:"zero_crossing_rate"`
	Centroid  float64 `yaml:"spectral_centroid"`
	Bandwidth float64 `yaml:"spectral_bandwidth"`
	VAD       float64 `yaml:"voice_activity_ratio"`
}

// NormalizationConfig maps each raw sub-metric into [0,1]
type NormalizationConfig struct {
	SNR       NormalizerConfig `yaml:"snr"`
	ZCR       NormalizerConfig `yaml:"zero_crossing_rate"`
	Centroid  NormalizerConfig `yaml:"spectral_centroid"`
	Bandwidth NormalizerConfig `yaml:"spectral_bandwidth"`
	VAD       NormalizerConfig `yaml:"voice_activity_ratio"`
}

// NormalizerConfig describes a clamped linear map. Kind "ramp" rises from
// Low to High; kind "peak" is 1 at Center and falls to 0 at Center±Width.
type NormalizerConfig struct {
	Kind   string  `yaml:"kind"`
	Low    float64 `yaml:"low"`
	High   float64 `yaml:"high"`
	Center float64 `yaml:"center"`
	Width  float64 `yaml:"width"`
}

// EnrollmentConfig contains per-identity enrollment rules
type EnrollmentConfig struct {
	SampleCap       int `yaml:"sample_cap"`
	RequiredSamples int `yaml:"required_samples"`
	LockIdleTimeout int `yaml:"lock_idle_timeout"` // seconds
}

// MatchingConfig contains the recognition decision parameters
type MatchingConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TopK                int     `yaml:"top_k"`
}

// ModelConfig contains capability sources and device selection
type ModelConfig struct {
	Device         string           `yaml:"device"`
	CacheDir       string           `yaml:"cache_dir"`
	ONNXLibrary    string           `yaml:"onnx_library"`
	InitTimeout    int              `yaml:"init_timeout"`        // seconds
	RetryInterval  int              `yaml:"init_retry_interval"` // seconds, doubled per failed attempt
	Embedding      CapabilityConfig `yaml:"embedding"`
	Classification CapabilityConfig `yaml:"classification"`
	Registry       RegistryConfig   `yaml:"registry"`
}

// CapabilityConfig lists the sources tried in order for one capability
type CapabilityConfig struct {
	Sources []SourceConfig `yaml:"sources"`
	Labels  []string       `yaml:"labels"`
}

// SourceConfig describes a single place a model can be loaded from
type SourceConfig struct {
	Kind          string  `yaml:"kind"` // cache, registry or builtin
	Name          string  `yaml:"name"`
	Version       string  `yaml:"version"`
	Path          string  `yaml:"path"`
	InputName     string  `yaml:"input_name"`
	OutputName    string  `yaml:"output_name"`
	WindowSeconds float64 `yaml:"window_seconds"`
	Dimension     int     `yaml:"dimension"`
}

// RegistryConfig contains the model registry HTTP client configuration
type RegistryConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// StoreConfig selects the embedding store backend
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Badger   BadgerConfig   `yaml:"badger"`
	Pinecone PineconeConfig `yaml:"pinecone"`
}

// BadgerConfig contains the embedded key-value store options
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// PineconeConfig contains the remote vector index options
type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
}

// AuditConfig selects the audit sink
type AuditConfig struct {
	Sink       string `yaml:"sink"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ArchiveConfig contains raw-audio archive options
type ArchiveConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Bucket           string  `yaml:"bucket"`
	Prefix           string  `yaml:"prefix"`
	Region           string  `yaml:"region"`
	Endpoint         string  `yaml:"endpoint"`
	UsePathStyle     bool    `yaml:"use_path_style"`
	AccessKeyID      string  `yaml:"access_key_id"`
	SecretAccessKey  string  `yaml:"secret_access_key"`
	UploadsPerSecond float64 `yaml:"uploads_per_second"`
	Burst            int     `yaml:"burst"`
}

// WorkersConfig sizes the CPU-bound worker pool
type WorkersConfig struct {
	Size int `yaml:"size"` // 0 means GOMAXPROCS
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that runs fully in-process
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
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
		},
		VAD: VADConfig{
			FrameMs:         30,
			EnergyThreshold: 0.02,
			ZCRMax:          0.5,
		},
		Quality: QualityConfig{
			Threshold: 0.6,
			SpeakerWeights: WeightVector{
				SNR: 0.3, ZCR: 0.2, Centroid: 0.1, Bandwidth: 0.1, VAD: 0.3,
			},
			AffectWeights: WeightVector{
				SNR: 0.3, ZCR: 0.2, Centroid: 0.2, Bandwidth: 0.1, VAD: 0.2,
			},
			Normalization: NormalizationConfig{
				SNR:       NormalizerConfig{Kind: "ramp", Low: 0, High: 20},
				ZCR:       NormalizerConfig{Kind: "peak", Center: 0.1, Width: 0.2},
				Centroid:  NormalizerConfig{Kind: "peak", Center: 1500, Width: 2000},
				Bandwidth: NormalizerConfig{Kind: "peak", Center: 1500, Width: 1500},
				VAD:       NormalizerConfig{Kind: "ramp", Low: 0, High: 1},
			},
		},
		Enrollment: EnrollmentConfig{
			SampleCap:       5,
			RequiredSamples: 3,
			LockIdleTimeout: 300,
		},
		Matching: MatchingConfig{
			SimilarityThreshold: 0.75,
			TopK:                0,
		},
		Model: ModelConfig{
			Device:        "auto",
			CacheDir:      "models",
			InitTimeout:   120,
			RetryInterval: 5,
			Embedding: CapabilityConfig{
				Sources: []SourceConfig{
					{Kind: "cache", Name: "ecapa-tdnn", Version: "1", Path: "ecapa-tdnn.onnx",
						InputName: "waveform", OutputName: "embedding", WindowSeconds: 3, Dimension: 192},
					{Kind: "builtin", Name: "logmel-stats", Version: "1"},
				},
			},
			Classification: CapabilityConfig{
				Sources: []SourceConfig{
					{Kind: "cache", Name: "emotion-wav2vec2", Version: "1", Path: "emotion-wav2vec2.onnx",
						InputName: "input_values", OutputName: "logits", WindowSeconds: 5},
				},
				Labels: []string{"neutral", "happy", "sad", "angry", "fear", "disgust", "surprise"},
			},
			Registry: RegistryConfig{
				Timeout:       60,
				MaxRetries:    3,
				MaxConcurrent: 2,
			},
		},
		Store: StoreConfig{
			Backend: "memory",
			Badger:  BadgerConfig{Dir: "data/embeddings"},
		},
		Audit: AuditConfig{
			Sink:       "memory",
			SQLitePath: "data/audit.db",
		},
		Archive: ArchiveConfig{
			Prefix:           "audio",
			Region:           "us-east-1",
			UploadsPerSecond: 5,
			Burst:            1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}

	if err := c.Enrollment.Validate(); err != nil {
		return fmt.Errorf("enrollment config: %w", err)
	}

	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit config: %w", err)
	}

	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive config: %w", err)
	}

	if c.Workers.Size < 0 {
		return fmt.Errorf("workers config: size cannot be negative, got %d", c.Workers.Size)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.TargetSampleRate < 8000 || a.TargetSampleRate > 48000 {
		return fmt.Errorf("target_sample_rate_hz must be between 8000 and 48000, got %d", a.TargetSampleRate)
	}

	if a.MinDuration <= 0 {
		return fmt.Errorf("min_duration_s must be positive, got %f", a.MinDuration)
	}

	if a.MaxDuration <= a.MinDuration {
		return fmt.Errorf("max_duration_s (%f) must be greater than min_duration_s (%f)",
			a.MaxDuration, a.MinDuration)
	}

	if a.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", a.MaxUploadBytes)
	}

	if a.FrameSize < 64 || a.FrameSize&(a.FrameSize-1) != 0 {
		return fmt.Errorf("frame_size must be a power of two of at least 64, got %d", a.FrameSize)
	}

	if a.DenoiseFrames < 1 {
		return fmt.Errorf("denoise_frames must be at least 1, got %d", a.DenoiseFrames)
	}

	if a.DenoiseAlpha <= 0 {
		return fmt.Errorf("denoise_alpha must be positive, got %f", a.DenoiseAlpha)
	}

	if a.DenoiseFloor < 0 || a.DenoiseFloor >= 1 {
		return fmt.Errorf("denoise_floor must be in [0, 1), got %f", a.DenoiseFloor)
	}

	if a.PreEmphasis < 0 || a.PreEmphasis >= 1 {
		return fmt.Errorf("pre_emphasis must be in [0, 1), got %f", a.PreEmphasis)
	}

	if a.PeakLevel <= 0 || a.PeakLevel > 0.95 {
		return fmt.Errorf("peak_level must be in (0, 0.95], got %f", a.PeakLevel)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.FrameMs < 10 || v.FrameMs > 100 {
		return fmt.Errorf("frame_ms must be between 10 and 100, got %d", v.FrameMs)
	}

	if v.EnergyThreshold <= 0 || v.EnergyThreshold >= 1 {
		return fmt.Errorf("energy_threshold must be in (0, 1), got %f", v.EnergyThreshold)
	}

	if v.ZCRMax <= 0 || v.ZCRMax > 1 {
		return fmt.Errorf("zcr_max must be in (0, 1], got %f", v.ZCRMax)
	}

	return nil
}

// Validate validates quality configuration
func (q *QualityConfig) Validate() error {
	if q.Threshold < 0 || q.Threshold > 1 {
		return fmt.Errorf("quality_threshold must be between 0 and 1, got %f", q.Threshold)
	}

	if err := q.SpeakerWeights.Validate(); err != nil {
		return fmt.Errorf("speaker_weight_vector: %w", err)
	}

	if err := q.AffectWeights.Validate(); err != nil {
		return fmt.Errorf("affect_weight_vector: %w", err)
	}

	normalizers := map[string]NormalizerConfig{
		"snr":                  q.Normalization.SNR,
		"zero_crossing_rate":   q.Normalization.ZCR,
		"spectral_centroid":    q.Normalization.Centroid,
		"spectral_bandwidth":   q.Normalization.Bandwidth,
		"voice_activity_ratio": q.Normalization.VAD,
	}
	for name, n := range normalizers {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("normalization %s: %w", name, err)
		}
	}

	return nil
}

// Sum returns the total weight
func (w WeightVector) Sum() float64 {
	return w.SNR + w.ZCR + w.Centroid + w.Bandwidth + w.VAD
}

// Validate checks that weights are non-negative and sum to 1
func (w WeightVector) Validate() error {
	for _, v := range []float64{w.SNR, w.ZCR, w.Centroid, w.Bandwidth, w.VAD} {
		if v < 0 {
			return fmt.Errorf("weights cannot be negative, got %f", v)
		}
	}

	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %f", w.Sum())
	}

	return nil
}

// Validate validates a normalizer definition
func (n NormalizerConfig) Validate() error {
	switch n.Kind {
	case "ramp":
		if n.High <= n.Low {
			return fmt.Errorf("ramp high (%f) must be greater than low (%f)", n.High, n.Low)
		}
	case "peak":
		if n.Width <= 0 {
			return fmt.Errorf("peak width must be positive, got %f", n.Width)
		}
	default:
		return fmt.Errorf("kind must be 'ramp' or 'peak', got '%s'", n.Kind)
	}

	return nil
}

// Validate validates enrollment configuration
func (e *EnrollmentConfig) Validate() error {
	if e.SampleCap < 1 {
		return fmt.Errorf("sample_cap must be at least 1, got %d", e.SampleCap)
	}

	if e.RequiredSamples < 1 || e.RequiredSamples > e.SampleCap {
		return fmt.Errorf("required_samples must be between 1 and sample_cap (%d), got %d",
			e.SampleCap, e.RequiredSamples)
	}

	if e.LockIdleTimeout < 1 {
		return fmt.Errorf("lock_idle_timeout must be at least 1 second, got %d", e.LockIdleTimeout)
	}

	return nil
}

// Validate validates matching configuration
func (m *MatchingConfig) Validate() error {
	if m.SimilarityThreshold < 0 || m.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1, got %f", m.SimilarityThreshold)
	}

	if m.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative, got %d", m.TopK)
	}

	return nil
}

// Validate validates model configuration
func (m *ModelConfig) Validate() error {
	validDevices := map[string]bool{"auto": true, "cpu": true, "cuda": true}
	if !validDevices[m.Device] {
		return fmt.Errorf("device must be one of [auto, cpu, cuda], got '%s'", m.Device)
	}

	if m.InitTimeout < 1 {
		return fmt.Errorf("init_timeout must be at least 1 second, got %d", m.InitTimeout)
	}

	if m.RetryInterval < 1 {
		return fmt.Errorf("init_retry_interval must be at least 1 second, got %d", m.RetryInterval)
	}

	if len(m.Embedding.Sources) == 0 {
		return fmt.Errorf("embedding needs at least one source")
	}

	usesRegistry := false
	for _, capability := range []CapabilityConfig{m.Embedding, m.Classification} {
		for i, s := range capability.Sources {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			if s.Kind == "registry" {
				usesRegistry = true
			}
		}
	}

	for _, s := range m.Embedding.Sources {
		if s.Kind != "builtin" && s.Dimension < 1 {
			return fmt.Errorf("embedding source %s needs a positive dimension", s.Name)
		}
	}

	if len(m.Classification.Sources) > 0 && len(m.Classification.Labels) < 2 {
		return fmt.Errorf("classification needs at least two labels, got %d", len(m.Classification.Labels))
	}

	if usesRegistry {
		if err := m.Registry.Validate(); err != nil {
			return fmt.Errorf("registry: %w", err)
		}
	}

	return nil
}

// Validate validates a capability source
func (s *SourceConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	switch s.Kind {
	case "builtin":
		return nil
	case "cache", "registry":
		if s.Path == "" {
			return fmt.Errorf("path cannot be empty for %s source %s", s.Kind, s.Name)
		}
		if s.WindowSeconds <= 0 {
			return fmt.Errorf("window_seconds must be positive for %s source %s", s.Kind, s.Name)
		}
		return nil
	default:
		return fmt.Errorf("kind must be one of [cache, registry, builtin], got '%s'", s.Kind)
	}
}

// Validate validates registry configuration
func (r *RegistryConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Validate validates store configuration
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case "memory":
	case "badger":
		if s.Badger.Dir == "" && !s.Badger.InMemory {
			return fmt.Errorf("badger dir cannot be empty unless in_memory is set")
		}
	case "pinecone":
		if s.Pinecone.APIKey == "" {
			return fmt.Errorf("pinecone api_key cannot be empty")
		}
		if s.Pinecone.Host == "" {
			return fmt.Errorf("pinecone host cannot be empty")
		}
	default:
		return fmt.Errorf("backend must be one of [memory, badger, pinecone], got '%s'", s.Backend)
	}

	return nil
}

// Validate validates audit configuration
func (a *AuditConfig) Validate() error {
	switch a.Sink {
	case "memory":
	case "sqlite":
		if a.SQLitePath == "" {
			return fmt.Errorf("sqlite_path cannot be empty")
		}
	default:
		return fmt.Errorf("sink must be 'memory' or 'sqlite', got '%s'", a.Sink)
	}

	return nil
}

// Validate validates archive configuration
func (a *ArchiveConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty when archive is enabled")
	}

	if a.Region == "" {
		return fmt.Errorf("region cannot be empty when archive is enabled")
	}

	if a.UploadsPerSecond <= 0 {
		return fmt.Errorf("uploads_per_second must be positive, got %f", a.UploadsPerSecond)
	}

	if a.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", a.Burst)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Any other output value is treated as a file path.
	return nil
}

// GetLockIdleTimeout returns the per-identity lock idle timeout as a time.Duration
func (e *EnrollmentConfig) GetLockIdleTimeout() time.Duration {
	return time.Duration(e.LockIdleTimeout) * time.Second
}

// GetInitTimeout returns the model initialization timeout as a time.Duration
func (m *ModelConfig) GetInitTimeout() time.Duration {
	return time.Duration(m.InitTimeout) * time.Second
}

// GetRetryInterval returns the first delay between model initialization retries
func (m *ModelConfig) GetRetryInterval() time.Duration {
	return time.Duration(m.RetryInterval) * time.Second
}

// GetTimeoutDuration returns the registry request timeout as a time.Duration
func (r *RegistryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetFrameDuration returns the VAD frame length as a time.Duration
func (v *VADConfig) GetFrameDuration() time.Duration {
	return time.Duration(v.FrameMs) * time.Millisecond
}

// GetMinDuration returns the minimum accepted audio duration as a time.Duration
func (a *AudioConfig) GetMinDuration() time.Duration {
	return time.Duration(a.MinDuration * float64(time.Second))
}

// GetMaxDuration returns the maximum accepted audio duration as a time.Duration
func (a *AudioConfig) GetMaxDuration() time.Duration {
	return time.Duration(a.MaxDuration * float64(time.Second))
}
